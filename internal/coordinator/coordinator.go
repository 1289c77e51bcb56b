package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"masjidbox-bridge/internal/masjidbox"
)

// UpdateInterval is the fixed refresh period.
const UpdateInterval = 60 * time.Minute

// State is the coordinator's health.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Fetcher retrieves the raw timetable for a place.
type Fetcher interface {
	Fetch(ctx context.Context, req masjidbox.Request) (map[string]any, error)
}

// Snapshot is one successful fetch result. It is never mutated after it has
// been published.
type Snapshot struct {
	Data      map[string]any
	FetchedAt time.Time
}

// Listener is called after every successful refresh.
type Listener func(*Snapshot)

// Coordinator polls the API for a single place and caches the last good result.
type Coordinator struct {
	name     string
	req      masjidbox.Request
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	snapshot atomic.Pointer[Snapshot]
	group    singleflight.Group

	mu        sync.RWMutex
	state     State
	lastErr   error
	listeners map[int]Listener
	nextID    int
}

// New creates a coordinator for req. It holds no data until FirstRefresh succeeds.
func New(req masjidbox.Request, fetcher Fetcher) *Coordinator {
	name := fmt.Sprintf("MasjidBox %s", req.Slug)
	return &Coordinator{
		name:      name,
		req:       req,
		fetcher:   fetcher,
		interval:  UpdateInterval,
		timeout:   masjidbox.RequestTimeout,
		logger:    log.With().Str("coordinator", name).Logger(),
		state:     StateUninitialized,
		listeners: make(map[int]Listener),
	}
}

// Name returns the coordinator's display name.
func (c *Coordinator) Name() string {
	return c.name
}

// FirstRefresh performs the initial fetch synchronously. On failure the
// coordinator stays uninitialized and the error is returned to the caller.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if c.State() != StateUninitialized {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh triggers an immediate fetch and waits for it. Callers that arrive
// while a fetch is in flight share its result. The shared fetch is detached
// from the caller: a caller giving up stops waiting but does not abort the
// fetch for the others.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ch := c.group.DoChan("refresh", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, c.update(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug().Msg("refresh joined in-flight fetch")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run refreshes on a fixed interval until ctx is cancelled. The first refresh
// is expected to have happened already through FirstRefresh.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info().Dur("interval", c.interval).Msg("starting refresh loop")

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("refresh loop shutting down")
			return
		case <-timer.C:
			// A failure has already been recorded and logged; the next tick retries.
			_ = c.Refresh(ctx)
			timer.Reset(c.interval)
		}
	}
}

func (c *Coordinator) update(ctx context.Context) error {
	start := time.Now()
	data, err := c.fetcher.Fetch(ctx, c.req)
	if errors.Is(err, context.Canceled) {
		c.logger.Debug().Err(err).Msg("fetch cancelled")
		return fmt.Errorf("%s: %w", c.name, err)
	}
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		if c.state != StateUninitialized {
			c.state = StateFailed
		}
		c.mu.Unlock()

		c.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("error fetching data")
		return fmt.Errorf("%s: %w", c.name, err)
	}

	snap := &Snapshot{Data: data, FetchedAt: time.Now().UTC()}
	c.snapshot.Store(snap)

	c.mu.Lock()
	recovered := c.state == StateFailed
	c.state = StateReady
	c.lastErr = nil
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	if recovered {
		c.logger.Info().Msg("fetching data recovered")
	}
	c.logger.Debug().Dur("elapsed", time.Since(start)).Msg("finished fetching data")

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

// Snapshot returns the last successful result, or nil before the first one.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Data returns the last cached raw response, or an empty map.
func (c *Coordinator) Data() map[string]any {
	if snap := c.snapshot.Load(); snap != nil {
		return snap.Data
	}
	return map[string]any{}
}

// State returns the current health state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the error of the most recent failed refresh, or nil
// after a success.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LastUpdateSuccess reports whether the most recent refresh succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	return c.State() == StateReady
}

// AddListener registers fn for successful refreshes and returns a function
// that removes it.
func (c *Coordinator) AddListener(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}
