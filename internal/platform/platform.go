// Package platform is the host-side adapter. It owns the registry of loaded
// places, runs their coordinators and evaluates their sensors.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"masjidbox-bridge/internal/coordinator"
	"masjidbox-bridge/internal/masjidbox"
	"masjidbox-bridge/internal/model"
	"masjidbox-bridge/internal/sensor"
	"masjidbox-bridge/internal/store"
)

// setupConcurrency bounds the first fetches run by LoadStored.
const setupConcurrency = 4

var (
	// ErrSetupFailed wraps the first-fetch error of a place that could not be loaded.
	ErrSetupFailed = errors.New("setup failed")
	// ErrAlreadyLoaded is returned when setting up a place that is already running.
	ErrAlreadyLoaded = errors.New("place already loaded")
)

// Observer is notified about entry lifecycle events. Methods are called
// synchronously and must not block.
//
// EntryUnloaded means the entry stopped running (reload, shutdown).
// EntryRemoved means its configuration was deleted; the entry passed to it
// may never have been loaded and then has a nil Coordinator.
type Observer interface {
	EntryLoaded(e *Entry)
	EntryUpdated(e *Entry, snap *coordinator.Snapshot)
	EntryUnloaded(e *Entry)
	EntryRemoved(e *Entry)
}

// Entry is one loaded place.
type Entry struct {
	Place       model.Place
	Coordinator *coordinator.Coordinator
	Sensors     []sensor.Sensor

	cancel         context.CancelFunc
	removeListener func()
}

// SensorState is a sensor together with its value at read time.
type SensorState struct {
	UniqueID    string        `json:"unique_id"`
	Name        string        `json:"name"`
	Kind        sensor.Kind   `json:"kind"`
	Prayer      sensor.Prayer `json:"prayer,omitempty"`
	DeviceClass string        `json:"device_class,omitempty"`
	Icon        string        `json:"icon,omitempty"`
	State       *string       `json:"state"`
	Device      sensor.Device `json:"device"`
}

// States evaluates every sensor against a single snapshot.
func (e *Entry) States() []SensorState {
	return StatesFor(e.Sensors, e.Coordinator.Data())
}

// State evaluates the sensor with uniqueID.
func (e *Entry) State(uniqueID string) (SensorState, bool) {
	for _, s := range e.Sensors {
		if s.UniqueID == uniqueID {
			return StatesFor([]sensor.Sensor{s}, e.Coordinator.Data())[0], true
		}
	}
	return SensorState{}, false
}

// StatesFor evaluates sensors against data.
func StatesFor(sensors []sensor.Sensor, data map[string]any) []SensorState {
	states := make([]SensorState, 0, len(sensors))
	for _, s := range sensors {
		st := SensorState{
			UniqueID:    s.UniqueID,
			Name:        s.Name,
			Kind:        s.Kind,
			Prayer:      s.Prayer,
			DeviceClass: s.DeviceClass,
			Icon:        s.Icon,
			Device:      s.Device,
		}
		if r, ok := s.Read(data); ok {
			v := r.State(s.Kind)
			st.State = &v
		}
		states = append(states, st)
	}
	return states
}

// Status summarizes the health of an entry.
type Status struct {
	State     coordinator.State `json:"state"`
	LastError string            `json:"last_error,omitempty"`
	FetchedAt *time.Time        `json:"fetched_at,omitempty"`
}

// Status reports the coordinator health of the entry.
func (e *Entry) Status() Status {
	st := Status{State: e.Coordinator.State()}
	if err := e.Coordinator.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if snap := e.Coordinator.Snapshot(); snap != nil {
		fetched := snap.FetchedAt
		st.FetchedAt = &fetched
	}
	return st
}

// Platform holds the loaded entries keyed by configuration id.
type Platform struct {
	ctx     context.Context
	fetcher coordinator.Fetcher

	mu        sync.RWMutex
	entries   map[string]*Entry
	observers []Observer
}

// New creates a platform. Coordinators started by it stop when ctx is done.
func New(ctx context.Context, fetcher coordinator.Fetcher) *Platform {
	return &Platform{
		ctx:     ctx,
		fetcher: fetcher,
		entries: make(map[string]*Entry),
	}
}

// AddObserver registers o for lifecycle events of entries loaded afterwards.
func (p *Platform) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// SetupEntry loads place: the first fetch runs synchronously and, only if it
// succeeds, the entry is registered and its refresh loop started.
func (p *Platform) SetupEntry(ctx context.Context, place model.Place) (*Entry, error) {
	if _, ok := p.Entry(place.ID); ok {
		return nil, ErrAlreadyLoaded
	}

	coord := coordinator.New(masjidbox.Request{
		Slug:   place.Slug,
		APIKey: place.APIKey,
		Days:   place.Days,
	}, p.fetcher)

	if err := coord.FirstRefresh(ctx); err != nil {
		log.Warn().Err(err).Str("slug", place.Slug).Msg("[platform] first refresh failed, place not loaded")
		return nil, fmt.Errorf("%w for %s: %w", ErrSetupFailed, place.Slug, err)
	}

	entry := &Entry{
		Place:       place,
		Coordinator: coord,
		Sensors:     sensor.ForPlace(place.Slug),
	}

	p.mu.Lock()
	if _, ok := p.entries[place.ID]; ok {
		p.mu.Unlock()
		return nil, ErrAlreadyLoaded
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	entry.cancel = cancel
	p.entries[place.ID] = entry
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	entry.removeListener = coord.AddListener(func(snap *coordinator.Snapshot) {
		for _, o := range observers {
			o.EntryUpdated(entry, snap)
		}
	})
	for _, o := range observers {
		o.EntryLoaded(entry)
	}

	go coord.Run(runCtx)

	log.Info().Str("slug", place.Slug).Str("id", place.ID).Int("sensors", len(entry.Sensors)).Msg("[platform] entry setup completed")
	return entry, nil
}

// UnloadEntry stops and forgets the entry with id. An in-flight fetch is
// abandoned rather than awaited. It reports whether the entry was loaded.
func (p *Platform) UnloadEntry(id string) bool {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	if !ok {
		return false
	}

	entry.cancel()
	entry.removeListener()
	for _, o := range observers {
		o.EntryUnloaded(entry)
	}

	log.Info().Str("slug", entry.Place.Slug).Msg("[platform] entry unloaded")
	return true
}

// RemoveEntry unloads place if it is running and tells observers that its
// configuration is gone.
func (p *Platform) RemoveEntry(place model.Place) {
	entry, ok := p.Entry(place.ID)
	if ok {
		p.UnloadEntry(place.ID)
	} else {
		entry = &Entry{Place: place, Sensors: sensor.ForPlace(place.Slug)}
	}

	p.mu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()
	for _, o := range observers {
		o.EntryRemoved(entry)
	}

	log.Info().Str("slug", place.Slug).Msg("[platform] entry removed")
}

// Entry returns the loaded entry with id.
func (p *Platform) Entry(id string) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	return e, ok
}

// Entries returns the loaded entries ordered by slug.
func (p *Platform) Entries() []*Entry {
	p.mu.RLock()
	entries := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Place.Slug < entries[j].Place.Slug
	})
	return entries
}

// Shutdown unloads every entry. Observers see EntryUnloaded only.
func (p *Platform) Shutdown() {
	for _, e := range p.Entries() {
		p.UnloadEntry(e.Place.ID)
	}
}

// LoadStored sets up every stored place that is not loaded yet. Places whose
// first fetch fails stay unloaded until reloaded. It returns the number of
// places loaded.
func (p *Platform) LoadStored(ctx context.Context, s store.Store) (int, error) {
	places, err := s.ListPlaces(ctx)
	if err != nil {
		return 0, err
	}

	var loaded atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(setupConcurrency)
	for _, place := range places {
		if _, ok := p.Entry(place.ID); ok {
			continue
		}
		place := place
		g.Go(func() error {
			if _, err := p.SetupEntry(gctx, place); err == nil {
				loaded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().Int("stored", len(places)).Int32("loaded", loaded.Load()).Msg("[platform] stored places loaded")
	return int(loaded.Load()), nil
}
