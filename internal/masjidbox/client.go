package masjidbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the production MasjidBox API host.
	DefaultBaseURL = "https://api.masjidbox.com"
	// DefaultDays is the timetable window requested when none is configured.
	DefaultDays = 7
	// RequestTimeout bounds every fetch attempt.
	RequestTimeout = 30 * time.Second

	athanyPath  = "/1.0/masjidbox/landing/athany/%s?get=at&days=%d&begin=%s"
	beginLayout = "2006-01-02T15:04:05.000-07:00"
)

// Request identifies the place and window to fetch.
type Request struct {
	Slug   string
	APIKey string
	Days   int
}

// Client fetches timetables from the MasjidBox API.
type Client struct {
	httpClient *http.Client
	// BaseURL is exported so tests can point the client at httptest servers.
	BaseURL string
	// now is swapped in tests to pin the begin parameter.
	now func() time.Time
}

// NewClient creates a client against the production API. An empty proxy
// means a direct connection.
func NewClient(proxy string) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", proxy).Msg("[masjidbox] invalid proxy URL, connecting directly")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   RequestTimeout,
		},
		BaseURL: DefaultBaseURL,
		now:     time.Now,
	}
}

// BeginParam returns today's UTC midnight as the percent-encoded begin
// parameter. The API misreads an unescaped "+" or ":" and answers with
// "Invalid date" entries, so the whole value is escaped.
func BeginParam(now time.Time) string {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return url.QueryEscape(midnight.Format(beginLayout))
}

// URL builds the timetable request URL for req.
func (c *Client) URL(req Request) string {
	return c.BaseURL + fmt.Sprintf(athanyPath, url.PathEscape(req.Slug), req.Days, BeginParam(c.now()))
}

// Fetch performs a single timetable request and returns the decoded JSON
// object unchanged.
func (c *Client) Fetch(ctx context.Context, req Request) (map[string]any, error) {
	reqURL := c.URL(req)
	log.Debug().Str("slug", req.Slug).Str("url", reqURL).Msg("[masjidbox] requesting timetable")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindUnexpected, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("apikey", req.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := classify(err)
		if kind == KindUnexpected {
			log.Error().Err(err).Str("slug", req.Slug).Msg("[masjidbox] unclassified transport error")
		}
		return nil, &FetchError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: KindStatus, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &FetchError{Kind: KindMalformed, Err: err}
	}
	data, ok := decoded.(map[string]any)
	if !ok {
		return nil, &FetchError{Kind: KindMalformed}
	}

	log.Debug().Str("slug", req.Slug).Int("bytes", len(body)).Msg("[masjidbox] timetable received")
	return data, nil
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindNetwork
	}
	return KindUnexpected
}
