package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masjidbox-bridge/internal/masjidbox"
	"masjidbox-bridge/internal/model"
	"masjidbox-bridge/internal/platform"
)

// mockToken is a completed mqtt.Token.
type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Error() error                   { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  string
}

// mockClient records every publish.
type mockClient struct {
	mu       sync.Mutex
	messages []message
	err      error
	notify   chan struct{}
}

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.messages = append(c.messages, message{topic: topic, retained: retained, payload: string(payload.([]byte))})
	c.mu.Unlock()
	if c.notify != nil {
		c.notify <- struct{}{}
	}
	return &mockToken{err: c.err}
}

func (c *mockClient) byTopic() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.messages))
	for _, m := range c.messages {
		out[m.topic] = m.payload
	}
	return out
}

type staticFetcher struct {
	data map[string]any
}

func (f *staticFetcher) Fetch(ctx context.Context, req masjidbox.Request) (map[string]any, error) {
	return f.data, nil
}

var topics = Topics{DiscoveryPrefix: "homeassistant", TopicPrefix: "masjidbox"}

func loadEntry(t *testing.T) *platform.Entry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := platform.New(ctx, &staticFetcher{data: map[string]any{"timetable": []any{map[string]any{
		"fajr":  "2024-03-01T05:12:00Z",
		"hijri": map[string]any{"formatted": "20 Ramadan 1445"},
	}}}})
	entry, err := p.SetupEntry(ctx, model.Place{ID: "id-1", Slug: "central-mosque", APIKey: "abc123", Days: 7})
	require.NoError(t, err)
	return entry
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "homeassistant/sensor/masjidbox_x_hijri_date/config", topics.ConfigTopic("masjidbox_x_hijri_date"))
	assert.Equal(t, "masjidbox/x/masjidbox_x_hijri_date/state", topics.StateTopic("x", "masjidbox_x_hijri_date"))
}

func TestWorkerPool_Load(t *testing.T) {
	entry := loadEntry(t)
	client := &mockClient{}
	wp := NewWorkerPool(1, client, topics)

	wp.EntryLoaded(entry)
	wp.process(<-wp.jobs)

	got := client.byTopic()
	assert.Len(t, got, 24)

	var cfg discoveryConfig
	raw := got["homeassistant/sensor/masjidbox_central-mosque_adhan_fajr/config"]
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, "masjidbox_central-mosque_adhan_fajr", cfg.UniqueID)
	assert.Equal(t, "masjidbox/central-mosque/masjidbox_central-mosque_adhan_fajr/state", cfg.StateTopic)
	assert.Equal(t, "timestamp", cfg.DeviceClass)
	assert.Contains(t, raw, `"identifiers":["masjidbox:central-mosque"]`)

	assert.Equal(t, "2024-03-01T05:12:00Z", got["masjidbox/central-mosque/masjidbox_central-mosque_adhan_fajr/state"])
	assert.Equal(t, "20 Ramadan 1445", got["masjidbox/central-mosque/masjidbox_central-mosque_hijri_date/state"])
	assert.Equal(t, "None", got["masjidbox/central-mosque/masjidbox_central-mosque_adhan_isha/state"])

	client.mu.Lock()
	for _, m := range client.messages {
		assert.True(t, m.retained, m.topic)
	}
	client.mu.Unlock()
}

func TestWorkerPool_UpdateAndClear(t *testing.T) {
	entry := loadEntry(t)
	client := &mockClient{}
	wp := NewWorkerPool(1, client, topics)

	snap := entry.Coordinator.Snapshot()
	require.NotNil(t, snap)
	wp.EntryUpdated(entry, snap)
	wp.process(<-wp.jobs)
	assert.Len(t, client.byTopic(), 12)

	client = &mockClient{}
	wp.client = client
	wp.EntryRemoved(entry)
	wp.process(<-wp.jobs)

	got := client.byTopic()
	assert.Len(t, got, 12)
	for topic, payload := range got {
		assert.Contains(t, topic, "homeassistant/sensor/")
		assert.Empty(t, payload)
	}
}

func TestWorkerPool_Workers(t *testing.T) {
	entry := loadEntry(t)
	client := &mockClient{notify: make(chan struct{}, 64), err: errors.New("broker gone")}
	wp := NewWorkerPool(1, client, topics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	// Publish errors are logged, the worker keeps going.
	wp.EntryUpdated(entry, entry.Coordinator.Snapshot())
	for i := 0; i < 12; i++ {
		select {
		case <-client.notify:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for publish")
		}
	}
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	entry := loadEntry(t)
	wp := NewWorkerPool(1, &mockClient{}, topics)

	for i := 0; i < queueFactor+5; i++ {
		wp.EntryRemoved(entry)
	}
	assert.Len(t, wp.jobs, queueFactor)
}

func TestWorkerPool_ShutdownKeepsDiscovery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := platform.New(ctx, &staticFetcher{data: map[string]any{"timetable": []any{map[string]any{
		"fajr": "2024-03-01T05:12:00Z",
	}}}})
	wp := NewWorkerPool(1, &mockClient{}, topics)
	p.AddObserver(wp)

	_, err := p.SetupEntry(ctx, model.Place{ID: "id-1", Slug: "central-mosque", APIKey: "abc123", Days: 7})
	require.NoError(t, err)
	require.Len(t, wp.jobs, 1)
	<-wp.jobs

	p.Shutdown()
	assert.Empty(t, wp.jobs)

	// Deleting the configuration does clear it.
	p.RemoveEntry(model.Place{ID: "id-1", Slug: "central-mosque"})
	require.Len(t, wp.jobs, 1)
	j := <-wp.jobs
	assert.Equal(t, jobClear, j.kind)
}
