// Package publish mirrors loaded places to an MQTT broker using the Home
// Assistant discovery format.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"masjidbox-bridge/config"
	"masjidbox-bridge/internal/coordinator"
	"masjidbox-bridge/internal/platform"
)

const (
	publishTimeout = 10 * time.Second
	queueFactor    = 16
	// unknownState is mapped to "unknown" by Home Assistant MQTT sensors.
	unknownState = "None"
)

// Client is the subset of mqtt.Client the workers need.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect opens a broker connection with the configured credentials.
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("[publish] connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("[publish] MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

type jobKind int

const (
	jobLoad jobKind = iota
	jobState
	jobClear
)

type job struct {
	kind   jobKind
	slug   string
	states []platform.SensorState
}

// Topics locates discovery configs and states on the broker.
type Topics struct {
	DiscoveryPrefix string
	TopicPrefix     string
}

// ConfigTopic is where the discovery config of a sensor is retained.
func (t Topics) ConfigTopic(uniqueID string) string {
	return fmt.Sprintf("%s/sensor/%s/config", t.DiscoveryPrefix, uniqueID)
}

// StateTopic is where the state of a sensor is retained.
func (t Topics) StateTopic(slug, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.TopicPrefix, slug, uniqueID)
}

type discoveryConfig struct {
	Name        string      `json:"name"`
	UniqueID    string      `json:"unique_id"`
	StateTopic  string      `json:"state_topic"`
	DeviceClass string      `json:"device_class,omitempty"`
	Icon        string      `json:"icon,omitempty"`
	Device      interface{} `json:"device"`
}

// WorkerPool publishes entry events off the coordinator goroutines. It
// implements platform.Observer.
type WorkerPool struct {
	size   int
	jobs   chan job
	client Client
	topics Topics
}

var _ platform.Observer = (*WorkerPool)(nil)

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, client Client, topics Topics) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:   size,
		jobs:   make(chan job, size*queueFactor),
		client: client,
		topics: topics,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("[publish] worker started")
	for {
		select {
		case j := <-wp.jobs:
			wp.process(j)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("[publish] worker shutting down")
			return
		}
	}
}

// dispatch never blocks: a full queue drops the job.
func (wp *WorkerPool) dispatch(j job) {
	select {
	case wp.jobs <- j:
	default:
		log.Warn().Str("slug", j.slug).Msg("[publish] queue full, dropping job")
	}
}

// EntryLoaded announces the sensors of e and publishes their current states.
func (wp *WorkerPool) EntryLoaded(e *platform.Entry) {
	wp.dispatch(job{kind: jobLoad, slug: e.Place.Slug, states: e.States()})
}

// EntryUpdated publishes the states derived from snap.
func (wp *WorkerPool) EntryUpdated(e *platform.Entry, snap *coordinator.Snapshot) {
	wp.dispatch(job{kind: jobState, slug: e.Place.Slug, states: platform.StatesFor(e.Sensors, snap.Data)})
}

// EntryUnloaded keeps the retained discovery configs so the entities and
// their customizations survive a restart or reload.
func (wp *WorkerPool) EntryUnloaded(e *platform.Entry) {
	log.Debug().Str("slug", e.Place.Slug).Msg("[publish] entry stopped, discovery kept")
}

// EntryRemoved removes the sensors of e from Home Assistant.
func (wp *WorkerPool) EntryRemoved(e *platform.Entry) {
	wp.dispatch(job{kind: jobClear, slug: e.Place.Slug, states: platform.StatesFor(e.Sensors, nil)})
}

func (wp *WorkerPool) process(j job) {
	switch j.kind {
	case jobLoad:
		for _, st := range j.states {
			wp.publishConfig(j.slug, st)
		}
		wp.publishStates(j.slug, j.states)
	case jobState:
		wp.publishStates(j.slug, j.states)
	case jobClear:
		for _, st := range j.states {
			wp.publish(wp.topics.ConfigTopic(st.UniqueID), []byte{})
		}
		log.Info().Str("slug", j.slug).Msg("[publish] discovery cleared")
	}
}

func (wp *WorkerPool) publishConfig(slug string, st platform.SensorState) {
	payload, err := json.Marshal(discoveryConfig{
		Name:        st.Name,
		UniqueID:    st.UniqueID,
		StateTopic:  wp.topics.StateTopic(slug, st.UniqueID),
		DeviceClass: st.DeviceClass,
		Icon:        st.Icon,
		Device:      st.Device,
	})
	if err != nil {
		log.Error().Err(err).Str("unique_id", st.UniqueID).Msg("[publish] failed to encode discovery config")
		return
	}
	wp.publish(wp.topics.ConfigTopic(st.UniqueID), payload)
}

func (wp *WorkerPool) publishStates(slug string, states []platform.SensorState) {
	for _, st := range states {
		payload := []byte(unknownState)
		if st.State != nil {
			payload = []byte(*st.State)
		}
		wp.publish(wp.topics.StateTopic(slug, st.UniqueID), payload)
	}
	log.Debug().Str("slug", slug).Int("states", len(states)).Msg("[publish] states published")
}

func (wp *WorkerPool) publish(topic string, payload []byte) {
	token := wp.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("[publish] publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("[publish] publish failed")
	}
}
