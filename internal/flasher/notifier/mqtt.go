package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/pkg/log"
	pkgmqtt "cloupeer.io/nanoflash/pkg/mqtt"
	"cloupeer.io/nanoflash/pkg/mqtt/topic"
	"cloupeer.io/nanoflash/pkg/options"
)

const (
	defaultPublishTimeout = 2 * time.Second
	queueSize             = 128
)

// MQTTSink publishes events as JSON. Step events go to the progress topic of
// the device; the terminal event is also retained on its result topic.
//
// Emit only queues the event; a single goroutine publishes in order. When
// the queue is full the event is dropped.
type MQTTSink struct {
	client  pkgmqtt.Client
	topics  *topic.Builder
	timeout time.Duration
	// fallback names the device when an event carries none
	fallback string

	mu      sync.RWMutex
	closed  bool
	queue   chan core.Event
	drained chan struct{}
}

// NewMQTTSink wraps an already started client and starts publishing.
func NewMQTTSink(client pkgmqtt.Client, root, deviceID string) *MQTTSink {
	s := &MQTTSink{
		client:   client,
		topics:   topic.NewBuilder(root),
		timeout:  defaultPublishTimeout,
		fallback: deviceID,
		queue:    make(chan core.Event, queueSize),
		drained:  make(chan struct{}),
	}
	go s.run()
	return s
}

// DialMQTTSink connects a dedicated publisher for deviceID and waits for the
// broker. Close releases the connection.
func DialMQTTSink(ctx context.Context, opts *options.MqttOptions, deviceID string) (*MQTTSink, error) {
	cfg := opts.ToClientConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = "nanoflash-" + deviceID
	}

	client, err := pkgmqtt.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		return nil, err
	}
	if err := client.AwaitConnection(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return NewMQTTSink(client, opts.TopicRoot, deviceID), nil
}

func (s *MQTTSink) Emit(e core.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- e:
	default:
		log.Warn("Progress queue full, dropping event", "phase", string(e.Phase), "outcome", e.Outcome)
	}
}

func (s *MQTTSink) run() {
	defer close(s.drained)
	for e := range s.queue {
		s.publish(e)
	}
}

func (s *MQTTSink) publish(e core.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Warn("Failed to encode progress event", "error", err)
		return
	}

	device := e.Device
	if device == "" {
		device = s.fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.topics.Progress(device), 0, false, payload); err != nil {
		log.Warn("Failed to publish progress event", "error", err, "phase", string(e.Phase))
	}
	if e.Outcome != "" {
		if err := s.client.Publish(ctx, s.topics.Result(device), 1, true, payload); err != nil {
			log.Warn("Failed to publish workflow result", "error", err, "outcome", e.Outcome)
		}
	}
}

// Close stops accepting events, waits for queued ones to be published until
// ctx is done, and disconnects the underlying client.
func (s *MQTTSink) Close(ctx context.Context) {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.drained:
	case <-ctx.Done():
		log.Warn("Progress events left unpublished", "error", ctx.Err())
	}
	s.client.Disconnect(ctx)
}
