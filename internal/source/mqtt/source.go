// Package mqtt receives msgpack-encoded frames from an MQTT topic and
// publishes them back for testing and replay.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/wire"
)

// connectTimeout bounds the wait for the initial connection.
var connectTimeout = 5 * time.Second

const (
	subscribeTimeout = 5 * time.Second
	disconnectQuiesc = 250 // ms
)

// Config contains broker and subscription settings.
type Config struct {
	Broker   string // host:port or a URL with scheme
	Topic    string
	ClientID string
	QoS      byte
	Username string
	Password string
	// Buffer is the frame channel capacity (default 10)
	Buffer int
}

// Source subscribes to a topic and delivers every decodable message as a
// RawFrame. It implements imageingest.Source and imageingest.DropCounter.
//
// The paho callback never blocks: when the channel is full the message is
// dropped and counted.
type Source struct {
	cfg Config

	client    paho.Client
	newClient func(*paho.ClientOptions) paho.Client

	frames  chan imageingest.RawFrame
	mu      sync.Mutex // guards sends against close
	closed  bool
	started atomic.Bool
	stop    sync.Once
	stopCh  chan struct{}

	seq       atomic.Uint64
	received  atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// New validates cfg and returns an unconnected Source.
func New(cfg Config) (*Source, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt: topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid QoS %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "image-ingest-" + uuid.New().String()[:8]
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 10
	}
	return &Source{
		cfg:       cfg,
		newClient: paho.NewClient,
		frames:    make(chan imageingest.RawFrame, cfg.Buffer),
		stopCh:    make(chan struct{}),
	}, nil
}

// Name implements imageingest.Source.
func (s *Source) Name() string { return "mqtt:" + s.cfg.Topic }

// Dropped implements imageingest.DropCounter.
func (s *Source) Dropped() uint64 { return s.dropped.Load() }

// Malformed returns the number of payloads that were not valid frames.
func (s *Source) Malformed() uint64 { return s.malformed.Load() }

// Received returns the number of messages seen on the topic.
func (s *Source) Received() uint64 { return s.received.Load() }

// Start connects, subscribes and returns the frame channel. The channel is
// closed by Stop or when ctx is cancelled.
func (s *Source) Start(ctx context.Context) (<-chan imageingest.RawFrame, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("mqtt: source already started")
	}

	opts := clientOptions(s.cfg)
	opts.OnConnect = func(c paho.Client) {
		slog.Info("mqtt: connection established",
			"broker", s.cfg.Broker,
			"client_id", s.cfg.ClientID,
		)
		// Subscriptions do not survive a clean-session reconnect
		if tok := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage); tok.WaitTimeout(subscribeTimeout) && tok.Error() != nil {
			slog.Error("mqtt: resubscribe failed", "topic", s.cfg.Topic, "error", tok.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		slog.Warn("mqtt: connection lost, will auto-reconnect",
			"error", err,
			"broker", s.cfg.Broker,
		)
	}

	s.client = s.newClient(opts)
	slog.Info("mqtt: connecting", "broker", s.cfg.Broker, "topic", s.cfg.Topic, "qos", s.cfg.QoS)

	if err := connect(s.client); err != nil {
		s.client = nil
		s.started.Store(false)
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.stopCh:
		}
	}()

	return s.frames, nil
}

// Stop disconnects and closes the frame channel. Idempotent.
func (s *Source) Stop() error {
	s.stop.Do(func() {
		close(s.stopCh)
		if s.client != nil {
			s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
			s.client.Disconnect(disconnectQuiesc)
		}
		s.mu.Lock()
		s.closed = true
		close(s.frames)
		s.mu.Unlock()

		slog.Info("mqtt: source stopped",
			"received", s.received.Load(),
			"dropped", s.dropped.Load(),
			"malformed", s.malformed.Load(),
		)
	})
	return nil
}

func (s *Source) onMessage(_ paho.Client, msg paho.Message) {
	s.handle(msg)
}

// handle decodes one message and hands it to the channel without blocking.
func (s *Source) handle(msg paho.Message) {
	s.received.Add(1)

	frame, err := wire.Unmarshal(msg.Payload())
	if err != nil {
		s.malformed.Add(1)
		slog.Warn("mqtt: discarding malformed payload",
			"topic", msg.Topic(),
			"bytes", len(msg.Payload()),
			"error", err,
		)
		return
	}
	if frame.Seq == 0 {
		frame.Seq = s.seq.Add(1)
	}
	if frame.TraceID == "" {
		frame.TraceID = uuid.New().String()
	}
	if frame.Source == "" {
		frame.Source = msg.Topic()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- frame:
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			slog.Debug("mqtt: frame channel full, dropping", "seq", frame.Seq, "dropped_total", n)
		}
	}
}

// connect waits for the initial connection. On failure the client is
// disconnected so its background connect retries stop.
func connect(client paho.Client) error {
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt: connection timeout after %s", connectTimeout)
	}
	if err := tok.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt: connection failed: %w", err)
	}
	return nil
}

func clientOptions(cfg Config) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOrderMatters(false)
	return opts
}

// brokerURL adds tcp:// when the address has no scheme.
func brokerURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}
