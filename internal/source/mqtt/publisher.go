package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/wire"
)

const publishTimeout = 2 * time.Second

// Publisher sends frames to a topic in the wire message format.
type Publisher struct {
	cfg    Config
	client paho.Client

	mu        sync.Mutex
	published uint64
	bytes     uint64
	errors    uint64
}

// PublisherStats summarises a Publisher's activity.
type PublisherStats struct {
	Published uint64
	Bytes     uint64
	Errors    uint64
}

// NewPublisher connects to the broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	return newPublisher(cfg, paho.NewClient)
}

func newPublisher(cfg Config, newClient func(*paho.ClientOptions) paho.Client) (*Publisher, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt: broker and topic are required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid QoS %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "image-ingest-publisher"
	}

	client := newClient(clientOptions(cfg))
	if err := connect(client); err != nil {
		return nil, err
	}
	slog.Info("mqtt: publisher connected", "broker", cfg.Broker, "topic", cfg.Topic)

	return &Publisher{cfg: cfg, client: client}, nil
}

// Publish encodes f and waits for the broker to accept it.
func (p *Publisher) Publish(f imageingest.RawFrame) error {
	payload, err := wire.Marshal(f)
	if err != nil {
		p.countError()
		return fmt.Errorf("mqtt: encode frame %d: %w", f.Seq, err)
	}

	tok := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		p.countError()
		return fmt.Errorf("mqtt: publish timeout")
	}
	if err := tok.Error(); err != nil {
		p.countError()
		return fmt.Errorf("mqtt: publish failed: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.bytes += uint64(len(payload))
	p.mu.Unlock()

	slog.Debug("mqtt: frame published", "topic", p.cfg.Topic, "seq", f.Seq, "size", len(payload))
	return nil
}

// Stats returns publisher counters.
func (p *Publisher) Stats() PublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublisherStats{Published: p.published, Bytes: p.bytes, Errors: p.errors}
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesc)
	}
	return nil
}

func (p *Publisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}
