package main

import (
	"fmt"
	"time"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/gst"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/mqtt"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/replay"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/synthetic"
)

// buildSource constructs the transport selected by cfg.Source.Kind.
func buildSource(cfg *config.Config) (imageingest.Source, error) {
	var (
		s   imageingest.Source
		err error
	)
	src := cfg.Source
	switch src.Kind {
	case config.SourceMQTT:
		s, err = mqtt.New(mqttConfig(src.MQTT))
	case config.SourceGStreamer:
		g := src.GStreamer
		s, err = gst.New(gst.Config{
			Pipeline: g.Pipeline,
			Name:     g.Name,
			Buffer:   g.Buffer,
			Reconnect: gst.ReconnectConfig{
				MaxRetries:    g.MaxReconnects,
				RetryDelay:    time.Duration(g.ReconnectInitialMS) * time.Millisecond,
				MaxRetryDelay: time.Duration(g.ReconnectMaxMS) * time.Millisecond,
			},
		})
	case config.SourceReplay:
		s, err = replay.New(replay.Config{
			Path: src.Replay.Path,
			FPS:  src.Replay.FPS,
			Loop: src.Replay.Loop,
		})
	case config.SourceSynthetic:
		s, err = synthetic.New(syntheticConfig(cfg.InstanceID, src.Synthetic))
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func mqttConfig(m config.MQTTConfig) mqtt.Config {
	return mqtt.Config{
		Broker:   m.Broker,
		Topic:    m.Topic,
		ClientID: m.ClientID,
		QoS:      m.QoS,
		Username: m.Username,
		Password: m.Password,
		Buffer:   m.Buffer,
	}
}

func syntheticConfig(name string, s config.SyntheticConfig) synthetic.Config {
	return synthetic.Config{
		Name:       name,
		Encoding:   s.Encoding,
		Width:      s.Width,
		Height:     s.Height,
		FPS:        s.FPS,
		Count:      s.Count,
		FaultEvery: s.FaultEvery,
	}
}
