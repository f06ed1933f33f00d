package config

import (
	"fmt"
	"regexp"
	"strings"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
)

// Source kinds
const (
	SourceMQTT      = "mqtt"
	SourceGStreamer = "gst"
	SourceReplay    = "replay"
	SourceSynthetic = "synthetic"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills in defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateSource(&cfg.Source, cfg.InstanceID); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := validatePipeline(&cfg.Pipeline); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	// Logging defaults
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	switch cfg.Logging.Level {
	case "":
		cfg.Logging.Level = "info"
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "":
		cfg.Logging.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not text or json", cfg.Logging.Format)
	}

	if cfg.Status.Addr == "" {
		cfg.Status.Addr = ":8090"
	}

	return nil
}

func validateSource(src *SourceConfig, instanceID string) error {
	switch src.Kind {
	case SourceMQTT:
		m := &src.MQTT
		if m.Broker == "" {
			return fmt.Errorf("mqtt.broker is required")
		}
		if m.Topic == "" {
			m.Topic = "camera/image_raw"
		}
		if m.ClientID == "" {
			m.ClientID = "image-ingest-" + instanceID
		}
		if m.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if m.Buffer <= 0 {
			m.Buffer = 10
		}
	case SourceGStreamer:
		g := &src.GStreamer
		if g.Pipeline == "" {
			return fmt.Errorf("gst.pipeline is required")
		}
		if !strings.Contains(g.Pipeline, "appsink") {
			return fmt.Errorf("gst.pipeline must end in an appsink named sink")
		}
		if g.Name == "" {
			g.Name = instanceID
		}
		if g.Buffer <= 0 {
			g.Buffer = 10
		}
		if g.MaxReconnects <= 0 {
			g.MaxReconnects = 5
		}
		if g.ReconnectInitialMS <= 0 {
			g.ReconnectInitialMS = 1000
		}
		if g.ReconnectMaxMS <= 0 {
			g.ReconnectMaxMS = 30000
		}
	case SourceReplay:
		if src.Replay.Path == "" {
			return fmt.Errorf("replay.path is required")
		}
		if src.Replay.FPS < 0 {
			return fmt.Errorf("replay.fps must be >= 0")
		}
	case SourceSynthetic:
		s := &src.Synthetic
		if s.Encoding == "" {
			s.Encoding = "bgr8"
		}
		if _, ok := imageingest.LookupEncoding(s.Encoding); !ok {
			return fmt.Errorf("synthetic.encoding %q is not supported", s.Encoding)
		}
		if s.Width <= 0 {
			s.Width = 640
		}
		if s.Height <= 0 {
			s.Height = 480
		}
		if s.FPS <= 0 {
			s.FPS = 10
		}
		if s.Count < 0 || s.FaultEvery < 0 {
			return fmt.Errorf("synthetic.count and synthetic.fault_every must be >= 0")
		}
	case "":
		return fmt.Errorf("kind is required (mqtt, gst, replay, synthetic)")
	default:
		return fmt.Errorf("unknown kind %q", src.Kind)
	}
	return nil
}

func validatePipeline(p *PipelineConfig) error {
	if p.TargetEncoding != "" {
		if _, ok := imageingest.LookupEncoding(p.TargetEncoding); !ok {
			return fmt.Errorf("target_encoding %q is not supported", p.TargetEncoding)
		}
	}
	if p.Semantic == "" {
		p.Semantic = imageingest.Grayscale.String()
	}
	if _, err := imageingest.ParsePixelSemantic(p.Semantic); err != nil {
		return err
	}
	if p.QueueDepth < 0 {
		return fmt.Errorf("queue_depth must be >= 0")
	}
	if p.QueueDepth == 0 {
		p.QueueDepth = 1 // SensorDataQoS keeps only the latest frame
	}
	return nil
}
