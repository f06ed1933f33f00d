package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/status"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var statsInterval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process frames from the configured source until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			stats, err := runIngest(cmd.Context(), cfg, log, statsInterval)
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats))
			return err
		},
	}
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 30*time.Second, "How often to log worker statistics (0 disables)")
	return cmd
}

// runIngest wires source, pipeline, worker, metrics and the status server and
// runs them until the source ends or SIGINT/SIGTERM arrives.
func runIngest(parent context.Context, cfg *config.Config, log *slog.Logger, statsInterval time.Duration) (imageingest.WorkerStats, error) {
	semantic, err := imageingest.ParsePixelSemantic(cfg.Pipeline.Semantic)
	if err != nil {
		return imageingest.WorkerStats{}, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pipeline, err := imageingest.NewPipeline(imageingest.Options{
		TargetEncoding: cfg.Pipeline.TargetEncoding,
		Semantic:       semantic,
		Logger:         log,
		Recorder:       m,
	})
	if err != nil {
		return imageingest.WorkerStats{}, err
	}

	src, err := buildSource(cfg)
	if err != nil {
		return imageingest.WorkerStats{}, fmt.Errorf("source: %w", err)
	}

	worker, err := imageingest.NewWorker(src, pipeline, imageingest.WorkerConfig{
		QueueDepth: cfg.Pipeline.QueueDepth,
		Logger:     log,
		Recorder:   m,
	})
	if err != nil {
		return imageingest.WorkerStats{}, err
	}

	var srv *status.Server
	if cfg.Status.Enabled {
		srv = status.New(cfg.InstanceID, worker, reg, log)
		if err := srv.Start(cfg.Status.Addr); err != nil {
			return imageingest.WorkerStats{}, err
		}
	}

	if parent == nil {
		parent = context.Background()
	}
	runCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("image-ingest: starting",
		"instance_id", cfg.InstanceID,
		"source", src.Name(),
		"semantic", semantic.String(),
		"target_encoding", cfg.Pipeline.TargetEncoding,
		"queue_depth", cfg.Pipeline.QueueDepth,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(runCtx) }()

	var ticker <-chan time.Time
	if statsInterval > 0 {
		t := time.NewTicker(statsInterval)
		defer t.Stop()
		ticker = t.C
	}

	var runErr error
loop:
	for {
		select {
		case runErr = <-errCh:
			break loop
		case <-ticker:
			logStats(log, worker.Stats())
		case <-runCtx.Done():
			log.Info("image-ingest: shutting down gracefully", "timeout", cfg.ShutdownTimeout())
			select {
			case runErr = <-errCh:
			case <-time.After(cfg.ShutdownTimeout()):
				runErr = fmt.Errorf("image-ingest: worker did not stop within %s", cfg.ShutdownTimeout())
			}
			break loop
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("image-ingest: status server shutdown failed", "error", err)
		}
	}

	st := worker.Stats()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		log.Error("image-ingest: stopped with error", "error", runErr)
	} else {
		log.Info("image-ingest: stopped", "reported", st.Reported, "failures", st.Failures())
	}
	return st, runErr
}

func logStats(log *slog.Logger, st imageingest.WorkerStats) {
	log.Info("image-ingest: stats",
		"source", st.Source,
		"received", st.Received,
		"reported", st.Reported,
		"decode_failures", st.DecodeFailures,
		"convert_failures", st.ConvertFailures,
		"skipped", st.Skipped,
		"dropped", st.Dropped,
		"transport_drops", st.TransportDrops,
		"arrival_fps", fmt.Sprintf("%.2f", st.ArrivalFPS),
		"steady", st.Steady,
	)
}
