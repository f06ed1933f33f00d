package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/mqtt"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/replay"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/synthetic"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var broker, topic, from string
	var fps float64
	var count int

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish frames to MQTT from a recording or the synthetic pattern",
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

			mc := mqttConfig(cfg.Source.MQTT)
			mc.ClientID = "image-ingest-publisher-" + cfg.InstanceID
			if broker != "" {
				mc.Broker = broker
			}
			if topic != "" {
				mc.Topic = topic
			}
			if mc.Topic == "" {
				mc.Topic = "camera/image_raw"
			}
			if mc.Broker == "" {
				return fmt.Errorf("publish: --broker is required")
			}

			var src imageingest.Source
			if from != "" {
				src, err = replay.New(replay.Config{Path: from, FPS: fps})
			} else {
				sc := syntheticConfig(cfg.InstanceID, cfg.Source.Synthetic)
				if cfg.Source.Kind != config.SourceSynthetic {
					sc = syntheticConfig(cfg.InstanceID, config.Default().Source.Synthetic)
				}
				sc.FPS, sc.Count = fps, count
				src, err = synthetic.New(sc)
			}
			if err != nil {
				return err
			}

			pub, err := mqtt.NewPublisher(mc)
			if err != nil {
				return err
			}
			defer pub.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			frames, err := src.Start(runCtx)
			if err != nil {
				return err
			}
			defer src.Stop()

			for frame := range frames {
				if err := pub.Publish(frame); err != nil {
					log.Warn("publish: frame not sent", "seq", frame.Seq, "error", err)
				}
			}

			st := pub.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "published %d frames (%s) to %s, %d errors\n",
				st.Published, humanize.Bytes(st.Bytes), mc.Topic, st.Errors)
			return nil
		},
	}
	cmd.Flags().StringVar(&broker, "broker", "", "MQTT broker host:port (default from config)")
	cmd.Flags().StringVar(&topic, "topic", "", "Topic (default from config or camera/image_raw)")
	cmd.Flags().StringVar(&from, "from", "", "Recording to publish instead of the synthetic pattern")
	cmd.Flags().Float64Var(&fps, "fps", 10, "Publish rate (0 = as fast as possible)")
	cmd.Flags().IntVar(&count, "count", 100, "Synthetic frames to publish (0 = until interrupted)")
	return cmd
}
