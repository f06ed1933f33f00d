package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/source/synthetic"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/wire"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	cfg := synthetic.Config{Name: "record"}

	cmd := &cobra.Command{
		Use:   "record FILE",
		Short: "Write synthetic frames to a recording for replay and inspect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.logger(cmd); err != nil {
				return err
			}
			if cfg.Count <= 0 {
				return fmt.Errorf("record: --count must be > 0")
			}
			src, err := synthetic.New(cfg)
			if err != nil {
				return err
			}
			n, size, err := recordFrames(args[0], src, cfg.Count)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d frames (%s) to %s\n", n, humanize.Bytes(uint64(size)), args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.Count, "count", 30, "Number of frames")
	cmd.Flags().StringVar(&cfg.Encoding, "encoding", "bgr8", "Frame encoding")
	cmd.Flags().IntVar(&cfg.Width, "width", 64, "Frame width")
	cmd.Flags().IntVar(&cfg.Height, "height", 48, "Frame height")
	cmd.Flags().IntVar(&cfg.FaultEvery, "fault-every", 0, "Make every Nth frame malformed (0 = never)")
	return cmd
}

func recordFrames(path string, src *synthetic.Source, count int) (int, int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	w := wire.NewWriter(buf)
	for seq := 1; seq <= count; seq++ {
		if err := w.Write(src.Frame(uint64(seq))); err != nil {
			return w.Frames(), 0, fmt.Errorf("record: frame %d: %w", seq, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return w.Frames(), 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return w.Frames(), 0, err
	}
	return w.Frames(), info.Size(), f.Close()
}
