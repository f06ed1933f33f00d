package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/wire"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var target, semanticName string
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Run every frame of a recording through the pipeline and print the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			semantic, err := imageingest.ParsePixelSemantic(semanticName)
			if err != nil {
				return err
			}

			var outBytes int
			p, err := imageingest.NewPipeline(imageingest.Options{
				TargetEncoding: target,
				Semantic:       semantic,
				Logger:         log,
				Inspect: func(_, converted *imageingest.ImageBuffer) {
					outBytes = 0
					if converted != nil {
						outBytes = len(converted.Data)
					}
				},
			})
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, summary, err := inspectFrames(wire.NewReader(f), p, limit, &outBytes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Seq", "Encoding", "Size", "In", "State", "Out", "Bytes", "Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Encoding to decode into before conversion")
	cmd.Flags().StringVar(&semanticName, "semantic", imageingest.Grayscale.String(), "Conversion: grayscale, swap-rb, downsample")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many frames (0 = all)")
	return cmd
}

// inspectFrames processes frames from r until end of stream or limit and
// returns one table row per frame plus a summary line.
func inspectFrames(r *wire.Reader, p *imageingest.Pipeline, limit int, outBytes *int) ([][]string, string, error) {
	var rows [][]string
	counts := map[imageingest.State]int{}
	unreadable := 0

	for limit <= 0 || len(rows) < limit {
		frame, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, wire.ErrTooLarge) {
			return nil, "", fmt.Errorf("inspect: recording corrupt after %d frames: %w", len(rows), err)
		}
		if err != nil {
			unreadable++
			continue
		}

		out := p.Process(frame)
		counts[out.State]++

		errText, bytes := "", "-"
		if out.Err != nil {
			errText = out.Err.Error()
		}
		if out.OK() {
			bytes = humanize.Bytes(uint64(*outBytes))
		}
		rows = append(rows, []string{
			strconv.FormatUint(out.Seq, 10),
			out.Encoding,
			fmt.Sprintf("%dx%d", out.Width, out.Height),
			dash(out.InputType),
			out.State.String(),
			dash(out.OutputType),
			bytes,
			errText,
		})
	}

	summary := fmt.Sprintf("%d frames: %d reported, %d failed, %d skipped",
		len(rows),
		counts[imageingest.StateReported],
		counts[imageingest.StateFailed],
		counts[imageingest.StateSkipped],
	)
	if unreadable > 0 {
		summary += fmt.Sprintf(", %d unreadable messages", unreadable)
	}
	return rows, summary, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
