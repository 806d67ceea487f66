package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediagrid"
)

const stopTimeout = 10 * time.Second

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var (
		count     int
		videoless int
		duration  time.Duration
		output    string
		pattern   string
		big       bool
		highlight int
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a gallery of synthetic participants",
		Long:  "Record a gallery of synthetic participants (test patterns and tones) to a file, rtp://host:port or rtmp://host/app/name.\nRuns until --duration elapses or Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--participants must be at least 1")
			}
			if output == "" {
				output = deps.Config.Output
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rec, err := newRecorder(deps)
			if err != nil {
				return err
			}

			var participants []*participant
			defer func() {
				for _, p := range participants {
					p.Close()
				}
			}()

			for i := range count {
				p, err := newParticipant(participantOptions{
					ID:        fmt.Sprintf("p%d", i+1),
					Title:     fmt.Sprintf("Participant %d", i+1),
					Pattern:   pattern,
					Video:     i >= videoless,
					Audio:     true,
					Frequency: 220 * float64(i+1),
				}, deps.Config.SampleRate, deps.Config.Channels)
				if err != nil {
					_ = rec.Stop(context.Background())
					return err
				}
				participants = append(participants, p)
				rec.AddTile(p.id, p.title, mediagrid.ReadyPlaceholder(mediagrid.DefaultPlaceholder()), p.stream, big && i == 0)
			}
			if highlight > 0 && highlight <= count {
				rec.SetHighlight(participants[highlight-1].id)
			}

			sink, err := openSink(ctx, output, deps.Config.LogLevel, deps.Logger)
			if err != nil {
				_ = rec.Stop(context.Background())
				return err
			}
			rec.SetSink(sink)

			started := time.Now()
			if err := rec.Start(); err != nil {
				_ = rec.Stop(context.Background())
				return err
			}

			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				select {
				case <-ctx.Done():
				case <-timer.C:
				}
			} else {
				<-ctx.Done()
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			stopErr := rec.Stop(stopCtx)

			stats := rec.DrawStats()
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s to %s\n", time.Since(started).Round(time.Millisecond), output)
			fmt.Fprintf(cmd.OutOrStdout(), "Draw time over last %d frames: avg %s, min %s, max %s\n",
				stats.Count, stats.Avg, stats.Min, stats.Max)
			if fs, ok := sink.(*mediagrid.FileSink); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes\n", fs.Size())
			}
			return stopErr
		},
	}

	cmd.Flags().IntVarP(&count, "participants", "n", 4, "Number of synthetic participants")
	cmd.Flags().IntVar(&videoless, "audio-only", 0, "Number of participants without video (shown with a placeholder)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second, "Recording duration, 0 = until Ctrl+C")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, rtp://host:port or rtmp://host/app/name (default from config)")
	cmd.Flags().StringVar(&pattern, "pattern", "box", "Video pattern: bars, checker, solid or box")
	cmd.Flags().BoolVar(&big, "big", false, "Show the first participant as the big tile")
	cmd.Flags().IntVar(&highlight, "highlight", 0, "Highlight participant N (1-based), 0 = none")

	return cmd
}

// newRecorder builds a recorder from the configuration, wired to metrics
// when they are enabled.
func newRecorder(deps *Dependencies) (*mediagrid.Recorder, error) {
	cc, err := deps.Config.CompositorConfig()
	if err != nil {
		return nil, fmt.Errorf("compositor config: %w", err)
	}
	cc.Logger = deps.Logger

	rc := mediagrid.DefaultRecorderConfig()
	rc.Compositor = cc
	rc.Encoder = deps.Config.EncoderConfig()
	rc.Logger = deps.Logger
	if deps.Metrics != nil {
		rc.Compositor.OnDraw = deps.Metrics.ObserveDraw
		rc.OnWrite = deps.Metrics.ObserveWrite
	}
	return mediagrid.NewRecorder(rc)
}
