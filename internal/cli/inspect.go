package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediagrid"
)

type kindSummary struct {
	chunks int
	bytes  int
	first  time.Duration
	last   time.Duration
}

func NewInspectCmd(deps *Dependencies) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "inspect <recording>",
		Short: "Summarize a recording written by the file sink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			summary := map[mediagrid.RTPCodecType]*kindSummary{}
			cr := mediagrid.NewChunkReader(f)
			for {
				c, err := cr.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				s, ok := summary[c.Kind]
				if !ok {
					s = &kindSummary{first: c.Timestamp}
					summary[c.Kind] = s
				}
				s.chunks++
				s.bytes += len(c.Data)
				s.last = c.Timestamp
				if verbose {
					fmt.Fprintf(out, "%-6s %-20s %10s %8d bytes key=%t\n",
						c.Kind, c.MimeType, c.Timestamp, len(c.Data), c.Keyframe)
				}
			}

			for _, kind := range []mediagrid.RTPCodecType{mediagrid.RTPCodecTypeVideo, mediagrid.RTPCodecTypeAudio} {
				s, ok := summary[kind]
				if !ok {
					continue
				}
				fmt.Fprintf(out, "%s: %d chunks, %d bytes, %s to %s\n", kind, s.chunks, s.bytes, s.first, s.last)
			}
			if len(summary) == 0 {
				fmt.Fprintln(out, "empty recording")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every chunk")

	return cmd
}
