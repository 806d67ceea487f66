package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediagrid"
)

func NewLayoutCmd(deps *Dependencies) *cobra.Command {
	var (
		width, height, gap int
		aspect             float64
	)

	cmd := &cobra.Command{
		Use:   "layout <tiles>",
		Short: "Print the grid computed for a number of tiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var count int
			if _, err := fmt.Sscanf(args[0], "%d", &count); err != nil || count < 1 {
				return fmt.Errorf("invalid tile count %q", args[0])
			}
			if width <= 0 {
				width = deps.Config.Width
			}
			if height <= 0 {
				height = deps.Config.Height
			}
			if gap < 0 {
				gap = deps.Config.TileGap
			}

			l := mediagrid.NewTilesLayout(width, height, gap, aspect)
			l.SetTilesCount(count)
			p := l.Params()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d tiles on %dx%d: %d rows x %d cols, tile %dx%d\n",
				count, width, height, p.Rows, p.Cols, p.Width, p.Height)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TILE\tX\tY\tWIDTH\tHEIGHT")
			for n := range count {
				r := l.TileCoords(n)
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", n, r.X, r.Y, r.Width, r.Height)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "Canvas width (default from config)")
	cmd.Flags().IntVar(&height, "height", 0, "Canvas height (default from config)")
	cmd.Flags().IntVar(&gap, "gap", -1, "Gap between tiles (default from config)")
	cmd.Flags().Float64Var(&aspect, "aspect", mediagrid.DefaultTileAspectRatio, "Tile aspect ratio")

	return cmd
}
