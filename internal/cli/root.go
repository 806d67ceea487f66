package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediagrid/config"
	"github.com/thesyncim/mediagrid/internal/metrics"
	"github.com/thesyncim/mediagrid/internal/version"
)

type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mediagrid",
		Short:         "Compose participant streams into a gallery view and record it",
		Long:          "mediagrid lays out participant video tiles on a canvas, mixes their audio and records the result to a file, an RTP peer or an RTMP server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewLayoutCmd(deps))
	rootCmd.AddCommand(NewInspectCmd(deps))

	return rootCmd
}
