package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/thesyncim/mediagrid"
	"github.com/thesyncim/mediagrid/internal/logger"
)

// openSink opens the sink named by output: rtp://host:port, rtmp://host/app/name
// or a file path.
func openSink(ctx context.Context, output, logLevel string, log *slog.Logger) (mediagrid.Sink, error) {
	switch {
	case strings.HasPrefix(output, "rtp://"):
		addr := strings.TrimPrefix(output, "rtp://")
		sink, err := mediagrid.DialRTPSink(ctx, addr, mediagrid.RTPSinkConfig{})
		if err != nil {
			return nil, fmt.Errorf("open rtp sink: %w", err)
		}
		log.Info("streaming over rtp", "addr", addr)
		return sink, nil
	case strings.HasPrefix(output, "rtmp://"):
		sink, err := mediagrid.DialRTMPSink(ctx, output, logger.Logrus(os.Stderr, logLevel))
		if err != nil {
			return nil, fmt.Errorf("open rtmp sink: %w", err)
		}
		log.Info("publishing over rtmp", "url", output)
		return sink, nil
	default:
		sink, err := mediagrid.CreateFileSink(output)
		if err != nil {
			return nil, fmt.Errorf("open file sink: %w", err)
		}
		log.Info("recording to file", "path", output)
		return sink, nil
	}
}
