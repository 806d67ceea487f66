package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/thesyncim/mediagrid/internal/logger"
	"github.com/thesyncim/mediagrid/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the compositor behind an HTTP control API",
		Long:  "Run the compositor with a preview render loop. Tiles, order, highlight and recording are controlled over HTTP; /metrics serves Prometheus metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = deps.Config.Listen
			}
			log := deps.Logger

			rec, err := newRecorder(deps)
			if err != nil {
				return err
			}
			h := NewHandler(rec, deps.Config, log, deps.Metrics)
			defer h.Close()

			rec.StartRendering()

			srv := &http.Server{Addr: listen, Handler: NewRouter(h, deps.Metrics, log)}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			log.Info("server starting", "listen", listen,
				"width", deps.Config.Width, "height", deps.Config.Height, "frame_rate", deps.Config.FrameRate)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			select {
			case <-ctx.Done():
				log.Info("shutdown signal received, draining connections")
			case err := <-errCh:
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("shutdown error", "error", err)
			}
			if err := rec.Stop(shutdownCtx); err != nil {
				log.Error("recording stop error", "error", err)
			}

			log.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from config)")

	return cmd
}

// NewRouter mounts the control API of h. m may be nil to disable metrics.
func NewRouter(h *Handler, m *metrics.Metrics, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			m.Handler(func() { m.SetTiles(h.TileCount()) }).ServeHTTP(w, r)
		})
	}
	r.Route("/tiles", func(r chi.Router) {
		r.Get("/", h.ListTiles)
		r.Post("/", h.AddTile)
		r.Delete("/{id}", h.RemoveTile)
	})
	r.Put("/order", h.SetOrder)
	r.Put("/highlight", h.SetHighlight)
	r.Post("/recording/start", h.StartRecording)
	r.Post("/recording/stop", h.StopRecording)
	r.Get("/preview.png", h.Preview)
	r.Get("/stats", h.Stats)
	return r
}
