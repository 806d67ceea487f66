package cli

import (
	"context"
	"encoding/json"
	"image/png"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/thesyncim/mediagrid"
	"github.com/thesyncim/mediagrid/config"
	"github.com/thesyncim/mediagrid/internal/metrics"
)

// Handler exposes the compositor control API using go-chi.
type Handler struct {
	rec     *mediagrid.Recorder
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics

	// openSink opens the recording destination named by output.
	openSink func(ctx context.Context, output string) (mediagrid.Sink, error)

	mu           sync.Mutex
	participants map[string]*participant
	recording    bool
}

// NewHandler returns a Handler driving rec. Metrics may be nil to disable
// metric recording (e.g. in tests).
func NewHandler(rec *mediagrid.Recorder, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) *Handler {
	h := &Handler{
		rec:          rec,
		cfg:          cfg,
		log:          log,
		metrics:      m,
		participants: make(map[string]*participant),
	}
	h.openSink = func(ctx context.Context, output string) (mediagrid.Sink, error) {
		return openSink(ctx, output, cfg.LogLevel, log)
	}
	return h
}

type addTileRequest struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Pattern   string  `json:"pattern"`
	Video     *bool   `json:"video"`
	Audio     *bool   `json:"audio"`
	Frequency float64 `json:"frequency"`
	Big       bool    `json:"big"`
}

type tileResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Big         bool   `json:"big"`
	Highlighted bool   `json:"highlighted"`
}

type orderRequest struct {
	IDs []string `json:"ids"`
}

type highlightRequest struct {
	ID string `json:"id"`
}

type recordingRequest struct {
	Output string `json:"output"`
}

type statsResponse struct {
	Tiles  int     `json:"tiles"`
	Draws  int     `json:"draws"`
	AvgMs  float64 `json:"avg_ms"`
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	Active bool    `json:"recording"`
}

// AddTile handles POST /tiles.
// Body: { "id": "alice", "title": "Alice", "pattern": "box", "audio": true, "big": false }.
func (h *Handler) AddTile(w http.ResponseWriter, r *http.Request) {
	if h.rec.IsStopped() {
		w.WriteHeader(http.StatusConflict)
		return
	}

	var req addTileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.log.Debug("invalid tile body", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p, err := newParticipant(participantOptions{
		ID:        req.ID,
		Title:     req.Title,
		Pattern:   req.Pattern,
		Video:     req.Video == nil || *req.Video,
		Audio:     req.Audio == nil || *req.Audio,
		Frequency: req.Frequency,
		FPS:       h.cfg.FrameRate,
	}, h.cfg.SampleRate, h.cfg.Channels)
	if err != nil {
		h.log.Debug("invalid tile", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	old := h.participants[p.id]
	h.participants[p.id] = p
	h.mu.Unlock()

	h.rec.AddTile(p.id, p.title, mediagrid.ReadyPlaceholder(mediagrid.DefaultPlaceholder()), p.stream, req.Big)
	if old != nil {
		old.Close()
	}

	h.log.Info("tile added", slog.String("tile", p.id), slog.Bool("big", req.Big))
	writeJSON(w, http.StatusCreated, h.tile(p.id))
}

// RemoveTile handles DELETE /tiles/{id}.
func (h *Handler) RemoveTile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	p, ok := h.participants[id]
	delete(h.participants, id)
	h.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.rec.RemoveTile(id)
	p.Close()

	h.log.Info("tile removed", slog.String("tile", id))
	w.WriteHeader(http.StatusNoContent)
}

// ListTiles handles GET /tiles. Tiles are listed in draw order.
func (h *Handler) ListTiles(w http.ResponseWriter, r *http.Request) {
	ids := h.rec.Compositor().ActiveIDs()
	tiles := make([]tileResponse, 0, len(ids))
	for _, id := range ids {
		tiles = append(tiles, h.tile(id))
	}
	writeJSON(w, http.StatusOK, tiles)
}

func (h *Handler) tile(id string) tileResponse {
	c := h.rec.Compositor()
	rect, _ := c.TileCoords(id)

	h.mu.Lock()
	title := id
	if p, ok := h.participants[id]; ok {
		title = p.title
	}
	h.mu.Unlock()

	return tileResponse{
		ID:          id,
		Title:       title,
		X:           rect.X,
		Y:           rect.Y,
		Width:       rect.Width,
		Height:      rect.Height,
		Big:         c.BigTile() == id,
		Highlighted: c.Highlight() == id,
	}
}

// TileCount returns the number of tiles added through the API.
func (h *Handler) TileCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.participants)
}

// SetOrder handles PUT /order. Body: { "ids": ["bob", "alice"] }.
func (h *Handler) SetOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.rec.SetOrder(req.IDs)
	writeJSON(w, http.StatusOK, orderRequest{IDs: h.rec.Compositor().ActiveIDs()})
}

// SetHighlight handles PUT /highlight. Body: { "id": "alice" }; an empty id
// clears the highlight.
func (h *Handler) SetHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	_, ok := h.participants[req.ID]
	h.mu.Unlock()
	if req.ID != "" && !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.rec.SetHighlight(req.ID)
	w.WriteHeader(http.StatusNoContent)
}

// StartRecording handles POST /recording/start. Body (optional):
// { "output": "out.mgc" }; the configured output is used when empty.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	if req.Output == "" {
		req.Output = h.cfg.Output
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recording || h.rec.IsStopped() {
		w.WriteHeader(http.StatusConflict)
		return
	}

	sink, err := h.openSink(r.Context(), req.Output)
	if err != nil {
		h.log.Error("open sink failed", slog.String("output", req.Output), slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.rec.SetSink(sink)
	if err := h.rec.Start(); err != nil {
		h.log.Error("start recording failed", slog.String("error", err.Error()))
		_ = sink.Close(r.Context())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.recording = true
	w.WriteHeader(http.StatusAccepted)
}

// StopRecording handles POST /recording/stop. The recorder is finished
// afterwards and further control requests are rejected.
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	recording := h.recording
	h.recording = false
	h.mu.Unlock()

	if !recording {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if err := h.rec.Stop(r.Context()); err != nil {
		h.log.Error("recording stopped with error", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview handles GET /preview.png with the current canvas.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	img := h.rec.Canvas()
	if img == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		h.log.Debug("preview encode failed", slog.String("error", err.Error()))
	}
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.rec.DrawStats()
	h.mu.Lock()
	resp := statsResponse{
		Tiles:  len(h.participants),
		Draws:  s.Count,
		AvgMs:  float64(s.Avg.Microseconds()) / 1000,
		MinMs:  float64(s.Min.Microseconds()) / 1000,
		MaxMs:  float64(s.Max.Microseconds()) / 1000,
		Active: h.recording,
	}
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// Close ends every synthetic participant.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, p := range h.participants {
		p.Close()
		delete(h.participants, id)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
