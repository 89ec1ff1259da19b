// Package api serves the HTTP read path and the LED command endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/command"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/health"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/metrics"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/store"
)

// maxBodyBytes caps POST bodies; a command is a few dozen bytes.
const maxBodyBytes = 4 << 10

// Commander sends LED commands; *command.Publisher implements it.
type Commander interface {
	Send(ctx context.Context, components []int) (command.Published, error)
}

// HealthChecker reports liveness; *health.Checker implements it.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Handler groups the HTTP endpoints. It talks to the store only through
// its interface and never touches the bus directly.
type Handler struct {
	store   store.Store
	cmd     Commander
	health  HealthChecker
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler builds the handler. hc and m may be nil.
func NewHandler(st store.Store, cmd Commander, hc HealthChecker, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{store: st, cmd: cmd, health: hc, metrics: m, logger: logger, now: time.Now}
}

// RegisterRoutes maps every endpoint on mux using method patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	h.handle(mux, "GET /{$}", "/", h.handleInfo)
	h.handle(mux, "GET /health", "/health", h.handleHealth)
	for _, kind := range record.Kinds {
		route := "/api/" + string(kind)
		h.handle(mux, "GET "+route, route, h.handleList(kind))
	}
	h.handle(mux, "GET /api/latest", "/api/latest", h.handleLatest)
	h.handle(mux, "POST /api/cmd", "/api/cmd", h.handleCommand)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

func (h *Handler) handle(mux *http.ServeMux, pattern, route string, fn http.HandlerFunc) {
	mux.Handle(pattern, h.metrics.WrapHandler(route, fn))
}

// Routes returns the complete handler: routes, CORS for browser front-ends
// and panic recovery.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(panicLogger{h.logger}),
		handlers.PrintRecoveryStack(false),
	)
	return recovery(cors(mux))
}

// panicLogger adapts slog to the Println logger gorilla's recovery expects.
type panicLogger struct{ logger *slog.Logger }

func (p panicLogger) Println(v ...interface{}) {
	p.logger.Error("handler panicked", "panic", fmt.Sprint(v...))
}

type listResponse struct {
	Count int             `json:"count"`
	Items []record.Record `json:"items"`
}

// handleList serves GET /api/{lux,color,led}?start=&end=&limit=&offset=
func (h *Handler) handleList(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := ParseRange(r.URL.Query(), h.now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		items, err := h.store.Query(r.Context(), kind, rng)
		if err != nil {
			h.logger.Error("query failed", "kind", kind, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}

		writeJSON(w, http.StatusOK, listResponse{Count: len(items), Items: items})
	}
}

// handleLatest serves GET /api/latest: the newest record of each kind, null when none.
func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	out := make(map[record.Kind]record.Record, len(record.Kinds))
	for _, kind := range record.Kinds {
		rec, err := h.store.Latest(r.Context(), kind)
		switch {
		case errors.Is(err, store.ErrNotFound):
			out[kind] = nil
		case err != nil:
			h.logger.Error("latest failed", "kind", kind, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		default:
			out[kind] = rec
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type commandResponse struct {
	OK        bool               `json:"ok"`
	Published *command.Published `json:"published,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// handleCommand serves POST /api/cmd with body {"led":[r,g,b]}.
func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: "body must be a JSON object like {\"led\":[r,g,b]}"})
		return
	}

	components, err := command.DecodeLED(body["led"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: err.Error()})
		return
	}

	published, err := h.cmd.Send(r.Context(), components)
	switch {
	case errors.Is(err, command.ErrInvalidCommand):
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: err.Error()})
	case err != nil:
		// Already logged by the publisher.
		writeJSON(w, http.StatusInternalServerError, commandResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, commandResponse{OK: true, Published: &published})
	}
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":  true,
		"msg": "ambient-match API: GET /api/lux, /api/color, /api/led, /api/latest; POST /api/cmd",
	})
}

// handleHealth always answers 200 while the process serves requests; the
// body says whether the bus link is up.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, h.health.Check(r.Context()))
}

// writeJSON encodes v before touching the response, so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"response encode failed"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
