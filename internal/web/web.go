package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"breakcal/internal/agenda"
	"breakcal/internal/config"
	"breakcal/internal/ics"
	"breakcal/internal/importer"
	appLog "breakcal/internal/log"
	"breakcal/internal/metrics"
	"breakcal/internal/model"
	"breakcal/internal/view"
)

// EventStore lists the accumulated events.
type EventStore interface {
	List(ctx context.Context, loc *time.Location) ([]model.CalendarEvent, error)
}

// Importer parses and stores an uploaded payload.
type Importer interface {
	Import(ctx context.Context, origin, sourceID string, body []byte) (int, error)
}

// Server exposes import, event listing and agenda computation over HTTP.
type Server struct {
	cfg      *config.Config
	loc      *time.Location
	events   EventStore
	importer Importer
	metrics  *metrics.Metrics
	now      func() time.Time
	mux      *http.ServeMux
}

// NewServer constructs a new Server. m may be nil, which disables /metrics.
func NewServer(cfg *config.Config, events EventStore, imp Importer, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		loc:      cfg.Location(),
		events:   events,
		importer: imp,
		metrics:  m,
		now:      time.Now,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/agenda", s.handleAgenda)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="breakcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type importResponse struct {
	Source   string `json:"source"`
	Imported int    `json:"imported"`
}

// handleImport accepts a raw calendar export as the request body.
//
// POST /api/import?source=phone
//   - source: label stored with the events (default "upload")
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}

	body, err := ics.Read(r.Body, "request body")
	if err != nil {
		writeImportError(w, err)
		return
	}

	n, err := s.importer.Import(r.Context(), importer.OriginUpload, source, body)
	if err != nil {
		writeImportError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, importResponse{Source: source, Imported: n})
}

// writeImportError maps the ingestion error taxonomy onto status codes.
func writeImportError(w http.ResponseWriter, err error) {
	var (
		perr  *ics.ParseError
		ioErr *ics.IOError
	)
	switch {
	case errors.Is(err, ics.ErrInvalidFormat):
		writeError(w, http.StatusUnsupportedMediaType, "invalid_format", err)
	case errors.As(err, &perr):
		writeError(w, http.StatusUnprocessableEntity, "parse_error", err)
	case errors.As(err, &ioErr):
		writeError(w, http.StatusBadRequest, "io_error", err)
	default:
		appLog.Error("import failed", err)
		writeError(w, http.StatusInternalServerError, "internal", errors.New("failed to store events"))
	}
}

type eventsResponse struct {
	Events   []view.Event `json:"events"`
	Timezone string       `json:"timezone"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.List(r.Context(), s.loc)
	if err != nil {
		appLog.Error("api events: list failed", err)
		writeError(w, http.StatusInternalServerError, "internal", errors.New("failed to list events"))
		return
	}

	dtos := make([]view.Event, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, view.NewEvent(ev))
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: dtos, Timezone: s.loc.String()})
}

type agendaResponse struct {
	Now         time.Time         `json:"now"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	Timezone    string            `json:"timezone"`
	Items       []view.AgendaItem `json:"items"`
	Unscheduled []view.Event      `json:"unscheduled"`
}

// handleAgenda computes the agenda over every stored event.
//
// GET /api/agenda?now=2025-03-04T08:30:00+09:00
//   - now: reference instant (RFC 3339), default current time. It is
//     converted into the configured timezone before the window is chosen.
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	if v := r.URL.Query().Get("now"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("now must be RFC 3339"))
			return
		}
		now = t
	}
	now = now.In(s.loc)

	events, err := s.events.List(r.Context(), s.loc)
	if err != nil {
		appLog.Error("api agenda: list failed", err)
		writeError(w, http.StatusInternalServerError, "internal", errors.New("failed to list events"))
		return
	}

	items := agenda.Build(events, now)
	s.metrics.ObserveAgenda(items)

	win := agenda.WorkingWindow(now)
	resp := agendaResponse{
		Now:         now,
		WindowStart: win.Start,
		WindowEnd:   win.End,
		Timezone:    s.loc.String(),
		Items:       make([]view.AgendaItem, 0, len(items)),
		Unscheduled: make([]view.Event, 0),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, view.NewAgendaItem(it))
	}
	for _, ev := range agenda.Unscheduled(events) {
		resp.Unscheduled = append(resp.Unscheduled, view.NewEvent(ev))
	}

	appLog.Debug("api agenda", "now", now.Format(time.RFC3339), "items", len(resp.Items), "unscheduled", len(resp.Unscheduled))
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	type errResp struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	writeJSON(w, status, errResp{Error: err.Error(), Kind: kind})
}
