package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakcal/internal/config"
	"breakcal/internal/importer"
	"breakcal/internal/metrics"
	"breakcal/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	events  []model.CalendarEvent
	listErr error
}

func (m *memStore) Append(_ context.Context, sourceID string, events []model.CalendarEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		ev.SourceID = sourceID
		m.events = append(m.events, ev)
	}
	return len(events), nil
}

func (m *memStore) ReplaceSource(ctx context.Context, sourceID string, events []model.CalendarEvent) (int, error) {
	return m.Append(ctx, sourceID, events)
}

func (m *memStore) List(_ context.Context, _ *time.Location) ([]model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CalendarEvent(nil), m.events...), m.listErr
}

const twoMeetings = "BEGIN:VCALENDAR\r\n" +
	"BEGIN:VEVENT\r\nSUMMARY:Planning\r\nDTSTART:20250304T090000Z\r\nDTEND:20250304T100000Z\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nSUMMARY:Review\r\nDTSTART:20250304T110000Z\r\nDTEND:20250304T120000Z\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nSUMMARY:Someday\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *memStore, *metrics.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}
	st := &memStore{}
	m := metrics.New()
	s := NewServer(cfg, st, importer.New(st, time.UTC, m), m)
	s.now = func() time.Time { return time.Date(2025, 3, 4, 8, 30, 0, 0, time.UTC) }
	return s, st, m
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestImportThenAgenda(t *testing.T) {
	s, st, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/import?source=work", twoMeetings)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var imp importResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imp))
	assert.Equal(t, importResponse{Source: "work", Imported: 3}, imp)
	assert.Len(t, st.events, 3)

	rec = do(t, h, http.MethodGet, "/api/agenda", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp agendaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	titles := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		titles = append(titles, it.Title)
	}
	assert.Equal(t, []string{"Break (60m)", "Planning", "Break (60m)", "Review", "Break (60m)"}, titles)
	assert.Equal(t, model.KindBreak, resp.Items[2].Kind)
	assert.Equal(t, 60, resp.Items[2].BucketMinutes)
	assert.True(t, resp.Items[2].Start.Equal(time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)))

	require.Len(t, resp.Unscheduled, 1)
	assert.Equal(t, "Someday", resp.Unscheduled[0].Title)
	assert.Nil(t, resp.Unscheduled[0].Start)
	assert.Equal(t, model.NoStartTime, resp.Unscheduled[0].StartLabel)
}

func TestAgendaNowParameter(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	h := s.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/import", twoMeetings).Code)

	rec := do(t, h, http.MethodGet, "/api/agenda?now=2025-03-04T10:30:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp agendaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// Planning has ended; the window still starts at 08:00.
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, "Break (60m)", resp.Items[0].Title)
	assert.True(t, resp.Items[0].Start.Equal(time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Review", resp.Items[1].Title)

	rec = do(t, h, http.MethodGet, "/api/agenda?now=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		kind string
	}{
		{"not a calendar", "hello", http.StatusUnsupportedMediaType, "invalid_format"},
		{"empty body", "", http.StatusUnsupportedMediaType, "invalid_format"},
		{"unclosed event", "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nSUMMARY:x\r\nEND:VCALENDAR\r\n", http.StatusUnprocessableEntity, "parse_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, st, _ := newTestServer(t, nil)
			rec := do(t, s.Handler(), http.MethodPost, "/api/import", tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body["kind"])
			assert.Empty(t, st.events)
		})
	}
}

func TestEventsListFailure(t *testing.T) {
	s, st, _ := newTestServer(t, nil)
	st.listErr = errors.New("db gone")

	rec := do(t, s.Handler(), http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db gone")
}

func TestEventsList(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	h := s.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/import", twoMeetings).Code)

	rec := do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 3)
	assert.Equal(t, "Planning", resp.Events[0].Title)
	assert.Equal(t, "2025-03-04 09:00", resp.Events[0].StartLabel)
	assert.Equal(t, "upload", resp.Events[0].SourceID)
	assert.Equal(t, "UTC", resp.Timezone)
}

func TestBasicAuth(t *testing.T) {
	s, _, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
	})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	rec := do(t, h, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("me", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	h := s.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/import", twoMeetings).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/agenda", "").Code)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `breakcal_imports_total{origin="upload",result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `breakcal_breaks_suggested_total{bucket="60"} 3`)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	st := &memStore{}
	s := NewServer(cfg, st, importer.New(st, time.UTC, nil), nil)

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
