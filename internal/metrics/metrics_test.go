package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakcal/internal/ics"
	"breakcal/internal/model"
)

func TestImportResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ResultOK},
		{err: ics.ErrInvalidFormat, want: ResultInvalidFormat},
		{err: fmt.Errorf("upload: %w", &ics.ParseError{Reason: "x"}), want: ResultParseError},
		{err: &ics.IOError{Source: "f", Err: errors.New("eof")}, want: ResultIOError},
		{err: errors.New("disk full"), want: ResultStoreError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImportResult(tt.err), "%v", tt.err)
	}
}

func TestObserveImport(t *testing.T) {
	m := New()

	m.ObserveImport("upload", 3, nil)
	m.ObserveImport("upload", 0, ics.ErrInvalidFormat)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("upload", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("upload", ResultInvalidFormat)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsImported.WithLabelValues("upload")))
}

func TestObserveAgenda(t *testing.T) {
	m := New()
	start := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)

	m.ObserveAgenda([]model.AgendaItem{
		model.BreakItem(model.Break{Start: start, End: start.Add(time.Hour), Bucket: model.Bucket60}),
		model.BreakItem(model.Break{Start: start, End: start.Add(15 * time.Minute), Bucket: model.Bucket15}),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.agendaBuilds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breaks.WithLabelValues("60")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breaks.WithLabelValues("15")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveImport("file", 1, nil)
	m.ObserveAgenda(nil)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveImport("file", 2, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `breakcal_imports_total{origin="file",result="ok"} 1`)
}
