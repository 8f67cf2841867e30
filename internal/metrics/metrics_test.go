package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Independent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ChunksReceived.Inc()
	if got := testutil.ToFloat64(b.ChunksReceived); got != 0 {
		t.Errorf("second instance ChunksReceived = %v, want 0", got)
	}
	if got := testutil.ToFloat64(a.ChunksReceived); got != 1 {
		t.Errorf("ChunksReceived = %v, want 1", got)
	}
}

func TestObserveTranscript(t *testing.T) {
	m := NewMetrics()
	m.ObserveTranscript(true)
	m.ObserveTranscript(false)
	m.ObserveTranscript(false)

	if got := testutil.ToFloat64(m.Transcripts.WithLabelValues("partial")); got != 1 {
		t.Errorf("partial = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Transcripts.WithLabelValues("final")); got != 2 {
		t.Errorf("final = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.ChunksDropped.WithLabelValues(DropNoConsumer).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `relay_chunks_dropped_total{reason="no_consumer"} 1`) {
		t.Errorf("metrics output missing dropped counter:\n%s", body)
	}
}
