package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dexwatch/internal/model"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Published("pending_txs")
	m.Published("pending_txs")
	m.Classified(model.RoleRouter)
	m.Dropped()
	m.Decoded(2)
	m.Lagged("classifier", 5)
	m.Written("cache")

	if got := testutil.ToFloat64(m.published.WithLabelValues("pending_txs")); got != 2 {
		t.Fatalf("expected 2 published, got %v", got)
	}
	if got := testutil.ToFloat64(m.classified.WithLabelValues("router")); got != 1 {
		t.Fatalf("expected 1 router match, got %v", got)
	}
	if got := testutil.ToFloat64(m.decoded); got != 2 {
		t.Fatalf("expected 2 decodes, got %v", got)
	}
	if got := testutil.ToFloat64(m.lagged.WithLabelValues("classifier")); got != 5 {
		t.Fatalf("expected 5 lagged, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Written("storage")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `dexwatch_consumer_writes_total{consumer="storage"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
