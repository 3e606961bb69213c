package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestMetricsRecordTurnsAndEvents(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveTurn("new_conversation", "ok", 120*time.Millisecond)
	m.ObserveTurn("new_conversation", "ok", 80*time.Millisecond)
	m.ObserveResolution(3, 1)
	m.ObserveRecommendation("discovered", 4)
	m.ObserveRecommendation("consumed", 0)

	if got := testutil.ToFloat64(m.turns.WithLabelValues("new_conversation", "ok")); got != 2 {
		t.Fatalf("turns=%v", got)
	}
	if got := testutil.ToFloat64(m.resolutions.WithLabelValues("unmatched")); got != 1 {
		t.Fatalf("unmatched=%v", got)
	}
	if got := testutil.ToFloat64(m.recommends.WithLabelValues("discovered")); got != 4 {
		t.Fatalf("discovered=%v", got)
	}
}

func TestObserveDependency(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	if err := m.ObserveDependency(context.Background(), "neo4j", ok); err != nil {
		t.Fatalf("ok ping: %v", err)
	}
	if err := m.ObserveDependency(context.Background(), "redis", down); err == nil {
		t.Fatalf("expected ping error")
	}
	if got := testutil.ToFloat64(m.dependencyUp.WithLabelValues("neo4j")); got != 1 {
		t.Fatalf("neo4j up=%v", got)
	}
	if got := testutil.ToFloat64(m.dependencyUp.WithLabelValues("redis")); got != 0 {
		t.Fatalf("redis up=%v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveAPI("POST", "/api/data", "200", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `kgchat_api_requests_total{method="POST",route="/api/data",status="200"} 1`) {
		t.Fatalf("body missing api counter:\n%s", rec.Body.String())
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveTurn("continue_conversation", "error", time.Second)
	m.ObserveAPI("GET", "/healthcheck", "200", time.Millisecond)
	m.APIInflightInc()
	m.APIInflightDec()
	if err := m.ObserveDependency(context.Background(), "redis", pingFunc(func(context.Context) error { return nil })); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
