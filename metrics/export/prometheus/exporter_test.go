package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	nopw "github.com/MrEthical07/goNoPassword"
)

type fakeSource struct {
	snapshot nopw.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() nopw.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                  { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: nopw.MetricsSnapshot{
			Counters:   map[nopw.MetricID]uint64{},
			Histograms: map[nopw.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: nopw.MetricsSnapshot{
			Counters: map[nopw.MetricID]uint64{
				nopw.MetricRedeemSuccess: 7,
				nopw.MetricCodeIssued:    9,
			},
			Histograms: map[nopw.MetricID][]uint64{
				nopw.MetricRedeemLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"nopassword_redeem_success_total 7",
		"nopassword_code_issued_total 9",
		"nopassword_redeem_expired_total 0",
		`nopassword_redeem_latency_seconds_bucket{le="0.005"} 1`,
		`nopassword_redeem_latency_seconds_bucket{le="+Inf"} 36`,
		"nopassword_redeem_latency_seconds_count 36",
		"nopassword_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderSkipsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: nopw.MetricsSnapshot{
			Counters:   map[nopw.MetricID]uint64{nopw.MetricRedeemSuccess: 1},
			Histograms: map[nopw.MetricID][]uint64{},
		},
	})

	if out := exp.Render(); strings.Contains(out, "nopassword_redeem_latency_seconds") {
		t.Fatalf("did not expect histogram series, got:\n%s", out)
	}
}

func TestRenderFromEngine(t *testing.T) {
	m := nopw.NewMetrics(nopw.MetricsConfig{Enabled: true})
	m.Inc(nopw.MetricCodeCollision)
	exp := NewExporterFromSource(fakeSource{snapshot: m.Snapshot()})

	if out := exp.Render(); !strings.Contains(out, "nopassword_code_collision_total 1") {
		t.Fatalf("expected collision counter, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: nopw.MetricsSnapshot{
			Counters:   map[nopw.MetricID]uint64{nopw.MetricRedeemSuccess: 1},
			Histograms: map[nopw.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: nopw.MetricsSnapshot{
			Counters: map[nopw.MetricID]uint64{
				nopw.MetricCodeIssued:     1000,
				nopw.MetricRedeemSuccess:  800,
				nopw.MetricRedeemExpired:  40,
				nopw.MetricRedeemConsumed: 3,
			},
			Histograms: map[nopw.MetricID][]uint64{
				nopw.MetricRedeemLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
