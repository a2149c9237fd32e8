package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for _, ln := range strings.Split(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})
	observability.Init(p.Registerer())

	start := time.Now()
	observability.ObserveGeneration("roads", nil, time.Since(start).Seconds())
	observability.ObserveGeneration("roads", errors.New("source down"), 0.010)
	observability.IncTileResult("miss", false)
	observability.IncTileResult("hit", true)
	observability.ObserveCacheOp("redis", "read", nil, 0.002)
	observability.ObserveInvalidation("bbox", 12, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`tile_generation_seconds_bucket`,
		`cache_op_duration_seconds_count{backend="redis",op="read"}`,
		`invalidation_keys_total{op="bbox"} 12`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "tile_results_total", `outcome="miss"`, `encoding="identity"`)
	assertHasMetricLine(t, body, "tile_results_total", `outcome="hit"`, `encoding="gzip"`)
	assertHasMetricLine(t, body, "tile_generation_seconds_count", `tileset="roads"`, `result="error"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
}
