package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cueplex/cueplex/internal/metrics"
)

func TestHTTPHandlerExportsStreamGauges(t *testing.T) {
	streamID := "scrape-test-stream"
	metrics.SetStreamFPS(streamID, 25.0)
	defer metrics.DeleteStreamMetrics(streamID)

	rec := httptest.NewRecorder()
	HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "cueplex_stream_fps") {
		t.Error("cueplex_stream_fps gauge missing from scrape output")
	}
	if !strings.Contains(body, streamID) {
		t.Errorf("stream label %q missing from scrape output", streamID)
	}
}
