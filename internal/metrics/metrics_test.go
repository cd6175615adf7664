package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(zoneChanges.WithLabelValues("create"))
	RecordZoneChange("create", 3)
	RecordZoneChange("create", 0)
	if got := testutil.ToFloat64(zoneChanges.WithLabelValues("create")) - before; got != 3 {
		t.Errorf("create delta = %v, want 3", got)
	}

	SetZones(7)
	if got := testutil.ToFloat64(zones); got != 7 {
		t.Errorf("zones = %v, want 7", got)
	}

	before = testutil.ToFloat64(routedEvents.WithLabelValues("false"))
	RecordEvent(false)
	if got := testutil.ToFloat64(routedEvents.WithLabelValues("false")) - before; got != 1 {
		t.Errorf("unmatched delta = %v, want 1", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	Register()
	Register()
	RecordConnectAttempt()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "hexboard_transport_connect_attempts_total") {
		t.Error("connect attempts counter missing from /metrics")
	}
}
