package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/fleetctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(provisionWaits.WithLabelValues(OutcomeTimeout))
	RecordProvisionWait(OutcomeTimeout, 12*time.Second)
	if got := testutil.ToFloat64(provisionWaits.WithLabelValues(OutcomeTimeout)); got != before+1 {
		t.Fatalf("expected timeout counter %v, got %v", before+1, got)
	}

	beforeNoop := testutil.ToFloat64(reconciles.WithLabelValues(ReconcileNoop))
	RecordReconcile(ReconcileNoop)
	if got := testutil.ToFloat64(reconciles.WithLabelValues(ReconcileNoop)); got != beforeNoop+1 {
		t.Fatalf("expected noop counter %v, got %v", beforeNoop+1, got)
	}

	RecordProvisionPoll()
	RecordCoordinationWrite(true)
	RecordCoordinationWrite(false)
	RecordCreate(CreateOK)
	RecordDestroy("ok")
}

func TestHandlerExposesFleetctlMetrics(t *testing.T) {
	testlog.Start(t)

	RecordCreate(CreateFailed)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fleetctl_lifecycle_creations_total") {
		t.Fatalf("missing creations metric in scrape output")
	}
}
