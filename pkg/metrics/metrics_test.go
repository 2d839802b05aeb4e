package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLoginFailure(t *testing.T) {
	before := testutil.ToFloat64(LoginAttempts.WithLabelValues("failure", "state_mismatch"))
	RecordLoginFailure("state_mismatch")
	after := testutil.ToFloat64(LoginAttempts.WithLabelValues("failure", "state_mismatch"))
	if after-before != 1 {
		t.Errorf("login failure counter moved by %v, want 1", after-before)
	}
}

func TestRecordProviderRequest(t *testing.T) {
	ok := testutil.ToFloat64(ProviderRequests.WithLabelValues("exchange", "success"))
	failed := testutil.ToFloat64(ProviderRequests.WithLabelValues("exchange", "failure"))

	RecordProviderRequest("exchange", nil, 10*time.Millisecond)
	RecordProviderRequest("exchange", errors.New("boom"), 10*time.Millisecond)

	if got := testutil.ToFloat64(ProviderRequests.WithLabelValues("exchange", "success")) - ok; got != 1 {
		t.Errorf("success counter moved by %v, want 1", got)
	}
	if got := testutil.ToFloat64(ProviderRequests.WithLabelValues("exchange", "failure")) - failed; got != 1 {
		t.Errorf("failure counter moved by %v, want 1", got)
	}
}
