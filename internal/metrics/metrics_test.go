package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersIncrementCollectors(t *testing.T) {
	before := testutil.ToFloat64(workerOutcomes.WithLabelValues("CUTTING", "advanced"))
	Recorder{}.ObserveWorkerOutcome("cutting", " Advanced ")
	if got := testutil.ToFloat64(workerOutcomes.WithLabelValues("CUTTING", "advanced")); got != before+1 {
		t.Fatalf("worker outcome = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(throttleRejections.WithLabelValues("daily_limit"))
	Recorder{}.ObserveThrottleRejection("daily_limit")
	if got := testutil.ToFloat64(throttleRejections.WithLabelValues("daily_limit")); got != before+1 {
		t.Fatalf("throttle rejections = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(reviewDecisions.WithLabelValues("approved"))
	Recorder{}.ObserveReviewDecision("APPROVED")
	if got := testutil.ToFloat64(reviewDecisions.WithLabelValues("approved")); got != before+1 {
		t.Fatalf("review decisions = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(jobsIngested.WithLabelValues("text_idea"))
	Recorder{}.ObserveIngest("text_idea")
	if got := testutil.ToFloat64(jobsIngested.WithLabelValues("text_idea")); got != before+1 {
		t.Fatalf("jobs ingested = %v, want %v", got, before+1)
	}
}

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	MustRegister()
	MustRegister()
	Recorder{}.ObserveProvider("ffmpeg-format", 2*time.Second, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, name := range []string{
		"shortsfactory_provider_duration_seconds_bucket",
		"shortsfactory_review_decisions_total",
		"shortsfactory_worker_outcomes_total",
	} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in exposition output", name)
		}
	}
}
