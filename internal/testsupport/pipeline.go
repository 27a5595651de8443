package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"shortsfactory/internal/queue"
)

const driverOwner = "testsupport-driver"

// DriveTo pushes a job along the happy path until it reaches target, writing
// placeholder artifacts for each worker-bound state. Review is approved by
// "tester". Targets off the happy path (REJECTED, FAILED) are not supported.
func DriveTo(t testing.TB, store *queue.Store, id string, target queue.State) *queue.Job {
	t.Helper()

	ctx := context.Background()
	job, err := store.GetByID(ctx, id)
	if err != nil || job == nil {
		t.Fatalf("DriveTo: load %s: %v", id, err)
	}
	for steps := 0; job.State != target; steps++ {
		if steps > 20 {
			t.Fatalf("DriveTo: %s never reached %s (stuck in %s)", id, target, job.State)
		}
		switch {
		case queue.WorkerBound(job.State):
			job = completeClaimed(t, store, job)
		case job.State == queue.StateAwaitingReview:
			job, err = store.Advance(ctx, queue.Transition{
				JobID:  id,
				Event:  queue.EventApprove,
				Review: &queue.Review{Reviewer: "tester"},
			})
		case job.State == queue.StateApproved:
			job, err = store.Advance(ctx, queue.Transition{JobID: id, Event: queue.EventRelease})
		default:
			t.Fatalf("DriveTo: cannot leave %s", job.State)
		}
		if err != nil {
			t.Fatalf("DriveTo: advance %s: %v", id, err)
		}
	}
	return job
}

func completeClaimed(t testing.TB, store *queue.Store, job *queue.Job) *queue.Job {
	t.Helper()

	ctx := context.Background()
	claimed, err := store.Claim(ctx, job.ID, job.State, driverOwner, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DriveTo: claim %s in %s: %v", job.ID, job.State, err)
	}
	tr := queue.Transition{
		JobID: claimed.ID,
		From:  claimed.State,
		Event: queue.EventComplete,
		Owner: driverOwner,
	}
	if kind, ok := queue.ArtifactFor(claimed.State); ok {
		tr.Artifacts = map[queue.Artifact]string{kind: fmt.Sprintf("/artifacts/%s/%s", claimed.ID, kind)}
	}
	if claimed.State == queue.StateUploading {
		tr.Publish = &queue.PublishRecord{PlatformID: "stub-" + claimed.ID, URL: "https://example.invalid/" + claimed.ID}
	}
	next, err := store.Advance(ctx, tr)
	if err != nil {
		t.Fatalf("DriveTo: complete %s in %s: %v", job.ID, job.State, err)
	}
	return next
}
