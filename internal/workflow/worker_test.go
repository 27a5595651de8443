package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"shortsfactory/internal/queue"
	"shortsfactory/internal/testsupport"
)

func TestNewWorkerRejectsUnboundState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := NewWorker(store, cfg, queue.StateAwaitingReview, newFakeProvider(queue.StateAwaitingReview)); err == nil {
		t.Fatal("expected error for AWAITING_REVIEW")
	}
	if _, err := NewWorker(store, cfg, queue.StateNew, nil); err == nil {
		t.Fatal("expected error for missing provider")
	}
	w, err := NewWorker(store, cfg, queue.StateCutting, newFakeProvider(queue.StateCutting))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if w.Name != "cutting" || w.Owner() == "" {
		t.Fatalf("unexpected worker identity %q/%q", w.Name, w.Owner())
	}
}

func TestProcessOneIdleWhenNothingClaimable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	w, err := NewWorker(store, cfg, queue.StateNew, newFakeProvider(queue.StateNew))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	outcome, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if outcome != OutcomeIdle {
		t.Fatalf("expected idle, got %s", outcome)
	}
}

func TestConcurrentWorkersAdvanceJobOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustIngestIdea(t, store, "contended")

	provider := newFakeProvider(queue.StateNew)
	var workers []*Worker
	for range 4 {
		w, err := NewWorker(store, cfg, queue.StateNew, provider)
		if err != nil {
			t.Fatalf("NewWorker: %v", err)
		}
		workers = append(workers, w)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[Outcome]int)
	)
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := w.ProcessOne(context.Background())
			if err != nil {
				t.Errorf("ProcessOne: %v", err)
				return
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if outcomes[OutcomeAdvanced] != 1 {
		t.Fatalf("expected exactly one advance, got %#v", outcomes)
	}
	if provider.Calls() != 1 {
		t.Fatalf("expected provider to run once, got %d", provider.Calls())
	}
	got, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != queue.StateCutting || got.AttemptCount != 0 {
		t.Fatalf("expected CUTTING with no attempts, got %s/%d", got.State, got.AttemptCount)
	}
}

func TestKeepLeaseRenewsClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ClaimTimeout = 1
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustIngestIdea(t, store, "long running")

	w, err := NewWorker(store, cfg, queue.StateNew, newFakeProvider(queue.StateNew))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	claimed, err := store.Claim(context.Background(), job.ID, queue.StateNew, w.Owner(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	first := *claimed.ClaimedAt

	stop := w.keepLease(context.Background(), w.logger, job.ID)
	time.Sleep(800 * time.Millisecond)
	stop()

	got, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ClaimOwner != w.Owner() {
		t.Fatalf("claim owner changed to %q", got.ClaimOwner)
	}
	if got.ClaimedAt == nil || !got.ClaimedAt.After(first) {
		t.Fatalf("expected claimed_at to move past %s, got %v", first, got.ClaimedAt)
	}
}

func TestLeaseRenewalInterval(t *testing.T) {
	if got := leaseRenewalInterval(30 * time.Minute); got != 10*time.Minute {
		t.Fatalf("unexpected interval %s", got)
	}
	if got := leaseRenewalInterval(0); got != 0 {
		t.Fatalf("expected zero interval, got %s", got)
	}
}
