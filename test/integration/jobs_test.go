//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apexhealth/claims/internal/domain/claims"
	"github.com/apexhealth/claims/internal/platform/jobs"
)

type jobRow struct {
	Status    string
	Attempts  int
	Progress  int
	Result    []byte
	LastError *string
}

func loadJob(t *testing.T, id uuid.UUID) jobRow {
	t.Helper()
	var r jobRow
	err := globalPool.QueryRow(context.Background(),
		`SELECT status, attempts, progress, result, last_error FROM claim_jobs WHERE id = $1`, id).
		Scan(&r.Status, &r.Attempts, &r.Progress, &r.Result, &r.LastError)
	if err != nil {
		t.Fatalf("load job %s: %v", id, err)
	}
	return r
}

func TestJobStore_PriorityAndDelay(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := jobs.NewStorePG(globalPool, 3)

	low, err := store.Enqueue(ctx, "payment-batch", map[string]int{"n": 1}, jobs.EnqueueOptions{Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	high, err := store.Enqueue(ctx, "payment-batch", map[string]int{"n": 2}, jobs.EnqueueOptions{Priority: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, "payment-batch", nil, jobs.EnqueueOptions{Delay: time.Hour}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	j, err := store.ClaimNext(ctx)
	if err != nil || j == nil || j.ID != high {
		t.Fatalf("expected high priority job first, got %+v (err=%v)", j, err)
	}
	if j.Status != jobs.StatusRunning || j.Attempts != 1 || j.MaxAttempts != 3 {
		t.Errorf("unexpected claimed job: %+v", j)
	}
	j, err = store.ClaimNext(ctx)
	if err != nil || j == nil || j.ID != low {
		t.Fatalf("expected low priority job second, got %+v (err=%v)", j, err)
	}
	j, err = store.ClaimNext(ctx)
	if err != nil || j != nil {
		t.Fatalf("delayed job must not be runnable yet, got %+v (err=%v)", j, err)
	}
}

func TestJobStore_Lifecycle(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := jobs.NewStorePG(globalPool, 3)

	id, err := store.Enqueue(ctx, "validate-claim", map[string]string{"claimId": "x"}, jobs.EnqueueOptions{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	past := time.Now().Add(-time.Second)
	if err := store.Fail(ctx, id, "connection reset", &past); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	row := loadJob(t, id)
	if row.Status != "queued" || row.LastError == nil || *row.LastError != "connection reset" {
		t.Errorf("expected requeue, got %+v", row)
	}

	j, err := store.ClaimNext(ctx)
	if err != nil || j == nil || j.Attempts != 2 || j.MaxAttempts != 5 {
		t.Fatalf("expected second attempt, got %+v (err=%v)", j, err)
	}

	for _, pct := range []int{40, 20, 70} {
		if err := store.SetProgress(ctx, id, pct); err != nil {
			t.Fatalf("SetProgress: %v", err)
		}
	}
	if row := loadJob(t, id); row.Progress != 70 {
		t.Errorf("progress should never go backwards, got %d", row.Progress)
	}

	if err := store.Complete(ctx, id, map[string]int{"processed": 3}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	row = loadJob(t, id)
	var result map[string]int
	if err := json.Unmarshal(row.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if row.Status != "completed" || row.Progress != 100 || row.LastError != nil || result["processed"] != 3 {
		t.Errorf("unexpected completed job: %+v", row)
	}
}

func TestJobStore_PermanentFailure(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := jobs.NewStorePG(globalPool, 1)

	id, _ := store.Enqueue(ctx, "batch-adjudicate", map[string]any{}, jobs.EnqueueOptions{})
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := store.Fail(ctx, id, "no claim ids", nil); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if row := loadJob(t, id); row.Status != "failed" {
		t.Errorf("expected failed, got %s", row.Status)
	}
	if j, _ := store.ClaimNext(ctx); j != nil {
		t.Error("failed jobs must not be claimed again")
	}
}

func TestJobStore_ExpiredLeaseIsReclaimed(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := jobs.NewStorePG(globalPool, 3, jobs.WithLease(200*time.Millisecond))

	id, err := store.Enqueue(ctx, "batch-adjudicate", map[string]any{}, jobs.EnqueueOptions{MaxAttempts: 2})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	first, err := store.ClaimNext(ctx)
	if err != nil || first == nil || first.ID != id || first.LockedUntil == nil {
		t.Fatalf("expected leased job, got %+v (err=%v)", first, err)
	}
	if j, _ := store.ClaimNext(ctx); j != nil {
		t.Fatal("a job under a live lease must not be claimed twice")
	}

	// The first worker dies without completing or failing the job.
	time.Sleep(400 * time.Millisecond)
	second, err := store.ClaimNext(ctx)
	if err != nil || second == nil || second.ID != id || second.Attempts != 2 {
		t.Fatalf("expected the abandoned job back on attempt 2, got %+v (err=%v)", second, err)
	}

	time.Sleep(400 * time.Millisecond)
	if j, err := store.ClaimNext(ctx); err != nil || j != nil {
		t.Fatalf("an exhausted job must not be reclaimed, got %+v (err=%v)", j, err)
	}
	row := loadJob(t, id)
	if row.Status != "failed" || row.LastError == nil || *row.LastError != "lease expired on final attempt" {
		t.Errorf("expected exhausted job to fail, got %+v", row)
	}
}

func TestJobStore_HeartbeatKeepsLease(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := jobs.NewStorePG(globalPool, 3, jobs.WithLease(300*time.Millisecond))

	id, _ := store.Enqueue(ctx, "payment-batch", map[string]any{}, jobs.EnqueueOptions{})
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	for i := 0; i < 4; i++ {
		time.Sleep(150 * time.Millisecond)
		if err := store.Heartbeat(ctx, id); err != nil {
			t.Fatalf("Heartbeat: %v", err)
		}
		if j, _ := store.ClaimNext(ctx); j != nil {
			t.Fatalf("heartbeated job was reclaimed on tick %d", i)
		}
	}
	if err := store.Complete(ctx, id, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if row := loadJob(t, id); row.Status != "completed" {
		t.Errorf("expected completed, got %s", row.Status)
	}
}

// TestEndToEnd drives submission, queued validation, batch adjudication,
// manual approval and a queued payment batch against a real database.
func TestEndToEnd(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	svc, repo := newService()
	store := jobs.NewStorePG(globalPool, 3)
	svc.SetEnqueuer(store)
	batch := claims.NewBatchRunner(svc, 2, zerolog.Nop())

	w := jobs.NewWorker(store, jobs.WorkerConfig{PollInterval: 10 * time.Millisecond}, zerolog.Nop())
	claims.NewProcessor(svc, batch).Register(w)
	org := newOrg()

	clean, err := svc.Submit(ctx, org, submission(time.Now().AddDate(0, 0, -7)), operator)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	late := submission(time.Now().AddDate(0, 0, -400))
	late.MemberID = "MBR-5002"
	stale, err := svc.Submit(ctx, org, late, operator)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Validation jobs are scheduled a second out; make them runnable now.
	if _, err := globalPool.Exec(ctx, `UPDATE claim_jobs SET run_at = NOW() WHERE kind = $1`, claims.JobValidateClaim); err != nil {
		t.Fatalf("advance run_at: %v", err)
	}
	for i := 0; i < 2; i++ {
		ok, err := w.ProcessNext(ctx)
		if err != nil || !ok {
			t.Fatalf("ProcessNext validate: ok=%v err=%v", ok, err)
		}
	}
	for _, id := range []uuid.UUID{clean.ID, stale.ID} {
		if c, _ := repo.GetByID(ctx, org, id); c.Status != claims.StatusValidated {
			t.Fatalf("expected validated, got %s", c.Status)
		}
	}

	res := batch.Run(ctx, org, []uuid.UUID{clean.ID, stale.ID}, nil)
	if res.Succeeded != 2 || res.Results[0].Status != string(claims.StatusAdjudicated) || res.Results[1].Status != string(claims.StatusDenied) {
		t.Fatalf("unexpected batch result: %+v", res)
	}

	if _, err := svc.Approve(ctx, org, clean.ID, operator); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	payID, err := store.Enqueue(ctx, claims.JobPaymentBatch, claims.PaymentBatchPayload{
		ClaimIDs: []uuid.UUID{clean.ID, stale.ID}, OrganizationID: org, CheckDate: "2026-03-02",
	}, jobs.EnqueueOptions{Priority: 1})
	if err != nil {
		t.Fatalf("Enqueue payment: %v", err)
	}
	if ok, err := w.ProcessNext(ctx); err != nil || !ok {
		t.Fatalf("ProcessNext payment: ok=%v err=%v", ok, err)
	}

	row := loadJob(t, payID)
	var pay claims.PaymentBatchResult
	if err := json.Unmarshal(row.Result, &pay); err != nil {
		t.Fatalf("decode payment result: %v", err)
	}
	if row.Status != "completed" || pay.Processed != 1 || pay.Skipped != 1 || pay.TotalPaid != 112 {
		t.Errorf("unexpected payment job: %s %+v", row.Status, pay)
	}

	paid, _ := repo.GetByID(ctx, org, clean.ID)
	if paid.Status != claims.StatusPaid || paid.CheckNumber == nil || *paid.CheckNumber != "CHK-20260302-00001" {
		t.Errorf("unexpected paid claim: %s %v", paid.Status, paid.CheckNumber)
	}
	if n := len(paid.Notes); n != 5 {
		t.Errorf("expected 5 notes (submit, validate, adjudicate, approve, pay), got %d", n)
	}
}
