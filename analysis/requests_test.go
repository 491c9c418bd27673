package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"oee-dashboard/database"
	"oee-dashboard/jobs"
)

func TestRequestTrackerSupersession(t *testing.T) {
	tr := NewRequestTracker()

	ctx1, gen1 := tr.Begin(context.Background(), "s1")
	ctx2, gen2 := tr.Begin(context.Background(), "s1")
	if gen2 <= gen1 {
		t.Fatalf("tokens must increase: %d then %d", gen1, gen2)
	}
	if ctx1.Err() == nil {
		t.Error("superseded request context should be cancelled")
	}
	if ctx2.Err() != nil {
		t.Error("current request context should be live")
	}

	stale := &DashboardResult{StoreRevision: 1}
	fresh := &DashboardResult{StoreRevision: 2}
	if tr.Apply("s1", gen1, "job-1", stale) {
		t.Error("stale result must not apply")
	}
	if !tr.Apply("s1", gen2, "job-2", fresh) {
		t.Error("current result should apply")
	}

	latest, ok := tr.Latest("s1")
	if !ok || latest.Result != fresh || latest.JobID != "job-2" {
		t.Errorf("unexpected latest %+v", latest)
	}

	// other sessions are independent
	_, other := tr.Begin(context.Background(), "s2")
	if !tr.Current("s1", gen2) || !tr.Current("s2", other) {
		t.Error("sessions should not supersede each other")
	}
}

func TestRequestTrackerLateResultAfterNewerApplied(t *testing.T) {
	tr := NewRequestTracker()
	_, gen1 := tr.Begin(context.Background(), "s")
	_, gen2 := tr.Begin(context.Background(), "s")

	tr.Apply("s", gen2, "new", &DashboardResult{StoreRevision: 2})
	if tr.Apply("s", gen1, "old", &DashboardResult{StoreRevision: 1}) {
		t.Fatal("late stale result was applied")
	}
	latest, _ := tr.Latest("s")
	if latest.Result.StoreRevision != 2 {
		t.Errorf("late result leaked into state: %+v", latest.Result)
	}
}

func TestRequestTrackerFailedRegisterKeepsPreviousRequest(t *testing.T) {
	tr := NewRequestTracker()
	ctx1, gen1 := tr.Begin(context.Background(), "s")

	boom := errors.New("insert failed")
	_, _, err := tr.BeginWith(context.Background(), "s", func(uint64) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected register error, got %v", err)
	}
	if ctx1.Err() != nil {
		t.Error("in-flight request must not be cancelled when the new one fails to register")
	}
	if !tr.Current("s", gen1) {
		t.Error("previous token should still be current")
	}

	var registered uint64
	_, gen2, err := tr.BeginWith(context.Background(), "s", func(g uint64) error {
		registered = g
		return nil
	})
	if err != nil || gen2 != gen1+1 || registered != gen2 {
		t.Errorf("expected token %d registered, got gen %d registered %d err %v", gen1+1, gen2, registered, err)
	}
	if ctx1.Err() == nil {
		t.Error("successful begin should cancel the superseded request")
	}
}

func newAsyncAnalyzer(t *testing.T) (*Analyzer, *database.Store) {
	t.Helper()
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	pool := jobs.NewWorkerPool(2, nil)
	t.Cleanup(pool.Stop)

	store := newFixtureStore(t)
	return NewAnalyzer(store, database.NewRepository(db), newTestConfig(t), pool, nil), store
}

func waitForJob(t *testing.T, a *Analyzer, jobID string) *database.JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := a.GetJobStatus(jobID)
		if err != nil {
			t.Fatal(err)
		}
		switch job.Status {
		case database.JobCompleted, database.JobFailed, database.JobSuperseded:
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return nil
}

func TestRequestDashboardCompletesAndCaches(t *testing.T) {
	a, _ := newAsyncAnalyzer(t)

	ticket, err := a.RequestDashboard("sess", fullFilter())
	if err != nil {
		t.Fatalf("RequestDashboard: %v", err)
	}
	job := waitForJob(t, a, ticket.JobID)
	if job.Status != database.JobCompleted || job.CacheKey == "" {
		t.Fatalf("unexpected job %+v", job)
	}

	latest, err := a.Latest("sess")
	if err != nil {
		t.Fatal(err)
	}
	if latest.JobID != ticket.JobID || latest.Result.Summary.RecordCount != 4 {
		t.Errorf("unexpected applied result %+v", latest)
	}

	// unchanged store and filter: served from the cache
	again, err := a.RequestDashboard("sess", fullFilter())
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != database.JobCompleted {
		t.Errorf("expected cached request to complete immediately, got %s", again.Status)
	}
	latest, _ = a.Latest("sess")
	if latest.Generation != again.Generation || len(latest.Result.Downtime.ByLineReason.Rows) != 3 {
		t.Errorf("cached result not applied correctly: %+v", latest)
	}
}

func TestRequestDashboardStoreMutationBypassesCache(t *testing.T) {
	a, store := newAsyncAnalyzer(t)

	first, _ := a.RequestDashboard("sess", fullFilter())
	waitForJob(t, a, first.JobID)

	if _, err := store.AppendProduction(prod("P5", "L1", "M2", "A", jan12, 500, 5, 100, 10)); err != nil {
		t.Fatal(err)
	}
	second, err := a.RequestDashboard("sess", fullFilter())
	if err != nil {
		t.Fatal(err)
	}
	if second.Status == database.JobCompleted {
		t.Error("mutated store must not be served from the cache")
	}
	waitForJob(t, a, second.JobID)

	latest, _ := a.Latest("sess")
	if latest.Result.Summary.RecordCount != 5 {
		t.Errorf("expected the new record in the applied result, got %d", latest.Result.Summary.RecordCount)
	}
}

func TestRequestDashboardSupersedesPendingRequest(t *testing.T) {
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// one worker held busy so both requests queue behind it
	pool := jobs.NewWorkerPool(1, nil)
	defer pool.Stop()
	release := make(chan struct{})
	_ = pool.Submit(jobs.Job{ID: "blocker", Execute: func(ctx context.Context) error {
		<-release
		return nil
	}})

	a := NewAnalyzer(newFixtureStore(t), database.NewRepository(db), newTestConfig(t), pool, nil)
	f1 := fullFilter()
	f1.Area = "press"
	first, err := a.RequestDashboard("sess", f1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.RequestDashboard("sess", fullFilter())
	if err != nil {
		t.Fatal(err)
	}
	close(release)

	if job := waitForJob(t, a, first.JobID); job.Status != database.JobSuperseded {
		t.Errorf("first request should be superseded, got %s", job.Status)
	}
	if job := waitForJob(t, a, second.JobID); job.Status != database.JobCompleted {
		t.Errorf("second request should complete, got %s", job.Status)
	}

	latest, _ := a.Latest("sess")
	if latest.JobID != second.JobID || latest.Result.Filter.Area != "all" {
		t.Errorf("latest should be the second request, got %+v", latest)
	}
}

func TestRequestDashboardJobInsertFailureKeepsPendingRequest(t *testing.T) {
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	pool := jobs.NewWorkerPool(1, nil)
	defer pool.Stop()
	release := make(chan struct{})
	_ = pool.Submit(jobs.Job{ID: "blocker", Execute: func(ctx context.Context) error {
		<-release
		return nil
	}})

	a := NewAnalyzer(newFixtureStore(t), database.NewRepository(db), newTestConfig(t), pool, nil)
	first, err := a.RequestDashboard("sess", fullFilter())
	if err != nil {
		t.Fatal(err)
	}

	// the app DB goes away: the next request cannot record its job
	db.Close()
	if _, err := a.RequestDashboard("sess", fullFilter()); err == nil {
		t.Fatal("expected job creation to fail on a closed app DB")
	}
	close(release)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if latest, err := a.Latest("sess"); err == nil {
			if latest.JobID != first.JobID || latest.Generation != first.Generation {
				t.Errorf("expected the first request to apply, got %+v", latest)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("first request never applied after the failed second request")
}

func TestRequestDashboardValidation(t *testing.T) {
	a, _ := newAsyncAnalyzer(t)

	if _, err := a.RequestDashboard("", fullFilter()); !errors.Is(err, database.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter for missing session, got %v", err)
	}
	bad := fullFilter()
	bad.DateFrom, bad.DateTo = jan12, jan10
	if _, err := a.RequestDashboard("sess", bad); !errors.Is(err, database.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := a.Latest("nobody"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sync := NewAnalyzer(database.NewStore(), nil, nil, nil, nil)
	if _, err := sync.RequestDashboard("sess", fullFilter()); !errors.Is(err, ErrAsyncUnavailable) {
		t.Errorf("expected ErrAsyncUnavailable, got %v", err)
	}
}
