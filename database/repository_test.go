package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := Initialize(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(db.Close)
	return NewRepository(db)
}

func TestJobLifecycle(t *testing.T) {
	repo := newTestRepository(t)

	job := JobStatus{JobID: "job-1", SessionID: "sess-1", Generation: 3, Status: JobPending}
	if err := repo.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := repo.UpdateJob("job-1", JobCompleted, "abc123", ""); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := repo.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobCompleted || got.CacheKey != "abc123" || got.Generation != 3 || got.SessionID != "sess-1" {
		t.Errorf("unexpected job: %+v", got)
	}

	if _, err := repo.GetJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheRespectsTTL(t *testing.T) {
	repo := newTestRepository(t)
	params := map[string]string{"area": "all"}

	if err := repo.SaveCache("live", params, []byte(`{"ok":true}`), time.Hour); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	if err := repo.SaveCache("stale", params, []byte(`{"ok":false}`), -time.Minute); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	result, ok, err := repo.GetCache("live")
	if err != nil || !ok {
		t.Fatalf("expected cache hit, got ok=%v err=%v", ok, err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("unexpected cached payload %s", result)
	}

	if _, ok, err := repo.GetCache("stale"); err != nil || ok {
		t.Errorf("expected miss for expired entry, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := repo.GetCache("absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestQueryLogAndCleanup(t *testing.T) {
	repo := newTestRepository(t)

	old := QueryLog{RequestTime: time.Now().UTC().AddDate(0, 0, -40), Filter: `{"area":"old"}`, Status: "completed"}
	recent := QueryLog{Filter: `{"area":"all"}`, StoreRevision: 9, RecordCount: 12, DurationMs: 4, Status: "completed"}
	for _, l := range []QueryLog{old, recent} {
		if err := repo.LogQuery(l); err != nil {
			t.Fatalf("LogQuery: %v", err)
		}
	}

	logs, err := repo.RecentQueryLogs(10)
	if err != nil {
		t.Fatalf("RecentQueryLogs: %v", err)
	}
	if len(logs) != 2 || logs[0].Filter != `{"area":"all"}` || logs[0].StoreRevision != 9 {
		t.Fatalf("unexpected logs: %+v", logs)
	}

	if err := repo.SaveCache("expired", nil, []byte("{}"), -time.Hour); err != nil {
		t.Fatal(err)
	}
	deleted, err := repo.CleanupOldData(30)
	if err != nil {
		t.Fatalf("CleanupOldData: %v", err)
	}
	if deleted["query_logs"] != 1 || deleted["dashboard_cache"] != 1 {
		t.Errorf("unexpected cleanup counts: %v", deleted)
	}

	logs, _ = repo.RecentQueryLogs(10)
	if len(logs) != 1 {
		t.Errorf("expected 1 log after cleanup, got %d", len(logs))
	}
}

func TestInitializeInMemory(t *testing.T) {
	db, err := Initialize(":memory:")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
