package runstore

import (
	"errors"
	"testing"
	"time"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndLoadLatest(t *testing.T) {
	store := newTestStore(t)

	run := domain.NewRun("research prompt")
	run.JobID = "int_1"
	run.Status = domain.StatusRunning
	run.Inputs = &domain.RunInputs{
		Topic:       "Fusion startups",
		Constraints: domain.Constraints{Timeframe: "2021-2025", MaxWords: 2000},
		Questions:   []string{"Who are the leading companies?"},
	}

	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadLatest(run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.JobID != "int_1" {
		t.Errorf("JobID = %q, want int_1", got.JobID)
	}
	if got.Status != domain.StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.HasReport {
		t.Error("run without report should load with HasReport=false")
	}
	if got.Inputs == nil || got.Inputs.Topic != "Fusion startups" {
		t.Errorf("Inputs = %+v", got.Inputs)
	}
	if got.Inputs.Constraints.MaxWords != 2000 {
		t.Errorf("Constraints = %+v", got.Inputs.Constraints)
	}
}

func TestStore_LoadLatest_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadLatest("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_SaveReplacesVersionEntry(t *testing.T) {
	store := newTestStore(t)

	run := domain.NewRun("prompt")
	run.Status = domain.StatusRunning
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	// Second save of the same version after completion replaces the entry
	run.JobID = "int_9"
	run.Status = domain.StatusCompleted
	run.SetReport("# Report")
	run.Usage = &domain.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	meta, err := store.LoadMetadata(run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Versions) != 1 {
		t.Fatalf("version entries = %d, want 1 (replaced, not appended)", len(meta.Versions))
	}
	if meta.Versions[0].Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed", meta.Versions[0].Status)
	}
	if meta.Versions[0].Usage == nil || meta.Versions[0].Usage.TotalTokens != 30 {
		t.Errorf("usage = %+v", meta.Versions[0].Usage)
	}

	got, err := store.LoadLatest(run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasReport || got.ReportText != "# Report" {
		t.Errorf("report = %q (has=%v)", got.ReportText, got.HasReport)
	}
}

func TestStore_Versioning(t *testing.T) {
	store := newTestStore(t)

	v1 := domain.NewRun("first prompt")
	v1.JobID = "int_1"
	v1.Status = domain.StatusCompleted
	v1.SetReport("report one")
	if err := store.SaveRun(v1); err != nil {
		t.Fatal(err)
	}

	v2 := v1.NewRevision("shorter please", "revision prompt")
	v2.JobID = "int_2"
	v2.Status = domain.StatusCompleted
	v2.SetReport("report two")
	if err := store.SaveRun(v2); err != nil {
		t.Fatal(err)
	}

	meta, err := store.LoadMetadata(v1.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.LatestVersion != 2 {
		t.Errorf("LatestVersion = %d, want 2", meta.LatestVersion)
	}
	if len(meta.Versions) != 2 {
		t.Fatalf("version entries = %d, want 2", len(meta.Versions))
	}
	if meta.Versions[1].PreviousJobID != "int_1" {
		t.Errorf("PreviousJobID = %q, want int_1", meta.Versions[1].PreviousJobID)
	}
	if meta.Versions[1].Feedback != "shorter please" {
		t.Errorf("Feedback = %q", meta.Versions[1].Feedback)
	}

	old, err := store.LoadVersion(v1.RunID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if old.ReportText != "report one" {
		t.Errorf("v1 report = %q", old.ReportText)
	}

	latest, err := store.LoadLatest(v1.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != 2 || latest.ReportText != "report two" {
		t.Errorf("latest = v%d %q", latest.Version, latest.ReportText)
	}
}

func TestStore_ListAll_NewestFirst(t *testing.T) {
	store := newTestStore(t)

	older := domain.NewRun("older")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := domain.NewRun("newer")

	if err := store.SaveRun(older); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(newer); err != nil {
		t.Fatal(err)
	}

	metas, err := store.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("runs = %d, want 2", len(metas))
	}
	if metas[0].RunID != newer.RunID {
		t.Errorf("first run = %s, want newest %s", metas[0].RunID, newer.RunID)
	}
}

func TestStore_Sources(t *testing.T) {
	store := newTestStore(t)

	run := domain.NewRun("prompt")
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	sources := domain.SourceMap{
		"1": {Title: "A", URL: "https://a.example", FinalURL: "https://a.example/final"},
		"2": {Title: "B", URL: "https://b.example"},
	}
	if err := store.SaveSources(run.RunID, 1, sources); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadSources(run.RunID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("sources = %d, want 2", len(got))
	}
	if got["1"].FinalURL != "https://a.example/final" {
		t.Errorf("source 1 = %+v", got["1"])
	}

	if err := store.SaveSources("missing", 1, sources); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveSources on missing run = %v, want ErrNotFound", err)
	}
}

func TestStore_LoadSources_NoneSaved(t *testing.T) {
	store := newTestStore(t)

	run := domain.NewRun("prompt")
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadSources(run.RunID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("sources = %v, want nil when none saved", got)
	}
}
