package storage

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/eventstudy/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRun(id string, started time.Time) *models.Run {
	return &models.Run{
		ID:           id,
		StartedAt:    started,
		FinishedAt:   started.Add(2 * time.Second),
		Dataset:      "inc_rate_ES.dta",
		ChartPath:    "Figure3.png",
		N:            900,
		Clusters:     50,
		Regressors:   120,
		Dropped:      []string{"_Istatefip_2"},
		PlottedCount: 16,
	}
}

func testEffects() []models.EventEffect {
	return []models.EventEffect{
		{
			Estimate:  models.Estimate{Var: "exp_Mpre_8", Coef: -0.31, StdErr: 0.1, PValue: 0.002, CILower: -0.5, CIUpper: -0.11, N: 900},
			EventTime: 1,
		},
		{
			Estimate:  models.ReferenceEstimate("exp_Mpre_6", 900),
			EventTime: -1,
		},
		{
			Estimate:  models.Estimate{Var: "exp_Mpre_1", Coef: 0.05, StdErr: 0.2, PValue: 0.8, CILower: -0.34, CIUpper: 0.44, N: 900},
			EventTime: -6,
		},
	}
}

func TestStorage_SaveAndGetEffects(t *testing.T) {
	s := newTestStorage(t)
	run := testRun("run-1", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	if err := s.SaveRun(run, testEffects()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	effects, err := s.GetEffects("run-1")
	if err != nil {
		t.Fatalf("GetEffects failed: %v", err)
	}
	if len(effects) != 3 {
		t.Fatalf("Expected 3 effects, got %d", len(effects))
	}

	wantTimes := []int{-6, -1, 1}
	for i, e := range effects {
		if e.EventTime != wantTimes[i] {
			t.Errorf("effects[%d].EventTime = %d, expected %d", i, e.EventTime, wantTimes[i])
		}
	}

	ref := effects[1]
	if ref.Var != "exp_Mpre_6" || !ref.IsReference() {
		t.Errorf("Expected reference row, got %+v", ref)
	}
	if !math.IsNaN(ref.PValue) {
		t.Errorf("Reference p-value should come back as NaN, got %v", ref.PValue)
	}
	if effects[2].PValue != 0.002 {
		t.Errorf("Expected p-value 0.002, got %v", effects[2].PValue)
	}
}

func TestStorage_GetRunRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	run := testRun("run-1", started)

	if err := s.SaveRun(run, testEffects()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, expected %v", got.StartedAt, started)
	}
	if len(got.Dropped) != 1 || got.Dropped[0] != "_Istatefip_2" {
		t.Errorf("Dropped = %v", got.Dropped)
	}
	if got.PlottedCount != 16 || got.Clusters != 50 {
		t.Errorf("Unexpected counts: %+v", got)
	}
}

func TestStorage_GetRunMissing(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetRun("nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestStorage_ListRunsNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		// Sub-second offsets must still sort correctly.
		run := testRun(id, base.Add(time.Duration(i)*500*time.Millisecond))
		if err := s.SaveRun(run, nil); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	for i, want := range []string{"c", "b", "a"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d].ID = %s, expected %s", i, runs[i].ID, want)
		}
	}

	limited, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "c" {
		t.Errorf("Expected [c b], got %d runs", len(limited))
	}
}

func TestStorage_SaveRunRejectsInvalid(t *testing.T) {
	s := newTestStorage(t)

	bad := testRun("", time.Now())
	if err := s.SaveRun(bad, nil); err == nil {
		t.Error("Expected error for run without ID")
	}

	run := testRun("run-1", time.Now())
	effects := []models.EventEffect{{
		Estimate:  models.Estimate{Var: "exp_Mpre_7", Coef: math.NaN(), N: 1},
		EventTime: 0,
	}}
	if err := s.SaveRun(run, effects); err == nil {
		t.Error("Expected error for NaN coefficient")
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Rejected runs must not be stored, found %d", len(runs))
	}
}

func TestStorage_DuplicateRunIsAtomic(t *testing.T) {
	s := newTestStorage(t)
	run := testRun("run-1", time.Now())

	if err := s.SaveRun(run, testEffects()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.SaveRun(run, testEffects()[:1]); err == nil {
		t.Fatal("Expected error saving duplicate run ID")
	}

	effects, err := s.GetEffects("run-1")
	if err != nil {
		t.Fatalf("GetEffects failed: %v", err)
	}
	if len(effects) != 3 {
		t.Errorf("Expected original 3 effects, got %d", len(effects))
	}
}

func TestStorage_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.SaveRun(testRun("run-1", time.Now()), testEffects()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	runs, err := reopened.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("Expected run-1 after reopen, got %v", runs)
	}
}
