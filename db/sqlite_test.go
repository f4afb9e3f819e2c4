package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndListRuns(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "data", "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []Run{
		{ModelName: "heart_model.json", ModelType: "random_forest", SchemaFingerprint: "abc", Kind: KindTrain, Accuracy: 0.88, F1: 0.89, DataPoints: 918, TrainedAt: base},
		{ModelName: "heart_model.json", ModelType: "random_forest", SchemaFingerprint: "abc", Kind: KindEvaluate, Accuracy: 0.87, DataPoints: 184, TrainedAt: base.Add(time.Hour)},
	}
	for _, run := range runs {
		id, err := store.RecordRun(ctx, run)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if id <= 0 {
			t.Fatalf("expected positive id, got %d", id)
		}
	}

	got, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].Kind != KindEvaluate || got[1].Kind != KindTrain {
		t.Fatalf("expected newest first, got %s then %s", got[0].Kind, got[1].Kind)
	}
	if got[1].Accuracy != 0.88 || got[1].F1 != 0.89 || got[1].DataPoints != 918 {
		t.Fatalf("unexpected values %+v", got[1])
	}
	if !got[1].TrainedAt.Equal(base) {
		t.Fatalf("expected %v, got %v", base, got[1].TrainedAt)
	}

	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run, got %d", len(limited))
	}
}

func TestRecordRunRequiresName(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.RecordRun(context.Background(), Run{Kind: KindTrain}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRecordIssues(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	runID, err := store.RecordRun(ctx, Run{ModelName: "heart_model.json", Kind: KindTrain})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	issues := []Issue{
		{Line: 25, Rule: "zero_measurement", Severity: "medium", Message: "missing measurement: RestingBP, Cholesterol"},
		{Line: 22, Rule: "zero_measurement", Severity: "medium", Message: "missing measurement: Cholesterol"},
	}
	if err := store.RecordIssues(ctx, runID, issues); err != nil {
		t.Fatalf("record issues: %v", err)
	}
	if err := store.RecordIssues(ctx, runID, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	got, err := store.ListIssues(ctx, runID)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(got) != 2 || got[0].Line != 22 || got[1].Line != 25 {
		t.Fatalf("unexpected issues %+v", got)
	}

	other, err := store.ListIssues(ctx, runID+1)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no issues for another run, got %d", len(other))
	}
}
