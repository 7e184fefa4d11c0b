package planvault

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestIdeaVaultLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Snapshot{
		IdeaName:         "Tidibe",
		ProblemStatement: "Founders stall on planning",
	}

	if err := svc.EnsureIdeaRepo(7, initial, "Avery"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "7")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// second call is a no-op
	if err := svc.EnsureIdeaRepo(7, initial, "Avery"); err != nil {
		t.Fatalf("EnsureIdeaRepo() repeat error = %v", err)
	}

	updated := initial
	updated.Progress = 25
	updated.Modules = []SnapshotModule{
		{
			Stage:   "Concept",
			Answers: []SnapshotQA{{Question: "Who is the customer?", Answer: "- remote founders"}},
			Tasks:   []SnapshotTask{{Description: "Interview 5 customers", Completed: true}},
		},
	}
	commit, err := svc.CommitSnapshot(7, updated, "Avery", "Generate concept answers")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History(7, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Message != "Generate concept answers" {
		t.Fatalf("unexpected newest commit: %+v", history[0])
	}

	restored, err := svc.GetSnapshotByHash(7, commit.Hash)
	if err != nil {
		t.Fatalf("GetSnapshotByHash() error = %v", err)
	}
	if restored.Progress != 25 || len(restored.Modules) != 1 {
		t.Fatalf("unexpected snapshot: %+v", restored)
	}
	if restored.Modules[0].Tasks[0].Description != "Interview 5 customers" {
		t.Fatalf("unexpected module content: %+v", restored.Modules[0])
	}
}

func TestConcurrentCommitsSameIdea(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureIdeaRepo(1, Snapshot{IdeaName: "Tidibe"}, "system"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			snapshot := Snapshot{IdeaName: "Tidibe", Progress: float64(n)}
			if _, err := svc.CommitSnapshot(1, snapshot, "system", "Update plan"); err != nil {
				t.Errorf("CommitSnapshot() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, err := svc.History(1, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("expected 6 commits, got %d", len(history))
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	svc := New(t.TempDir())

	// no repo yet
	if _, err := svc.GetSnapshotByHash(9, strings.Repeat("0", 40)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing repo, got %v", err)
	}

	if err := svc.EnsureIdeaRepo(9, Snapshot{IdeaName: "Tidibe"}, "system"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}
	if _, err := svc.GetSnapshotByHash(9, strings.Repeat("0", 40)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown hash, got %v", err)
	}
}
