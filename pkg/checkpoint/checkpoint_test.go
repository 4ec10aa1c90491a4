package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"followsweep/pkg/session"
)

func finished(subject, outcome string) session.Snapshot {
	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	return session.Snapshot{
		State:      session.Stopped,
		Subject:    subject,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Minute),
		Outcome:    outcome,
		Iterations: 7,
		Written:    120,
	}
}

func TestSaveAndLoad(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "checkpoints"))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	snap := finished("alice", "cancelled")
	snap.Error = "channel disconnected"
	if err := mgr.Save(snap); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	cp, err := mgr.Load("@Alice")
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}
	if cp == nil {
		t.Fatal("Expected checkpoint, got nil")
	}
	if cp.Subject != "alice" || cp.Written != 120 || cp.Iterations != 7 {
		t.Errorf("unexpected checkpoint %+v", cp)
	}
	if cp.Error != "channel disconnected" || cp.Version != Version {
		t.Errorf("unexpected checkpoint %+v", cp)
	}
	if !cp.Interrupted() {
		t.Error("cancelled session should count as interrupted")
	}
	if got := cp.Age(snap.FinishedAt.Add(time.Hour)); got != time.Hour {
		t.Errorf("Age = %v", got)
	}

	if _, err := os.Stat(filepath.Join(mgr.Dir(), "alice.checkpoint.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestSaveReplacesPrevious(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Save(finished("bob", "failed")); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Save(finished("bob", "success")); err != nil {
		t.Fatal(err)
	}
	cp, err := mgr.Load("bob")
	if err != nil {
		t.Fatal(err)
	}
	if cp.Outcome != "success" || cp.Interrupted() {
		t.Errorf("expected the latest outcome, got %q", cp.Outcome)
	}
}

func TestLoadMissing(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cp, err := mgr.Load("nobody")
	if err != nil || cp != nil {
		t.Errorf("expected nil, nil; got %v, %v", cp, err)
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte(`{"subject":"carol","outcome":"success","version":99}`)
	if err := os.WriteFile(filepath.Join(dir, "carol.checkpoint.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Load("carol"); err == nil {
		t.Error("expected an error for a newer format")
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	mgr, _ := NewManager(dir)
	if err := os.WriteFile(filepath.Join(dir, "dave.checkpoint.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Load("dave"); err == nil {
		t.Error("expected a decode error")
	}
}

func TestDelete(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Save(finished("erin", "success")); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Delete("erin"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if cp, _ := mgr.Load("erin"); cp != nil {
		t.Error("checkpoint still present")
	}
	if err := mgr.Delete("erin"); err != nil {
		t.Errorf("deleting a missing checkpoint: %v", err)
	}
}

func TestEmptySubject(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Save(finished("", "failed")); err != nil {
		t.Fatal(err)
	}
	cp, err := mgr.Load("")
	if err != nil || cp == nil {
		t.Fatalf("got %v, %v", cp, err)
	}
}
