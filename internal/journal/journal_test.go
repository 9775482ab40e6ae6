package journal

import (
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "cycles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_AppendAndRecent(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Append("penny", "penny", "what time is it", "It is noon.", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append("sheldon", "sheldon", "", "", "stt"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cycles, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles, want 2", len(cycles))
	}

	// Newest first.
	if cycles[0].WakeWord != "sheldon" || cycles[0].FailStage != "stt" {
		t.Errorf("cycles[0] = %+v, want the failed sheldon cycle", cycles[0])
	}
	if cycles[1].Transcript != "what time is it" || cycles[1].Reply != "It is noon." {
		t.Errorf("cycles[1] = %+v", cycles[1])
	}
	if cycles[1].FailStage != "" {
		t.Errorf("successful cycle has fail stage %q", cycles[1].FailStage)
	}
	if cycles[0].CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}
}

func TestJournal_RecentLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		if err := j.Append("penny", "penny", "q", "a", ""); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	cycles, err := j.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(cycles) != 3 {
		t.Errorf("got %d cycles, want 3", len(cycles))
	}

	// Non-positive limit falls back to a sane default.
	cycles, err = j.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(cycles) != 5 {
		t.Errorf("got %d cycles with default limit, want 5", len(cycles))
	}
}

func TestJournal_EmptyRecent(t *testing.T) {
	j := openTestJournal(t)
	cycles, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(cycles) != 0 {
		t.Errorf("got %d cycles from an empty journal", len(cycles))
	}
}
