package forward

import (
	"testing"
	"time"
)

func TestJobStateAccounting(t *testing.T) {
	state := NewJobState("1-job", 1, -100, -200, 1, 10, false)

	for i := int64(1); i <= 10; i++ {
		state.AddFetched(i)
	}
	state.AddForwarded(5)
	state.AddDuplicate()
	state.AddDuplicate()
	state.AddFiltered()
	state.AddDeleted(2)

	snap := state.Snapshot()
	if snap.Fetched != 10 {
		t.Fatalf("expected 10 fetched, got %d", snap.Fetched)
	}
	if snap.Processed() != 10 {
		t.Fatalf("expected 10 processed, got %d", snap.Processed())
	}
	if !snap.Balanced() {
		t.Fatalf("expected balanced accounting: %+v", snap)
	}
	if snap.LastMessageID != 10 {
		t.Fatalf("expected last message id 10, got %d", snap.LastMessageID)
	}
}

func TestJobStateUnbalanced(t *testing.T) {
	state := NewJobState("1-job", 1, -100, -200, 1, 10, false)
	state.AddFetched(1)
	state.AddFetched(2)
	state.AddForwarded(1)

	if state.Snapshot().Balanced() {
		t.Fatalf("expected unbalanced accounting with one message unaccounted")
	}
}

func TestSnapshotPercentage(t *testing.T) {
	tests := []struct {
		name    string
		fetched int64
		total   int64
		want    float64
	}{
		{name: "half", fetched: 50, total: 100, want: 50},
		{name: "zero total", fetched: 0, total: 0, want: 0},
		{name: "complete", fetched: 10, total: 10, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{Fetched: tt.fetched, Total: tt.total}
			if got := snap.Percentage(); got != tt.want {
				t.Fatalf("expected %.1f, got %.1f", tt.want, got)
			}
		})
	}
}

func TestSnapshotTerminal(t *testing.T) {
	terminal := []string{StatusCancelled, StatusCompleted, StatusFailed}
	for _, status := range terminal {
		if !(Snapshot{Status: status}).Terminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}

	running := []string{StatusValidating, StatusRunning, StatusSleeping}
	for _, status := range running {
		if (Snapshot{Status: status}).Terminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestSnapshotETAWithoutProgress(t *testing.T) {
	snap := Snapshot{Total: 100, StartedAt: time.Now()}
	if eta := snap.ETA(); eta != 0 {
		t.Fatalf("expected zero ETA without progress, got %v", eta)
	}
}

func TestSetSleeping(t *testing.T) {
	state := NewJobState("1-job", 1, -100, -200, 1, 10, false)
	state.SetSleeping(5 * time.Second)

	snap := state.Snapshot()
	if snap.Status != StatusSleeping {
		t.Fatalf("expected sleeping status, got %s", snap.Status)
	}
	if snap.SleepSeconds != 5 {
		t.Fatalf("expected 5 sleep seconds, got %d", snap.SleepSeconds)
	}

	state.SetStatus(StatusRunning)
	snap = state.Snapshot()
	if snap.SleepSeconds != 0 {
		t.Fatalf("expected sleep seconds cleared, got %d", snap.SleepSeconds)
	}
}
