package forward

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestReporter(client Client) (*ProgressReporter, *time.Time) {
	reporter := NewProgressReporter(client, 1, 100, 2*time.Second, 3*time.Second)
	now := time.Unix(1_700_000_000, 0)
	reporter.now = func() time.Time { return now }
	return reporter, &now
}

func runningSnapshot(fetched int64) Snapshot {
	return Snapshot{
		JobID:     "1-job",
		Status:    StatusRunning,
		Fetched:   fetched,
		Total:     100,
		Forwarded: fetched,
		StartedAt: time.Unix(1_700_000_000, 0),
	}
}

func TestProgressReporterThrottlesEdits(t *testing.T) {
	client := &scriptedClient{}
	reporter, now := newTestReporter(client)

	if err := reporter.Publish(context.Background(), runningSnapshot(1), false); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	if len(client.edits()) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(client.edits()))
	}

	// 间隔不足，编辑被节流
	*now = now.Add(time.Second)
	if err := reporter.Publish(context.Background(), runningSnapshot(2), false); err != nil {
		t.Fatalf("throttled publish failed: %v", err)
	}
	if len(client.edits()) != 1 {
		t.Fatalf("expected throttled publish to skip edit, got %d", len(client.edits()))
	}

	// 间隔已够
	*now = now.Add(2 * time.Second)
	if err := reporter.Publish(context.Background(), runningSnapshot(3), false); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(client.edits()) != 2 {
		t.Fatalf("expected 2 edits, got %d", len(client.edits()))
	}
}

func TestProgressReporterForceBypassesThrottle(t *testing.T) {
	client := &scriptedClient{}
	reporter, _ := newTestReporter(client)

	if err := reporter.Publish(context.Background(), runningSnapshot(1), false); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := reporter.Publish(context.Background(), runningSnapshot(2), true); err != nil {
		t.Fatalf("forced publish failed: %v", err)
	}
	if len(client.edits()) != 2 {
		t.Fatalf("expected forced edit, got %d edits", len(client.edits()))
	}
}

func TestProgressReporterSkipsIdenticalText(t *testing.T) {
	client := &scriptedClient{}
	reporter, _ := newTestReporter(client)

	snap := runningSnapshot(1)
	if err := reporter.Publish(context.Background(), snap, true); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := reporter.Publish(context.Background(), snap, true); err != nil {
		t.Fatalf("repeat publish failed: %v", err)
	}
	if len(client.edits()) != 1 {
		t.Fatalf("identical text must not be re-edited, got %d edits", len(client.edits()))
	}
}

func TestProgressReporterTerminalAlwaysEdits(t *testing.T) {
	client := &scriptedClient{}
	reporter, _ := newTestReporter(client)

	if err := reporter.Publish(context.Background(), runningSnapshot(1), false); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	terminal := runningSnapshot(100)
	terminal.Status = StatusCompleted
	if err := reporter.Publish(context.Background(), terminal, false); err != nil {
		t.Fatalf("terminal publish failed: %v", err)
	}

	edits := client.edits()
	if len(edits) != 2 {
		t.Fatalf("terminal edit must bypass throttle, got %d edits", len(edits))
	}
	if !strings.Contains(edits[1], "转发完成") {
		t.Fatalf("expected completion summary, got %q", edits[1])
	}
}

func TestProgressReporterEditError(t *testing.T) {
	client := &scriptedClient{editErr: errors.New("message to edit not found")}
	reporter, _ := newTestReporter(client)

	if err := reporter.Publish(context.Background(), runningSnapshot(1), true); err == nil {
		t.Fatalf("expected edit error to propagate")
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want string
	}{
		{name: "empty", pct: 0, want: "◎◎◎◎◎◎◎◎◎◎"},
		{name: "half", pct: 50, want: "◉◉◉◉◉◎◎◎◎◎"},
		{name: "full", pct: 100, want: "◉◉◉◉◉◉◉◉◉◉"},
		{name: "over", pct: 150, want: "◉◉◉◉◉◉◉◉◉◉"},
		{name: "negative", pct: -5, want: "◎◎◎◎◎◎◎◎◎◎"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressBar(tt.pct); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "zero", d: 0, want: "0s"},
		{name: "seconds", d: 42 * time.Second, want: "42s"},
		{name: "minutes", d: 3*time.Minute + 7*time.Second, want: "3m07s"},
		{name: "hours", d: time.Hour + 2*time.Minute + 3*time.Second, want: "1h02m03s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDuration(tt.d); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
