package domain

import (
	"strings"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"pending", StatusPending},
		{"running", StatusRunning},
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"cancelled", StatusCancelled},
		{"queued_for_gpu", StatusRunning}, // unknown -> running
		{"", StatusRunning},
	}

	for _, tt := range tests {
		if got := ParseStatus(tt.in); got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusInterrupted, true},
		{StatusRunning, StatusPending, false},
		{StatusInterrupted, StatusRunning, true},
		{StatusInterrupted, StatusCompleted, true},
		{StatusFailed, StatusRunning, true}, // re-poll after transport failure
		{StatusCancelled, StatusRunning, true},
		{StatusCompleted, StatusRunning, false}, // completed is immutable
		{StatusCompleted, StatusFailed, false},
		{StatusRunning, StatusRunning, true}, // self-transition
	}

	for _, tt := range tests {
		got, err := Transition(tt.from, tt.to)
		if tt.ok {
			if err != nil {
				t.Errorf("Transition(%s, %s) unexpected error: %v", tt.from, tt.to, err)
			} else if got != tt.to {
				t.Errorf("Transition(%s, %s) = %s", tt.from, tt.to, got)
			}
		} else {
			if err == nil {
				t.Errorf("Transition(%s, %s) should be rejected", tt.from, tt.to)
			}
			if got != tt.from {
				t.Errorf("rejected transition should keep %s, got %s", tt.from, got)
			}
		}
	}
}

func TestNewRevision(t *testing.T) {
	run := NewRun("original prompt")
	run.JobID = "job-1"
	run.Inputs = &RunInputs{
		Topic:       "Quantum error correction",
		Constraints: Constraints{Timeframe: "2020-2024"},
	}

	rev := run.NewRevision("more detail please", "revision prompt")

	if rev.RunID != run.RunID {
		t.Errorf("RunID = %q, want %q", rev.RunID, run.RunID)
	}
	if rev.Version != 2 {
		t.Errorf("Version = %d, want 2", rev.Version)
	}
	if rev.PreviousJobID != "job-1" {
		t.Errorf("PreviousJobID = %q, want job-1", rev.PreviousJobID)
	}
	if rev.Inputs != run.Inputs {
		t.Error("Inputs not carried forward to revision")
	}
	if rev.HasReport {
		t.Error("revision should start without a report")
	}
}

func TestRun_Topic(t *testing.T) {
	run := NewRun(strings.Repeat("x", 200))
	if got := run.Topic(); len(got) != 100 {
		t.Errorf("Topic() length = %d, want 100", len(got))
	}

	run.Inputs = &RunInputs{Topic: "Grid storage"}
	if got := run.Topic(); got != "Grid storage" {
		t.Errorf("Topic() = %q, want inputs topic", got)
	}
}

func TestUsage_Cost(t *testing.T) {
	u := Usage{InputTokens: 1_000_000, OutputTokens: 500_000, TotalTokens: 1_500_000}
	want := 2.0 + 6.0
	if got := u.Cost(); got != want {
		t.Errorf("Cost() = %f, want %f", got, want)
	}
}

func TestParseFocusAreas(t *testing.T) {
	got := ParseFocusAreas(" economics, policy ,,technology ")
	if len(got) != 3 || got[0] != "economics" || got[1] != "policy" || got[2] != "technology" {
		t.Errorf("ParseFocusAreas = %v", got)
	}
	if ParseFocusAreas("") != nil {
		t.Error("empty input should yield nil")
	}
}
