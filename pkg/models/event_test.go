package models

import "testing"

func TestSeverityForScore(t *testing.T) {
	cases := []struct {
		score float64
		want  Severity
	}{
		{0.0, SeverityLow},
		{0.49, SeverityLow},
		{0.5, SeverityMedium},
		{0.69, SeverityMedium},
		{0.7, SeverityHigh},
		{1.0, SeverityHigh},
	}
	for _, tc := range cases {
		if got := SeverityForScore(tc.score); got != tc.want {
			t.Fatalf("SeverityForScore(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestEventPayload(t *testing.T) {
	ev := &Event{Message: "CMD: whoami", Command: "whoami", Input: "whoami"}
	if got := ev.Payload(); got != "CMD: whoami whoami" {
		t.Fatalf("Payload() = %q", got)
	}

	ev = &Event{Command: "ls -la", Input: "ls -la; id"}
	if got := ev.Payload(); got != "ls -la ls -la; id" {
		t.Fatalf("Payload() = %q", got)
	}

	ev = &Event{}
	if got := ev.Payload(); got != "" {
		t.Fatalf("Payload() = %q, want empty", got)
	}
}
