package audit

import (
	"testing"
	"time"
)

func TestDiffCapturesPriorBody(t *testing.T) {
	at := time.Date(2026, 1, 2, 18, 30, 0, 0, time.UTC)
	entry, changed := Diff(Snapshot{MessageID: "msg_1", Body: "hello", Version: 3}, "hello there", "usr_1", at)
	if !changed {
		t.Fatal("expected a history entry for a changed body")
	}
	if entry.Body != "hello" {
		t.Fatalf("entry body = %q, want prior body %q", entry.Body, "hello")
	}
	if entry.MessageID != "msg_1" || entry.EditorID != "usr_1" || !entry.EditedAt.Equal(at) || entry.PriorVersion != 3 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestDiffUnchangedBodyProducesNothing(t *testing.T) {
	entry, changed := Diff(Snapshot{MessageID: "msg_1", Body: "same"}, "same", "usr_1", time.Now())
	if changed {
		t.Fatalf("expected no entry, got %+v", entry)
	}
}

func TestDiffIsExactComparison(t *testing.T) {
	cases := []struct {
		name    string
		prior   string
		next    string
		changed bool
	}{
		{name: "trailing space", prior: "hi", next: "hi ", changed: true},
		{name: "case", prior: "hi", next: "Hi", changed: true},
		{name: "identical", prior: "hi", next: "hi", changed: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, changed := Diff(Snapshot{Body: tc.prior}, tc.next, "usr_1", time.Now()); changed != tc.changed {
				t.Fatalf("Diff(%q, %q) changed = %v, want %v", tc.prior, tc.next, changed, tc.changed)
			}
		})
	}
}
