package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessageCreated()
	m.MessageEdited("changed")
	m.MessageEdited("unchanged")
	m.MarkedRead(3)
	m.MarkedRead(0)
	m.GateDenied("rate_limited")

	if got := testutil.ToFloat64(m.messagesCreated); got != 1 {
		t.Fatalf("messages created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.edits.WithLabelValues("changed")); got != 1 {
		t.Fatalf("changed edits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.markedRead); got != 3 {
		t.Fatalf("marked read = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.gateDenials.WithLabelValues("rate_limited")); got != 1 {
		t.Fatalf("rate limited denials = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageCreated()
	m.MessageEdited("changed")
	m.NotificationEmitted()
	m.MarkedRead(1)
	m.UserPurged()
	m.GateDenied("forbidden")
}
