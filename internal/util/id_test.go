package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("msg")
	if !strings.HasPrefix(id, "msg_") {
		t.Fatalf("NewID(msg) = %q, want msg_ prefix", id)
	}
	if NewID("msg") == id {
		t.Fatal("expected distinct ids")
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("unprefixed id should not contain a separator")
	}
}
