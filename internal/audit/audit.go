// Package audit decides whether an edit produces a history entry.
//
// Diff is pure. The caller must run it between the read of the prior state
// and a write guarded by that state's version, inside one transaction, so two
// editors cannot both diff against the same stale body.
package audit

import "time"

// Snapshot is the committed state of a message at the moment it was read.
type Snapshot struct {
	MessageID string
	Body      string
	Version   int64
}

// Entry is a history row waiting to be written. Body is the prior body.
type Entry struct {
	MessageID    string
	Body         string
	EditorID     string
	EditedAt     time.Time
	PriorVersion int64
}

// Diff returns the history entry for replacing prior.Body with newBody. The
// second result is false when the bodies are equal, in which case nothing may
// be written.
func Diff(prior Snapshot, newBody, editorID string, at time.Time) (Entry, bool) {
	if prior.Body == newBody {
		return Entry{}, false
	}
	return Entry{
		MessageID:    prior.MessageID,
		Body:         prior.Body,
		EditorID:     editorID,
		EditedAt:     at,
		PriorVersion: prior.Version,
	}, true
}
