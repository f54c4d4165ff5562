package store

import "time"

type User struct {
	ID        string
	Username  string
	Email     string
	Role      string
	CreatedAt time.Time
}

type Message struct {
	ID          string
	SenderID    string
	ReceiverID  string
	Body        string
	CreatedAt   time.Time
	IsRead      bool
	IsEdited    bool
	LastEdited  *time.Time
	ParentID    *string
	ThreadDepth int
	Version     int64
}

// NewMessage is the input to CreateMessage. ParentID is nil for a root message.
type NewMessage struct {
	SenderID   string
	ReceiverID string
	Body       string
	ParentID   *string
}

// MessageFilter narrows ListMessages. Zero fields do not filter. Sender
// matches a username case-insensitively; the time bounds are inclusive.
type MessageFilter struct {
	Sender         string
	CounterpartyID string
	SentAfter      *time.Time
	SentBefore     *time.Time
}

// MessageHistory captures one prior version of a message body.
type MessageHistory struct {
	ID        string
	MessageID string
	Body      string
	EditorID  string
	EditedAt  time.Time
}

type Notification struct {
	ID          string
	RecipientID string
	MessageID   string
	IsRead      bool
	CreatedAt   time.Time
}

// SenderSummary is the minimal sender descriptor carried by unread rows.
type SenderSummary struct {
	ID       string
	Username string
	Email    string
}

// UnreadMessage is the unread projection: only the columns an inbox needs,
// never the full row.
type UnreadMessage struct {
	ID        string
	Body      string
	CreatedAt time.Time
	IsRead    bool
	IsEdited  bool
	Sender    SenderSummary
}

// LatestMessage is the newest message exchanged with one counterparty.
type LatestMessage struct {
	CounterpartyID string
	Message        Message
}

// Purge reports what DeleteUserData removed.
type Purge struct {
	Messages      int64
	History       int64
	Notifications int64
	Users         int64
}
