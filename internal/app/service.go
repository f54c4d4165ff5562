package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"courier/api/internal/auth"
	"courier/api/internal/gate"
	"courier/api/internal/logging"
	"courier/api/internal/rbac"
	"courier/api/internal/store"
	"courier/api/internal/thread"
	"courier/api/internal/unread"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// Call identifies who is asking and from where.
type Call struct {
	Caller     *gate.Caller
	RemoteAddr string
}

type CreateUserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type SendMessageInput struct {
	ReceiverID string  `json:"receiverId"`
	Body       string  `json:"body"`
	ParentID   *string `json:"parentId"`
}

type dataStore interface {
	thread.Source
	unread.Store
	Ping(context.Context) error
	CreateUser(context.Context, store.User) (store.User, error)
	GetUser(context.Context, string) (store.User, error)
	CreateMessage(context.Context, store.NewMessage) (store.Message, error)
	GetMessage(context.Context, string) (store.Message, error)
	ListMessages(context.Context, string, store.MessageFilter) ([]store.Message, error)
	EditMessage(context.Context, string, string, string) (store.Message, error)
	DeleteMessage(context.Context, string) error
	DeleteUserData(context.Context, string) (store.Purge, error)
	ListHistory(context.Context, string) ([]store.MessageHistory, error)
	ListNotifications(context.Context, string, bool) ([]store.Notification, error)
	MarkNotificationsRead(context.Context, string, []string) (int64, error)
}

type Service struct {
	store    dataStore
	gate     *gate.Gate
	unread   *unread.Index
	threads  *thread.Assembler
	verifier *auth.Verifier
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithRetry bounds how idempotent operations are retried after transient
// storage failures.
func WithRetry(attempts int, backoff time.Duration) ServiceOption {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

func NewService(st dataStore, g *gate.Gate, verifier *auth.Verifier, opts ...ServiceOption) *Service {
	s := &Service{
		store:    st,
		gate:     g,
		unread:   unread.New(st),
		threads:  thread.NewAssembler(st),
		verifier: verifier,
		attempts: defaultRetryAttempts,
		backoff:  defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CallerFromToken verifies a bearer token. An empty or invalid token yields
// a nil caller, which the gate rejects once the time window has been checked.
func (s *Service) CallerFromToken(ctx context.Context, token string) *gate.Caller {
	if token == "" || s.verifier == nil {
		return nil
	}
	identity, err := s.verifier.Parse(token)
	if err != nil {
		s.logger.DebugContext(ctx, "bearer token rejected", "error", err)
		return nil
	}
	return &gate.Caller{ID: identity.UserID, Role: rbac.Normalize(identity.Role)}
}

func (s *Service) admit(ctx context.Context, call Call, op gate.Op) (gate.Caller, error) {
	admission, err := s.gate.Check(ctx, gate.Request{Op: op, Caller: call.Caller, RemoteAddr: call.RemoteAddr})
	if err != nil {
		return gate.Caller{}, toDomainError(err)
	}
	return admission.Caller, nil
}

// retry reruns fn while it fails with a transient storage error. Only
// idempotent operations go through here.
func (s *Service) retry(ctx context.Context, name string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = fn()
		if err == nil || !store.IsTransient(err) {
			return err
		}
		if attempt == s.attempts {
			break
		}
		s.logger.WarnContext(ctx, "retrying after transient storage error", "op", name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func isParticipant(msg store.Message, userID string) bool {
	return msg.SenderID == userID || msg.ReceiverID == userID
}

// counterpartOf returns the participant of msg that is not userID.
func counterpartOf(msg store.Message, userID string) string {
	if msg.SenderID == userID {
		return msg.ReceiverID
	}
	return msg.SenderID
}

func (s *Service) CreateUser(ctx context.Context, call Call, input CreateUserInput) (store.User, error) {
	if _, err := s.admit(ctx, call, gate.OpCreateUser); err != nil {
		return store.User{}, err
	}
	role := strings.TrimSpace(input.Role)
	if role != "" && rbac.Normalize(role) != rbac.Role(role) {
		return store.User{}, domainError(KindValidation, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown role %q", role), nil)
	}
	user, err := s.store.CreateUser(ctx, store.User{Username: input.Username, Email: strings.TrimSpace(input.Email), Role: role})
	if err != nil {
		return store.User{}, toDomainError(err)
	}
	return user, nil
}

// SendMessage creates a message from the caller. Creation is never retried.
// A message with a parent is a reply and follows the same participant rule as
// Reply; the receiver, if given, must be the parent's other participant.
func (s *Service) SendMessage(ctx context.Context, call Call, input SendMessageInput) (store.Message, error) {
	caller, err := s.admit(ctx, call, gate.OpSendMessage)
	if err != nil {
		return store.Message{}, err
	}
	receiverID := strings.TrimSpace(input.ReceiverID)
	if input.ParentID == nil {
		return s.create(ctx, store.NewMessage{SenderID: caller.ID, ReceiverID: receiverID, Body: input.Body})
	}

	parent, err := s.store.GetMessage(ctx, *input.ParentID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Message{}, domainError(KindValidation, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("parent message %s does not exist", *input.ParentID), nil)
	}
	if err != nil {
		return store.Message{}, toDomainError(err)
	}
	if !isParticipant(parent, caller.ID) {
		return store.Message{}, notParticipant()
	}
	counterpart := counterpartOf(parent, caller.ID)
	if receiverID != "" && receiverID != counterpart {
		return store.Message{}, domainError(KindValidation, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "receiver must be the other participant of the parent message", nil)
	}
	return s.create(ctx, store.NewMessage{SenderID: caller.ID, ReceiverID: counterpart, Body: input.Body, ParentID: &parent.ID})
}

// Reply answers parentID. The receiver is the parent's other participant.
func (s *Service) Reply(ctx context.Context, call Call, parentID, body string) (store.Message, error) {
	caller, err := s.admit(ctx, call, gate.OpReplyMessage)
	if err != nil {
		return store.Message{}, err
	}
	parent, err := s.store.GetMessage(ctx, parentID)
	if err != nil {
		return store.Message{}, toDomainError(err)
	}
	if !isParticipant(parent, caller.ID) {
		return store.Message{}, notParticipant()
	}
	return s.create(ctx, store.NewMessage{
		SenderID:   caller.ID,
		ReceiverID: counterpartOf(parent, caller.ID),
		Body:       body,
		ParentID:   &parent.ID,
	})
}

func (s *Service) create(ctx context.Context, in store.NewMessage) (store.Message, error) {
	msg, err := s.store.CreateMessage(ctx, in)
	if err != nil {
		return store.Message{}, toDomainError(err)
	}
	return msg, nil
}

func (s *Service) GetMessage(ctx context.Context, call Call, messageID string) (store.Message, error) {
	caller, err := s.admit(ctx, call, gate.OpViewMessage)
	if err != nil {
		return store.Message{}, err
	}
	return s.visibleMessage(ctx, caller, messageID)
}

// ListMessages lists the caller's own messages, sent or received, narrowed by
// filter.
func (s *Service) ListMessages(ctx context.Context, call Call, filter store.MessageFilter) ([]store.Message, error) {
	caller, err := s.admit(ctx, call, gate.OpListMessages)
	if err != nil {
		return nil, err
	}
	if filter.SentAfter != nil && filter.SentBefore != nil && filter.SentAfter.After(*filter.SentBefore) {
		return nil, domainError(KindValidation, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sent_after must not be later than sent_before", nil)
	}
	var items []store.Message
	err = s.retry(ctx, "list messages", func() error {
		var err error
		items, err = s.store.ListMessages(ctx, caller.ID, filter)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	return items, nil
}

func (s *Service) visibleMessage(ctx context.Context, caller gate.Caller, messageID string) (store.Message, error) {
	var msg store.Message
	err := s.retry(ctx, "get message", func() error {
		var err error
		msg, err = s.store.GetMessage(ctx, messageID)
		return err
	})
	if err != nil {
		return store.Message{}, toDomainError(err)
	}
	if !isParticipant(msg, caller.ID) && !rbac.Privileged(caller.Role) {
		return store.Message{}, notParticipant()
	}
	return msg, nil
}

// EditMessage is limited to the sender so that every history row is authored
// by one of the message's participants.
func (s *Service) EditMessage(ctx context.Context, call Call, messageID, body string) (store.Message, error) {
	caller, err := s.admit(ctx, call, gate.OpEditMessage)
	if err != nil {
		return store.Message{}, err
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return store.Message{}, toDomainError(err)
	}
	if msg.SenderID != caller.ID {
		return store.Message{}, domainError(KindPermission, http.StatusForbidden, "FORBIDDEN", "only the sender may edit a message", nil)
	}
	edited, err := s.store.EditMessage(ctx, messageID, body, caller.ID)
	if err != nil {
		return store.Message{}, toDomainError(err)
	}
	return edited, nil
}

func (s *Service) DeleteMessage(ctx context.Context, call Call, messageID string) error {
	caller, err := s.admit(ctx, call, gate.OpDeleteMessage)
	if err != nil {
		return err
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return toDomainError(err)
	}
	if msg.SenderID != caller.ID && !rbac.Privileged(caller.Role) {
		return domainError(KindPermission, http.StatusForbidden, "FORBIDDEN", "only the sender or a moderator may delete a message", nil)
	}
	return toDomainError(s.store.DeleteMessage(ctx, messageID))
}

func (s *Service) ListHistory(ctx context.Context, call Call, messageID string) ([]store.MessageHistory, error) {
	caller, err := s.admit(ctx, call, gate.OpViewHistory)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleMessage(ctx, caller, messageID); err != nil {
		return nil, err
	}
	var items []store.MessageHistory
	err = s.retry(ctx, "list history", func() error {
		var err error
		items, err = s.store.ListHistory(ctx, messageID)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	return items, nil
}

func (s *Service) Thread(ctx context.Context, call Call, rootID string) (*thread.Node, error) {
	caller, err := s.admit(ctx, call, gate.OpViewThread)
	if err != nil {
		return nil, err
	}
	var root *thread.Node
	err = s.retry(ctx, "assemble thread", func() error {
		var err error
		root, err = s.threads.AssembleThread(ctx, rootID)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	if !isParticipant(root.Message, caller.ID) && !rbac.Privileged(caller.Role) {
		return nil, notParticipant()
	}
	return root, nil
}

// Conversation returns every thread between the caller and otherID and marks
// what otherID sent as read.
func (s *Service) Conversation(ctx context.Context, call Call, otherID string) ([]*thread.Node, error) {
	caller, err := s.admit(ctx, call, gate.OpViewConversation)
	if err != nil {
		return nil, err
	}
	var roots []*thread.Node
	err = s.retry(ctx, "assemble conversation", func() error {
		if _, err := s.store.GetUser(ctx, otherID); err != nil {
			return err
		}
		var err error
		roots, err = s.threads.AssembleConversation(ctx, caller.ID, otherID)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	err = s.retry(ctx, "mark conversation read", func() error {
		_, err := s.unread.MarkConversationRead(ctx, caller.ID, otherID)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	return roots, nil
}

func (s *Service) CountUnread(ctx context.Context, call Call) (int, error) {
	caller, err := s.admit(ctx, call, gate.OpCountUnread)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.retry(ctx, "count unread", func() error {
		var err error
		count, err = s.unread.CountUnread(ctx, caller.ID)
		return err
	})
	return count, toDomainError(err)
}

func (s *Service) ListUnread(ctx context.Context, call Call) ([]store.UnreadMessage, error) {
	caller, err := s.admit(ctx, call, gate.OpListUnread)
	if err != nil {
		return nil, err
	}
	var items []store.UnreadMessage
	err = s.retry(ctx, "list unread", func() error {
		var err error
		items, err = s.unread.ListUnread(ctx, caller.ID)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	return items, nil
}

func (s *Service) MarkRead(ctx context.Context, call Call, messageIDs []string) (int, error) {
	caller, err := s.admit(ctx, call, gate.OpMarkRead)
	if err != nil {
		return 0, err
	}
	var changed int
	err = s.retry(ctx, "mark read", func() error {
		var err error
		changed, err = s.unread.MarkRead(ctx, caller.ID, messageIDs)
		return err
	})
	return changed, toDomainError(err)
}

func (s *Service) Inbox(ctx context.Context, call Call) ([]unread.Conversation, error) {
	caller, err := s.admit(ctx, call, gate.OpInbox)
	if err != nil {
		return nil, err
	}
	var items []unread.Conversation
	err = s.retry(ctx, "inbox", func() error {
		var err error
		items, err = s.unread.Inbox(ctx, caller.ID)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	return items, nil
}

func (s *Service) ListNotifications(ctx context.Context, call Call, unreadOnly bool) ([]store.Notification, error) {
	caller, err := s.admit(ctx, call, gate.OpListNotifications)
	if err != nil {
		return nil, err
	}
	var items []store.Notification
	err = s.retry(ctx, "list notifications", func() error {
		var err error
		items, err = s.store.ListNotifications(ctx, caller.ID, unreadOnly)
		return err
	})
	if err != nil {
		return nil, toDomainError(err)
	}
	return items, nil
}

func (s *Service) MarkNotificationsRead(ctx context.Context, call Call, ids []string) (int, error) {
	caller, err := s.admit(ctx, call, gate.OpMarkNotificationsRead)
	if err != nil {
		return 0, err
	}
	var changed int64
	err = s.retry(ctx, "mark notifications read", func() error {
		var err error
		changed, err = s.store.MarkNotificationsRead(ctx, caller.ID, ids)
		return err
	})
	return int(changed), toDomainError(err)
}

func (s *Service) DeleteUserData(ctx context.Context, call Call, userID string) (store.Purge, error) {
	caller, err := s.admit(ctx, call, gate.OpDeleteUserData)
	if err != nil {
		return store.Purge{}, err
	}
	var purge store.Purge
	err = s.retry(ctx, "delete user data", func() error {
		var err error
		purge, err = s.store.DeleteUserData(ctx, userID)
		return err
	})
	if err != nil {
		return store.Purge{}, toDomainError(err)
	}
	s.logger.InfoContext(ctx, "user data purged", "user_id", userID, "by", caller.ID)
	return purge, nil
}
