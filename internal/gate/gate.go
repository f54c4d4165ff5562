// Package gate admits or rejects inbound operations. Every request passes the
// daily time window, then the role check, then (for message creation) the
// per-origin rate limit. The first failing stage ends the check.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courier/api/internal/logging"
	"courier/api/internal/metrics"
	"courier/api/internal/rbac"
)

type Op string

const (
	OpCreateUser            Op = "user.create"
	OpDeleteUserData        Op = "user.purge"
	OpSendMessage           Op = "message.send"
	OpReplyMessage          Op = "message.reply"
	OpEditMessage           Op = "message.edit"
	OpDeleteMessage         Op = "message.delete"
	OpViewMessage           Op = "message.view"
	OpListMessages          Op = "message.list"
	OpViewHistory           Op = "message.history"
	OpViewThread            Op = "thread.view"
	OpViewConversation      Op = "conversation.view"
	OpCountUnread           Op = "unread.count"
	OpListUnread            Op = "unread.list"
	OpMarkRead              Op = "unread.mark"
	OpInbox                 Op = "inbox.view"
	OpListNotifications     Op = "notifications.list"
	OpMarkNotificationsRead Op = "notifications.mark"
)

type opRule struct {
	action      rbac.Action
	rateLimited bool
}

var opRules = map[Op]opRule{
	OpCreateUser:            {action: rbac.ActionModerate},
	OpDeleteUserData:        {action: rbac.ActionModerate},
	OpSendMessage:           {action: rbac.ActionWrite, rateLimited: true},
	OpReplyMessage:          {action: rbac.ActionWrite, rateLimited: true},
	OpEditMessage:           {action: rbac.ActionWrite},
	OpDeleteMessage:         {action: rbac.ActionWrite},
	OpViewMessage:           {action: rbac.ActionRead},
	OpListMessages:          {action: rbac.ActionRead},
	OpViewHistory:           {action: rbac.ActionRead},
	OpViewThread:            {action: rbac.ActionRead},
	OpViewConversation:      {action: rbac.ActionRead},
	OpCountUnread:           {action: rbac.ActionRead},
	OpListUnread:            {action: rbac.ActionRead},
	OpMarkRead:              {action: rbac.ActionWrite},
	OpInbox:                 {action: rbac.ActionRead},
	OpListNotifications:     {action: rbac.ActionRead},
	OpMarkNotificationsRead: {action: rbac.ActionWrite},
}

// RateLimited reports whether op counts against the per-origin message quota.
func (op Op) RateLimited() bool {
	return opRules[op].rateLimited
}

type Caller struct {
	ID   string
	Role rbac.Role
}

type Request struct {
	Op         Op
	Caller     *Caller
	RemoteAddr string
}

// Admission is what a passing request carries forward.
type Admission struct {
	Op     Op
	Caller Caller
	At     time.Time
}

type Reason string

const (
	ReasonWindowClosed    Reason = "window_closed"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
	ReasonRateLimited     Reason = "rate_limited"
)

// Denial is returned by Check when a stage rejects the request.
type Denial struct {
	Reason     Reason
	Op         Op
	RetryAfter time.Duration
	Window     *TimeWindow
	Message    string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("gate: %s: %s", d.Reason, d.Message)
}

type Gate struct {
	window  *TimeWindow
	limiter Limiter
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Gate)

// WithWindow sets the daily window. A nil window disables the time check.
func WithWindow(w *TimeWindow) Option {
	return func(g *Gate) { g.window = w }
}

func WithLimiter(l Limiter) Option {
	return func(g *Gate) { g.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func New(opts ...Option) *Gate {
	g := &Gate{
		window: DefaultWindow(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.limiter == nil {
		g.limiter = NewMemoryLimiter(DefaultRateLimit, DefaultRateWindow)
	}
	g.logger = logging.OrDiscard(g.logger)
	return g
}

// Check runs req through every stage. A rejection is a *Denial; any other
// error means the limiter backend failed and the request was not admitted.
func (g *Gate) Check(ctx context.Context, req Request) (Admission, error) {
	now := g.now()

	if g.window != nil && !g.window.Contains(now) {
		return Admission{}, g.deny(ctx, req, &Denial{
			Reason:  ReasonWindowClosed,
			Window:  g.window,
			Message: fmt.Sprintf("access is only allowed between %s", g.window),
		})
	}

	if req.Caller == nil || req.Caller.ID == "" {
		return Admission{}, g.deny(ctx, req, &Denial{Reason: ReasonUnauthenticated, Message: "authentication required"})
	}
	rule, known := opRules[req.Op]
	if !known || !rbac.Can(req.Caller.Role, rule.action) {
		return Admission{}, g.deny(ctx, req, &Denial{
			Reason:  ReasonForbidden,
			Message: fmt.Sprintf("role %q may not perform %s", req.Caller.Role, req.Op),
		})
	}

	if rule.rateLimited {
		key := req.RemoteAddr
		if key == "" {
			key = "caller:" + req.Caller.ID
		}
		decision, err := g.limiter.Allow(ctx, key, now)
		if err != nil {
			return Admission{}, fmt.Errorf("rate limit %s: %w", key, err)
		}
		if !decision.Allowed {
			return Admission{}, g.deny(ctx, req, &Denial{
				Reason:     ReasonRateLimited,
				RetryAfter: decision.RetryAfter,
				Message:    "message rate limit exceeded",
			})
		}
	}

	return Admission{Op: req.Op, Caller: *req.Caller, At: now}, nil
}

func (g *Gate) deny(ctx context.Context, req Request, d *Denial) *Denial {
	d.Op = req.Op
	g.metrics.GateDenied(string(d.Reason))
	attrs := []any{"op", req.Op, "reason", d.Reason, "remote_addr", req.RemoteAddr}
	if req.Caller != nil {
		attrs = append(attrs, "caller_id", req.Caller.ID)
	}
	if d.RetryAfter > 0 {
		attrs = append(attrs, "retry_after", d.RetryAfter)
	}
	g.logger.WarnContext(ctx, "request denied", attrs...)
	return d
}
