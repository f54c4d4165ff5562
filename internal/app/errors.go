package app

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"courier/api/internal/gate"
	"courier/api/internal/store"
)

type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNotFound        Kind = "NotFoundError"
	KindPermission      Kind = "PermissionError"
	KindUnauthenticated Kind = "Unauthenticated"
	KindRateLimited     Kind = "RateLimitExceeded"
	KindWindowClosed    Kind = "TimeWindowClosed"
	KindTransient       Kind = "TransientStorageError"
	KindInternal        Kind = "InternalError"
)

type DomainError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

func domainError(kind Kind, status int, code, message string, details any) *DomainError {
	return &DomainError{
		Kind:    kind,
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notParticipant() *DomainError {
	return domainError(KindPermission, http.StatusForbidden, "FORBIDDEN", "not a participant", nil)
}

// toDomainError maps store sentinels and gate denials onto the error
// taxonomy. Errors that are already domain errors pass through.
func toDomainError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var denial *gate.Denial
	if errors.As(err, &denial) {
		return fromDenial(denial)
	}

	var out *DomainError
	switch {
	case errors.Is(err, store.ErrValidation):
		out = domainError(KindValidation, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		out = domainError(KindNotFound, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case errors.Is(err, store.ErrForbidden):
		out = notParticipant()
	case errors.Is(err, store.ErrReferential):
		// a referenced user or message vanished mid-operation
		out = domainError(KindNotFound, http.StatusNotFound, "NOT_FOUND", "Referenced record no longer exists", nil)
	case store.IsTransient(err):
		out = domainError(KindTransient, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage temporarily unavailable, retry later", nil)
	default:
		out = domainError(KindInternal, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}
	out.cause = err
	return out
}

func fromDenial(d *gate.Denial) *DomainError {
	var out *DomainError
	switch d.Reason {
	case gate.ReasonWindowClosed:
		details := map[string]any{}
		if d.Window != nil {
			start, end := d.Window.Bounds()
			details["windowStart"] = start
			details["windowEnd"] = end
			details["timezone"] = d.Window.Location.String()
		}
		out = domainError(KindWindowClosed, http.StatusForbidden, "TIME_WINDOW_CLOSED", d.Message, details)
	case gate.ReasonUnauthenticated:
		out = domainError(KindUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	case gate.ReasonForbidden:
		out = domainError(KindPermission, http.StatusForbidden, "FORBIDDEN", d.Message, nil)
	case gate.ReasonRateLimited:
		out = domainError(KindRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", d.Message, map[string]any{
			"retryAfterSeconds": retryAfterSeconds(d),
		})
	default:
		out = domainError(KindPermission, http.StatusForbidden, "FORBIDDEN", d.Message, nil)
	}
	out.cause = d
	return out
}

// retryAfterSeconds rounds up so a client never retries early.
func retryAfterSeconds(d *gate.Denial) int {
	seconds := int(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
