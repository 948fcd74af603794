package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound: a session, topic or question reference does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrQuotaExceeded: a reservation was denied for the current cycle.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrStateConflict: the action is not valid in the session's current status/phase.
	ErrStateConflict = errors.New("state conflict")
	// ErrExternalGenerationFailed: the AI collaborator failed, timed out or returned a malformed payload.
	ErrExternalGenerationFailed = errors.New("external generation failed")
	// ErrTransientStore wraps persistence failures.
	ErrTransientStore = errors.New("transient store failure")
)

// QuotaExceededError carries the account snapshot that caused the denial.
type QuotaExceededError struct {
	Bucket  string
	Used    int
	Limit   int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: bucket=%s used=%d limit=%d reset_at=%s",
		e.Bucket, e.Used, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// Conflict builds a StateConflict error with a reason.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

// NotFound builds a NotFound error naming the missing reference.
func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// Generation wraps an AI collaborator failure.
func Generation(err error) error {
	if err == nil || errors.Is(err, ErrExternalGenerationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrExternalGenerationFailed, err)
}

// Store wraps a persistence error unless it already belongs to the taxonomy.
func Store(err error) error {
	if err == nil || Classified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}

// Classified reports whether err already maps onto one of the sentinels above.
func Classified(err error) bool {
	for _, s := range []error{ErrNotFound, ErrInvalidArgument, ErrQuotaExceeded, ErrStateConflict, ErrExternalGenerationFailed, ErrTransientStore} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// Retryable reports whether repeating the operation that produced err can succeed.
// Postgres errors are judged by SQLSTATE: serialization failures, deadlocks, lock
// timeouts and connection loss retry; constraint and syntax errors do not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStateConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03":
			return true
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return true
		default:
			return false
		}
	}
	return errors.Is(err, ErrTransientStore)
}
