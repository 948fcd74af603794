package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
)

// Both failure types match errs.ErrExternalGenerationFailed, so callers map a
// provider failure onto the service taxonomy with errors.Is alone.

// ErrInvalidResponse: the model answered but the payload failed decoding or its schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return "llm: rejected payload: " + causeText(e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

func (e *ErrInvalidResponse) Is(target error) bool {
	return target == errs.ErrExternalGenerationFailed
}

// ErrProviderUnavailable covers transport failures and error statuses from the
// provider API. StatusCode is 0 when no HTTP response was received.
type ErrProviderUnavailable struct {
	Provider   string
	StatusCode int
	// RetryAfter is the server's requested wait on a 429, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *ErrProviderUnavailable) Error() string {
	var b strings.Builder
	b.WriteString("llm: ")
	if e.Provider != "" {
		b.WriteString(e.Provider + " ")
	}
	b.WriteString("unavailable")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

func (e *ErrProviderUnavailable) Is(target error) bool {
	return target == errs.ErrExternalGenerationFailed
}

func (e *ErrProviderUnavailable) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// unavailable builds the provider failure, reading Retry-After from resp on a 429.
func unavailable(provider string, status int, resp *http.Response, err error) *ErrProviderUnavailable {
	out := &ErrProviderUnavailable{Provider: provider, StatusCode: status, Err: err}
	if status == http.StatusTooManyRequests && resp != nil {
		if secs, perr := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); perr == nil && secs > 0 {
			out.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return out
}

func causeText(err error) string {
	if err == nil {
		return "unknown cause"
	}
	return err.Error()
}
