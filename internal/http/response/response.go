package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/apierr"
)

type APIError struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr maps a service error onto its status and code. Quota denials
// carry the account snapshot so clients can show when the quota resets.
func RespondErr(c *gin.Context, err error) {
	ae := apierr.FromError(err)
	env := ErrorEnvelope{Error: APIError{Message: ae.Error(), Code: ae.Code}}
	var qe *errs.QuotaExceededError
	if errors.As(err, &qe) {
		env.Error.Details = map[string]any{
			"bucket":   qe.Bucket,
			"used":     qe.Used,
			"limit":    qe.Limit,
			"reset_at": qe.ResetAt.UTC(),
		}
	}
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(ae.Status, env)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
