package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/services"
)

type QuotaHandler struct {
	ledger services.QuotaLedger
}

func NewQuotaHandler(ledger services.QuotaLedger) *QuotaHandler {
	return &QuotaHandler{ledger: ledger}
}

// GET /api/quota
func (h *QuotaHandler) Status(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	status, err := h.ledger.Status(c.Request.Context(), user)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"quota": status})
}
