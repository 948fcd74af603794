package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/services"
)

type ExplainHandler struct {
	explain services.ExplainService
}

func NewExplainHandler(explain services.ExplainService) *ExplainHandler {
	return &ExplainHandler{explain: explain}
}

type explainRequest struct {
	Text    string `json:"text" binding:"required"`
	Context string `json:"context"`
}

// POST /api/explain
func (h *ExplainHandler) Explain(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.explain.Explain(c.Request.Context(), user, req.Text, req.Context)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}
