package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/services"
)

type OutlineHandler struct {
	outlines services.OutlineService
}

func NewOutlineHandler(outlines services.OutlineService) *OutlineHandler {
	return &OutlineHandler{outlines: outlines}
}

type importOutlineRequest struct {
	Topics []services.TopicInput `json:"topics" binding:"required,min=1,dive"`
}

// POST /api/files/:id/outline
func (h *OutlineHandler) Import(c *gin.Context) {
	user, fileID, err := userAndID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req importOutlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	topics, err := h.outlines.ImportOutline(c.Request.Context(), user, fileID, req.Topics)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"topics": topics})
}

// GET /api/files/:id/outline
func (h *OutlineHandler) Get(c *gin.Context) {
	user, fileID, err := userAndID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	topics, err := h.outlines.GetOutline(c.Request.Context(), user, fileID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"topics": topics})
}
