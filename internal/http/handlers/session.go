package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/services"
)

type SessionHandler struct {
	sessions services.SessionOrchestrator
}

func NewSessionHandler(sessions services.SessionOrchestrator) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type submitAnswerRequest struct {
	Ordinal *int   `json:"ordinal" binding:"required,min=0"`
	Answer  string `json:"answer" binding:"required"`
}

// POST /api/files/:id/session
func (h *SessionHandler) Start(c *gin.Context) {
	user, fileID, err := userAndID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := h.sessions.StartSession(c.Request.Context(), user, fileID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": view})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	h.sessionAction(c, h.sessions.GetSession)
}

// POST /api/sessions/:id/confirm
func (h *SessionHandler) Confirm(c *gin.Context) {
	h.sessionAction(c, h.sessions.ConfirmUnderstanding)
}

// POST /api/sessions/:id/pause
func (h *SessionHandler) Pause(c *gin.Context) {
	h.sessionAction(c, h.sessions.PauseSession)
}

// POST /api/sessions/:id/resume
func (h *SessionHandler) Resume(c *gin.Context) {
	h.sessionAction(c, h.sessions.ResumeSession)
}

func (h *SessionHandler) sessionAction(c *gin.Context, fn func(ctx context.Context, userID, sessionID uuid.UUID) (*services.SessionView, error)) {
	user, id, err := userAndID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := fn(c.Request.Context(), user, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": view})
}

// GET /api/sessions/:id/explanation
func (h *SessionHandler) Explanation(c *gin.Context) {
	user, id, err := userAndID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	out, err := h.sessions.GetExplanation(c.Request.Context(), user, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"explanation": out})
}

// GET /api/sessions/:id/questions
func (h *SessionHandler) Questions(c *gin.Context) {
	user, id, err := userAndID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	out, err := h.sessions.GetTestQuestions(c.Request.Context(), user, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"test": out})
}

// POST /api/sessions/:id/answers
func (h *SessionHandler) Answer(c *gin.Context) {
	user, id, err := userAndID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.sessions.SubmitAnswer(c.Request.Context(), user, id, *req.Ordinal, req.Answer)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}
