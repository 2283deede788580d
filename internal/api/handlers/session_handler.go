package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/meetsense/internal/export"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/services"
	"github.com/yoockh/meetsense/internal/utils"
)

type SessionHandler struct {
	svc     services.SessionService
	buffers services.BufferService
}

func NewSessionHandler(svc services.SessionService, buffers services.BufferService) *SessionHandler {
	return &SessionHandler{svc: svc, buffers: buffers}
}

type BindSpeakerRequest struct {
	SpeakerIndex  *int   `json:"speaker_index" binding:"required"`
	DisplayName   string `json:"display_name" binding:"required"`
	ParticipantID string `json:"participant_id"`
}

type BindSpeakerResponse struct {
	SpeakerIndex  int    `json:"speaker_index"`
	ParticipantID string `json:"participant_id"`
}

type ExportRequest struct {
	Format            string `json:"format" binding:"required"` // structured|tabular|spreadsheet
	IncludeTranscript bool   `json:"include_transcript"`
	IncludeSentiment  bool   `json:"include_sentiment"`
	IncludeWordTiming bool   `json:"include_word_timing"`
}

// load fetches the session and checks the caller may see it.
func (h *SessionHandler) load(c *gin.Context, op string) (*models.MeetingSession, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, false
	}
	sess, err := h.svc.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !canAccess(c, sess, userID, op) {
		return nil, false
	}
	return sess, true
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.load(c, "SessionHandler.Get")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)

	out, err := h.svc.ListByOwner(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *SessionHandler) Summary(c *gin.Context) {
	sess, ok := h.load(c, "SessionHandler.Summary")
	if !ok {
		return
	}
	sum, err := h.svc.Summary(c.Request.Context(), sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *SessionHandler) BindSpeaker(c *gin.Context) {
	const op = "SessionHandler.BindSpeaker"

	sess, ok := h.load(c, op)
	if !ok {
		return
	}

	var req BindSpeakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	pid, err := h.svc.BindSpeaker(c.Request.Context(), sess.SessionID, *req.SpeakerIndex, req.ParticipantID, req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, BindSpeakerResponse{SpeakerIndex: *req.SpeakerIndex, ParticipantID: pid})
}

func (h *SessionHandler) Depart(c *gin.Context) {
	sess, ok := h.load(c, "SessionHandler.Depart")
	if !ok {
		return
	}
	if err := h.svc.Depart(c.Request.Context(), sess.SessionID, c.Param("participant_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Leave(c *gin.Context) {
	sess, ok := h.load(c, "SessionHandler.Leave")
	if !ok {
		return
	}
	ended, err := h.svc.Leave(c.Request.Context(), sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ended)
}

func (h *SessionHandler) Export(c *gin.Context) {
	const op = "SessionHandler.Export"

	sess, ok := h.load(c, op)
	if !ok {
		return
	}

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	rep, err := h.svc.Export(c.Request.Context(), sess.SessionID, models.ExportOptions{
		Format:            export.ParseFormat(req.Format),
		IncludeTranscript: req.IncludeTranscript,
		IncludeSentiment:  req.IncludeSentiment,
		IncludeWordTiming: req.IncludeWordTiming,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename))
	if rep.StoredPath != "" {
		c.Header("X-Report-Location", rep.StoredPath)
	}
	if rep.DownloadURL != "" {
		c.Header("X-Report-URL", rep.DownloadURL)
	}
	c.Data(http.StatusOK, rep.MIMEType, rep.Data)
}

func (h *SessionHandler) Buffered(c *gin.Context) {
	const op = "SessionHandler.Buffered"

	if h.buffers == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "audio buffer is not configured", nil))
		return
	}
	sess, ok := h.load(c, op)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)

	out, err := h.buffers.Pending(c.Request.Context(), sess.SessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.SessionID, "pending": out})
}
