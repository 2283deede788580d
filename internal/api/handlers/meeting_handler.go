package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/meetsense/internal/shell"
	"github.com/yoockh/meetsense/internal/utils"
)

type MeetingHandler struct {
	shell shell.Service
}

func NewMeetingHandler(s shell.Service) *MeetingHandler {
	return &MeetingHandler{shell: s}
}

type JoinMeetingRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *MeetingHandler) Join(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req JoinMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "MeetingHandler.Join", "invalid request body", err))
		return
	}

	res, err := h.shell.JoinMeeting(c.Request.Context(), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *MeetingHandler) Close(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	c.JSON(http.StatusOK, h.shell.CloseMeeting(c.Request.Context()))
}
