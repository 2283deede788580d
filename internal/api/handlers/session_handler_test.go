package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/meetsense/internal/audio"
	"github.com/yoockh/meetsense/internal/export"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/shell"
	"github.com/yoockh/meetsense/internal/utils"
)

type stubSessions struct {
	sess     *models.MeetingSession
	live     *models.MeetingSession
	left     atomic.Int32
	exported models.ExportOptions
	bound    []int
}

func (s *stubSessions) StartAnalysis(context.Context, string, string, audio.Source, audio.Source) (*models.MeetingSession, error) {
	if s.live == nil {
		return nil, utils.E(utils.CodeUnavailable, "stub", "not used", nil)
	}
	return s.live, nil
}

func (s *stubSessions) BindSpeaker(_ context.Context, _ string, idx int, pid, _ string) (string, error) {
	s.bound = append(s.bound, idx)
	if pid == "" {
		pid = "generated"
	}
	return pid, nil
}

func (s *stubSessions) Depart(context.Context, string, string) error { return nil }

func (s *stubSessions) Leave(context.Context, string) (*models.MeetingSession, error) {
	s.left.Add(1)
	return s.sess, nil
}

func (s *stubSessions) Get(_ context.Context, id string) (*models.MeetingSession, error) {
	if s.sess == nil || s.sess.SessionID != id {
		return nil, utils.E(utils.CodeNotFound, "stub", "session not found", nil)
	}
	return s.sess, nil
}

func (s *stubSessions) Summary(context.Context, string) (*models.SessionSummary, error) {
	return &models.SessionSummary{ParticipantCount: len(s.sess.Participants)}, nil
}

func (s *stubSessions) Export(_ context.Context, _ string, opts models.ExportOptions) (*models.Report, error) {
	s.exported = opts
	return export.Encode(s.sess, opts, s.sess.EndedAt.Add(time.Minute))
}

func (s *stubSessions) ListByOwner(context.Context, string, int64) ([]models.MeetingSession, error) {
	return []models.MeetingSession{*s.sess}, nil
}

func endedSession() *models.MeetingSession {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	return &models.MeetingSession{
		SessionID: "s-1",
		OwnerID:   "owner",
		Status:    models.SessionEnded,
		StartedAt: start,
		EndedAt:   &end,
		Participants: map[string]*models.ParticipantRecord{
			"p1": {ParticipantID: "p1", DisplayName: "Ana", JoinedAt: start, LeftAt: &end},
		},
	}
}

func newRouter(userID, role string, sessions *stubSessions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
			c.Set("role", role)
		}
		c.Next()
	})

	h := NewSessionHandler(sessions, nil)
	r.GET("/session/:session_id", h.Get)
	r.POST("/session/:session_id/speakers", h.BindSpeaker)
	r.POST("/session/:session_id/export", h.Export)
	r.GET("/session/:session_id/buffer", h.Buffered)

	m := NewMeetingHandler(shell.NewService(shell.NewMemoryHost(), nil))
	r.POST("/meeting/join", m.Join)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExportWritesAttachment(t *testing.T) {
	stub := &stubSessions{sess: endedSession()}
	r := newRouter("owner", "host", stub)

	w := do(r, http.MethodPost, "/session/s-1/export", `{"format":"TABULAR","include_sentiment":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, export.MIMETabular, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="meeting-s-1-2026-05-04.csv"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\ufeff"))
	assert.Contains(t, w.Body.String(), `"Ana"`)
	assert.Equal(t, models.FormatTabular, stub.exported.Format)
	assert.True(t, stub.exported.IncludeSentiment)
}

func TestExportSpreadsheetNotImplemented(t *testing.T) {
	r := newRouter("owner", "host", &stubSessions{sess: endedSession()})

	w := do(r, http.MethodPost, "/session/s-1/export", `{"format":"spreadsheet"}`)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	var body APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, utils.CodeUnsupportedExportFormat, body.Code)
}

func TestSessionAccess(t *testing.T) {
	stub := &stubSessions{sess: endedSession()}

	assert.Equal(t, http.StatusUnauthorized, do(newRouter("", "", stub), http.MethodGet, "/session/s-1", "").Code)
	assert.Equal(t, http.StatusForbidden, do(newRouter("other", "host", stub), http.MethodGet, "/session/s-1", "").Code)
	assert.Equal(t, http.StatusOK, do(newRouter("other", "admin", stub), http.MethodGet, "/session/s-1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(newRouter("owner", "host", stub), http.MethodGet, "/session/nope", "").Code)
}

func TestBindSpeakerValidation(t *testing.T) {
	stub := &stubSessions{sess: endedSession()}
	r := newRouter("owner", "host", stub)

	w := do(r, http.MethodPost, "/session/s-1/speakers", `{"display_name":"Bo"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/session/s-1/speakers", `{"speaker_index":0,"display_name":"Bo"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp BindSpeakerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.SpeakerIndex)
	assert.Equal(t, "generated", resp.ParticipantID)
	assert.Equal(t, []int{0}, stub.bound)
}

func TestBufferedWithoutStore(t *testing.T) {
	r := newRouter("owner", "host", &stubSessions{sess: endedSession()})
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/session/s-1/buffer", "").Code)
}

func TestJoinMeetingRejectsUnknownHost(t *testing.T) {
	r := newRouter("owner", "host", &stubSessions{sess: endedSession()})

	w := do(r, http.MethodPost, "/meeting/join", `{"url":"https://evil.example.com/j/1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/meeting/join", `{"url":"https://zoom.us/j/123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res shell.JoinResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Handle)
}

func TestBuildSourcesPrefersDisplayAudio(t *testing.T) {
	p, f := buildSources([]wsSourceDesc{
		{Kind: "microphone", MediaType: "audio/webm", HasAudio: true},
	})
	assert.False(t, p.HasAudio())
	assert.True(t, f.HasAudio())
	assert.Equal(t, audio.KindMicrophone, f.Kind())
}
