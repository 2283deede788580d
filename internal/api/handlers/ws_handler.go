package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/meetsense/internal/audio"
	"github.com/yoockh/meetsense/internal/cache"
	"github.com/yoockh/meetsense/internal/services"
	"github.com/yoockh/meetsense/internal/utils"
)

// Subscriber is satisfied by cache.RedisCache.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type WSHandler struct {
	sessions services.SessionService
	sub      Subscriber
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions services.SessionService, sub Subscriber, log *logrus.Logger) *WSHandler {
	if log == nil {
		log = logrus.New()
	}
	return &WSHandler{
		sessions: sessions,
		sub:      sub,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict to the extension origin once it has a fixed id
		},
	}
}

type wsSourceDesc struct {
	Kind      string `json:"kind"` // display|microphone
	MediaType string `json:"media_type"`
	HasAudio  bool   `json:"has_audio"`
}

type wsClientMsg struct {
	Type      string         `json:"type"` // start|leave
	SourceURL string         `json:"source_url"`
	Sources   []wsSourceDesc `json:"sources"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

func (w *wsConn) writeErr(err error) error {
	msg := APIError{Code: utils.CodeOf(err), Message: err.Error()}
	var ae *utils.AppError
	if errors.As(err, &ae) {
		msg.Message = ae.Message
	}
	return w.writeJSON(map[string]any{"type": "error", "code": msg.Code, "message": msg.Message})
}

// wsRun is the state of the one analysis a socket drives.
type wsRun struct {
	sessionID string
	active    *audio.ChannelSource
	stop      context.CancelFunc
	left      bool
}

// Analysis drives one capture session: a start message, binary audio
// frames, then leave. Live events published for the session are forwarded.
func (h *WSHandler) Analysis(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.log.WithField("user_id", userID)
	var run *wsRun

	defer func() {
		if run == nil {
			return
		}
		run.stop()
		if !run.left {
			// client went away without leaving; finalize so the session is not orphaned
			if _, err := h.sessions.Leave(context.Background(), run.sessionID); err != nil {
				log.WithError(err).WithField("session_id", run.sessionID).Warn("leave on disconnect failed")
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if mt == websocket.BinaryMessage {
			if run == nil || run.left {
				_ = wc.writeErr(utils.E(utils.CodeFailedPrecondition, "WSHandler.Analysis", "send start before audio", nil))
				continue
			}
			if !run.active.Push(data) {
				log.WithField("session_id", run.sessionID).Debug("audio frame dropped")
			}
			continue
		}

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = wc.writeErr(utils.E(utils.CodeInvalidArgument, "WSHandler.Analysis", "invalid json", err))
			continue
		}

		switch msg.Type {
		case "start":
			if run != nil && !run.left {
				_ = wc.writeErr(utils.E(utils.CodeConflict, "WSHandler.Analysis", "analysis already started on this socket", nil))
				continue
			}
			primary, fallback := buildSources(msg.Sources)
			active := fallback
			if primary.HasAudio() {
				active = primary
			}

			sess, err := h.sessions.StartAnalysis(ctx, userID, msg.SourceURL, primary, fallback)
			if err != nil {
				_ = wc.writeErr(err)
				continue
			}

			fctx, stop := context.WithCancel(ctx)
			run = &wsRun{sessionID: sess.SessionID, active: active, stop: stop}
			if h.sub != nil {
				pubsub, err := h.subscribe(fctx, sess.SessionID)
				if err != nil {
					log.WithError(err).WithField("session_id", sess.SessionID).Warn("live event subscription failed")
				} else {
					go h.forward(fctx, wc, pubsub)
				}
			}
			// the started reply doubles as the active status; nothing is published for it
			_ = wc.writeJSON(map[string]any{
				"type":       "started",
				"session_id": sess.SessionID,
				"status":     sess.Status,
				"source":     active.Kind(),
			})

		case "leave":
			if run == nil || run.left {
				_ = wc.writeJSON(map[string]any{"type": "status", "status": "idle"})
				continue
			}
			run.left = true
			ended, err := h.sessions.Leave(ctx, run.sessionID)
			run.stop()
			if err != nil {
				_ = wc.writeErr(err)
				continue
			}
			_ = wc.writeJSON(map[string]any{"type": "ended", "session": ended})

		default:
			_ = wc.writeErr(utils.E(utils.CodeInvalidArgument, "WSHandler.Analysis", "unknown message type", nil))
		}
	}
}

// subscribe returns once Redis has confirmed the subscription, so nothing
// published after the started reply is missed.
func (h *WSHandler) subscribe(ctx context.Context, sessionID string) (*redis.PubSub, error) {
	pubsub := h.sub.Subscribe(ctx,
		cache.TranscriptChannel(sessionID),
		cache.StatusChannel(sessionID),
		cache.BotChannel(sessionID),
	)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	return pubsub, nil
}

func (h *WSHandler) forward(ctx context.Context, wc *wsConn, pubsub *redis.PubSub) {
	defer pubsub.Close()

	for {
		m, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		// forward as-is (payload is JSON)
		if werr := wc.writeText([]byte(m.Payload)); werr != nil {
			return
		}
	}
}

// buildSources maps the client's track descriptors to the shared-screen
// source and the microphone fallback.
func buildSources(descs []wsSourceDesc) (primary, fallback *audio.ChannelSource) {
	for _, d := range descs {
		switch audio.Kind(d.Kind) {
		case audio.KindDisplay:
			primary = audio.NewChannelSource(audio.KindDisplay, d.MediaType, d.HasAudio, 64)
		case audio.KindMicrophone:
			fallback = audio.NewChannelSource(audio.KindMicrophone, d.MediaType, d.HasAudio, 64)
		}
	}
	if primary == nil {
		primary = audio.NewChannelSource(audio.KindDisplay, "", false, 1)
	}
	if fallback == nil {
		fallback = audio.NewChannelSource(audio.KindMicrophone, "", false, 1)
	}
	return primary, fallback
}
