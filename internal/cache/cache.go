package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Publisher fans live session events out to subscribers (websocket clients).
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, val any) error
}

// Keys and channels are namespaced per session: session:<id>:<kind>.
func sessionKey(sessionID, kind string) string { return "session:" + sessionID + ":" + kind }

func TranscriptChannel(sessionID string) string { return sessionKey(sessionID, "transcript") }
func StatusChannel(sessionID string) string     { return sessionKey(sessionID, "status") }
func BotChannel(sessionID string) string        { return sessionKey(sessionID, "bot") }
func SummaryKey(sessionID string) string        { return sessionKey(sessionID, "summary") }
