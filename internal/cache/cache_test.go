package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeys(t *testing.T) {
	assert.Equal(t, "session:abc:transcript", TranscriptChannel("abc"))
	assert.Equal(t, "session:abc:status", StatusChannel("abc"))
	assert.Equal(t, "session:abc:bot", BotChannel("abc"))
	assert.Equal(t, "session:abc:summary", SummaryKey("abc"))
}

func TestMemoryCacheAndPublisher(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got map[string]int
	hit, err := m.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, m.SetJSON(ctx, "k", map[string]int{"n": 2}, time.Minute))
	hit, err = m.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, got["n"])

	require.NoError(t, m.Del(ctx, "k"))
	hit, _ = m.GetJSON(ctx, "k", &got)
	assert.False(t, hit)

	require.NoError(t, m.PublishJSON(ctx, StatusChannel("s"), map[string]string{"status": "active"}))
	require.NoError(t, m.PublishJSON(ctx, BotChannel("s"), map[string]string{"text": "hi"}))

	msgs := m.Messages(StatusChannel("s"))
	require.Len(t, msgs, 1)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "active", payload["status"])
}
