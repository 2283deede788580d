package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWith(&buf, "warn", "")

	l.Info("hidden")
	l.WithField("session_id", "s-1").Warn("degraded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "degraded", line["msg"])
	assert.Equal(t, "s-1", line["session_id"])
	assert.Equal(t, "warning", line["level"])
}

func TestNewWithLevels(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, NewWith(&bytes.Buffer{}, "", "").Level)
	assert.Equal(t, logrus.InfoLevel, NewWith(&bytes.Buffer{}, "loud", "").Level)
	assert.Equal(t, logrus.DebugLevel, NewWith(&bytes.Buffer{}, "DEBUG", "").Level)
	assert.IsType(t, &logrus.TextFormatter{}, NewWith(&bytes.Buffer{}, "", "text").Formatter)
}
