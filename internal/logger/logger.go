package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New is the service logger: JSON to stdout, level from LOG_LEVEL.
func New() *logrus.Logger {
	return NewWith(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// NewWith builds a logger for w. format "text" is meant for terminals, anything
// else logs JSON. Unknown levels mean info.
func NewWith(w io.Writer, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)

	if strings.EqualFold(strings.TrimSpace(format), "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableQuote: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil || level == "" {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}
