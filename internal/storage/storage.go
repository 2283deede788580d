package storage

import (
	"context"
	"io"
	"path"
	"time"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// ReportObject is where an exported report for a session is archived.
func ReportObject(sessionID, filename string) string {
	return path.Join("reports", sessionID, filename)
}
