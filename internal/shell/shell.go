package shell

import (
	"context"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/meetsense/internal/utils"
)

type JoinResult struct {
	Success bool   `json:"success"`
	Handle  string `json:"handle,omitempty"`
}

type CloseResult struct {
	Success bool `json:"success"`
}

// Host opens and closes the meeting window.
type Host interface {
	Open(ctx context.Context, u *url.URL) (handle string, err error)
	Close(ctx context.Context, handle string) error
}

type Service interface {
	JoinMeeting(ctx context.Context, rawURL string) (JoinResult, error)
	CloseMeeting(ctx context.Context) CloseResult
}

type service struct {
	host Host
	log  *logrus.Logger

	mu     sync.Mutex
	handle string
}

func NewService(host Host, log *logrus.Logger) Service {
	if log == nil {
		log = logrus.New()
	}
	return &service{host: host, log: log}
}

func (s *service) JoinMeeting(ctx context.Context, rawURL string) (JoinResult, error) {
	const op = "ShellService.JoinMeeting"

	u, err := ValidateMeetingURL(rawURL)
	if err != nil {
		return JoinResult{Success: false}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != "" {
		return JoinResult{Success: false}, utils.E(utils.CodeConflict, op, "a meeting is already open", nil)
	}
	h, err := s.host.Open(ctx, u)
	if err != nil {
		return JoinResult{Success: false}, utils.E(utils.CodeUnavailable, op, "failed to open meeting", err)
	}
	s.handle = h
	s.log.WithFields(logrus.Fields{"handle": h, "host": u.Hostname()}).Info("meeting opened")
	return JoinResult{Success: true, Handle: h}, nil
}

func (s *service) CloseMeeting(ctx context.Context) CloseResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == "" {
		return CloseResult{Success: true}
	}
	if err := s.host.Close(ctx, s.handle); err != nil {
		s.log.WithError(err).WithField("handle", s.handle).Warn("close meeting failed")
		return CloseResult{Success: false}
	}
	s.handle = ""
	return CloseResult{Success: true}
}

// MemoryHost tracks open meetings without a window system.
type MemoryHost struct {
	mu   sync.Mutex
	open map[string]string
}

func NewMemoryHost() *MemoryHost { return &MemoryHost{open: map[string]string{}} }

func (m *MemoryHost) Open(_ context.Context, u *url.URL) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := uuid.NewString()
	m.open[h] = u.String()
	return h, nil
}

func (m *MemoryHost) Close(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[handle]; !ok {
		return utils.E(utils.CodeNotFound, "MemoryHost.Close", "unknown handle", nil)
	}
	delete(m.open, handle)
	return nil
}

func (m *MemoryHost) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}
