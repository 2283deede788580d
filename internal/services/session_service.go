package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/audio"
	"github.com/yoockh/meetsense/internal/bot"
	"github.com/yoockh/meetsense/internal/cache"
	"github.com/yoockh/meetsense/internal/export"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/providers/stt"
	mongorepo "github.com/yoockh/meetsense/internal/repositories/mongo"
	pgrepo "github.com/yoockh/meetsense/internal/repositories/postgres"
	"github.com/yoockh/meetsense/internal/shell"
	"github.com/yoockh/meetsense/internal/storage"
	"github.com/yoockh/meetsense/internal/transcript"
	"github.com/yoockh/meetsense/internal/utils"
	"github.com/yoockh/meetsense/internal/workers"
)

type SessionService interface {
	StartAnalysis(ctx context.Context, ownerID, sourceURL string, primary, fallback audio.Source) (*models.MeetingSession, error)
	BindSpeaker(ctx context.Context, sessionID string, speakerIndex int, participantID, displayName string) (string, error)
	Depart(ctx context.Context, sessionID, participantID string) error
	Leave(ctx context.Context, sessionID string) (*models.MeetingSession, error)
	Get(ctx context.Context, sessionID string) (*models.MeetingSession, error)
	Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
	Export(ctx context.Context, sessionID string, opts models.ExportOptions) (*models.Report, error)
	ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.MeetingSession, error)
}

// SessionDeps wires a SessionService. Aggregator, NewLive and Sessions are
// required; everything else is skipped when nil.
type SessionDeps struct {
	Aggregator *analytics.Aggregator
	NewLive    func() workers.LiveRecognizer
	Sessions   mongorepo.SessionRepository

	Batch        stt.BatchRecognizer
	Buffers      mongorepo.BufferRepository
	Segments     pgrepo.SegmentRepository
	Participants pgrepo.ParticipantRepository
	Cache        cache.Cache
	Publisher    cache.Publisher
	Uploader     storage.Uploader
	NewBot       func() *bot.Dispatcher
	Logger       *logrus.Logger

	BatchChunks  int
	LeaveTimeout time.Duration
	SummaryTTL   time.Duration
	// LinkTTL bounds signed report links; only used when Uploader is a storage.Signer.
	LinkTTL time.Duration
	Now     func() time.Time
}

type liveSession struct {
	id     string
	source audio.Source
	client workers.LiveRecognizer
	loop   *workers.AnalysisLoop
	bot    *bot.Dispatcher
	cancel context.CancelFunc
}

type sessionService struct {
	d SessionDeps

	mu   sync.Mutex
	live *liveSession
}

func NewSessionService(d SessionDeps) SessionService {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LeaveTimeout <= 0 {
		d.LeaveTimeout = 10 * time.Second
	}
	if d.SummaryTTL <= 0 {
		d.SummaryTTL = 24 * time.Hour
	}
	if d.LinkTTL <= 0 {
		d.LinkTTL = time.Hour
	}
	return &sessionService{d: d}
}

func (s *sessionService) StartAnalysis(ctx context.Context, ownerID, sourceURL string, primary, fallback audio.Source) (*models.MeetingSession, error) {
	const op = "SessionService.StartAnalysis"

	if sourceURL != "" {
		if _, err := shell.ValidateMeetingURL(sourceURL); err != nil {
			return nil, err
		}
	}
	src, err := audio.Select(primary, fallback)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live != nil {
		_ = src.Close()
		return nil, utils.E(utils.CodeConflict, op, "an analysis is already running", nil)
	}

	sess, err := s.d.Aggregator.Start(uuid.NewString(), ownerID, sourceURL)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	// The run outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{id: sess.SessionID, source: src, client: s.d.NewLive(), cancel: cancel}

	if s.d.NewBot != nil {
		ls.bot = s.d.NewBot()
		if err := ls.bot.Start(runCtx); err != nil {
			s.d.Logger.WithError(err).Warn("bot disabled for session")
			ls.bot = nil
		}
	}

	ls.loop = &workers.AnalysisLoop{
		SessionID:   sess.SessionID,
		Source:      src,
		Live:        ls.client,
		Reconciler:  transcript.NewReconciler(),
		Aggregator:  s.d.Aggregator,
		Batch:       s.d.Batch,
		Buffers:     s.d.Buffers,
		Bot:         ls.bot,
		Publisher:   s.d.Publisher,
		Logger:      s.d.Logger,
		BatchChunks: s.d.BatchChunks,
	}
	if err := ls.loop.Start(runCtx); err != nil {
		cancel()
		_ = src.Close()
		s.d.Aggregator.Finalize(s.d.Now())
		return nil, utils.E(utils.CodeInternal, op, "failed to start analysis loop", err)
	}
	s.live = ls

	if err := s.d.Sessions.Save(ctx, sess); err != nil {
		s.d.Logger.WithError(err).WithField("session_id", sess.SessionID).Warn("initial session save failed")
	}

	s.d.Logger.WithFields(logrus.Fields{
		"session_id": sess.SessionID,
		"source":     src.Kind(),
		"media_type": src.MediaType(),
	}).Info("analysis started")
	return sess, nil
}

func (s *sessionService) BindSpeaker(ctx context.Context, sessionID string, speakerIndex int, participantID, displayName string) (string, error) {
	const op = "SessionService.BindSpeaker"

	if err := s.requireCurrent(ctx, op, sessionID); err != nil {
		return "", err
	}
	return s.d.Aggregator.BindSpeaker(speakerIndex, participantID, displayName)
}

func (s *sessionService) Depart(ctx context.Context, sessionID, participantID string) error {
	const op = "SessionService.Depart"

	if participantID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "participant_id is required", nil)
	}
	if err := s.requireCurrent(ctx, op, sessionID); err != nil {
		return err
	}
	return s.d.Aggregator.Depart(participantID, s.d.Now())
}

// Leave stops audio, closes the recognizer, drains the loop and finalizes
// the session. Calling it again for an ended session returns the stored copy.
func (s *sessionService) Leave(ctx context.Context, sessionID string) (*models.MeetingSession, error) {
	const op = "SessionService.Leave"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	s.mu.Lock()
	ls := s.live
	if ls == nil || ls.id != sessionID {
		s.mu.Unlock()
		return s.Get(ctx, sessionID)
	}
	s.live = nil
	s.mu.Unlock()

	log := s.d.Logger.WithField("session_id", sessionID)

	if err := ls.source.Close(); err != nil {
		log.WithError(err).Debug("audio source close")
	}
	if err := ls.client.Disconnect(); err != nil {
		log.WithError(err).Debug("recognizer disconnect")
	}
	select {
	case <-ls.loop.Done():
	case <-time.After(s.d.LeaveTimeout):
		log.Warn("analysis loop did not drain before timeout")
	}
	ls.cancel()

	final, first := s.d.Aggregator.Finalize(s.d.Now())
	if final == nil {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", nil)
	}
	if first {
		s.persist(ctx, final)
		s.publishStatus(ctx, sessionID, string(models.SessionEnded))
		log.WithFields(logrus.Fields{
			"segments":     len(final.Transcript),
			"participants": len(final.Participants),
			"degraded":     final.Degraded,
		}).Info("session finalized")
	}
	return final, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.MeetingSession, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if snap := s.d.Aggregator.Snapshot(); snap != nil && snap.SessionID == sessionID {
		return snap, nil
	}

	out, err := s.d.Sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	const op = "SessionService.Summary"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if snap := s.d.Aggregator.Snapshot(); snap != nil && snap.SessionID == sessionID {
		sum, err := s.d.Aggregator.Summary()
		if err != nil {
			return nil, err
		}
		return &sum, nil
	}

	if s.d.Cache != nil {
		var cached models.SessionSummary
		hit, err := s.d.Cache.GetJSON(ctx, cache.SummaryKey(sessionID), &cached)
		if err != nil {
			s.d.Logger.WithError(err).Debug("summary cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	at := s.d.Now()
	if sess.EndedAt != nil {
		at = *sess.EndedAt
	}
	sum := analytics.Summarize(sess, at)
	return &sum, nil
}

func (s *sessionService) Export(ctx context.Context, sessionID string, opts models.ExportOptions) (*models.Report, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rep, err := export.Encode(sess, opts, s.d.Now())
	if err != nil {
		return nil, err
	}

	if s.d.Uploader != nil {
		object := storage.ReportObject(sessionID, rep.Filename)
		stored, err := s.d.Uploader.Upload(ctx, object, rep.MIMEType, bytes.NewReader(rep.Data))
		if err != nil {
			s.d.Logger.WithError(err).WithField("object", object).Warn("report archive failed")
		} else {
			rep.StoredPath = stored
			if signer, ok := s.d.Uploader.(storage.Signer); ok {
				link, err := signer.SignedGetURL(ctx, object, s.d.LinkTTL)
				if err != nil {
					s.d.Logger.WithError(err).WithField("object", object).Debug("report link not signed")
				} else {
					rep.DownloadURL = link
				}
			}
		}
	}
	return rep, nil
}

func (s *sessionService) ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.MeetingSession, error) {
	const op = "SessionService.ListByOwner"

	if ownerID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "owner_id is required", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := s.d.Sessions.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return out, nil
}

func (s *sessionService) requireCurrent(ctx context.Context, op, sessionID string) error {
	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if snap := s.d.Aggregator.Snapshot(); snap != nil && snap.SessionID == sessionID {
		return nil
	}
	if _, err := s.Get(ctx, sessionID); err != nil {
		return err
	}
	return utils.E(utils.CodeFailedPrecondition, op, "session already ended", nil)
}

// persist writes the finalized session to every configured store. Failures
// are logged; the in-memory session stays authoritative for this process.
func (s *sessionService) persist(ctx context.Context, final *models.MeetingSession) {
	log := s.d.Logger.WithField("session_id", final.SessionID)
	at := s.d.Now()
	if final.EndedAt != nil {
		at = *final.EndedAt
	}

	if err := s.d.Sessions.Save(ctx, final); err != nil {
		log.WithError(err).Error("session save failed")
	}

	if s.d.Segments != nil {
		rows, err := pgrepo.SegmentRows(final, at)
		if err == nil {
			err = s.d.Segments.ReplaceSession(ctx, final.SessionID, rows)
		}
		if err != nil {
			log.WithError(err).Error("segment rows write failed")
		}
	}

	if s.d.Participants != nil {
		rows, err := pgrepo.ParticipantRows(final, at)
		if err == nil {
			err = s.d.Participants.UpsertMany(ctx, rows)
		}
		if err != nil {
			log.WithError(err).Error("participant rows write failed")
		}
	}

	if s.d.Cache != nil {
		sum := analytics.Summarize(final, at)
		if err := s.d.Cache.SetJSON(ctx, cache.SummaryKey(final.SessionID), sum, s.d.SummaryTTL); err != nil {
			log.WithError(err).Warn("summary cache write failed")
		}
	}
}

func (s *sessionService) publishStatus(ctx context.Context, sessionID, status string) {
	if s.d.Publisher == nil {
		return
	}
	payload := map[string]any{"type": "status", "status": status, "session_id": sessionID}
	if err := s.d.Publisher.PublishJSON(ctx, cache.StatusChannel(sessionID), payload); err != nil {
		s.d.Logger.WithError(err).Debug("status publish failed")
	}
}
