package workers

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/audio"
	"github.com/yoockh/meetsense/internal/bot"
	"github.com/yoockh/meetsense/internal/cache"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/providers/stt"
	mongorepo "github.com/yoockh/meetsense/internal/repositories/mongo"
	"github.com/yoockh/meetsense/internal/transcript"
	"github.com/yoockh/meetsense/internal/utils"
)

// LiveRecognizer is the streaming side of the recognition client.
type LiveRecognizer interface {
	Connect(ctx context.Context) (<-chan models.RecognitionEvent, <-chan error)
	SendAudio(chunk models.AudioChunk) error
	Disconnect() error
}

// AnalysisLoop is the single writer for one session: it forwards audio,
// applies recognition events to the reconciler and aggregator, and falls
// back to batch recognition once the live connection is terminal.
type AnalysisLoop struct {
	SessionID  string
	Source     audio.Source
	Live       LiveRecognizer
	Reconciler *transcript.Reconciler
	Aggregator *analytics.Aggregator

	// optional
	Batch     stt.BatchRecognizer
	Buffers   mongorepo.BufferRepository
	Bot       *bot.Dispatcher
	Publisher cache.Publisher
	Logger    *logrus.Logger

	// BatchChunks is how many buffered chunks go into one batch request.
	BatchChunks int

	startedAt time.Time
	log       *logrus.Entry
	done      chan struct{}

	// loop-goroutine state
	degraded   bool
	pending    []models.AudioChunk
	chunkIndex int64
	inflight   int
	results    chan []models.RecognitionEvent
}

func (l *AnalysisLoop) Start(ctx context.Context) error {
	if l.Source == nil || l.Live == nil || l.Reconciler == nil || l.Aggregator == nil {
		return errors.New("AnalysisLoop missing dependency: Source/Live/Reconciler/Aggregator must be set")
	}
	if l.BatchChunks <= 0 {
		l.BatchChunks = 15
	}
	if l.Logger == nil {
		l.Logger = logrus.New()
	}
	l.log = l.Logger.WithField("session_id", l.SessionID)
	l.startedAt = time.Now()
	l.done = make(chan struct{})
	l.results = make(chan []models.RecognitionEvent, 4)

	events, errs := l.Live.Connect(ctx)
	go l.run(ctx, events, errs)
	return nil
}

// Done is closed once audio has ended, the recognizer has closed its
// channels and every in-flight batch has been applied.
func (l *AnalysisLoop) Done() <-chan struct{} { return l.done }

func (l *AnalysisLoop) run(ctx context.Context, events <-chan models.RecognitionEvent, errs <-chan error) {
	defer close(l.done)

	chunks := l.Source.Chunks()
	for chunks != nil || events != nil || errs != nil || l.inflight > 0 {
		select {
		case <-ctx.Done():
			return

		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				l.flush(ctx)
				continue
			}
			l.Aggregator.RecordAudio(c)
			if l.degraded {
				l.buffer(ctx, c)
				continue
			}
			if err := l.Live.SendAudio(c); err != nil {
				l.log.WithError(err).Debug("audio chunk dropped")
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			l.apply(ctx, ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			l.handleError(ctx, err)

		case evs := <-l.results:
			l.inflight--
			for _, ev := range evs {
				l.apply(ctx, ev)
			}
		}
	}
}

func (l *AnalysisLoop) apply(ctx context.Context, ev models.RecognitionEvent) {
	u := l.Reconciler.Apply(ev)
	if !u.Changed {
		return
	}
	if err := l.Aggregator.Apply(u); err != nil {
		l.log.WithError(err).Warn("aggregator rejected update")
		return
	}

	l.publish(ctx, cache.TranscriptChannel(l.SessionID), map[string]any{
		"type":     "transcript",
		"index":    u.Index,
		"replaced": u.Replaced,
		"segment":  u.Segment,
	})

	if l.Bot != nil && u.Segment.Final {
		l.Bot.Offer(u.Segment, l.Aggregator.Snapshot)
	}
}

func (l *AnalysisLoop) handleError(ctx context.Context, err error) {
	switch utils.CodeOf(err) {
	case utils.CodeMalformedMessage:
		l.log.WithError(err).Warn("skipping malformed recognition message")
	case utils.CodeTerminalConnection:
		l.log.WithError(err).Error("live recognition lost, switching to degraded mode")
		l.degraded = true
		l.Aggregator.MarkDegraded()
		l.publish(ctx, cache.StatusChannel(l.SessionID), map[string]any{
			"type":    "status",
			"status":  "degraded",
			"code":    utils.CodeTerminalConnection,
			"message": "live transcription unavailable, recording continues offline",
		})
	default:
		l.log.WithError(err).Warn("recognition error")
	}
}

func (l *AnalysisLoop) buffer(ctx context.Context, c models.AudioChunk) {
	if l.Batch == nil && l.Buffers == nil {
		return
	}
	l.pending = append(l.pending, c)
	if len(l.pending) >= l.BatchChunks {
		l.flush(ctx)
	}
}

// flush hands the pending chunks to a batch goroutine. Its result comes back
// through l.results so only the loop touches transcript state.
func (l *AnalysisLoop) flush(ctx context.Context) {
	if len(l.pending) == 0 {
		return
	}
	batch := l.pending
	l.pending = nil
	first := l.chunkIndex
	l.chunkIndex += int64(len(batch))
	offset := batch[0].ReceivedAt.Sub(l.startedAt).Milliseconds()
	if offset < 0 {
		offset = 0
	}

	l.inflight++
	go func() {
		evs := l.recognizeBatch(ctx, batch, first, offset)
		select {
		case l.results <- evs:
		case <-ctx.Done():
		}
	}()
}

func (l *AnalysisLoop) recognizeBatch(ctx context.Context, batch []models.AudioChunk, first, offset int64) []models.RecognitionEvent {
	idx := make([]int64, 0, len(batch))
	var buf bytes.Buffer
	for i, c := range batch {
		n := first + int64(i)
		idx = append(idx, n)
		buf.Write(c.Data)
		if l.Buffers != nil {
			if err := l.Buffers.InsertChunk(ctx, &models.AudioBufferDoc{
				SessionID:  l.SessionID,
				ChunkIndex: n,
				MediaType:  c.MediaType,
				Data:       c.Data,
				Timestamp:  c.ReceivedAt.UTC(),
			}); err != nil {
				l.log.WithError(err).WithField("chunk_index", n).Warn("buffer insert failed")
			}
		}
	}

	if l.Batch == nil {
		return nil
	}

	evs, err := l.Batch.Recognize(ctx, buf.Bytes(), offset)
	status := mongorepo.BufferDone
	if err != nil {
		l.log.WithError(err).WithField("chunks", len(batch)).Error("batch recognition failed")
		status = mongorepo.BufferFailed
	}
	if l.Buffers != nil {
		if err := l.Buffers.MarkStatus(ctx, l.SessionID, idx, status); err != nil {
			l.log.WithError(err).Warn("buffer status update failed")
		}
	}
	return evs
}

func (l *AnalysisLoop) publish(ctx context.Context, channel string, payload any) {
	if l.Publisher == nil {
		return
	}
	if err := l.Publisher.PublishJSON(ctx, channel, payload); err != nil {
		l.log.WithError(err).WithField("channel", channel).Debug("publish failed")
	}
}
