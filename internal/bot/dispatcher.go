package bot

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/meetsense/internal/cache"
	"github.com/yoockh/meetsense/internal/models"
)

// Sink receives finished response text (text-to-speech boundary).
type Sink interface {
	Speak(ctx context.Context, sessionID, text string) error
}

type PublisherSink struct {
	Pub cache.Publisher
}

func (s PublisherSink) Speak(ctx context.Context, sessionID, text string) error {
	return s.Pub.PublishJSON(ctx, cache.BotChannel(sessionID), map[string]any{
		"type":    "bot_response",
		"text":    text,
		"sent_at": time.Now().UTC(),
	})
}

// Dispatcher evaluates the trigger on the caller's goroutine and renders
// responses on its own, so the analysis loop never blocks on a responder.
type Dispatcher struct {
	Trigger   *Trigger
	Responder Responder
	Sink      Sink
	Logger    *logrus.Logger
	QueueSize int

	queue chan Request
	done  chan struct{}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	if d.Responder == nil || d.Sink == nil {
		return errors.New("Dispatcher missing dependency: Responder/Sink must be set")
	}
	if d.Trigger == nil {
		d.Trigger = NewTrigger()
	}
	if d.QueueSize <= 0 {
		d.QueueSize = 8
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	d.queue = make(chan Request, d.QueueSize)
	d.done = make(chan struct{})

	go d.run(ctx)
	return nil
}

// Offer queues a response when seg triggers. snapshot is only called on a
// match. A full queue drops the request.
func (d *Dispatcher) Offer(seg models.TranscriptSegment, snapshot func() *models.MeetingSession) bool {
	phrase, ok := d.Trigger.Match(seg)
	if !ok {
		return false
	}
	req := Request{Phrase: phrase, Segment: seg, Session: snapshot(), At: time.Now()}
	select {
	case d.queue <- req:
		return true
	default:
		d.Logger.WithField("phrase", phrase).Warn("bot queue full, dropping trigger")
		return false
	}
}

// Done is closed after the worker goroutine exits.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.handle(ctx, req)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) {
	sessionID := ""
	if req.Session != nil {
		sessionID = req.Session.SessionID
	}
	log := d.Logger.WithFields(logrus.Fields{"session_id": sessionID, "phrase": req.Phrase})

	text, err := d.Responder.Respond(ctx, req)
	if err != nil {
		log.WithError(err).Warn("bot responder failed")
		return
	}
	if text == "" {
		return
	}
	if err := d.Sink.Speak(ctx, sessionID, text); err != nil {
		log.WithError(err).Warn("bot sink failed")
	}
}
