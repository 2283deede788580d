package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/audio"
	"github.com/yoockh/meetsense/internal/cache"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
	"github.com/yoockh/meetsense/internal/workers"
)

type fakeLive struct {
	events chan models.RecognitionEvent
	errs   chan error
	once   sync.Once
}

func newFakeLive() *fakeLive {
	return &fakeLive{events: make(chan models.RecognitionEvent, 8), errs: make(chan error, 8)}
}

func (f *fakeLive) Connect(context.Context) (<-chan models.RecognitionEvent, <-chan error) {
	return f.events, f.errs
}

func (f *fakeLive) SendAudio(models.AudioChunk) error { return nil }

func (f *fakeLive) Disconnect() error {
	f.once.Do(func() {
		close(f.events)
		close(f.errs)
	})
	return nil
}

type fakeSessions struct {
	mu    sync.Mutex
	docs  map[string]models.MeetingSession
	saves int
}

func (f *fakeSessions) Save(_ context.Context, s *models.MeetingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs == nil {
		f.docs = map[string]models.MeetingSession{}
	}
	f.docs[s.SessionID] = *s
	f.saves++
	return nil
}

func (f *fakeSessions) GetBySessionID(_ context.Context, id string) (*models.MeetingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &d, nil
}

func (f *fakeSessions) ListByOwner(_ context.Context, owner string, _ int64) ([]models.MeetingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MeetingSession
	for _, d := range f.docs {
		if d.OwnerID == owner {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeSegments struct{ rows []models.SegmentRow }

func (f *fakeSegments) ReplaceSession(_ context.Context, _ string, rows []models.SegmentRow) error {
	f.rows = rows
	return nil
}

type fakeParticipants struct{ rows []models.ParticipantRow }

func (f *fakeParticipants) UpsertMany(_ context.Context, rows []models.ParticipantRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

type fakeUploader struct {
	objects map[string][]byte
}

func (f *fakeUploader) Upload(_ context.Context, name, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[name] = b
	return "mem://" + name, nil
}

func (f *fakeUploader) SignedGetURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.test/%s?ttl=%d", name, int(ttl.Seconds())), nil
}

type fixture struct {
	svc          SessionService
	live         *fakeLive
	sessions     *fakeSessions
	segments     *fakeSegments
	participants *fakeParticipants
	mem          *cache.Memory
	uploader     *fakeUploader
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		live:         newFakeLive(),
		sessions:     &fakeSessions{},
		segments:     &fakeSegments{},
		participants: &fakeParticipants{},
		mem:          cache.NewMemory(),
		uploader:     &fakeUploader{},
	}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f.svc = NewSessionService(SessionDeps{
		Aggregator:   analytics.NewAggregator(analytics.WithNow(func() time.Time { return now })),
		NewLive:      func() workers.LiveRecognizer { return f.live },
		Sessions:     f.sessions,
		Segments:     f.segments,
		Participants: f.participants,
		Cache:        f.mem,
		Publisher:    f.mem,
		Uploader:     f.uploader,
		Logger:       log,
		LeaveTimeout: 2 * time.Second,
		Now:          func() time.Time { return now.Add(10 * time.Minute) },
	})
	return f
}

func sources() (audio.Source, audio.Source) {
	return audio.NewChannelSource(audio.KindDisplay, "audio/webm", false, 4),
		audio.NewChannelSource(audio.KindMicrophone, "audio/webm", true, 4)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	display, mic := sources()
	sess, err := f.svc.StartAnalysis(ctx, "user-1", "https://meet.google.com/abc-defg-hij", display, mic)
	require.NoError(t, err)
	require.Equal(t, models.SessionActive, sess.Status)

	pid, err := f.svc.BindSpeaker(ctx, sess.SessionID, 0, "p-ana", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "p-ana", pid)

	f.live.events <- models.RecognitionEvent{
		SpeakerIndex: 0,
		Text:         "thanks everyone this is great",
		Words:        []models.Word{{Word: "thanks", StartMs: 0, EndMs: 3000, Confidence: 0.9}},
		IsFinal:      true,
	}
	require.Eventually(t, func() bool {
		got, err := f.svc.Get(ctx, sess.SessionID)
		return err == nil && len(got.Transcript) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = f.svc.Export(ctx, sess.SessionID, models.ExportOptions{Format: models.FormatStructured})
	assert.True(t, utils.IsCode(err, utils.CodeFailedPrecondition))

	final, err := f.svc.Leave(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, final.Status)
	require.NotNil(t, final.EndedAt)
	require.Contains(t, final.Participants, "p-ana")
	assert.Equal(t, *final.EndedAt, *final.Participants["p-ana"].LeftAt)

	assert.Len(t, f.segments.rows, 1)
	assert.Len(t, f.participants.rows, 1)
	assert.Equal(t, 2, f.sessions.saves, "initial save plus final save")
	statuses := f.mem.Messages(cache.StatusChannel(sess.SessionID))
	require.Len(t, statuses, 1, "start is acknowledged on the socket, only the end is published")
	assert.Contains(t, string(statuses[0].Payload), `"status":"ended"`)

	again, err := f.svc.Leave(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, final.EndedAt, again.EndedAt)
	assert.Equal(t, 2, f.sessions.saves, "second leave persists nothing")

	_, err = f.svc.BindSpeaker(ctx, sess.SessionID, 1, "", "Bo")
	assert.True(t, utils.IsCode(err, utils.CodeFailedPrecondition))

	rep, err := f.svc.Export(ctx, sess.SessionID, models.ExportOptions{Format: models.FormatTabular, IncludeSentiment: true})
	require.NoError(t, err)
	assert.Contains(t, rep.MIMEType, "text/csv")
	assert.NotEmpty(t, rep.StoredPath)
	assert.Equal(t, "https://signed.test/reports/"+sess.SessionID+"/"+rep.Filename+"?ttl=3600", rep.DownloadURL)
	stored := f.uploader.objects["reports/"+sess.SessionID+"/"+rep.Filename]
	assert.True(t, bytes.Equal(rep.Data, stored))

	_, err = f.svc.Export(ctx, sess.SessionID, models.ExportOptions{Format: models.FormatSpreadsheet})
	assert.True(t, utils.IsCode(err, utils.CodeUnsupportedExportFormat))

	sum, err := f.svc.Summary(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ParticipantCount)
}

func TestStartAnalysisRejectsSecondSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	d1, m1 := sources()
	sess, err := f.svc.StartAnalysis(ctx, "u", "", d1, m1)
	require.NoError(t, err)

	d2, m2 := sources()
	_, err = f.svc.StartAnalysis(ctx, "u", "", d2, m2)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	_, err = f.svc.Leave(ctx, sess.SessionID)
	require.NoError(t, err)
}

func TestStartAnalysisNeedsAudio(t *testing.T) {
	f := newFixture()

	display := audio.NewChannelSource(audio.KindDisplay, "audio/webm", false, 1)
	mic := audio.NewChannelSource(audio.KindMicrophone, "audio/webm", false, 1)
	_, err := f.svc.StartAnalysis(context.Background(), "u", "", display, mic)
	assert.True(t, utils.IsCode(err, utils.CodeNoAudioSource))
}

func TestStartAnalysisValidatesURL(t *testing.T) {
	f := newFixture()

	display, mic := sources()
	_, err := f.svc.StartAnalysis(context.Background(), "u", "https://example.com/meeting", display, mic)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidMeetingURL))
}

func TestSummaryFromCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.mem.SetJSON(ctx, cache.SummaryKey("old"), models.SessionSummary{ParticipantCount: 4}, time.Hour))

	sum, err := f.svc.Summary(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.ParticipantCount)

	_, err = f.svc.Summary(ctx, "missing")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}
