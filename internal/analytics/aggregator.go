package analytics

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/transcript"
	"github.com/yoockh/meetsense/internal/utils"
)

type binding struct {
	participantID string
	displayName   string
}

type slotRef struct {
	participantID string
	local         int
}

// Aggregator owns the single live MeetingSession. Every mutation goes
// through its methods; readers only ever see deep copies.
type Aggregator struct {
	mu sync.Mutex

	session  *models.MeetingSession
	bindings map[int]binding
	owners   map[int]string // speaker index -> participant id, fixed on first segment
	slots    []slotRef      // transcript position -> owning participant

	scorer Scorer
	now    func() time.Time
}

type AggregatorOption func(*Aggregator)

func WithScorer(s Scorer) AggregatorOption {
	return func(a *Aggregator) { a.scorer = s }
}

func WithNow(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{scorer: LexicalScorer{}, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Start opens a new session. It fails while another session is still live.
func (a *Aggregator) Start(sessionID, ownerID, sourceURL string) (*models.MeetingSession, error) {
	const op = "Aggregator.Start"

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil && a.session.Status == models.SessionActive {
		return nil, utils.E(utils.CodeConflict, op, "a session is already live", nil)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	a.session = &models.MeetingSession{
		SessionID:    sessionID,
		OwnerID:      ownerID,
		SourceURL:    sourceURL,
		Status:       models.SessionActive,
		StartedAt:    a.now().UTC(),
		Participants: map[string]*models.ParticipantRecord{},
		Transcript:   []models.TranscriptSegment{},
	}
	a.bindings = map[int]binding{}
	a.owners = map[int]string{}
	a.slots = nil

	return cloneSession(a.session), nil
}

func (a *Aggregator) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil && a.session.Status == models.SessionActive
}

// BindSpeaker registers the participant a speaker index resolves to. Indexes
// already attributed to an identity are rejected, history is never relabelled.
func (a *Aggregator) BindSpeaker(index int, participantID, displayName string) (string, error) {
	const op = "Aggregator.BindSpeaker"

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireLive(op); err != nil {
		return "", err
	}
	if index < 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "speaker index must be >= 0", nil)
	}
	if owner, ok := a.owners[index]; ok {
		return "", utils.E(utils.CodeConflict, op,
			fmt.Sprintf("speaker %d is already attributed to %s", index, owner), nil)
	}
	if participantID == "" {
		participantID = uuid.NewString()
	}
	if displayName == "" {
		displayName = participantID
	}

	a.bindings[index] = binding{participantID: participantID, displayName: displayName}
	return participantID, nil
}

// Apply folds one reconciler update into participant and session state.
func (a *Aggregator) Apply(u transcript.Update) error {
	const op = "Aggregator.Apply"

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireLive(op); err != nil {
		return err
	}
	if !u.Changed {
		return nil
	}

	seg := u.Segment
	switch {
	case u.Index < len(a.slots):
		ref := a.slots[u.Index]
		p := a.session.Participants[ref.participantID]
		a.session.Transcript[u.Index] = seg
		p.Transcript[ref.local] = seg
		a.refresh(p, seg)
	case u.Index == len(a.slots):
		p := a.participantFor(seg.SpeakerIndex)
		a.session.Transcript = append(a.session.Transcript, seg)
		p.Transcript = append(p.Transcript, seg)
		a.slots = append(a.slots, slotRef{participantID: p.ParticipantID, local: len(p.Transcript) - 1})
		a.refresh(p, seg)
	default:
		return utils.E(utils.CodeInternal, op,
			fmt.Sprintf("update index %d beyond timeline length %d", u.Index, len(a.slots)), nil)
	}
	return nil
}

// RecordAudio accounts one forwarded audio chunk.
func (a *Aggregator) RecordAudio(chunk models.AudioChunk) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil || a.session.Status != models.SessionActive {
		return
	}
	a.session.AudioChunks++
	a.session.AudioBytes += int64(len(chunk.Data))
}

func (a *Aggregator) MarkDegraded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil && a.session.Status == models.SessionActive {
		a.session.Degraded = true
	}
}

// Depart closes one participant before the session ends. LeftAt is set once.
func (a *Aggregator) Depart(participantID string, at time.Time) error {
	const op = "Aggregator.Depart"

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireLive(op); err != nil {
		return err
	}
	p, ok := a.session.Participants[participantID]
	if !ok {
		return utils.E(utils.CodeNotFound, op, "participant not found", nil)
	}
	if p.LeftAt == nil {
		t := at.UTC()
		p.LeftAt = &t
	}
	return nil
}

// Finalize ends the session and closes every open participant at the end
// time. Only the first call reports first=true.
func (a *Aggregator) Finalize(at time.Time) (*models.MeetingSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil, false
	}
	if a.session.Status == models.SessionEnded {
		return cloneSession(a.session), false
	}

	end := at.UTC()
	a.session.EndedAt = &end
	a.session.Status = models.SessionEnded
	for _, p := range a.session.Participants {
		if p.LeftAt == nil {
			t := end
			p.LeftAt = &t
		}
		p.SpeakingMs = speakingMs(p.Transcript)
	}
	return cloneSession(a.session), true
}

func (a *Aggregator) Snapshot() *models.MeetingSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneSession(a.session)
}

func (a *Aggregator) Summary() (models.SessionSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return models.SessionSummary{}, utils.E(utils.CodeNotFound, "Aggregator.Summary", "no session", nil)
	}
	return Summarize(a.session, a.now()), nil
}

func (a *Aggregator) requireLive(op string) error {
	if a.session == nil {
		return utils.E(utils.CodeFailedPrecondition, op, "no session started", nil)
	}
	if a.session.Status != models.SessionActive {
		return utils.E(utils.CodeFailedPrecondition, op, "session already ended", nil)
	}
	return nil
}

func (a *Aggregator) participantFor(idx int) *models.ParticipantRecord {
	if id, ok := a.owners[idx]; ok {
		return a.session.Participants[id]
	}

	id := fmt.Sprintf("unknown_%d", idx)
	name := transcript.SpeakerLabel(idx)
	if b, ok := a.bindings[idx]; ok {
		id, name = b.participantID, b.displayName
	}
	a.owners[idx] = id

	p, ok := a.session.Participants[id]
	if !ok {
		p = &models.ParticipantRecord{
			ParticipantID: id,
			DisplayName:   name,
			JoinedAt:      a.now().UTC(),
			Transcript:    []models.TranscriptSegment{},
		}
		a.session.Participants[id] = p
	}
	p.SpeakerIndexes = append(p.SpeakerIndexes, idx)
	return p
}

func (a *Aggregator) refresh(p *models.ParticipantRecord, latest models.TranscriptSegment) {
	p.SpeakingMs = speakingMs(p.Transcript)
	p.Sentiment = a.scorer.Score(latest.Text)
}

func speakingMs(segs []models.TranscriptSegment) int64 {
	var total int64
	for _, s := range segs {
		total += s.DurationMs()
	}
	return total
}

func cloneSession(s *models.MeetingSession) *models.MeetingSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	out.Transcript = transcript.CloneSegments(s.Transcript)
	out.Participants = make(map[string]*models.ParticipantRecord, len(s.Participants))
	for id, p := range s.Participants {
		cp := *p
		cp.SpeakerIndexes = append([]int(nil), p.SpeakerIndexes...)
		if p.LeftAt != nil {
			t := *p.LeftAt
			cp.LeftAt = &t
		}
		if p.Sentiment.Emotions != nil {
			cp.Sentiment.Emotions = make(map[string]float64, len(p.Sentiment.Emotions))
			for k, v := range p.Sentiment.Emotions {
				cp.Sentiment.Emotions[k] = v
			}
		}
		cp.Transcript = transcript.CloneSegments(p.Transcript)
		out.Participants[id] = &cp
	}
	return &out
}
