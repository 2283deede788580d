package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/providers/llm"
)

type Request struct {
	Phrase  string
	Segment models.TranscriptSegment
	Session *models.MeetingSession
	At      time.Time
}

type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Context is what the canned templates are rendered from.
type Context struct {
	Participants   int
	ElapsedMinutes int
	Speakers       int
}

func ContextOf(s *models.MeetingSession, at time.Time) Context {
	if s == nil {
		return Context{}
	}
	speakers := map[int]struct{}{}
	for _, seg := range s.Transcript {
		speakers[seg.SpeakerIndex] = struct{}{}
	}
	return Context{
		Participants:   len(s.Participants),
		ElapsedMinutes: int(s.DurationMs(at) / 60000),
		Speakers:       len(speakers),
	}
}

// TemplateResponder picks a canned answer from keywords in the segment.
type TemplateResponder struct{}

func (TemplateResponder) Respond(_ context.Context, req Request) (string, error) {
	c := ContextOf(req.Session, req.At)
	text := strings.ToLower(req.Segment.Text)

	switch {
	case strings.Contains(text, "how many") || strings.Contains(text, "participant") || strings.Contains(text, "people"):
		return fmt.Sprintf("There are %d participants in this meeting.", c.Participants), nil
	case strings.Contains(text, "how long") || strings.Contains(text, "time") || strings.Contains(text, "minutes"):
		return fmt.Sprintf("We have been meeting for %d minutes.", c.ElapsedMinutes), nil
	case strings.Contains(text, "who") || strings.Contains(text, "speaker"):
		return fmt.Sprintf("%d different speakers have talked so far.", c.Speakers), nil
	default:
		return fmt.Sprintf("I'm listening. %d participants, %d minutes in, %d speakers so far.",
			c.Participants, c.ElapsedMinutes, c.Speakers), nil
	}
}

// LLMResponder asks a language model and falls back to templates on failure.
type LLMResponder struct {
	Provider llm.Provider
	Fallback Responder
	Timeout  time.Duration
	// MaxContext bounds how many recent segments go into the prompt.
	MaxContext int
}

func (r *LLMResponder) Respond(ctx context.Context, req Request) (string, error) {
	fallback := r.Fallback
	if fallback == nil {
		fallback = TemplateResponder{}
	}
	if r.Provider == nil {
		return fallback.Respond(ctx, req)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer, err := llm.Collect(cctx, r.Provider, r.prompt(req))
	if err != nil || answer == "" {
		return fallback.Respond(ctx, req)
	}
	return answer, nil
}

func (r *LLMResponder) prompt(req Request) string {
	n := r.MaxContext
	if n <= 0 {
		n = 20
	}
	c := ContextOf(req.Session, req.At)

	var b strings.Builder
	b.WriteString("You are a meeting assistant. Answer in one or two short spoken sentences.\n")
	fmt.Fprintf(&b, "Participants: %d. Elapsed minutes: %d. Speakers: %d.\n\nRecent transcript:\n",
		c.Participants, c.ElapsedMinutes, c.Speakers)

	if req.Session != nil {
		segs := req.Session.Transcript
		if len(segs) > n {
			segs = segs[len(segs)-n:]
		}
		for _, s := range segs {
			fmt.Fprintf(&b, "%s: %s\n", s.SpeakerLabel, s.Text)
		}
	}
	fmt.Fprintf(&b, "\n%s asked: %s\n", req.Segment.SpeakerLabel, req.Segment.Text)
	return b.String()
}
