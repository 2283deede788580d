package export

import (
	"encoding/json"
	"time"

	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/models"
)

type StructuredReport struct {
	Session      SessionMeta             `json:"session"`
	Summary      StructuredSummary       `json:"summary"`
	Participants []StructuredParticipant `json:"participants"`
	ExportedAt   time.Time               `json:"exportedAt"`
}

type SessionMeta struct {
	SessionID   string     `json:"sessionId"`
	SourceURL   string     `json:"sourceUrl"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt"`
	DurationMs  int64      `json:"durationMs"`
	AudioChunks int64      `json:"audioChunks"`
	AudioBytes  int64      `json:"audioBytes"`
	Degraded    bool       `json:"degraded,omitempty"`
}

type StructuredSummary struct {
	ParticipantCount      int                          `json:"participantCount"`
	TotalDurationMs       int64                        `json:"totalDurationMs"`
	TotalWordCount        int                          `json:"totalWordCount"`
	AverageParticipation  float64                      `json:"averageParticipation"`
	SentimentDistribution models.SentimentDistribution `json:"sentimentDistribution"`
}

type StructuredParticipant struct {
	UserID         string                 `json:"userId"`
	UserName       string                 `json:"userName"`
	SpeakerIndexes []int                  `json:"speakerIndexes"`
	JoinTime       time.Time              `json:"joinTime"`
	LeaveTime      *time.Time             `json:"leaveTime"`
	AttendanceMs   int64                  `json:"attendanceMs"`
	SpeakingMs     int64                  `json:"speakingMs"`
	WordCount      int                    `json:"wordCount"`
	Sentiment      *models.SentimentScore `json:"sentiment,omitempty"`
	Transcript     []StructuredSegment    `json:"transcript,omitempty"`
}

type StructuredSegment struct {
	Speaker    string           `json:"speaker"`
	Text       string           `json:"text"`
	StartMs    int64            `json:"startMs"`
	EndMs      int64            `json:"endMs"`
	Confidence float64          `json:"confidence"`
	Degraded   bool             `json:"degraded,omitempty"`
	Words      []StructuredWord `json:"words,omitempty"`
}

type StructuredWord struct {
	Word       string  `json:"word"`
	StartMs    int64   `json:"startMs"`
	EndMs      int64   `json:"endMs"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker,omitempty"`
}

func encodeStructured(s *models.MeetingSession, opts models.ExportOptions, now time.Time) ([]byte, error) {
	rep := StructuredReport{
		Session: SessionMeta{
			SessionID:   s.SessionID,
			SourceURL:   s.SourceURL,
			StartedAt:   s.StartedAt,
			EndedAt:     s.EndedAt,
			DurationMs:  s.DurationMs(now),
			AudioChunks: s.AudioChunks,
			AudioBytes:  s.AudioBytes,
			Degraded:    s.Degraded,
		},
		Summary:      summaryView(analytics.Summarize(s, now)),
		Participants: []StructuredParticipant{},
		ExportedAt:   now.UTC(),
	}

	for _, p := range participantsInOrder(s) {
		sp := StructuredParticipant{
			UserID:         p.ParticipantID,
			UserName:       p.DisplayName,
			SpeakerIndexes: p.SpeakerIndexes,
			JoinTime:       p.JoinedAt,
			LeaveTime:      p.LeftAt,
			AttendanceMs:   p.AttendanceMs(),
			SpeakingMs:     p.SpeakingMs,
			WordCount:      analytics.ParticipantWordCount(p),
		}
		if opts.IncludeSentiment {
			sent := p.Sentiment
			sp.Sentiment = &sent
		}
		if opts.IncludeTranscript {
			sp.Transcript = segmentsFor(p.Transcript, opts.IncludeWordTiming)
		}
		rep.Participants = append(rep.Participants, sp)
	}

	return json.MarshalIndent(rep, "", "  ")
}

func segmentsFor(segs []models.TranscriptSegment, withWords bool) []StructuredSegment {
	out := make([]StructuredSegment, 0, len(segs))
	for _, s := range segs {
		ss := StructuredSegment{
			Speaker:    s.SpeakerLabel,
			Text:       s.Text,
			StartMs:    s.StartMs,
			EndMs:      s.EndMs,
			Confidence: s.Confidence,
			Degraded:   s.Degraded,
		}
		if withWords {
			ss.Words = wordsView(s.Words)
		}
		out = append(out, ss)
	}
	return out
}

func summaryView(sum models.SessionSummary) StructuredSummary {
	return StructuredSummary{
		ParticipantCount:      sum.ParticipantCount,
		TotalDurationMs:       sum.TotalDurationMs,
		TotalWordCount:        sum.TotalWordCount,
		AverageParticipation:  sum.AverageParticipation,
		SentimentDistribution: sum.SentimentDistribution,
	}
}

func wordsView(words []models.Word) []StructuredWord {
	if len(words) == 0 {
		return nil
	}
	out := make([]StructuredWord, 0, len(words))
	for _, w := range words {
		out = append(out, StructuredWord{
			Word:       w.Word,
			StartMs:    w.StartMs,
			EndMs:      w.EndMs,
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		})
	}
	return out
}
