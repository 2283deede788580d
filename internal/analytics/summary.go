package analytics

import (
	"strings"
	"time"

	"github.com/yoockh/meetsense/internal/models"
)

// CountWords splits on whitespace runs and counts the non-empty tokens.
func CountWords(text string) int {
	n := 0
	for _, tok := range strings.Fields(text) {
		if strings.TrimSpace(tok) != "" {
			n++
		}
	}
	return n
}

func ParticipantWordCount(p *models.ParticipantRecord) int {
	n := 0
	for _, s := range p.Transcript {
		n += CountWords(s.Text)
	}
	return n
}

// Summarize derives session-wide totals. now is only used for sessions that
// have not ended yet.
func Summarize(s *models.MeetingSession, now time.Time) models.SessionSummary {
	if s == nil {
		return models.SessionSummary{}
	}

	out := models.SessionSummary{
		ParticipantCount: len(s.Participants),
		TotalDurationMs:  s.DurationMs(now),
	}
	for _, seg := range s.Transcript {
		out.TotalWordCount += CountWords(seg.Text)
	}

	var spoken int64
	for _, p := range s.Participants {
		spoken += p.SpeakingMs
		switch p.Sentiment.Label {
		case models.SentimentPositive:
			out.SentimentDistribution.Positive++
		case models.SentimentNegative:
			out.SentimentDistribution.Negative++
		default:
			out.SentimentDistribution.Neutral++
		}
	}
	if out.TotalDurationMs > 0 {
		out.AverageParticipation = float64(spoken) / float64(out.TotalDurationMs) * 100
	}
	return out
}
