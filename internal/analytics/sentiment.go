package analytics

import (
	"strings"
	"unicode"

	"github.com/yoockh/meetsense/internal/models"
)

// Scorer turns one segment's text into the speaker's current sentiment.
type Scorer interface {
	Score(text string) models.SentimentScore
}

type ScorerFunc func(text string) models.SentimentScore

func (f ScorerFunc) Score(text string) models.SentimentScore { return f(text) }

var (
	positiveWords = map[string]string{
		"good": "joy", "great": "joy", "excellent": "joy", "awesome": "joy", "happy": "joy",
		"love": "joy", "nice": "joy", "perfect": "joy", "glad": "joy", "thanks": "gratitude",
		"thank": "gratitude", "appreciate": "gratitude", "agree": "trust", "yes": "trust",
		"sure": "trust", "welcome": "joy", "excited": "anticipation", "looking": "anticipation",
	}
	negativeWords = map[string]string{
		"bad": "sadness", "terrible": "anger", "awful": "anger", "hate": "anger",
		"angry": "anger", "sad": "sadness", "unfortunately": "sadness", "sorry": "sadness",
		"problem": "fear", "issue": "fear", "worried": "fear", "concern": "fear",
		"blocked": "anger", "broken": "anger", "disagree": "anger", "no": "sadness",
		"delay": "fear", "late": "fear",
	}
)

// LexicalScorer counts hits against small positive and negative word lists.
type LexicalScorer struct{}

func (LexicalScorer) Score(text string) models.SentimentScore {
	var pos, neg int
	emotions := map[string]float64{}

	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		if e, ok := positiveWords[tok]; ok {
			pos++
			emotions[e]++
		} else if e, ok := negativeWords[tok]; ok {
			neg++
			emotions[e]++
		}
	}

	total := pos + neg
	if total == 0 {
		return models.SentimentScore{Label: models.SentimentNeutral, Emotions: map[string]float64{}}
	}
	for k, v := range emotions {
		emotions[k] = v / float64(total)
	}

	score := float64(pos-neg) / float64(total)
	label := models.SentimentNeutral
	switch {
	case score > 0.1:
		label = models.SentimentPositive
	case score < -0.1:
		label = models.SentimentNegative
	}
	return models.SentimentScore{Label: label, Score: score, Emotions: emotions}
}
