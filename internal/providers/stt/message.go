package stt

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

type wireMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     *struct {
		Alternatives []wireAlternative `json:"alternatives"`
	} `json:"channel"`
}

type wireAlternative struct {
	Transcript string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	Words      []wireWord `json:"words"`
}

type wireWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"` // seconds
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker"`
}

// ParseMessage decodes one backend message. ok is false for messages that
// carry no transcript (metadata, empty results). Word times are shifted by
// offsetMs.
func ParseMessage(data []byte, offsetMs int64, receivedAt time.Time) (ev models.RecognitionEvent, ok bool, err error) {
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ev, false, utils.E(utils.CodeMalformedMessage, "stt.ParseMessage", "invalid recognition payload", err)
	}
	if m.Type != "" && m.Type != "Results" {
		return ev, false, nil
	}
	if m.Channel == nil || len(m.Channel.Alternatives) == 0 {
		return ev, false, nil
	}
	alt := m.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return ev, false, nil
	}

	ev = models.RecognitionEvent{
		Text:        text,
		Confidence:  models.ClampConfidence(alt.Confidence),
		IsFinal:     m.IsFinal,
		SpeechFinal: m.SpeechFinal,
		ReceivedAt:  receivedAt,
	}
	for _, w := range alt.Words {
		word := models.Word{
			Word:       w.Word,
			StartMs:    secondsToMs(w.Start) + offsetMs,
			EndMs:      secondsToMs(w.End) + offsetMs,
			Confidence: models.ClampConfidence(w.Confidence),
		}
		if w.Speaker != nil {
			sp := *w.Speaker
			word.Speaker = &sp
		}
		ev.Words = append(ev.Words, word)
	}
	ev.SpeakerIndex = dominantSpeaker(ev.Words)
	return ev, true, nil
}

// dominantSpeaker is the speaker tagged on most words. Ties go to the one
// heard first; untagged words count for nobody, and no tags at all means 0.
func dominantSpeaker(words []models.Word) int {
	counts := map[int]int{}
	var order []int
	for _, w := range words {
		if w.Speaker == nil {
			continue
		}
		if counts[*w.Speaker] == 0 {
			order = append(order, *w.Speaker)
		}
		counts[*w.Speaker]++
	}

	best, bestN := 0, 0
	for _, sp := range order {
		if counts[sp] > bestN {
			best, bestN = sp, counts[sp]
		}
	}
	return best
}
