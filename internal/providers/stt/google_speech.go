package stt

import (
	"context"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/yoockh/meetsense/internal/models"
)

// BatchRecognizer transcribes buffered audio when the live socket is gone.
type BatchRecognizer interface {
	Recognize(ctx context.Context, audio []byte, offsetMs int64) ([]models.RecognitionEvent, error)
	Close() error
}

type GoogleSpeech struct {
	c *speech.Client

	Language     string
	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
	MaxSpeakers  int32
}

func NewGoogleSpeech(ctx context.Context, language string) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleSpeech{
		c:            c,
		Language:     language,
		Encoding:     speechpb.RecognitionConfig_WEBM_OPUS,
		SampleRateHz: 48000,
		MaxSpeakers:  6,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// Recognize runs one synchronous request with diarization and word offsets.
// Word times are shifted by offsetMs onto the session timeline.
func (g *GoogleSpeech) Recognize(ctx context.Context, audio []byte, offsetMs int64) ([]models.RecognitionEvent, error) {
	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   g.Encoding,
			SampleRateHertz:            g.SampleRateHz,
			LanguageCode:               g.Language,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			EnableWordConfidence:       true,
			DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          1,
				MaxSpeakerCount:          g.MaxSpeakers,
			},
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, err
	}
	return eventsFromResults(resp.Results, offsetMs, time.Now()), nil
}

func eventsFromResults(results []*speechpb.SpeechRecognitionResult, offsetMs int64, at time.Time) []models.RecognitionEvent {
	var out []models.RecognitionEvent
	for _, r := range results {
		if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
			continue
		}
		alt := r.Alternatives[0]
		ev := models.RecognitionEvent{
			Text:       alt.Transcript,
			Confidence: models.ClampConfidence(float64(alt.Confidence)),
			IsFinal:    true,
			ReceivedAt: at,
		}
		for _, w := range alt.Words {
			word := models.Word{
				Word:       w.Word,
				StartMs:    w.GetStartTime().AsDuration().Milliseconds() + offsetMs,
				EndMs:      w.GetEndTime().AsDuration().Milliseconds() + offsetMs,
				Confidence: models.ClampConfidence(float64(w.Confidence)),
			}
			if w.SpeakerTag > 0 {
				// tags are 1-based
				sp := int(w.SpeakerTag) - 1
				word.Speaker = &sp
			}
			ev.Words = append(ev.Words, word)
		}
		ev.SpeakerIndex = dominantSpeaker(ev.Words)
		out = append(out, ev)
	}
	return out
}
