package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/meetsense/internal/models"
)

func event(speaker int, startMs, endMs int64, text string, final bool) models.RecognitionEvent {
	tokens := strings.Fields(text)
	words := make([]models.Word, 0, len(tokens))
	step := (endMs - startMs) / int64(len(tokens))
	for i, tok := range tokens {
		ws := startMs + int64(i)*step
		we := ws + step
		if i == len(tokens)-1 {
			we = endMs
		}
		words = append(words, models.Word{Word: tok, StartMs: ws, EndMs: we, Confidence: 0.9})
	}
	return models.RecognitionEvent{
		SpeakerIndex: speaker,
		Text:         text,
		Words:        words,
		Confidence:   0.9,
		IsFinal:      final,
	}
}

func TestApplySameFinalTwiceIsNoop(t *testing.T) {
	r := NewReconciler()
	ev := event(1, 0, 1200, "good morning", true)

	first := r.Apply(ev)
	require.True(t, first.Changed)
	snapshot := r.Segments()

	second := r.Apply(ev)
	assert.False(t, second.Changed)
	assert.False(t, second.Replaced)
	assert.Equal(t, snapshot, r.Segments())
	assert.Equal(t, 1, r.Len())
}

func TestMergeWindow(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(1, 1000, 1800, "so", false))
	u := r.Apply(event(1, 1500, 2600, "so the plan", false))

	assert.True(t, u.Replaced)
	assert.Equal(t, 0, u.Index)
	assert.Equal(t, 1, r.Len())

	r2 := NewReconciler()
	r2.Apply(event(1, 1000, 1800, "so", false))
	u2 := r2.Apply(event(1, 2500, 3000, "next", false))

	assert.False(t, u2.Replaced)
	assert.Equal(t, 1, u2.Index)
	assert.Equal(t, 2, r2.Len())
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(0, 0, 500, "one", true))
	r.Apply(event(0, 1000, 1500, "two", true))
	assert.Equal(t, 2, r.Len())
}

func TestDifferentSpeakersNeverMerge(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(0, 0, 800, "hi", false))
	r.Apply(event(1, 100, 900, "hello", false))
	assert.Equal(t, 2, r.Len())
}

func TestRevisedSegmentReplacesOriginal(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(0, 0, 2000, "Hello everyone", false))
	revised := event(0, 0, 2500, "Hello everyone welcome", true)
	u := r.Apply(revised)

	require.True(t, u.Replaced)
	require.NotNil(t, u.Previous)
	assert.Equal(t, "Hello everyone", u.Previous.Text)

	segs := r.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, "Hello everyone welcome", segs[0].Text)
	assert.Equal(t, int64(0), segs[0].StartMs)
	assert.Equal(t, int64(2500), segs[0].EndMs)
	assert.True(t, segs[0].Final)
	assert.Equal(t, "Speaker 0", segs[0].SpeakerLabel)
}

func TestLateInterimDoesNotOverwriteFinal(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(2, 3000, 4000, "that works for me", true))
	u := r.Apply(event(2, 3100, 3600, "that works", false))

	assert.False(t, u.Changed)
	assert.Equal(t, "that works for me", r.Segments()[0].Text)
}

func TestMostRecentSlotWins(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(0, 0, 400, "a", false))
	r.Apply(event(1, 500, 900, "b", true))
	r.Apply(event(0, 900, 1300, "c", false)) // merges into slot 0
	r.Apply(event(0, 1950, 2300, "d", false))

	u := r.Apply(event(0, 1500, 2400, "d e", false))
	// slot 0 now starts at 900 and slot 2 at 1950, both within window; latest wins
	assert.Equal(t, 2, u.Index)
	assert.Equal(t, 3, r.Len())
}

func TestBucketMovesWithReplacedStart(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(0, 900, 1200, "um", false))
	r.Apply(event(0, 1700, 2200, "um okay", false)) // 800ms apart, slot now starts at 1700

	u := r.Apply(event(0, 2600, 3000, "okay then", false))
	assert.True(t, u.Replaced, "lookup must follow the moved start time")
	assert.Equal(t, 1, r.Len())
}

func TestEventWithoutTimingIsDegraded(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	r := NewReconciler(WithClock(func() time.Time { return fixed }))

	u := r.Apply(models.RecognitionEvent{SpeakerIndex: 3, Text: "no timing here", Confidence: 1.4, IsFinal: true})

	assert.True(t, u.Segment.Degraded)
	assert.Equal(t, fixed.UnixMilli(), u.Segment.StartMs)
	assert.Equal(t, u.Segment.StartMs, u.Segment.EndMs)
	assert.Equal(t, 1.0, u.Segment.Confidence)
}

func TestSegmentsReturnsCopy(t *testing.T) {
	r := NewReconciler()
	r.Apply(event(0, 0, 1000, "copy me", true))

	segs := r.Segments()
	segs[0].Text = "mutated"
	segs[0].Words[0].Word = "mutated"

	fresh := r.Segments()
	assert.Equal(t, "copy me", fresh[0].Text)
	assert.Equal(t, "copy", fresh[0].Words[0].Word)
}
