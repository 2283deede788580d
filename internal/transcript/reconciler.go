package transcript

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/yoockh/meetsense/internal/models"
)

// ToleranceMs is the merge window between two hypotheses for the same utterance.
const ToleranceMs int64 = 1000

type bucketKey struct {
	speaker int
	bucket  int64
}

// Update describes what a single Apply did to the timeline.
type Update struct {
	Segment  models.TranscriptSegment
	Index    int
	Replaced bool
	Previous *models.TranscriptSegment
	Changed  bool
}

// Reconciler merges recognition events into an ordered, de-duplicated timeline.
// It is not safe for concurrent use; the analysis loop is its only writer.
type Reconciler struct {
	segments []models.TranscriptSegment
	index    map[bucketKey][]int
	now      func() time.Time
}

type Option func(*Reconciler)

// WithClock overrides the wall clock used for events without word timing.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		index: map[bucketKey][]int{},
		now:   time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func SpeakerLabel(idx int) string { return fmt.Sprintf("Speaker %d", idx) }

// Apply folds ev into the timeline. An event within ToleranceMs of an existing
// segment of the same speaker replaces it in place, otherwise it is appended.
// Interim results never overwrite a final slot.
func (r *Reconciler) Apply(ev models.RecognitionEvent) Update {
	seg := r.segmentFrom(ev)

	pos, ok := r.find(seg.SpeakerIndex, seg.StartMs)
	if !ok {
		r.segments = append(r.segments, seg)
		pos = len(r.segments) - 1
		r.addIndex(seg.SpeakerIndex, seg.StartMs, pos)
		return Update{Segment: cloneSegment(seg), Index: pos, Changed: true}
	}

	prev := r.segments[pos]
	if prev.Final && !seg.Final {
		return Update{Segment: cloneSegment(prev), Index: pos}
	}
	if reflect.DeepEqual(prev, seg) {
		return Update{Segment: cloneSegment(prev), Index: pos}
	}

	if bucketOf(prev.StartMs) != bucketOf(seg.StartMs) {
		r.removeIndex(prev.SpeakerIndex, prev.StartMs, pos)
		r.addIndex(seg.SpeakerIndex, seg.StartMs, pos)
	}
	r.segments[pos] = seg

	old := cloneSegment(prev)
	return Update{
		Segment:  cloneSegment(seg),
		Index:    pos,
		Replaced: true,
		Previous: &old,
		Changed:  true,
	}
}

func (r *Reconciler) Len() int { return len(r.segments) }

// Segments returns a copy of the current timeline.
func (r *Reconciler) Segments() []models.TranscriptSegment {
	out := make([]models.TranscriptSegment, len(r.segments))
	for i, s := range r.segments {
		out[i] = cloneSegment(s)
	}
	return out
}

// find returns the most recent slot for speaker whose start lies strictly
// within ToleranceMs of startMs.
func (r *Reconciler) find(speaker int, startMs int64) (int, bool) {
	b := bucketOf(startMs)
	best := -1
	for _, nb := range []int64{b - 1, b, b + 1} {
		for _, pos := range r.index[bucketKey{speaker: speaker, bucket: nb}] {
			d := r.segments[pos].StartMs - startMs
			if d < 0 {
				d = -d
			}
			if d < ToleranceMs && pos > best {
				best = pos
			}
		}
	}
	return best, best >= 0
}

func (r *Reconciler) addIndex(speaker int, startMs int64, pos int) {
	k := bucketKey{speaker: speaker, bucket: bucketOf(startMs)}
	r.index[k] = append(r.index[k], pos)
}

func (r *Reconciler) removeIndex(speaker int, startMs int64, pos int) {
	k := bucketKey{speaker: speaker, bucket: bucketOf(startMs)}
	list := r.index[k]
	for i, p := range list {
		if p == pos {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.index, k)
		return
	}
	r.index[k] = list
}

func (r *Reconciler) segmentFrom(ev models.RecognitionEvent) models.TranscriptSegment {
	seg := models.TranscriptSegment{
		SpeakerLabel: SpeakerLabel(ev.SpeakerIndex),
		SpeakerIndex: ev.SpeakerIndex,
		Text:         strings.TrimSpace(ev.Text),
		Confidence:   models.ClampConfidence(ev.Confidence),
		Final:        ev.IsFinal,
	}

	if len(ev.Words) == 0 {
		// backend gave no timing, fall back to wall clock
		ms := r.now().UnixMilli()
		seg.StartMs, seg.EndMs = ms, ms
		seg.Degraded = true
		return seg
	}

	seg.Words = cloneWords(ev.Words)
	seg.StartMs = ev.Words[0].StartMs
	seg.EndMs = ev.Words[len(ev.Words)-1].EndMs
	if seg.EndMs < seg.StartMs {
		seg.EndMs = seg.StartMs
	}
	return seg
}

func bucketOf(ms int64) int64 {
	b := ms / ToleranceMs
	if ms < 0 && ms%ToleranceMs != 0 {
		b--
	}
	return b
}

func cloneWords(in []models.Word) []models.Word {
	if in == nil {
		return nil
	}
	out := make([]models.Word, len(in))
	for i, w := range in {
		out[i] = w
		if w.Speaker != nil {
			sp := *w.Speaker
			out[i].Speaker = &sp
		}
	}
	return out
}

func cloneSegment(s models.TranscriptSegment) models.TranscriptSegment {
	s.Words = cloneWords(s.Words)
	return s
}

// CloneSegments deep-copies a segment list.
func CloneSegments(in []models.TranscriptSegment) []models.TranscriptSegment {
	if in == nil {
		return nil
	}
	out := make([]models.TranscriptSegment, len(in))
	for i, s := range in {
		out[i] = cloneSegment(s)
	}
	return out
}
