package bot

import (
	"strings"
	"unicode"

	"github.com/yoockh/meetsense/internal/models"
)

var DefaultPhrases = []string{"bot", "assistant", "ai", "hey bot", "bot please"}

// Trigger matches whole-word phrases in final segments.
type Trigger struct {
	phrases [][]string
}

func NewTrigger(phrases ...string) *Trigger {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	t := &Trigger{}
	for _, p := range phrases {
		if toks := tokenize(p); len(toks) > 0 {
			t.phrases = append(t.phrases, toks)
		}
	}
	return t
}

// Match reports the longest phrase found in seg, if any.
func (t *Trigger) Match(seg models.TranscriptSegment) (string, bool) {
	if !seg.Final {
		return "", false
	}
	toks := tokenize(seg.Text)

	best := ""
	bestLen := 0
	for _, p := range t.phrases {
		if len(p) > bestLen && containsRun(toks, p) {
			best, bestLen = strings.Join(p, " "), len(p)
		}
	}
	return best, bestLen > 0
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsRun(toks, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(toks); i++ {
		ok := true
		for j := range phrase {
			if toks[i+j] != phrase[j] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
