package export

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/models"
)

const (
	utf8BOM        = "\ufeff"
	stillInMeeting = "Still in meeting"
)

func encodeTabular(s *models.MeetingSession, opts models.ExportOptions) ([]byte, error) {
	header := []any{"User ID", "User Name", "Join Time", "Leave Time", "Minutes Attended", "Minutes Spoken", "Word Count"}
	if opts.IncludeSentiment {
		header = append(header, "Sentiment", "Sentiment Score")
	}
	if opts.IncludeTranscript {
		header = append(header, "Transcript")
	}

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	if err := writeRow(&buf, header); err != nil {
		return nil, err
	}

	for _, p := range participantsInOrder(s) {
		leave := stillInMeeting
		if p.LeftAt != nil {
			leave = p.LeftAt.UTC().Format(time.RFC3339)
		}
		row := []any{
			p.ParticipantID,
			p.DisplayName,
			p.JoinedAt.UTC().Format(time.RFC3339),
			leave,
			minutes(p.AttendanceMs()),
			minutes(p.SpeakingMs),
			analytics.ParticipantWordCount(p),
		}
		if opts.IncludeSentiment {
			row = append(row, string(p.Sentiment.Label), strconv.FormatFloat(p.Sentiment.Score, 'f', 3, 64))
		}
		if opts.IncludeTranscript {
			row = append(row, segmentsFor(p.Transcript, opts.IncludeWordTiming))
		}
		if err := writeRow(&buf, row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func minutes(ms int64) string {
	return strconv.FormatFloat(float64(ms)/60000, 'f', 2, 64)
}

// writeRow quotes every cell; composite values are JSON-encoded first.
func writeRow(buf *bytes.Buffer, cells []any) error {
	for i, c := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, err := cellText(c)
		if err != nil {
			return err
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(v, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
	return nil
}

func cellText(c any) (string, error) {
	switch v := c.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
