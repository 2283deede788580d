package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

const (
	MIMEStructured = "application/json"
	MIMETabular    = "text/csv; charset=utf-8"
)

// Encode renders a finalized session into a report payload.
func Encode(s *models.MeetingSession, opts models.ExportOptions, now time.Time) (*models.Report, error) {
	const op = "export.Encode"

	if s == nil {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", nil)
	}
	if s.Status != models.SessionEnded || s.EndedAt == nil {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "session has not been finalized", nil)
	}

	var (
		data []byte
		mime string
		ext  string
		err  error
	)
	switch opts.Format {
	case models.FormatStructured:
		data, err = encodeStructured(s, opts, now)
		mime, ext = MIMEStructured, "json"
	case models.FormatTabular:
		data, err = encodeTabular(s, opts)
		mime, ext = MIMETabular, "csv"
	case models.FormatSpreadsheet:
		return nil, utils.E(utils.CodeUnsupportedExportFormat, op, "spreadsheet export is not implemented", nil)
	default:
		return nil, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("unknown export format %q", opts.Format), nil)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "encode report", err)
	}

	return &models.Report{
		Data:     data,
		MIMEType: mime,
		Filename: Filename(s.SessionID, now, ext),
	}, nil
}

func Filename(sessionID string, at time.Time, ext string) string {
	return fmt.Sprintf("meeting-%s-%s.%s", sessionID, at.UTC().Format("2006-01-02"), ext)
}

// ParseFormat accepts the wire names case-insensitively.
func ParseFormat(s string) models.ExportFormat {
	return models.ExportFormat(strings.ToLower(strings.TrimSpace(s)))
}

// participantsInOrder orders by join time, then id.
func participantsInOrder(s *models.MeetingSession) []*models.ParticipantRecord {
	out := make([]*models.ParticipantRecord, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}
