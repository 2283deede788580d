package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/export"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/providers/stt"
	"github.com/yoockh/meetsense/internal/transcript"
)

type ReplayOptions struct {
	Start time.Time
	// Step is how far the wall clock moves per input line.
	Step     time.Duration
	Speakers map[int]string
	Logger   *logrus.Logger
}

type ReplayResult struct {
	Session *models.MeetingSession
	Applied int
	Skipped int
}

// Replay feeds recorded recognition messages, one JSON object per line,
// through the reconciler and aggregator and returns the finalized session.
// Malformed lines are skipped.
func Replay(r io.Reader, opts ReplayOptions) (*ReplayResult, error) {
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}
	if opts.Step <= 0 {
		opts.Step = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	now := opts.Start
	clock := func() time.Time { return now }

	rec := transcript.NewReconciler(transcript.WithClock(clock))
	agg := analytics.NewAggregator(analytics.WithNow(clock))
	if _, err := agg.Start("", "", ""); err != nil {
		return nil, err
	}

	idx := make([]int, 0, len(opts.Speakers))
	for i := range opts.Speakers {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		if _, err := agg.BindSpeaker(i, "", opts.Speakers[i]); err != nil {
			return nil, err
		}
	}

	res := &ReplayResult{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	var lastEndMs int64
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}

		ev, ok, err := stt.ParseMessage(data, 0, now)
		if err != nil {
			res.Skipped++
			opts.Logger.WithError(err).WithField("line", line).Warn("skipping malformed line")
			continue
		}
		if ok {
			u := rec.Apply(ev)
			if u.Changed {
				if err := agg.Apply(u); err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				// untimed segments carry wall-clock ms, not audio time
				if !u.Segment.Degraded && u.Segment.EndMs > lastEndMs {
					lastEndMs = u.Segment.EndMs
				}
			}
			res.Applied++
		}
		now = now.Add(opts.Step)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	end := now
	if audioEnd := opts.Start.Add(time.Duration(lastEndMs) * time.Millisecond); audioEnd.After(end) {
		end = audioEnd
	}
	res.Session, _ = agg.Finalize(end)
	return res, nil
}

// parseSpeakers reads "index=Name" pairs.
func parseSpeakers(pairs []string) (map[int]string, error) {
	out := make(map[int]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("speaker %q: want index=Name", p)
		}
		i, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || i < 0 {
			return nil, fmt.Errorf("speaker %q: index must be a non-negative integer", p)
		}
		out[i] = strings.TrimSpace(v)
	}
	return out, nil
}

type reportFlags struct {
	format     string
	out        string
	transcript bool
	sentiment  bool
	wordTiming bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", string(models.FormatStructured), "structured|tabular|spreadsheet")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file (default: generated name, - for stdout)")
	cmd.Flags().BoolVar(&f.transcript, "transcript", true, "include transcript segments")
	cmd.Flags().BoolVar(&f.sentiment, "sentiment", true, "include sentiment")
	cmd.Flags().BoolVar(&f.wordTiming, "word-timing", false, "include per-word timing")
}

func (f *reportFlags) options() models.ExportOptions {
	return models.ExportOptions{
		Format:            export.ParseFormat(f.format),
		IncludeTranscript: f.transcript,
		IncludeSentiment:  f.sentiment,
		IncludeWordTiming: f.wordTiming,
	}
}

// writeReport encodes sess and writes it to the flag's destination.
func (f *reportFlags) writeReport(cmd *cobra.Command, sess *models.MeetingSession, now time.Time) (*models.Report, string, error) {
	rep, err := export.Encode(sess, f.options(), now)
	if err != nil {
		return nil, "", err
	}

	dest := f.out
	if dest == "" {
		dest = rep.Filename
	}
	if dest == "-" {
		_, err = cmd.OutOrStdout().Write(rep.Data)
		return rep, dest, err
	}
	return rep, dest, os.WriteFile(dest, rep.Data, 0o644)
}

func NewReplayCmd(deps *Dependencies) *cobra.Command {
	var (
		rf       reportFlags
		speakers []string
		start    string
		step     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay <messages.jsonl|->",
		Short: "Rebuild a session report from recorded recognition messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(cmd.ErrOrStderr())

			names, err := parseSpeakers(speakers)
			if err != nil {
				return err
			}
			startAt := time.Now().UTC()
			if start != "" {
				if startAt, err = time.Parse(time.RFC3339, start); err != nil {
					return fmt.Errorf("--start: %w", err)
				}
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				in = file
			}

			res, err := Replay(in, ReplayOptions{Start: startAt, Step: step, Speakers: names, Logger: deps.Logger})
			if err != nil {
				return err
			}
			if res.Skipped > 0 {
				f.Warning(fmt.Sprintf("%d malformed lines skipped", res.Skipped))
			}

			rep, dest, err := rf.writeReport(cmd, res.Session, *res.Session.EndedAt)
			if err != nil {
				return err
			}
			if dest != "-" {
				f.ReportWritten(dest, len(rep.Data), len(res.Session.Transcript), len(res.Session.Participants))
			}
			return nil
		},
	}

	rf.register(cmd)
	cmd.Flags().StringArrayVarP(&speakers, "speaker", "s", nil, "bind a diarized speaker, e.g. 0=Ana (repeatable)")
	cmd.Flags().StringVar(&start, "start", "", "session start time, RFC3339 (default: now)")
	cmd.Flags().DurationVar(&step, "step", 250*time.Millisecond, "wall-clock advance per message")
	return cmd
}
