package cli

import (
	"fmt"
	"io"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) Check(name string, ok bool, detail string) {
	mark := "✅"
	if !ok {
		mark = "❌"
	}
	fmt.Fprintf(f.w, "%s %-22s %s\n", mark, name, detail)
}

func (f *Formatter) ReportWritten(path string, bytes int, segments, participants int) {
	fmt.Fprintf(f.w, "📄 %s (%d bytes, %d segments, %d participants)\n", path, bytes, segments, participants)
}
