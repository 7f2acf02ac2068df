package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/extanim/internal/journal"
)

// PlainFormatter formats events as one line of text each.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter. An invalid template
// falls back to the default layout.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	f := &PlainFormatter{opts: opts}

	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(templateFuncs()).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}

	return f
}

type templateData struct {
	Index        int
	Event        *journal.Event
	RelativeTime string
}

// Format writes events as plain text.
func (f *PlainFormatter) Format(w io.Writer, events []journal.Event) error {
	for i := range events {
		if err := f.formatEvent(w, i+1, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *PlainFormatter) formatEvent(w io.Writer, index int, e *journal.Event) error {
	if f.template != nil {
		data := templateData{
			Index:        index,
			Event:        e,
			RelativeTime: relativeTime(e.Time()),
		}
		if err := f.template.Execute(w, data); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	}

	var sb strings.Builder

	if f.opts.ShowTime {
		sb.WriteString(fmt.Sprintf("%-16s ", relativeTime(e.Time())))
	}

	sb.WriteString(fmt.Sprintf("%-15s display=%d", e.Kind, e.Display))

	switch e.Kind {
	case journal.KindForcedPass:
		sb.WriteString(fmt.Sprintf(" outcome=%s elapsed=%s", e.Outcome, FormatElapsed(e.Elapsed)))
	case journal.KindAnimating:
		sb.WriteString(fmt.Sprintf(" animating=%t", e.Animating))
	}

	if f.opts.ShowTxn && e.TxnID != "" {
		sb.WriteString(" txn=" + e.TxnID)
	}

	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"reltime": func(ms int64) string {
			return relativeTime(time.UnixMilli(ms))
		},
		"elapsed": FormatElapsed,
		"comma": func(n int) string {
			return humanize.Comma(int64(n))
		},
	}
}

func relativeTime(t time.Time) string {
	if t.IsZero() || t.Unix() == 0 {
		return "unknown"
	}
	return humanize.Time(t)
}

// FormatElapsed renders a wait duration with millisecond precision.
func FormatElapsed(d time.Duration) string {
	if d <= 0 {
		return "0ms"
	}
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}
