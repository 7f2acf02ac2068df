// Package output renders journal events and CLI reports.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/extanim/internal/journal"
)

// Formatter formats journal events for output.
type Formatter interface {
	Format(w io.Writer, events []journal.Event) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatPlain FormatType = "plain"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (FormatType, error) {
	switch f := FormatType(s); f {
	case FormatPlain, FormatJSON, FormatYAML:
		return f, nil
	case "", "text":
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("unknown output format %q (plain, json, yaml)", s)
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template string // Custom template for plain format
	ShowTime bool   // Show relative time
	ShowTxn  bool   // Show transaction IDs
}

// DefaultFormatterOptions returns the defaults for plain output.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowTime: true,
		ShowTxn:  false,
	}
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	switch format {
	case FormatJSON:
		return valueFormatter{format: FormatJSON}
	case FormatYAML:
		return valueFormatter{format: FormatYAML}
	default:
		return NewPlainFormatter(opts)
	}
}

type valueFormatter struct {
	format FormatType
}

func (f valueFormatter) Format(w io.Writer, events []journal.Event) error {
	if events == nil {
		events = []journal.Event{}
	}
	return WriteValue(w, f.format, events)
}

// WriteValue encodes v as JSON or YAML. Plain is not supported here since
// each report has its own text layout.
func WriteValue(w io.Writer, format FormatType, v any) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("format %q cannot encode values", format)
	}
}
