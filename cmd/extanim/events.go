package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/extanim/internal/journal"
	"github.com/jmylchreest/extanim/internal/output"
)

var eventsOpts struct {
	format   string
	template string
	kind     string
	display  int
	limit    int
	showTxn  bool
	journal  string
	timedOut bool
	clear    bool
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the extanimd diagnostics journal",
	Long: `Show forced passes, animating flags and display removals recorded by extanimd.

Examples:
  # Last 20 events
  extanim events --limit 20

  # Only passes whose frame never arrived
  extanim events --timed-out

  # Start over with an empty journal
  extanim events --clear

  # Custom layout
  extanim events --template '{{reltime .Event.Timestamp}} {{.Event.Display}} {{elapsed .Event.Elapsed}}'`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVarP(&eventsOpts.format, "output", "o", "plain",
		"Output format (plain, json, yaml)")
	eventsCmd.Flags().StringVar(&eventsOpts.template, "template", "",
		"Go template for plain output")
	eventsCmd.Flags().StringVar(&eventsOpts.kind, "kind", "",
		"Only show events of this kind (forced_pass, animating, display_removed)")
	eventsCmd.Flags().IntVar(&eventsOpts.display, "display", -1,
		"Only show events for this display handle")
	eventsCmd.Flags().BoolVar(&eventsOpts.timedOut, "timed-out", false,
		"Only show forced passes that timed out")
	eventsCmd.Flags().IntVarP(&eventsOpts.limit, "limit", "n", 0,
		"Show at most the last N events (0 = all)")
	eventsCmd.Flags().BoolVar(&eventsOpts.showTxn, "txn", false,
		"Show transaction IDs")
	eventsCmd.Flags().StringVar(&eventsOpts.journal, "journal", "",
		"Path to journal (default: from daemon config)")
	eventsCmd.Flags().BoolVar(&eventsOpts.clear, "clear", false,
		"Remove every recorded event")
}

func runEvents(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(eventsOpts.format)
	if err != nil {
		return err
	}

	path := eventsOpts.journal
	if path == "" {
		path = cfg.JournalPath()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if eventsOpts.clear {
			return nil
		}
		logger.Debug("no journal yet", "path", path)
		return output.NewFormatter(format, output.DefaultFormatterOptions()).Format(os.Stdout, nil)
	}

	j, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	if eventsOpts.clear {
		if err := j.Clear(); err != nil {
			return fmt.Errorf("failed to clear journal: %w", err)
		}
		fmt.Println("journal cleared")
		return nil
	}

	events, err := loadEvents(j)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	logger.Debug("journal loaded", "path", path, "events", len(events))

	opts := output.DefaultFormatterOptions()
	opts.Template = eventsOpts.template
	opts.ShowTxn = eventsOpts.showTxn

	return output.NewFormatter(format, opts).Format(os.Stdout, events)
}

// filtering reports whether any event filter is set.
func filtering() bool {
	return eventsOpts.kind != "" || eventsOpts.display >= 0 || eventsOpts.timedOut
}

// loadEvents returns the events to show, most recent last.
func loadEvents(j *journal.Journal) ([]journal.Event, error) {
	if !filtering() {
		return j.Tail(eventsOpts.limit)
	}

	events, err := j.Load()
	if err != nil {
		return nil, err
	}
	events = filterEvents(events)
	if eventsOpts.limit > 0 && len(events) > eventsOpts.limit {
		events = events[len(events)-eventsOpts.limit:]
	}
	return events, nil
}

func filterEvents(events []journal.Event) []journal.Event {
	out := events[:0]
	for _, e := range events {
		if eventsOpts.kind != "" && string(e.Kind) != eventsOpts.kind {
			continue
		}
		if eventsOpts.display >= 0 && e.Display != int32(eventsOpts.display) {
			continue
		}
		if eventsOpts.timedOut && (e.Kind != journal.KindForcedPass || e.Outcome != "timed_out") {
			continue
		}
		out = append(out, e)
	}
	return out
}
