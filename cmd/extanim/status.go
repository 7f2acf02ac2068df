package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/extanim/internal/daemon"
	"github.com/jmylchreest/extanim/internal/gate"
	"github.com/jmylchreest/extanim/internal/journal"
	"github.com/jmylchreest/extanim/internal/output"
)

// staleAfter is how long a status file may go unrefreshed before extanimd is
// assumed to have died without cleaning up.
const staleAfter = 10 * time.Second

var statusOpts struct {
	format string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running extanimd",
	Long: `Show the feature flags, gate state and registered displays of the running
extanimd, as published in its status file.

Exit code is 1 when extanimd is not running.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOpts.format, "output", "o", "plain",
		"Output format (plain, json, yaml)")
}

// printJournalSummary reports how many forced passes timed out so far.
func printJournalSummary() {
	if !cfg.Journal.Enabled {
		return
	}
	events, err := journal.ReadFile(cfg.JournalPath())
	if err != nil {
		logger.Debug("failed to read journal", "error", err)
		return
	}

	var passes, timedOut int
	var last time.Time
	for _, e := range events {
		if e.Kind != journal.KindForcedPass {
			continue
		}
		passes++
		if e.Outcome == gate.OutcomeTimedOut.String() {
			timedOut++
			last = e.Time()
		}
	}
	if timedOut == 0 {
		fmt.Printf("  forced passes: %s, none timed out\n", humanize.Comma(int64(passes)))
		return
	}
	fmt.Printf("  forced passes: %s, %s timed out (last %s)\n",
		humanize.Comma(int64(passes)), humanize.Comma(int64(timedOut)), humanize.Time(last))
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOpts.format)
	if err != nil {
		return err
	}

	status, err := daemon.LoadStatus(daemon.StatusPath())
	if err != nil {
		return err
	}
	if status == nil || status.Stale(staleAfter) {
		fmt.Fprintln(os.Stderr, "extanimd is not running")
		os.Exit(1)
	}

	if format != output.FormatPlain {
		return output.WriteValue(os.Stdout, format, status)
	}

	fmt.Printf("extanimd pid %d, started %s\n", status.PID, humanize.Time(time.Unix(status.StartedAt, 0)))
	fmt.Printf("  suppress external animation: %t\n", status.Features.SuppressExternalAnimation)
	fmt.Printf("  gate: enabled=%t timeout=%s waiting=%t\n", status.GateEnabled, status.GateTimeout, status.GateWaiting)
	fmt.Printf("  screenshot tracking: %t (animating: %t)\n", status.Tracking, status.Animating)
	fmt.Printf("  built-in handles: %v\n", status.Builtin)
	fmt.Printf("  registered: %d builtin, %d pluggable, %d virtual\n",
		status.Counts["builtin"], status.Counts["pluggable"], status.Counts["virtual"])
	printJournalSummary()

	if len(status.Displays) == 0 {
		fmt.Println("  no displays registered")
		return nil
	}
	fmt.Printf("  %d displays:\n", len(status.Displays))
	for _, d := range status.Displays {
		animating := ""
		if d.Animating {
			animating = " animating"
		}
		fmt.Printf("    %d %-9s stack=%d %-12s added %s%s\n",
			d.Handle, d.Category, d.LayerStack, d.Name,
			humanize.Time(time.Unix(d.AddedAt, 0)), animating)
	}
	return nil
}
