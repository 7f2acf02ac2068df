package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/output"
	"github.com/jmylchreest/extanim/internal/sim"
)

var simulateOpts struct {
	format     string
	displays   []int
	rotate     int
	frameDelay time.Duration
	stall      bool
	screenshot bool
	force      bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a rotation transaction against an in-process compositor",
	Long: `Rotate a built-in display while external displays change projection, and
report which forced passes the gate issued and how long the transaction was held.

The feature flags come from the property file unless --force is given.

Examples:
  # Primary rotates with HDMI (1) and a virtual display (8) attached
  extanim simulate --displays 0,1,8 --force

  # Compositor never composes: every pass waits for the full timeout
  extanim simulate --displays 0,2 --force --stall`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateOpts.format, "output", "o", "plain",
		"Output format (plain, json, yaml)")
	simulateCmd.Flags().IntSliceVar(&simulateOpts.displays, "displays", []int{0, 1, 8},
		"Connected display handles")
	simulateCmd.Flags().IntVar(&simulateOpts.rotate, "rotate", 0,
		"Built-in display that rotates")
	simulateCmd.Flags().DurationVar(&simulateOpts.frameDelay, "frame-delay", 16*time.Millisecond,
		"Time the compositor takes to compose a frame")
	simulateCmd.Flags().BoolVar(&simulateOpts.stall, "stall", false,
		"Compositor never composes")
	simulateCmd.Flags().BoolVar(&simulateOpts.screenshot, "screenshot", false,
		"Compose a screenshot layer on every external display afterwards")
	simulateCmd.Flags().BoolVar(&simulateOpts.force, "force", false,
		"Enable suppression regardless of properties")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(simulateOpts.format)
	if err != nil {
		return err
	}

	f := features()
	if simulateOpts.force {
		f.SuppressExternalAnimation = true
	}

	handles := make([]display.Handle, 0, len(simulateOpts.displays))
	for _, h := range simulateOpts.displays {
		handles = append(handles, display.Handle(h))
	}

	delay := simulateOpts.frameDelay
	if simulateOpts.stall {
		delay = -1
	}

	report, err := sim.Run(context.Background(), sim.Options{
		Features:    f,
		Ranges:      classifier().Ranges(),
		Displays:    handles,
		Rotate:      display.Handle(simulateOpts.rotate),
		FrameDelay:  delay,
		GateTimeout: cfg.Gate.Timeout.Duration(),
		Screenshot:  simulateOpts.screenshot,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if format != output.FormatPlain {
		return output.WriteValue(os.Stdout, format, report)
	}

	if !report.GateEnabled {
		fmt.Println("gate disabled (set vendor.display.disable_ext_anim=1 or pass --force)")
		return nil
	}

	fmt.Printf("transaction %s held for %s\n", report.TxnID, output.FormatElapsed(report.Held))
	fmt.Printf("  forced passes: %s, refresh requests: %s\n",
		humanize.Comma(int64(len(report.Passes))), humanize.Comma(int64(report.Refreshes)))
	for _, p := range report.Passes {
		status := "composed"
		if p.TimedOut {
			status = "timed out"
		}
		fmt.Printf("  display %d (%s): %s\n", p.Display, p.Kind, status)
	}
	for _, a := range report.Animating {
		fmt.Printf("  display %d animating=%t\n", a.Display, a.Animating)
	}
	return nil
}
