package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/output"
)

var classifyOpts struct {
	format string
}

// classification is one row of classify output.
type classification struct {
	Handle   int32  `json:"handle" yaml:"handle"`
	Category string `json:"category" yaml:"category"`
	External bool   `json:"external" yaml:"external"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify [handle...]",
	Short: "Classify display handles with the configured layout",
	Long: `Classify display handles as builtin, pluggable, virtual or invalid using
the static layout from the daemon config.

Without arguments every handle from 0 up to the end of the virtual block is listed.`,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVarP(&classifyOpts.format, "output", "o", "plain",
		"Output format (plain, json, yaml)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(classifyOpts.format)
	if err != nil {
		return err
	}

	handles, err := parseHandles(args)
	if err != nil {
		return err
	}

	c := classifier()
	if len(handles) == 0 {
		r := c.Ranges()
		for h := int32(0); h < r.VirtualBase+r.VirtualCount; h++ {
			handles = append(handles, display.Handle(h))
		}
	}

	rows := make([]classification, 0, len(handles))
	for _, h := range handles {
		rows = append(rows, classification{
			Handle:   int32(h),
			Category: c.Classify(h).String(),
			External: c.IsExternal(h),
		})
	}

	if format != output.FormatPlain {
		return output.WriteValue(os.Stdout, format, rows)
	}
	for _, r := range rows {
		fmt.Printf("%3d  %s\n", r.Handle, r.Category)
	}
	return nil
}

func parseHandles(args []string) ([]display.Handle, error) {
	handles := make([]display.Handle, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid display handle %q", a)
		}
		handles = append(handles, display.Handle(n))
	}
	return handles, nil
}
