package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/output"
)

var featuresOpts struct {
	format string
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show the feature flags extanimd would load",
	Long: `Show the feature flags resolved from the environment and the property file.

Each flag is on only when its property is "1" or "true" (any case):

  vendor.display.disable_ext_anim   suppress_external_animation
  vendor.display.hwc_disable_hdr    allow_hdr_fallback
  vendor.display.qdframework_logs   debug_logging

Environment variables override the file, e.g.
EXTANIM_VENDOR_DISPLAY_DISABLE_EXT_ANIM=1.`,
	Args: cobra.NoArgs,
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().StringVarP(&featuresOpts.format, "output", "o", "plain",
		"Output format (plain, json, yaml)")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(featuresOpts.format)
	if err != nil {
		return err
	}

	f := features()
	if format != output.FormatPlain {
		return output.WriteValue(os.Stdout, format, f)
	}

	rows := []struct {
		prop  string
		name  string
		value bool
	}{
		{config.PropDisableExtAnimation, "suppress_external_animation", f.SuppressExternalAnimation},
		{config.PropAllowHDRFallback, "allow_hdr_fallback", f.AllowHDRFallback},
		{config.PropDebugLogs, "debug_logging", f.DebugLogging},
	}
	for _, r := range rows {
		fmt.Printf("%-28s %-5t (%s)\n", r.name, r.value, r.prop)
	}
	return nil
}
