package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/hotplug"
)

var displayOpts struct {
	layerStack uint32
	name       string
	dir        string
}

// displayCmd represents the display command group.
var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Publish or withdraw displays in the hotplug directory",
	Long: `Publish or withdraw displays in the directory extanimd watches for hotplug.

Compositors without a D-Bus client can announce displays by writing
<handle>.toml files there; these commands do the same by hand.`,
}

var displayPublishCmd = &cobra.Command{
	Use:   "publish <handle>",
	Short: "Announce a connected display",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisplayPublish,
}

var displayWithdrawCmd = &cobra.Command{
	Use:   "withdraw <handle>",
	Short: "Announce a disconnected display",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisplayWithdraw,
}

func init() {
	displayCmd.AddCommand(displayPublishCmd)
	displayCmd.AddCommand(displayWithdrawCmd)
	rootCmd.AddCommand(displayCmd)

	displayCmd.PersistentFlags().StringVar(&displayOpts.dir, "dir", "",
		"Hotplug directory (default: from daemon config)")
	displayPublishCmd.Flags().Uint32Var(&displayOpts.layerStack, "layer-stack", 0,
		"Layer stack the display shows")
	displayPublishCmd.Flags().StringVar(&displayOpts.name, "name", "",
		"Display name")
}

func hotplugDir() string {
	if displayOpts.dir != "" {
		return displayOpts.dir
	}
	return cfg.HotplugDir()
}

func parseHandle(arg string) (display.Handle, error) {
	n, err := strconv.ParseInt(arg, 10, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid display handle %q", arg)
	}
	return display.Handle(n), nil
}

func runDisplayPublish(cmd *cobra.Command, args []string) error {
	h, err := parseHandle(args[0])
	if err != nil {
		return err
	}

	c := classifier()
	if c.Classify(h) == display.CategoryInvalid {
		return fmt.Errorf("display %s is outside the configured layout", h)
	}

	entry := hotplug.Entry{Handle: h, LayerStack: displayOpts.layerStack, Name: displayOpts.name}
	if err := hotplug.WriteEntry(hotplugDir(), entry); err != nil {
		return fmt.Errorf("failed to publish display: %w", err)
	}

	fmt.Printf("published display %s (%s)\n", h, c.Classify(h))
	return nil
}

func runDisplayWithdraw(cmd *cobra.Command, args []string) error {
	h, err := parseHandle(args[0])
	if err != nil {
		return err
	}

	path := filepath.Join(hotplugDir(), hotplug.EntryName(h))
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("display %s is not published", h)
		}
		return err
	}

	fmt.Printf("withdrew display %s\n", h)
	return nil
}
