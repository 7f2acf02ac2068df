package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/extanim/internal/display"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "500ms", "1s", "2s", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	// Bare integers are milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '500ms', '1s' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultGateTimeout bounds every forced-pass wait.
const DefaultGateTimeout = time.Second

// MaxGateTimeout is the largest accepted gate timeout.
const MaxGateTimeout = 10 * time.Second

// Bus names accepted by DBusConfig.Bus.
const (
	BusSystem  = "system"
	BusSession = "session"
)

// DaemonConfig is the configuration for extanimd.
// Loaded from ~/.config/extanim/extanimd.toml
type DaemonConfig struct {
	Gate     GateConfig     `toml:"gate"`
	Displays DisplaysConfig `toml:"displays"`
	DBus     DBusConfig     `toml:"dbus"`
	Journal  JournalConfig  `toml:"journal"`
	Hotplug  HotplugConfig  `toml:"hotplug"`
}

// GateConfig controls the forced-pass wait.
type GateConfig struct {
	Timeout Duration `toml:"timeout"` // e.g. "1s", "750ms" or 1000
}

// DisplaysConfig describes the static display index layout.
// Handles below PhysicalCount are physical; of those, Primary and the builtin
// block are built-in panels and the rest are pluggable.
type DisplaysConfig struct {
	PhysicalCount  int  `toml:"physical_count"`
	Primary        int  `toml:"primary"`
	BuiltinBase    int  `toml:"builtin_base"`
	BuiltinCount   int  `toml:"builtin_count"`
	PluggableBase  int  `toml:"pluggable_base"`
	PluggableCount int  `toml:"pluggable_count"`
	VirtualBase    int  `toml:"virtual_base"`
	VirtualCount   int  `toml:"virtual_count"`
	Negotiate      bool `toml:"negotiate"` // Ask the display-config service to adopt this layout
}

// DBusConfig names the peers reached over D-Bus.
type DBusConfig struct {
	Bus               string `toml:"bus"` // "system" or "session"
	DisplayConfigName string `toml:"display_config_name"`
	DisplayConfigPath string `toml:"display_config_path"`
	CompositorName    string `toml:"compositor_name"`
	CompositorPath    string `toml:"compositor_path"`
}

// JournalConfig controls the diagnostics journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // Empty = default data path
}

// HotplugConfig controls the runtime display directory watcher.
type HotplugConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"` // Empty = $XDG_RUNTIME_DIR/extanim/displays
}

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Gate: GateConfig{
			Timeout: Duration(DefaultGateTimeout),
		},
		Displays: DisplaysConfig{
			PhysicalCount:  8,
			Primary:        0,
			BuiltinBase:    5,
			BuiltinCount:   3,
			PluggableBase:  1,
			PluggableCount: 4,
			VirtualBase:    8,
			VirtualCount:   1,
			Negotiate:      true,
		},
		DBus: DBusConfig{
			Bus:               BusSystem,
			DisplayConfigName: "vendor.display.config",
			DisplayConfigPath: "/vendor/display/config",
			CompositorName:    "io.github.jmylchreest.Compositor",
			CompositorPath:    "/io/github/jmylchreest/Compositor",
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Hotplug: HotplugConfig{
			Enabled: true,
		},
	}
}

// DaemonConfigPath returns the path to the daemon config file.
func DaemonConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "extanim", "extanimd.toml"), nil
}

// PropertiesPath returns the path to the default property file.
func PropertiesPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "extanim", "properties.toml"), nil
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "extanim")
}

// JournalPath returns the path to the diagnostics journal.
func (c *DaemonConfig) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(DataPath(), "events.jsonl")
}

// HotplugDir returns the directory the compositor publishes displays into.
func (c *DaemonConfig) HotplugDir() string {
	if c.Hotplug.Dir != "" {
		return c.Hotplug.Dir
	}
	runtime := os.Getenv("XDG_RUNTIME_DIR")
	if runtime == "" {
		runtime = os.TempDir()
	}
	return filepath.Join(runtime, "extanim", "displays")
}

// LoadDaemonConfig loads the daemon configuration from path.
// If path is empty the default location is used; a missing file yields defaults.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	if path == "" {
		p, err := DaemonConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDaemonConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	config := DefaultDaemonConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveDaemonConfig writes the configuration to path atomically.
func SaveDaemonConfig(config *DaemonConfig, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	timeout := c.Gate.Timeout.Duration()
	if timeout <= 0 || timeout > MaxGateTimeout {
		return fmt.Errorf("gate timeout must be in (0, %s], got %s", MaxGateTimeout, timeout)
	}

	if c.DBus.Bus != BusSystem && c.DBus.Bus != BusSession {
		return fmt.Errorf("invalid bus %q, must be %q or %q", c.DBus.Bus, BusSystem, BusSession)
	}

	return c.Displays.Validate()
}

// Validate checks that the display blocks are well formed and disjoint.
func (d DisplaysConfig) Validate() error {
	if d.PhysicalCount < 1 {
		return fmt.Errorf("physical_count must be at least 1, got %d", d.PhysicalCount)
	}
	// Built-in handles must fit the classifier's set
	if d.PhysicalCount > display.MaxHandles {
		return fmt.Errorf("physical_count must be at most %d, got %d", display.MaxHandles, d.PhysicalCount)
	}
	if d.Primary < 0 || d.Primary >= d.PhysicalCount {
		return fmt.Errorf("primary %d outside physical range [0, %d)", d.Primary, d.PhysicalCount)
	}

	type block struct {
		name        string
		base, count int
	}
	blocks := []block{
		{"primary", d.Primary, 1},
		{"builtin", d.BuiltinBase, d.BuiltinCount},
		{"pluggable", d.PluggableBase, d.PluggableCount},
		{"virtual", d.VirtualBase, d.VirtualCount},
	}

	for _, b := range blocks {
		if b.base < 0 || b.count < 0 {
			return fmt.Errorf("%s block must not be negative (base %d, count %d)", b.name, b.base, b.count)
		}
	}

	// Physical blocks live below PhysicalCount, virtual above it
	for _, b := range blocks[:3] {
		if b.base+b.count > d.PhysicalCount {
			return fmt.Errorf("%s block [%d, %d) exceeds physical_count %d", b.name, b.base, b.base+b.count, d.PhysicalCount)
		}
	}
	if d.VirtualCount > 0 && d.VirtualBase < d.PhysicalCount {
		return fmt.Errorf("virtual block must start at or above physical_count %d, got %d", d.PhysicalCount, d.VirtualBase)
	}

	for i := range blocks {
		for j := i + 1; j < len(blocks); j++ {
			a, b := blocks[i], blocks[j]
			if a.count == 0 || b.count == 0 {
				continue
			}
			if a.base < b.base+b.count && b.base < a.base+a.count {
				return fmt.Errorf("%s block overlaps %s block", a.name, b.name)
			}
		}
	}

	return nil
}
