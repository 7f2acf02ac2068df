package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/display"
)

// StatusSchemaVersion is the current version of the status file schema.
const StatusSchemaVersion = 1

// DisplayStatus describes one registered display.
type DisplayStatus struct {
	Handle     int32  `json:"handle" yaml:"handle"`
	Category   string `json:"category" yaml:"category"`
	LayerStack uint32 `json:"layer_stack" yaml:"layer_stack"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	AddedAt    int64  `json:"added_at" yaml:"added_at"` // Unix seconds
	Animating  bool   `json:"animating" yaml:"animating"`
}

// Status is the snapshot extanimd publishes for the CLI.
// This is persisted to ~/.local/share/extanim/status.json
type Status struct {
	SchemaVersion int                  `json:"schema_version" yaml:"schema_version"`
	PID           int                  `json:"pid" yaml:"pid"`
	StartedAt     int64                `json:"started_at" yaml:"started_at"`
	UpdatedAt     int64                `json:"updated_at" yaml:"updated_at"`
	Features      config.FeatureConfig `json:"features" yaml:"features"`
	GateEnabled   bool                 `json:"gate_enabled" yaml:"gate_enabled"`
	GateTimeout   string               `json:"gate_timeout" yaml:"gate_timeout"`
	GateWaiting   bool                 `json:"gate_waiting" yaml:"gate_waiting"`
	Tracking      bool                 `json:"screenshot_tracking" yaml:"screenshot_tracking"`
	Animating     bool                 `json:"animating" yaml:"animating"` // Any display flagged animating
	Builtin       []int32              `json:"builtin" yaml:"builtin"`
	Counts        map[string]int       `json:"counts" yaml:"counts"` // Registered displays per category
	Displays      []DisplayStatus      `json:"displays" yaml:"displays"`
}

// statusFileMutex protects concurrent access to the status file.
var statusFileMutex sync.RWMutex

// StatusPath returns the path to the status file.
func StatusPath() string {
	return filepath.Join(config.DataPath(), "status.json")
}

// Snapshot captures the engine's current state.
func (e *Engine) Snapshot() *Status {
	s := &Status{
		SchemaVersion: StatusSchemaVersion,
		PID:           os.Getpid(),
		StartedAt:     e.startedAt.Unix(),
		UpdatedAt:     time.Now().Unix(),
		Features:      e.features,
		GateEnabled:   e.gate.Enabled(),
		GateTimeout:   e.gate.Timeout().String(),
		GateWaiting:   e.gate.Waiting(),
		Tracking:      e.tracker.Active(),
		Animating:     e.tracker.Animating(),
		Counts:        make(map[string]int),
		Builtin:       []int32{},
		Displays:      []DisplayStatus{},
	}
	for _, c := range []display.Category{display.CategoryBuiltin, display.CategoryPluggable, display.CategoryVirtual} {
		s.Counts[c.String()] = e.registry.CountByCategory(c)
	}
	for _, h := range e.classifier.Builtin().Handles() {
		s.Builtin = append(s.Builtin, int32(h))
	}
	for _, h := range e.registry.Handles() {
		d, ok := e.registry.Get(h)
		if !ok {
			continue
		}
		s.Displays = append(s.Displays, DisplayStatus{
			Handle:     int32(d.Handle),
			Category:   d.Category.String(),
			LayerStack: d.LayerStack,
			Name:       d.Name,
			AddedAt:    d.AddedAt.Unix(),
			Animating:  e.tracker.IsAnimating(h),
		})
	}
	return s
}

// LoadStatus reads the status file at path. A missing file yields nil.
func LoadStatus(path string) (*Status, error) {
	statusFileMutex.RLock()
	defer statusFileMutex.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse status %s: %w", path, err)
	}
	if s.SchemaVersion > StatusSchemaVersion {
		return nil, fmt.Errorf("unsupported status schema version %d (max: %d)", s.SchemaVersion, StatusSchemaVersion)
	}
	return &s, nil
}

// SaveStatus writes s to path atomically.
func SaveStatus(path string, s *Status) error {
	statusFileMutex.Lock()
	defer statusFileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RemoveStatus deletes the status file, ignoring a missing one.
func RemoveStatus(path string) error {
	statusFileMutex.Lock()
	defer statusFileMutex.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Stale reports whether s has not been refreshed within maxAge.
func (s *Status) Stale(maxAge time.Duration) bool {
	return time.Since(time.Unix(s.UpdatedAt, 0)) > maxAge
}
