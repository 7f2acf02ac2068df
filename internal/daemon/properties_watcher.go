package daemon

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/extanim/internal/config"
)

// PropertiesWatcher polls the property file and reports when the feature
// flags it yields differ from the ones the engine was built with. The engine
// itself is immutable; the callback decides what to do about the drift.
type PropertiesWatcher struct {
	mu     sync.RWMutex
	logger *slog.Logger

	path string
	env  config.Properties

	lastModTime time.Time
	current     config.FeatureConfig

	pollInterval time.Duration

	onChangeCallback func(features config.FeatureConfig)
	onErrorCallback  func(err error)

	stopCh chan struct{}
	doneCh chan struct{}

	running bool
}

// NewPropertiesWatcher creates a watcher for the property file at path.
// env is consulted before the file, as at startup; it may be nil.
func NewPropertiesWatcher(path string, env config.Properties, logger *slog.Logger) *PropertiesWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PropertiesWatcher{
		logger:       logger,
		path:         path,
		env:          env,
		pollInterval: time.Second,
	}
}

// SetPollInterval sets the polling interval for file changes.
func (w *PropertiesWatcher) SetPollInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollInterval = interval
}

// SetChangeCallback sets the callback invoked when the flags change.
func (w *PropertiesWatcher) SetChangeCallback(callback func(features config.FeatureConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChangeCallback = callback
}

// SetErrorCallback sets the callback invoked when the file cannot be parsed.
func (w *PropertiesWatcher) SetErrorCallback(callback func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onErrorCallback = callback
}

// Start begins polling. initial is the feature set currently in effect.
func (w *PropertiesWatcher) Start(ctx context.Context, initial config.FeatureConfig) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.current = initial

	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	interval := w.pollInterval
	w.mu.Unlock()

	go w.watchLoop(ctx, interval)

	w.logger.Debug("properties watcher started", "path", w.path, "interval", interval)
	return nil
}

// Stop stops polling.
func (w *PropertiesWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	w.logger.Debug("properties watcher stopped")
}

// Current returns the most recently loaded feature flags.
func (w *PropertiesWatcher) Current() config.FeatureConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *PropertiesWatcher) watchLoop(ctx context.Context, interval time.Duration) {
	defer close(w.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *PropertiesWatcher) checkForChanges() {
	w.mu.RLock()
	changeCallback := w.onChangeCallback
	errorCallback := w.onErrorCallback
	lastModTime := w.lastModTime
	previous := w.current
	w.mu.RUnlock()

	info, err := os.Stat(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Debug("failed to stat properties file", "path", w.path, "error", err)
		}
		return
	}

	modTime := info.ModTime()
	if !modTime.After(lastModTime) {
		return
	}

	w.mu.Lock()
	w.lastModTime = modTime
	w.mu.Unlock()

	w.logger.Debug("properties file changed", "path", w.path, "modTime", modTime)

	file, err := config.LoadFileProperties(w.path)
	if err != nil {
		w.logger.Warn("properties file changed but could not be parsed", "error", err)
		if errorCallback != nil {
			errorCallback(err)
		}
		return
	}

	var props config.Properties = file
	if w.env != nil {
		props = config.Chain{w.env, file}
	}
	features := config.LoadFeatures(props)
	if features == previous {
		return
	}

	w.mu.Lock()
	w.current = features
	w.mu.Unlock()

	if changeCallback != nil {
		changeCallback(features)
	}
}
