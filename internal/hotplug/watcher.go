// Package hotplug follows the runtime directory in which the compositor
// publishes one file per connected display.
//
// Each display is described by "<handle>.toml":
//
//	layer_stack = 3
//	name = "HDMI-A-1"
//
// Creating or rewriting the file announces the display; removing it
// announces the disconnect.
package hotplug

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/extanim/internal/display"
)

const entrySuffix = ".toml"

// Entry describes one published display.
type Entry struct {
	Handle     display.Handle `toml:"-"`
	LayerStack uint32         `toml:"layer_stack"`
	Name       string         `toml:"name"`
}

// Handler receives hotplug notifications.
type Handler interface {
	DisplayAdded(e Entry)
	DisplayRemoved(h display.Handle)
}

// HandleFromName extracts the handle from an entry file name.
func HandleFromName(name string) (display.Handle, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, entrySuffix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSuffix(base, entrySuffix), 10, 32)
	if err != nil || n < 0 {
		return 0, false
	}
	return display.Handle(n), true
}

// EntryName returns the file name used for h.
func EntryName(h display.Handle) string {
	return h.String() + entrySuffix
}

// ParseEntry decodes an entry file.
func ParseEntry(h display.Handle, data []byte) (Entry, error) {
	e := Entry{Handle: h}
	if err := toml.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("parse display %d: %w", h, err)
	}
	return e, nil
}

// WriteEntry publishes e into dir atomically.
func WriteEntry(dir string, e Entry) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(e)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, EntryName(e.Handle))
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Watcher reports displays appearing in and disappearing from a directory.
type Watcher struct {
	dir     string
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	known   map[display.Handle]bool
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewWatcher creates a Watcher over dir.
func NewWatcher(dir string, handler Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		logger:  logger,
		known:   make(map[display.Handle]bool),
	}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start announces the displays already present and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create hotplug directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.watcher = fsw
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	w.scan()

	go w.watch(ctx)

	w.logger.Debug("hotplug watcher started", "dir", w.dir)
	return nil
}

// scan announces every entry currently in the directory.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("failed to scan hotplug directory", "dir", w.dir, "error", err)
		return
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		w.load(filepath.Join(w.dir, de.Name()))
	}
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				w.unload(event.Name)
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				w.load(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("hotplug watcher error", "error", err)
		}
	}
}

func (w *Watcher) load(path string) {
	h, ok := HandleFromName(path)
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Gone again before we could read it
		if os.IsNotExist(err) {
			w.unload(path)
		}
		return
	}

	e, err := ParseEntry(h, data)
	if err != nil {
		w.logger.Warn("ignoring malformed display entry", "path", path, "error", err)
		return
	}

	w.mu.Lock()
	w.known[h] = true
	w.mu.Unlock()

	w.logger.Debug("display published", "display", h, "layer_stack", e.LayerStack, "name", e.Name)
	w.handler.DisplayAdded(e)
}

func (w *Watcher) unload(path string) {
	h, ok := HandleFromName(path)
	if !ok {
		return
	}

	w.mu.Lock()
	known := w.known[h]
	delete(w.known, h)
	w.mu.Unlock()

	if !known {
		return
	}

	w.logger.Debug("display withdrawn", "display", h)
	w.handler.DisplayRemoved(h)
}

// Stop ends the watch loop and releases the inotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.done)
	fsw := w.watcher
	stopped := w.stopped
	w.mu.Unlock()

	err := fsw.Close()
	<-stopped
	w.logger.Debug("hotplug watcher stopped")
	return err
}
