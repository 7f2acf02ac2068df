package display

import (
	"sort"
	"sync"
	"time"
)

// Display is a live output as reported by the compositor.
type Display struct {
	Handle     Handle
	Category   Category
	LayerStack uint32
	Name       string
	AddedAt    time.Time
}

// RemoveListener is invoked after a display leaves the registry.
type RemoveListener func(h Handle)

// Registry tracks the displays the compositor currently exposes.
type Registry struct {
	mu sync.RWMutex

	classifier *Classifier
	displays   map[Handle]*Display
	listeners  []RemoveListener
}

// NewRegistry creates a Registry that classifies displays with c.
func NewRegistry(c *Classifier) *Registry {
	return &Registry{
		classifier: c,
		displays:   make(map[Handle]*Display),
	}
}

// OnRemove registers a listener called whenever a display is removed.
func (r *Registry) OnRemove(l RemoveListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Register adds or replaces the display h.
func (r *Registry) Register(h Handle, layerStack uint32, name string) *Display {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := &Display{
		Handle:     h,
		Category:   r.classifier.Classify(h),
		LayerStack: layerStack,
		Name:       name,
		AddedAt:    time.Now(),
	}
	if old, exists := r.displays[h]; exists {
		d.AddedAt = old.AddedAt
	}
	r.displays[h] = d
	return d
}

// Get returns a copy of the display h.
func (r *Registry) Get(h Handle) (Display, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.displays[h]
	if !ok {
		return Display{}, false
	}
	return *d, true
}

// Known reports whether h is registered.
func (r *Registry) Known(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.displays[h]
	return ok
}

// Remove deletes h and notifies listeners. Removing an unknown handle is a no-op.
func (r *Registry) Remove(h Handle) bool {
	r.mu.Lock()
	if _, exists := r.displays[h]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.displays, h)
	listeners := append([]RemoveListener(nil), r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		l(h)
	}
	return true
}

// Handles returns the registered handles in ascending order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.displays))
	for h := range r.displays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of registered displays.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.displays)
}

// CountByCategory returns the number of registered displays in c.
func (r *Registry) CountByCategory(c Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, d := range r.displays {
		if d.Category == c {
			count++
		}
	}
	return count
}
