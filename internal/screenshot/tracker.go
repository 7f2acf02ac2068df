// Package screenshot reports external displays as animating while a
// full-screen capture layer is on screen.
package screenshot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/display"
)

// Layer is the part of a compositor layer the tracker inspects.
type Layer struct {
	Name       string
	LayerStack uint32
	Screenshot bool
}

// AnimatingController is the display-control capability that receives the flag.
type AnimatingController interface {
	SetDisplayAnimating(ctx context.Context, h display.Handle, animating bool) error
}

// Resolver reports whether a display is still connected.
type Resolver interface {
	Known(h display.Handle) bool
}

// Options configures a Tracker.
type Options struct {
	Features   config.FeatureConfig
	Classifier *display.Classifier
	Controller AnimatingController // nil makes the tracker inert
	Resolver   Resolver            // Optional; nil accepts every handle
	Logger     *slog.Logger
}

type displayState struct {
	mu        sync.Mutex
	animating bool
}

// Tracker holds the last reported animating flag per display.
type Tracker struct {
	features   config.FeatureConfig
	classifier *display.Classifier
	controller AnimatingController
	resolver   Resolver
	logger     *slog.Logger

	mu     sync.Mutex
	states map[display.Handle]*displayState
}

// NewTracker creates a Tracker.
func NewTracker(opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		features:   opts.Features,
		classifier: opts.Classifier,
		controller: opts.Controller,
		resolver:   opts.Resolver,
		logger:     logger,
		states:     make(map[display.Handle]*displayState),
	}
}

// Active reports whether Update can ever reach the controller.
func (t *Tracker) Active() bool {
	return t.features.SuppressExternalAnimation && t.controller != nil
}

// HasScreenshot reports whether any layer on layerStack is a screenshot layer.
func HasScreenshot(layerStack uint32, layers []Layer) bool {
	for _, l := range layers {
		if l.LayerStack == layerStack && l.Screenshot {
			return true
		}
	}
	return false
}

// Update inspects the layers composed for d and tells the controller when the
// screenshot state of d flips. It returns true when a new state was reported.
//
// The stored flag only changes after the controller accepts it, so a failed
// call is attempted again on the next frame.
func (t *Tracker) Update(ctx context.Context, d display.Display, layers []Layer) bool {
	if !t.Active() || t.classifier.IsBuiltin(d.Handle) {
		return false
	}

	has := HasScreenshot(d.LayerStack, layers)

	s := t.state(d.Handle)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.animating == has {
		return false
	}

	if err := t.controller.SetDisplayAnimating(ctx, d.Handle, has); err != nil {
		t.logger.Warn("failed to set display animating", "display", d.Handle, "animating", has, "error", err)
		return false
	}

	s.animating = has
	t.logger.Debug("display animating changed", "display", d.Handle, "animating", has)
	return true
}

// state returns the entry for h, creating it only while h is still known.
// The check and the insert share t.mu with Forget, so a display removed
// after the check is evicted again by its Forget.
func (t *Tracker) state(h display.Handle) *displayState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[h]
	if !ok {
		if t.resolver != nil && !t.resolver.Known(h) {
			return nil
		}
		s = &displayState{}
		t.states[h] = s
	}
	return s
}

// Animating reports whether any tracked display is flagged animating.
func (t *Tracker) Animating() bool {
	t.mu.Lock()
	states := make([]*displayState, 0, len(t.states))
	for _, s := range t.states {
		states = append(states, s)
	}
	t.mu.Unlock()

	for _, s := range states {
		s.mu.Lock()
		animating := s.animating
		s.mu.Unlock()
		if animating {
			return true
		}
	}
	return false
}

// IsAnimating reports the stored flag for h.
func (t *Tracker) IsAnimating(h display.Handle) bool {
	t.mu.Lock()
	s, ok := t.states[h]
	t.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.animating
}

// Forget drops the state of a display that has gone away.
func (t *Tracker) Forget(h display.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, h)
}

// Tracked returns the number of displays with stored state.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
