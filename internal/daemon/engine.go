package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/gate"
	"github.com/jmylchreest/extanim/internal/hotplug"
	"github.com/jmylchreest/extanim/internal/journal"
	"github.com/jmylchreest/extanim/internal/screenshot"
)

// TimeoutHandler is called for every forced pass whose frame never arrived.
type TimeoutHandler func(h display.Handle, txnID string)

// AnimatingHandler is called after the display-config service accepted a new flag.
type AnimatingHandler func(h display.Handle, animating bool)

// Options configures an Engine.
type Options struct {
	Features    config.FeatureConfig
	Classifier  *display.Classifier
	Compositor  gate.Compositor
	Controller  screenshot.AnimatingController // nil when the capability is missing
	GateTimeout time.Duration
	Journal     *journal.Journal // Optional
	Logger      *slog.Logger
}

// Engine owns the per-process state and routes compositor events to it.
type Engine struct {
	features   config.FeatureConfig
	classifier *display.Classifier
	registry   *display.Registry
	gate       *gate.Gate
	tracker    *screenshot.Tracker
	journal    *journal.Journal
	logger     *slog.Logger
	startedAt  time.Time

	// Transactions are applied one at a time; txnID belongs to the one in flight.
	txnMu sync.Mutex
	txnID string

	mu          sync.RWMutex
	onTimeout   TimeoutHandler
	onAnimating AnimatingHandler
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = display.NewClassifier(display.DefaultRanges())
	}

	e := &Engine{
		features:   opts.Features,
		classifier: classifier,
		registry:   display.NewRegistry(classifier),
		journal:    opts.Journal,
		logger:     logger,
		startedAt:  time.Now(),
	}

	e.gate = gate.New(gate.Options{
		Features:   opts.Features,
		Classifier: classifier,
		Compositor: opts.Compositor,
		Resolver:   e.registry,
		Timeout:    opts.GateTimeout,
		Logger:     logger.With("component", "gate"),
		OnPass:     e.recordPass,
	})
	e.tracker = screenshot.NewTracker(screenshot.Options{
		Features:   opts.Features,
		Classifier: classifier,
		Controller: opts.Controller,
		Resolver:   e.registry,
		Logger:     logger.With("component", "screenshot"),
	})

	e.registry.OnRemove(e.forget)

	return e
}

// SetTimeoutHandler sets the callback for timed-out forced passes.
func (e *Engine) SetTimeoutHandler(h TimeoutHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTimeout = h
}

// SetAnimatingHandler sets the callback for accepted animating flags.
func (e *Engine) SetAnimatingHandler(h AnimatingHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAnimating = h
}

// Features returns the flags the engine was built with.
func (e *Engine) Features() config.FeatureConfig {
	return e.features
}

// Classifier returns the display classifier in use.
func (e *Engine) Classifier() *display.Classifier {
	return e.classifier
}

// Registry returns the set of displays the compositor has announced.
func (e *Engine) Registry() *display.Registry {
	return e.registry
}

// Gate returns the animation gate.
func (e *Engine) Gate() *gate.Gate {
	return e.gate
}

// Tracker returns the screenshot tracker.
func (e *Engine) Tracker() *screenshot.Tracker {
	return e.tracker
}

// HandleTransaction runs the gate over a batch and returns the correlation
// ID assigned to it. Only displays the registry knows are considered.
func (e *Engine) HandleTransaction(changes []gate.DisplayChange) (string, gate.Result) {
	e.txnMu.Lock()
	defer e.txnMu.Unlock()

	id, err := journal.NewID()
	if err != nil {
		e.logger.Warn("failed to generate transaction id", "error", err)
	}
	e.txnID = id

	res := e.gate.HandleTransaction(changes)
	if len(res.Forced) > 0 {
		e.logger.Debug("transaction gated",
			"txn_id", id,
			"forced", len(res.Forced),
			"timed_out", len(res.TimedOut),
		)
	}

	e.txnID = ""
	return id, res
}

// recordPass runs on the HandleTransaction goroutine while txnMu is held.
func (e *Engine) recordPass(p gate.PassEvent) {
	txnID := e.txnID

	if ev := e.newEvent(journal.KindForcedPass, p.Handle); ev != nil {
		ev.TxnID = txnID
		ev.Outcome = p.Outcome.String()
		ev.Elapsed = p.Elapsed
		e.append(ev)
	}

	if p.Outcome != gate.OutcomeTimedOut {
		return
	}
	e.mu.RLock()
	handler := e.onTimeout
	e.mu.RUnlock()
	if handler != nil {
		handler(p.Handle, txnID)
	}
}

// FrameComposed releases a waiting transaction and updates the animating
// flag of every registered display from the composed layers. It reports
// whether a transaction was waiting.
func (e *Engine) FrameComposed(ctx context.Context, layers []screenshot.Layer) bool {
	released := e.gate.FrameComposed()

	if !e.tracker.Active() {
		return released
	}

	for _, h := range e.registry.Handles() {
		d, ok := e.registry.Get(h)
		if !ok {
			continue
		}
		if !e.tracker.Update(ctx, d, layers) {
			continue
		}

		animating := e.tracker.IsAnimating(h)
		if ev := e.newEvent(journal.KindAnimating, h); ev != nil {
			ev.Animating = animating
			e.append(ev)
		}

		e.mu.RLock()
		handler := e.onAnimating
		e.mu.RUnlock()
		if handler != nil {
			handler(h, animating)
		}
	}

	return released
}

// AddDisplay registers or refreshes a display.
func (e *Engine) AddDisplay(h display.Handle, layerStack uint32, name string) {
	d := e.registry.Register(h, layerStack, name)
	e.logger.Info("display added",
		"display", h,
		"category", d.Category,
		"layer_stack", layerStack,
		"name", name,
	)
}

// RemoveDisplay unregisters a display and reports whether it was known.
func (e *Engine) RemoveDisplay(h display.Handle) bool {
	return e.registry.Remove(h)
}

// DisplayAdded implements hotplug.Handler.
func (e *Engine) DisplayAdded(entry hotplug.Entry) {
	e.AddDisplay(entry.Handle, entry.LayerStack, entry.Name)
}

// DisplayRemoved implements hotplug.Handler.
func (e *Engine) DisplayRemoved(h display.Handle) {
	e.RemoveDisplay(h)
}

func (e *Engine) forget(h display.Handle) {
	e.tracker.Forget(h)
	e.logger.Info("display removed", "display", h)

	if ev := e.newEvent(journal.KindDisplayRemoved, h); ev != nil {
		e.append(ev)
	}
}

func (e *Engine) newEvent(kind journal.Kind, h display.Handle) *journal.Event {
	if e.journal == nil {
		return nil
	}
	ev, err := journal.NewEvent(kind, int32(h))
	if err != nil {
		e.logger.Warn("failed to create journal event", "kind", kind, "error", err)
		return nil
	}
	return ev
}

func (e *Engine) append(ev *journal.Event) {
	if err := e.journal.Append(*ev); err != nil {
		e.logger.Warn("failed to append journal event", "kind", ev.Kind, "error", err)
	}
}

// RangesFromConfig converts the configured handle layout into classifier ranges.
func RangesFromConfig(c config.DisplaysConfig) display.Ranges {
	return display.Ranges{
		PhysicalCount:  int32(c.PhysicalCount),
		Primary:        display.Handle(c.Primary),
		BuiltinBase:    int32(c.BuiltinBase),
		BuiltinCount:   int32(c.BuiltinCount),
		PluggableBase:  int32(c.PluggableBase),
		PluggableCount: int32(c.PluggableCount),
		VirtualBase:    int32(c.VirtualBase),
		VirtualCount:   int32(c.VirtualCount),
	}
}
