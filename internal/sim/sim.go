// Package sim drives an Engine against an in-process compositor so the
// gating and screenshot behavior can be observed without a real display stack.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/daemon"
	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/gate"
	"github.com/jmylchreest/extanim/internal/screenshot"
)

// Compositor composes a frame FrameDelay after each refresh request.
// A negative delay never composes.
type Compositor struct {
	FrameDelay time.Duration

	mu       sync.Mutex
	engine   *daemon.Engine
	requests int
	wg       sync.WaitGroup
}

func (c *Compositor) InvalidateGeometry() {}
func (c *Compositor) ForceFullRepaint()   {}

// RequestRefresh schedules one composed frame.
func (c *Compositor) RequestRefresh() {
	c.mu.Lock()
	c.requests++
	engine := c.engine
	c.mu.Unlock()

	if engine == nil || c.FrameDelay < 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		time.Sleep(c.FrameDelay)
		engine.FrameComposed(context.Background(), nil)
	}()
}

// Requests returns the number of refreshes requested so far.
func (c *Compositor) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func (c *Compositor) attach(e *daemon.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = e
}

// Controller records animating flags instead of sending them anywhere.
type Controller struct {
	mu      sync.Mutex
	reports []AnimatingReport
}

// AnimatingReport is one flag accepted by the Controller.
type AnimatingReport struct {
	Display   display.Handle `json:"display" yaml:"display"`
	Animating bool           `json:"animating" yaml:"animating"`
}

// SetDisplayAnimating implements screenshot.AnimatingController.
func (c *Controller) SetDisplayAnimating(_ context.Context, h display.Handle, animating bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, AnimatingReport{Display: h, Animating: animating})
	return nil
}

// Reports returns the accepted flags in order.
func (c *Controller) Reports() []AnimatingReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AnimatingReport(nil), c.reports...)
}

// Options configures a simulation run.
type Options struct {
	Features    config.FeatureConfig
	Ranges      display.Ranges
	Displays    []display.Handle // Connected displays; layer stack = position
	Rotate      display.Handle   // Built-in display that rotates
	FrameDelay  time.Duration    // Negative = compositor never delivers
	GateTimeout time.Duration
	Screenshot  bool // Compose one frame with a screenshot on every external display
	Logger      *slog.Logger
}

// PassReport describes one forced pass.
type PassReport struct {
	Display  display.Handle `json:"display" yaml:"display"`
	Kind     string         `json:"category" yaml:"category"`
	TimedOut bool           `json:"timed_out" yaml:"timed_out"`
}

// Report is the outcome of Run.
type Report struct {
	TxnID           string            `json:"txn_id" yaml:"txn_id"`
	GateEnabled     bool              `json:"gate_enabled" yaml:"gate_enabled"`
	BuiltinRotation bool              `json:"builtin_rotation" yaml:"builtin_rotation"`
	Passes          []PassReport      `json:"passes" yaml:"passes"`
	Refreshes       int               `json:"refreshes" yaml:"refreshes"`
	Held            time.Duration     `json:"held_ns" yaml:"held"`
	Animating       []AnimatingReport `json:"animating,omitempty" yaml:"animating,omitempty"`
}

// Run registers the displays, submits one transaction that rotates opts.Rotate
// and moves the projection of every other display, then optionally composes a
// screenshot frame.
func Run(ctx context.Context, opts Options) (*Report, error) {
	classifier := display.NewClassifier(opts.Ranges)
	if !classifier.IsBuiltin(opts.Rotate) {
		return nil, fmt.Errorf("display %s is not built-in", opts.Rotate)
	}

	comp := &Compositor{FrameDelay: opts.FrameDelay}
	ctrl := &Controller{}
	engine := daemon.NewEngine(daemon.Options{
		Features:    opts.Features,
		Classifier:  classifier,
		Compositor:  comp,
		Controller:  ctrl,
		GateTimeout: opts.GateTimeout,
		Logger:      opts.Logger,
	})
	comp.attach(engine)

	changes := []gate.DisplayChange{{
		Handle:      opts.Rotate,
		What:        gate.ChangeProjection,
		Orientation: gate.Orientation90,
	}}
	engine.AddDisplay(opts.Rotate, 0, "builtin")
	for i, h := range opts.Displays {
		if h == opts.Rotate {
			continue
		}
		engine.AddDisplay(h, uint32(i+1), fmt.Sprintf("display-%d", h))
		changes = append(changes, gate.DisplayChange{
			Handle:      h,
			What:        gate.ChangeProjection,
			Orientation: gate.OrientationUnchanged,
		})
	}

	start := time.Now()
	txnID, res := engine.HandleTransaction(changes)
	held := time.Since(start)

	timedOut := make(map[display.Handle]bool, len(res.TimedOut))
	for _, h := range res.TimedOut {
		timedOut[h] = true
	}

	report := &Report{
		TxnID:           txnID,
		GateEnabled:     engine.Gate().Enabled(),
		BuiltinRotation: res.BuiltinOrientationChanged,
		Held:            held,
	}
	for _, h := range res.Forced {
		report.Passes = append(report.Passes, PassReport{
			Display:  h,
			Kind:     classifier.Classify(h).String(),
			TimedOut: timedOut[h],
		})
	}

	if opts.Screenshot {
		var layers []screenshot.Layer
		for _, h := range engine.Registry().Handles() {
			if d, ok := engine.Registry().Get(h); ok && classifier.IsExternal(h) {
				layers = append(layers, screenshot.Layer{Name: "ScreenshotSurface", LayerStack: d.LayerStack, Screenshot: true})
			}
		}
		engine.FrameComposed(ctx, layers)
		report.Animating = ctrl.Reports()
	}

	// Late frames from timed-out passes must not outlive the run
	comp.wg.Wait()
	report.Refreshes = comp.Requests()

	return report, nil
}
