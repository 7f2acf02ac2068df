// Package gate holds a display transaction until the compositor has produced
// one fresh frame for external and virtual displays whose projection changes
// together with a built-in orientation change.
package gate

import (
	"log/slog"
	"time"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/display"
)

// ChangeFlags is the set of display fields a transaction modifies.
type ChangeFlags uint32

const (
	ChangeSurface    ChangeFlags = 0x01
	ChangeLayerStack ChangeFlags = 0x02
	ChangeProjection ChangeFlags = 0x04
	ChangeSize       ChangeFlags = 0x08
)

// Orientation is the requested display rotation.
type Orientation uint32

const (
	OrientationDefault Orientation = 0
	Orientation90      Orientation = 1
	Orientation180     Orientation = 2
	Orientation270     Orientation = 3
	// OrientationUnchanged marks a change that leaves rotation alone.
	OrientationUnchanged Orientation = 4
)

// Changed reports whether o requests a rotation.
func (o Orientation) Changed() bool {
	return o&OrientationUnchanged == 0
}

// DisplayChange is one pending display-state update within a transaction.
type DisplayChange struct {
	Handle      display.Handle
	What        ChangeFlags
	Orientation Orientation
}

// ProjectionChanged reports whether the change touches the output projection.
func (c DisplayChange) ProjectionChanged() bool {
	return c.What&ChangeProjection != 0
}

// Compositor is the refresh surface of the external compositor.
type Compositor interface {
	InvalidateGeometry()
	ForceFullRepaint()
	RequestRefresh()
}

// Resolver reports whether the compositor still knows a display.
type Resolver interface {
	Known(h display.Handle) bool
}

// PassEvent describes one forced composition pass.
type PassEvent struct {
	Handle  display.Handle
	Outcome Outcome
	Elapsed time.Duration
}

// Options configures a Gate.
type Options struct {
	Features   config.FeatureConfig
	Classifier *display.Classifier
	Compositor Compositor
	Resolver   Resolver      // Optional; nil accepts every handle
	Timeout    time.Duration // Zero = config.DefaultGateTimeout
	Logger     *slog.Logger
	OnPass     func(PassEvent)
}

// Result reports what HandleTransaction did.
type Result struct {
	BuiltinOrientationChanged bool
	Forced                    []display.Handle
	TimedOut                  []display.Handle
}

// Gate forces and awaits extra composition passes.
type Gate struct {
	features   config.FeatureConfig
	classifier *display.Classifier
	compositor Compositor
	resolver   Resolver
	timeout    time.Duration
	logger     *slog.Logger
	onPass     func(PassEvent)

	monitor Monitor
}

// New creates a Gate.
func New(opts Options) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = config.DefaultGateTimeout
	}
	return &Gate{
		features:   opts.Features,
		classifier: opts.Classifier,
		compositor: opts.Compositor,
		resolver:   opts.Resolver,
		timeout:    timeout,
		logger:     logger,
		onPass:     opts.OnPass,
	}
}

// Enabled reports whether the gate does anything at all.
func (g *Gate) Enabled() bool {
	return g.features.SuppressExternalAnimation && g.compositor != nil
}

// Timeout returns the bound on each wait.
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

// HandleTransaction inspects a batch before it is applied. When a built-in
// display rotates, every external or virtual display in the same batch whose
// projection changes gets one forced pass, awaited sequentially.
// The batch is not modified.
func (g *Gate) HandleTransaction(changes []DisplayChange) Result {
	var res Result
	if !g.Enabled() {
		return res
	}

	for _, c := range changes {
		if !g.known(c.Handle) {
			continue
		}
		if g.classifier.IsBuiltin(c.Handle) && c.Orientation.Changed() {
			res.BuiltinOrientationChanged = true
			break
		}
	}
	if !res.BuiltinOrientationChanged {
		return res
	}

	for _, c := range changes {
		if !g.known(c.Handle) || !g.classifier.IsExternal(c.Handle) {
			continue
		}
		if !c.ProjectionChanged() {
			continue
		}

		res.Forced = append(res.Forced, c.Handle)
		if g.forcePass(c.Handle) == OutcomeTimedOut {
			res.TimedOut = append(res.TimedOut, c.Handle)
		}
	}

	return res
}

func (g *Gate) known(h display.Handle) bool {
	return g.resolver == nil || g.resolver.Known(h)
}

// forcePass repaints everything and waits for the resulting frame.
func (g *Gate) forcePass(h display.Handle) Outcome {
	g.logger.Debug("forcing composition pass", "display", h, "timeout", g.timeout)

	start := time.Now()
	outcome := g.monitor.RequestAndWait(g.timeout, func() {
		g.compositor.InvalidateGeometry()
		g.compositor.ForceFullRepaint()
		g.compositor.RequestRefresh()
	})
	elapsed := time.Since(start)

	if outcome == OutcomeTimedOut {
		g.logger.Warn("external animation signal timed out", "display", h, "elapsed", elapsed)
	} else {
		g.logger.Debug("forced pass composed", "display", h, "elapsed", elapsed)
	}

	if g.onPass != nil {
		g.onPass(PassEvent{Handle: h, Outcome: outcome, Elapsed: elapsed})
	}
	return outcome
}

// FrameComposed is called by the composition loop after every pass. It
// releases a waiting transaction and reports whether one was waiting.
func (g *Gate) FrameComposed() bool {
	if !g.features.SuppressExternalAnimation {
		return false
	}
	return g.monitor.Signal()
}

// Waiting reports whether a transaction is blocked on a forced pass.
func (g *Gate) Waiting() bool {
	return g.monitor.Waiting()
}
