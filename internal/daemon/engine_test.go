package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/gate"
	"github.com/jmylchreest/extanim/internal/hotplug"
	"github.com/jmylchreest/extanim/internal/journal"
	"github.com/jmylchreest/extanim/internal/screenshot"
)

var enabled = config.FeatureConfig{SuppressExternalAnimation: true}

// fakeCompositor composes a frame whenever a refresh is requested.
type fakeCompositor struct {
	mu        sync.Mutex
	refresh   int
	onRefresh func()
}

func (f *fakeCompositor) InvalidateGeometry() {}
func (f *fakeCompositor) ForceFullRepaint()   {}
func (f *fakeCompositor) RequestRefresh() {
	f.mu.Lock()
	f.refresh++
	hook := f.onRefresh
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeCompositor) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

type fakeController struct {
	mu    sync.Mutex
	calls map[display.Handle][]bool
}

func newFakeController() *fakeController {
	return &fakeController{calls: make(map[display.Handle][]bool)}
}

func (f *fakeController) SetDisplayAnimating(_ context.Context, h display.Handle, animating bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[h] = append(f.calls[h], animating)
	return nil
}

func (f *fakeController) reported(h display.Handle) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls[h]...)
}

func rotation() []gate.DisplayChange {
	return rotationWith(1, 8)
}

// rotationWith rotates the primary panel and moves the projection of each external.
func rotationWith(externals ...display.Handle) []gate.DisplayChange {
	changes := []gate.DisplayChange{{Handle: 0, What: gate.ChangeProjection, Orientation: gate.Orientation90}}
	for _, h := range externals {
		changes = append(changes, gate.DisplayChange{Handle: h, What: gate.ChangeProjection, Orientation: gate.OrientationUnchanged})
	}
	return changes
}

func TestEngine_ForcedPassReleasedByFrame(t *testing.T) {
	comp := &fakeCompositor{}
	e := NewEngine(Options{Features: enabled, Compositor: comp, GateTimeout: time.Second})
	comp.onRefresh = func() { e.FrameComposed(context.Background(), nil) }

	e.AddDisplay(0, 0, "DSI-1")
	e.AddDisplay(1, 1, "HDMI-A-1")
	e.AddDisplay(8, 2, "virtual")

	start := time.Now()
	txnID, res := e.HandleTransaction(rotation())

	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Len(t, txnID, 26)
	assert.True(t, res.BuiltinOrientationChanged)
	assert.Equal(t, []display.Handle{1, 8}, res.Forced)
	assert.Empty(t, res.TimedOut)
	assert.Equal(t, 2, comp.refreshes())
}

func TestEngine_VirtualPassDuringBuiltinRotation(t *testing.T) {
	classifier := display.NewClassifierWithSet(
		display.Ranges{PhysicalCount: 2, VirtualBase: 2, VirtualCount: 1},
		display.NewBuiltinSet(0, 1),
	)
	comp := &fakeCompositor{}
	e := NewEngine(Options{Features: enabled, Classifier: classifier, Compositor: comp, GateTimeout: time.Second})
	comp.onRefresh = func() {
		go func() {
			time.Sleep(10 * time.Millisecond)
			e.FrameComposed(context.Background(), nil)
		}()
	}

	e.AddDisplay(0, 0, "DSI-1")
	e.AddDisplay(1, 1, "DSI-2")
	e.AddDisplay(2, 2, "virtual")

	start := time.Now()
	_, res := e.HandleTransaction([]gate.DisplayChange{
		{Handle: 0, What: gate.ChangeProjection, Orientation: gate.Orientation90},
		{Handle: 2, What: gate.ChangeProjection, Orientation: gate.OrientationUnchanged},
	})
	elapsed := time.Since(start)

	assert.Equal(t, []display.Handle{2}, res.Forced)
	assert.Empty(t, res.TimedOut)
	assert.Equal(t, 1, comp.refreshes())
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestEngine_UnknownDisplaysIgnored(t *testing.T) {
	comp := &fakeCompositor{}
	e := NewEngine(Options{Features: enabled, Compositor: comp, GateTimeout: 50 * time.Millisecond})

	// Nothing registered: the batch passes straight through
	_, res := e.HandleTransaction(rotation())
	assert.False(t, res.BuiltinOrientationChanged)
	assert.Empty(t, res.Forced)
	assert.Zero(t, comp.refreshes())
}

func TestEngine_TimeoutJournaledAndAnnounced(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer j.Close()

	e := NewEngine(Options{
		Features:    enabled,
		Compositor:  &fakeCompositor{},
		GateTimeout: 20 * time.Millisecond,
		Journal:     j,
	})
	e.AddDisplay(0, 0, "DSI-1")
	e.AddDisplay(2, 1, "DP-1")

	var timedOut []string
	e.SetTimeoutHandler(func(h display.Handle, txnID string) {
		timedOut = append(timedOut, h.String()+"/"+txnID)
	})

	txnID, res := e.HandleTransaction([]gate.DisplayChange{
		{Handle: 0, Orientation: gate.Orientation180},
		{Handle: 2, What: gate.ChangeProjection, Orientation: gate.OrientationUnchanged},
	})
	assert.Equal(t, []display.Handle{2}, res.TimedOut)
	assert.Equal(t, []string{"2/" + txnID}, timedOut)

	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, journal.KindForcedPass, events[0].Kind)
	assert.Equal(t, txnID, events[0].TxnID)
	assert.Equal(t, "timed_out", events[0].Outcome)
	assert.Equal(t, int32(2), events[0].Display)
}

func TestEngine_DisabledIsNoop(t *testing.T) {
	comp := &fakeCompositor{}
	ctrl := newFakeController()
	e := NewEngine(Options{Compositor: comp, Controller: ctrl})
	e.AddDisplay(0, 0, "DSI-1")
	e.AddDisplay(1, 1, "HDMI-A-1")

	_, res := e.HandleTransaction(rotation())
	assert.Empty(t, res.Forced)
	assert.False(t, e.FrameComposed(context.Background(), []screenshot.Layer{{LayerStack: 1, Screenshot: true}}))
	assert.Empty(t, ctrl.reported(1))
}

func TestEngine_ScreenshotFlagFollowsLayers(t *testing.T) {
	ctrl := newFakeController()
	e := NewEngine(Options{Features: enabled, Compositor: &fakeCompositor{}, Controller: ctrl})
	e.AddDisplay(0, 0, "DSI-1")
	e.AddDisplay(1, 3, "HDMI-A-1")

	var changes []bool
	e.SetAnimatingHandler(func(h display.Handle, animating bool) {
		assert.Equal(t, display.Handle(1), h)
		changes = append(changes, animating)
	})

	shot := []screenshot.Layer{{Name: "ScreenshotSurface", LayerStack: 3, Screenshot: true}}
	ctx := context.Background()

	e.FrameComposed(ctx, shot)
	e.FrameComposed(ctx, shot)
	e.FrameComposed(ctx, nil)

	assert.Equal(t, []bool{true, false}, ctrl.reported(1))
	assert.Empty(t, ctrl.reported(0))
	assert.Equal(t, []bool{true, false}, changes)
}

func TestEngine_RemoveEvictsTrackerState(t *testing.T) {
	ctrl := newFakeController()
	e := NewEngine(Options{Features: enabled, Compositor: &fakeCompositor{}, Controller: ctrl})
	e.AddDisplay(1, 3, "HDMI-A-1")

	e.FrameComposed(context.Background(), []screenshot.Layer{{LayerStack: 3, Screenshot: true}})
	require.True(t, e.Tracker().IsAnimating(1))

	assert.True(t, e.RemoveDisplay(1))
	assert.False(t, e.Tracker().IsAnimating(1))
	assert.Zero(t, e.Tracker().Tracked())
	assert.False(t, e.RemoveDisplay(1))

	// A display reusing the handle starts from the initial state
	e.AddDisplay(1, 3, "HDMI-A-1")
	e.FrameComposed(context.Background(), []screenshot.Layer{{LayerStack: 3, Screenshot: true}})
	assert.Equal(t, []bool{true, true}, ctrl.reported(1))
}

func TestEngine_FrameAfterRemovalKeepsStateEvicted(t *testing.T) {
	ctrl := newFakeController()
	e := NewEngine(Options{Features: enabled, Compositor: &fakeCompositor{}, Controller: ctrl})
	e.AddDisplay(1, 3, "HDMI-A-1")

	// A frame copied the display out of the registry just before it was unplugged
	d, ok := e.Registry().Get(1)
	require.True(t, ok)
	require.True(t, e.RemoveDisplay(1))

	assert.False(t, e.Tracker().Update(context.Background(), d, []screenshot.Layer{{LayerStack: 3, Screenshot: true}}))
	assert.Zero(t, e.Registry().Count())
	assert.Zero(t, e.Tracker().Tracked())
	assert.Empty(t, ctrl.reported(1))
}

func TestEngine_HotplugHandler(t *testing.T) {
	e := NewEngine(Options{Features: enabled})

	var h hotplug.Handler = e
	h.DisplayAdded(hotplug.Entry{Handle: 4, LayerStack: 7, Name: "DP-3"})

	d, ok := e.Registry().Get(4)
	require.True(t, ok)
	assert.Equal(t, display.CategoryPluggable, d.Category)
	assert.Equal(t, uint32(7), d.LayerStack)

	h.DisplayRemoved(4)
	assert.False(t, e.Registry().Known(4))
}

func TestRangesFromConfig(t *testing.T) {
	cfg := config.DefaultDaemonConfig()
	assert.Equal(t, display.DefaultRanges(), RangesFromConfig(cfg.Displays))
}
