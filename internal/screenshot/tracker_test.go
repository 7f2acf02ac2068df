package screenshot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/display"
)

type call struct {
	handle    display.Handle
	animating bool
}

type fakeController struct {
	calls []call
	err   error
}

func (f *fakeController) SetDisplayAnimating(_ context.Context, h display.Handle, animating bool) error {
	f.calls = append(f.calls, call{h, animating})
	return f.err
}

func newTracker(ctrl AnimatingController, suppress bool) *Tracker {
	return NewTracker(Options{
		Features:   config.FeatureConfig{SuppressExternalAnimation: suppress},
		Classifier: display.NewClassifier(display.DefaultRanges()),
		Controller: ctrl,
	})
}

var (
	external = display.Display{Handle: 1, Category: display.CategoryPluggable, LayerStack: 7}
	builtin  = display.Display{Handle: 0, Category: display.CategoryBuiltin, LayerStack: 0}

	withCapture = []Layer{
		{Name: "wallpaper", LayerStack: 7},
		{Name: "screenshot", LayerStack: 7, Screenshot: true},
	}
	withoutCapture = []Layer{
		{Name: "wallpaper", LayerStack: 7},
		{Name: "screenshot", LayerStack: 0, Screenshot: true}, // other stack
	}
)

func TestHasScreenshot(t *testing.T) {
	assert.True(t, HasScreenshot(7, withCapture))
	assert.False(t, HasScreenshot(7, withoutCapture))
	assert.True(t, HasScreenshot(0, withoutCapture))
	assert.False(t, HasScreenshot(7, nil))
}

func TestUpdate_Idempotent(t *testing.T) {
	ctrl := &fakeController{}
	tr := newTracker(ctrl, true)
	ctx := context.Background()

	assert.True(t, tr.Update(ctx, external, withCapture))
	assert.False(t, tr.Update(ctx, external, withCapture))
	assert.Equal(t, []call{{1, true}}, ctrl.calls)
	assert.True(t, tr.IsAnimating(1))
	assert.True(t, tr.Animating())

	assert.True(t, tr.Update(ctx, external, withoutCapture))
	assert.False(t, tr.Update(ctx, external, withoutCapture))
	assert.Equal(t, []call{{1, true}, {1, false}}, ctrl.calls)
	assert.False(t, tr.Animating())
}

func TestUpdate_InitialStateNotReported(t *testing.T) {
	ctrl := &fakeController{}
	tr := newTracker(ctrl, true)

	assert.False(t, tr.Update(context.Background(), external, withoutCapture))
	assert.Empty(t, ctrl.calls)
}

func TestUpdate_Guards(t *testing.T) {
	t.Run("builtin display", func(t *testing.T) {
		ctrl := &fakeController{}
		tr := newTracker(ctrl, true)
		for i := 0; i < 3; i++ {
			tr.Update(context.Background(), builtin, []Layer{{LayerStack: 0, Screenshot: true}})
		}
		assert.Empty(t, ctrl.calls)
	})

	t.Run("feature disabled", func(t *testing.T) {
		ctrl := &fakeController{}
		tr := newTracker(ctrl, false)
		assert.False(t, tr.Active())
		assert.False(t, tr.Update(context.Background(), external, withCapture))
		assert.Empty(t, ctrl.calls)
	})

	t.Run("no controller", func(t *testing.T) {
		tr := newTracker(nil, true)
		assert.False(t, tr.Active())
		assert.False(t, tr.Update(context.Background(), external, withCapture))
		assert.Equal(t, 0, tr.Tracked())
	})
}

func TestUpdate_RetriesAfterFailure(t *testing.T) {
	ctrl := &fakeController{err: errors.New("service busy")}
	tr := newTracker(ctrl, true)
	ctx := context.Background()

	assert.False(t, tr.Update(ctx, external, withCapture))
	assert.False(t, tr.IsAnimating(1))

	// Next frame tries again
	ctrl.err = nil
	assert.True(t, tr.Update(ctx, external, withCapture))
	assert.Equal(t, []call{{1, true}, {1, true}}, ctrl.calls)
	assert.True(t, tr.IsAnimating(1))
}

func TestForget(t *testing.T) {
	ctrl := &fakeController{}
	tr := newTracker(ctrl, true)
	ctx := context.Background()

	tr.Update(ctx, external, withCapture)
	assert.Equal(t, 1, tr.Tracked())

	tr.Forget(1)
	assert.Equal(t, 0, tr.Tracked())
	assert.False(t, tr.IsAnimating(1))

	// A re-plugged display starts from not-animating
	assert.True(t, tr.Update(ctx, external, withCapture))
	assert.Len(t, ctrl.calls, 2)
}

type knownSet map[display.Handle]bool

func (k knownSet) Known(h display.Handle) bool { return k[h] }

func TestUpdate_SkipsDisconnectedDisplay(t *testing.T) {
	ctrl := &fakeController{}
	known := knownSet{1: true}
	tr := NewTracker(Options{
		Features:   config.FeatureConfig{SuppressExternalAnimation: true},
		Classifier: display.NewClassifier(display.DefaultRanges()),
		Controller: ctrl,
		Resolver:   known,
	})
	ctx := context.Background()

	// Display copied out of the registry, then unplugged before the frame lands
	delete(known, 1)
	tr.Forget(1)

	assert.False(t, tr.Update(ctx, external, withCapture))
	assert.Equal(t, 0, tr.Tracked())
	assert.Empty(t, ctrl.calls)
}
