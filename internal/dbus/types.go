package dbus

import (
	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/gate"
	"github.com/jmylchreest/extanim/internal/screenshot"
)

const (
	// Interface is the exported service interface name.
	Interface = "io.github.jmylchreest.ExtAnim1"
	// Path is the exported service object path.
	Path = "/io/github/jmylchreest/ExtAnim1"
	// BusName is the bus name to claim.
	BusName = "io.github.jmylchreest.ExtAnim1"

	// DisplayConfigV1_1 provides SetDisplayAnimating.
	DisplayConfigV1_1 = "vendor.display.config.V1_1.IDisplayConfig"
	// DisplayConfigV1_2 provides SetDisplayIndex.
	DisplayConfigV1_2 = "vendor.display.config.V1_2.IDisplayConfig"

	// CompositorInterface is the compositor's refresh interface.
	CompositorInterface = "io.github.jmylchreest.Compositor1"
)

// WireChange is one element of a HandleTransaction batch, signature (iuu).
type WireChange struct {
	Handle      int32
	What        uint32
	Orientation uint32
}

// WireLayer is one composed layer, signature (sub).
type WireLayer struct {
	Name       string
	LayerStack uint32
	Screenshot bool
}

// Changes converts a wire batch to gate changes.
func Changes(in []WireChange) []gate.DisplayChange {
	out := make([]gate.DisplayChange, 0, len(in))
	for _, c := range in {
		out = append(out, gate.DisplayChange{
			Handle:      display.Handle(c.Handle),
			What:        gate.ChangeFlags(c.What),
			Orientation: gate.Orientation(c.Orientation),
		})
	}
	return out
}

// Layers converts wire layers to tracker layers.
func Layers(in []WireLayer) []screenshot.Layer {
	out := make([]screenshot.Layer, 0, len(in))
	for _, l := range in {
		out = append(out, screenshot.Layer{
			Name:       l.Name,
			LayerStack: l.LayerStack,
			Screenshot: l.Screenshot,
		})
	}
	return out
}

func handlesToWire(hs []display.Handle) []int32 {
	out := make([]int32, 0, len(hs))
	for _, h := range hs {
		out = append(out, int32(h))
	}
	return out
}
