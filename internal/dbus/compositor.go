package dbus

import (
	"context"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// CompositorProxy forwards refresh requests to the compositor. Calls are
// fire-and-forget; the composed frame comes back through FrameComposed.
type CompositorProxy struct {
	obj    caller
	logger *slog.Logger
}

// NewCompositorProxy returns a proxy for the compositor object name at path.
func NewCompositorProxy(conn *dbus.Conn, name string, path dbus.ObjectPath, logger *slog.Logger) *CompositorProxy {
	return newCompositorProxy(conn.Object(name, path), logger)
}

func newCompositorProxy(obj caller, logger *slog.Logger) *CompositorProxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositorProxy{obj: obj, logger: logger}
}

// InvalidateGeometry marks every layer's geometry dirty.
func (p *CompositorProxy) InvalidateGeometry() {
	p.send("InvalidateGeometry")
}

// ForceFullRepaint repaints every display on the next pass.
func (p *CompositorProxy) ForceFullRepaint() {
	p.send("ForceFullRepaint")
}

// RequestRefresh schedules a composition pass.
func (p *CompositorProxy) RequestRefresh() {
	p.send("RequestRefresh")
}

func (p *CompositorProxy) send(method string) {
	call := p.obj.CallWithContext(context.Background(), CompositorInterface+"."+method, dbus.FlagNoReplyExpected)
	if call.Err != nil {
		p.logger.Warn("compositor call failed", "method", method, "error", call.Err)
	}
}
