package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/screenshot"
)

var (
	// ErrCapabilityMissing is returned when the service lacks the method called.
	ErrCapabilityMissing = errors.New("display-config capability missing")
	// ErrRejected is returned when the service answers with a nonzero status.
	ErrRejected = errors.New("display-config call rejected")
)

// caller is the part of dbus.BusObject the clients use.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// DisplayConfigClient talks to the vendor display-config service.
type DisplayConfigClient struct {
	obj    caller
	logger *slog.Logger

	canIndex     bool
	canAnimating bool
}

// DialDisplayConfig introspects the display-config object and returns a
// client for the capabilities it advertises. An unreachable service is an error.
func DialDisplayConfig(conn *dbus.Conn, name string, path dbus.ObjectPath, logger *slog.Logger) (*DisplayConfigClient, error) {
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", path)
	}
	obj := conn.Object(name, path)
	node, err := introspect.Call(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", name, err)
	}
	return newDisplayConfigClient(obj, node, logger), nil
}

func newDisplayConfigClient(obj caller, node *introspect.Node, logger *slog.Logger) *DisplayConfigClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DisplayConfigClient{
		obj:          obj,
		logger:       logger,
		canIndex:     hasCapability(node, DisplayConfigV1_2, "SetDisplayIndex"),
		canAnimating: hasCapability(node, DisplayConfigV1_1, "SetDisplayAnimating"),
	}
	logger.Debug("display-config capabilities",
		"set_display_index", c.canIndex,
		"set_display_animating", c.canAnimating,
	)
	return c
}

// hasCapability reports whether node's interface iface declares method.
func hasCapability(node *introspect.Node, iface, method string) bool {
	if node == nil {
		return false
	}
	for _, i := range node.Interfaces {
		if i.Name != iface {
			continue
		}
		for _, m := range i.Methods {
			if m.Name == method {
				return true
			}
		}
	}
	return false
}

// CanNegotiate reports whether SetDisplayIndex is available.
func (c *DisplayConfigClient) CanNegotiate() bool {
	return c != nil && c.canIndex
}

// Negotiator returns c as a display.Negotiator, or nil when unsupported.
func (c *DisplayConfigClient) Negotiator() display.Negotiator {
	if !c.CanNegotiate() {
		return nil
	}
	return c
}

// AnimatingController returns c as a screenshot.AnimatingController, or nil
// when the service predates the animating capability.
func (c *DisplayConfigClient) AnimatingController() screenshot.AnimatingController {
	if c == nil || !c.canAnimating {
		return nil
	}
	return c
}

// SetDisplayIndex reserves count handles starting at base for displays of type t.
func (c *DisplayConfigClient) SetDisplayIndex(ctx context.Context, t display.DisplayType, base, count int32) error {
	if !c.CanNegotiate() {
		return ErrCapabilityMissing
	}
	var status int32
	err := c.obj.CallWithContext(ctx, DisplayConfigV1_2+".SetDisplayIndex", 0, uint32(t), uint32(base), uint32(count)).Store(&status)
	if err != nil {
		return fmt.Errorf("SetDisplayIndex(%s): %w", t, err)
	}
	if status != 0 {
		return fmt.Errorf("%w: SetDisplayIndex(%s) status %d", ErrRejected, t, status)
	}
	return nil
}

// SetDisplayAnimating reports whether display h is animating.
func (c *DisplayConfigClient) SetDisplayAnimating(ctx context.Context, h display.Handle, animating bool) error {
	if c == nil || !c.canAnimating {
		return ErrCapabilityMissing
	}
	var status int32
	err := c.obj.CallWithContext(ctx, DisplayConfigV1_1+".SetDisplayAnimating", 0, uint64(h), animating).Store(&status)
	if err != nil {
		return fmt.Errorf("SetDisplayAnimating(%s): %w", h, err)
	}
	if status != 0 {
		return fmt.Errorf("%w: SetDisplayAnimating(%s) status %d", ErrRejected, h, status)
	}
	return nil
}
