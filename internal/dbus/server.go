package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/gate"
	"github.com/jmylchreest/extanim/internal/screenshot"
)

// Service is the behavior behind the exported interface.
type Service interface {
	HandleTransaction(changes []gate.DisplayChange) (txnID string, res gate.Result)
	FrameComposed(ctx context.Context, layers []screenshot.Layer) bool
	AddDisplay(h display.Handle, layerStack uint32, name string)
	RemoveDisplay(h display.Handle) bool
	Features() config.FeatureConfig
}

// Server exports Service on the bus.
type Server struct {
	service Service
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *dbus.Conn
	running bool
}

// NewServer creates a Server for service.
func NewServer(service Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{service: service, logger: logger}
}

// Start exports the service on conn and claims BusName.
func (s *Server) Start(conn *dbus.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	if err := conn.Export(&object{server: s}, Path, Interface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: Path,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: serviceMethods(),
				Signals: serviceSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), Path,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err == nil && reply != dbus.RequestNameReplyPrimaryOwner {
		err = fmt.Errorf("bus name %s already taken", BusName)
	}
	if err != nil {
		conn.Export(nil, Path, Interface)
		conn.Export(nil, Path, "org.freedesktop.DBus.Introspectable")
		return fmt.Errorf("failed to request bus name: %w", err)
	}

	s.conn = conn
	s.running = true

	s.logger.Info("D-Bus service started", "interface", Interface, "path", Path)
	return nil
}

// Stop unexports the service and releases the bus name. The shared
// connection stays open.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.conn.Export(nil, Path, Interface); err != nil {
		s.logger.Warn("failed to unexport object", "error", err)
	}
	s.conn.Export(nil, Path, "org.freedesktop.DBus.Introspectable")
	if _, err := s.conn.ReleaseName(BusName); err != nil {
		s.logger.Warn("failed to release bus name", "error", err)
	}

	s.logger.Info("D-Bus service stopped")
	return nil
}

// object carries the methods callable over the bus.
type object struct {
	server *Server
}

// HandleTransaction gates a batch of display changes.
// D-Bus method: HandleTransaction(a(iuu)) -> (s ai ai)
func (o *object) HandleTransaction(changes []WireChange) (string, []int32, []int32, *dbus.Error) {
	s := o.server
	s.logger.Debug("HandleTransaction called", "changes", len(changes))

	txnID, res := s.service.HandleTransaction(Changes(changes))
	return txnID, handlesToWire(res.Forced), handlesToWire(res.TimedOut), nil
}

// FrameComposed reports a finished composition pass and the layers it drew.
// D-Bus method: FrameComposed(a(sub)) -> b
func (o *object) FrameComposed(layers []WireLayer) (bool, *dbus.Error) {
	released := o.server.service.FrameComposed(context.Background(), Layers(layers))
	return released, nil
}

// DisplayAdded registers a display.
// D-Bus method: DisplayAdded(i u s)
func (o *object) DisplayAdded(handle int32, layerStack uint32, name string) *dbus.Error {
	if handle < 0 {
		return dbus.MakeFailedError(fmt.Errorf("invalid display handle %d", handle))
	}
	o.server.service.AddDisplay(display.Handle(handle), layerStack, name)
	return nil
}

// DisplayRemoved forgets a display.
// D-Bus method: DisplayRemoved(i) -> b
func (o *object) DisplayRemoved(handle int32) (bool, *dbus.Error) {
	return o.server.service.RemoveDisplay(display.Handle(handle)), nil
}

// GetFeatures returns the loaded feature flags.
// D-Bus method: GetFeatures() -> (b b b)
func (o *object) GetFeatures() (bool, bool, bool, *dbus.Error) {
	f := o.server.service.Features()
	return f.SuppressExternalAnimation, f.AllowHDRFallback, f.DebugLogging, nil
}

func serviceMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "HandleTransaction",
			Args: []introspect.Arg{
				{Name: "changes", Type: "a(iuu)", Direction: "in"},
				{Name: "txn_id", Type: "s", Direction: "out"},
				{Name: "forced", Type: "ai", Direction: "out"},
				{Name: "timed_out", Type: "ai", Direction: "out"},
			},
		},
		{
			Name: "FrameComposed",
			Args: []introspect.Arg{
				{Name: "layers", Type: "a(sub)", Direction: "in"},
				{Name: "released", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "DisplayAdded",
			Args: []introspect.Arg{
				{Name: "handle", Type: "i", Direction: "in"},
				{Name: "layer_stack", Type: "u", Direction: "in"},
				{Name: "name", Type: "s", Direction: "in"},
			},
		},
		{
			Name: "DisplayRemoved",
			Args: []introspect.Arg{
				{Name: "handle", Type: "i", Direction: "in"},
				{Name: "known", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "GetFeatures",
			Args: []introspect.Arg{
				{Name: "suppress_external_animation", Type: "b", Direction: "out"},
				{Name: "allow_hdr_fallback", Type: "b", Direction: "out"},
				{Name: "debug_logging", Type: "b", Direction: "out"},
			},
		},
	}
}

func serviceSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "ForcedPassTimedOut",
			Args: []introspect.Arg{
				{Name: "handle", Type: "i"},
				{Name: "txn_id", Type: "s"},
			},
		},
		{
			Name: "AnimatingChanged",
			Args: []introspect.Arg{
				{Name: "handle", Type: "i"},
				{Name: "animating", Type: "b"},
			},
		},
	}
}
