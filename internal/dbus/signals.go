package dbus

import (
	"fmt"

	"github.com/jmylchreest/extanim/internal/display"
)

// EmitForcedPassTimedOut emits ForcedPassTimedOut for a pass whose frame never arrived.
func (s *Server) EmitForcedPassTimedOut(h display.Handle, txnID string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	if err := conn.Emit(Path, Interface+".ForcedPassTimedOut", int32(h), txnID); err != nil {
		return fmt.Errorf("failed to emit ForcedPassTimedOut signal: %w", err)
	}

	s.logger.Debug("emitted ForcedPassTimedOut signal", "display", h, "txn_id", txnID)
	return nil
}

// EmitAnimatingChanged emits AnimatingChanged after the flag reached the display-config service.
func (s *Server) EmitAnimatingChanged(h display.Handle, animating bool) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	if err := conn.Emit(Path, Interface+".AnimatingChanged", int32(h), animating); err != nil {
		return fmt.Errorf("failed to emit AnimatingChanged signal: %w", err)
	}

	s.logger.Debug("emitted AnimatingChanged signal", "display", h, "animating", animating)
	return nil
}
