package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/extanim/internal/display"
)

// Emitter publishes engine events to listeners outside the process.
type Emitter interface {
	EmitForcedPassTimedOut(h display.Handle, txnID string) error
	EmitAnimatingChanged(h display.Handle, animating bool) error
}

// DefaultMinInterval is how often the same timeout may be re-announced.
const DefaultMinInterval = 5 * time.Second

// Notifier forwards engine events to an Emitter. Timeout announcements are
// rate-limited per display so a stalled compositor does not flood the bus.
type Notifier struct {
	mu      sync.Mutex
	logger  *slog.Logger
	emitter Emitter

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration
	now            func() time.Time
}

// NewNotifier creates a Notifier that emits through emitter.
func NewNotifier(emitter Emitter, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:         logger,
		emitter:        emitter,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    DefaultMinInterval,
		now:            time.Now,
	}
}

// SetMinInterval sets the minimum interval between repeated timeout announcements.
func (n *Notifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Attach registers the notifier's handlers on e.
func (n *Notifier) Attach(e *Engine) {
	e.SetTimeoutHandler(n.ForcedPassTimedOut)
	e.SetAnimatingHandler(n.AnimatingChanged)
}

// ForcedPassTimedOut announces a forced pass that ended without a frame.
func (n *Notifier) ForcedPassTimedOut(h display.Handle, txnID string) {
	if !n.allow(fmt.Sprintf("timeout-%d", h)) {
		n.logger.Debug("timeout announcement rate-limited", "display", h, "txn_id", txnID)
		return
	}
	if err := n.emitter.EmitForcedPassTimedOut(h, txnID); err != nil {
		n.logger.Warn("failed to announce forced pass timeout", "display", h, "error", err)
	}
}

// AnimatingChanged announces a new animating flag.
func (n *Notifier) AnimatingChanged(h display.Handle, animating bool) {
	if err := n.emitter.EmitAnimatingChanged(h, animating); err != nil {
		n.logger.Warn("failed to announce animating change", "display", h, "error", err)
	}
}

func (n *Notifier) allow(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastNotifyTime[key]; ok && now.Sub(last) < n.minInterval {
		return false
	}
	n.lastNotifyTime[key] = now
	return true
}
