package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"strconv"
)

// Handle identifies a physical or virtual output.
type Handle int32

// String returns the decimal form of the handle.
func (h Handle) String() string {
	return strconv.Itoa(int(h))
}

// Category is the semantic class of a display.
type Category int

const (
	// CategoryInvalid is any handle outside the configured ranges.
	CategoryInvalid Category = iota
	// CategoryBuiltin is a built-in panel.
	CategoryBuiltin
	// CategoryPluggable is a hot-pluggable physical output (HDMI, DP).
	CategoryPluggable
	// CategoryVirtual is a non-physical composition target.
	CategoryVirtual
)

// String returns the string representation of Category.
func (c Category) String() string {
	switch c {
	case CategoryBuiltin:
		return "builtin"
	case CategoryPluggable:
		return "pluggable"
	case CategoryVirtual:
		return "virtual"
	default:
		return "invalid"
	}
}

// MaxHandles is the capacity of a BuiltinSet.
const MaxHandles = 64

// BuiltinSet is a fixed-size set of built-in display handles.
type BuiltinSet uint64

// NewBuiltinSet returns a set holding handles. Handles outside [0, MaxHandles) are ignored.
func NewBuiltinSet(handles ...Handle) BuiltinSet {
	var s BuiltinSet
	for _, h := range handles {
		if h >= 0 && h < MaxHandles {
			s |= 1 << uint(h)
		}
	}
	return s
}

// Has reports whether h is in the set.
func (s BuiltinSet) Has(h Handle) bool {
	if h < 0 || h >= MaxHandles {
		return false
	}
	return s&(1<<uint(h)) != 0
}

// Len returns the number of handles in the set.
func (s BuiltinSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Handles returns the members in ascending order.
func (s BuiltinSet) Handles() []Handle {
	out := make([]Handle, 0, s.Len())
	for h := Handle(0); h < MaxHandles; h++ {
		if s.Has(h) {
			out = append(out, h)
		}
	}
	return out
}

// Ranges is the display index layout.
//
// Handles in [0, PhysicalCount) are physical outputs. Primary and the builtin
// block are built-in panels; any other physical handle is pluggable, even one
// that sits numerically between built-in indices. The virtual block lies at or
// above PhysicalCount.
type Ranges struct {
	PhysicalCount  int32
	Primary        Handle
	BuiltinBase    int32
	BuiltinCount   int32
	PluggableBase  int32
	PluggableCount int32
	VirtualBase    int32
	VirtualCount   int32
}

// DefaultRanges returns the static layout used when negotiation is unavailable:
// primary 0, pluggable 1-4, secondary built-ins 5-7, virtual 8.
func DefaultRanges() Ranges {
	return Ranges{
		PhysicalCount:  8,
		Primary:        0,
		BuiltinBase:    5,
		BuiltinCount:   3,
		PluggableBase:  1,
		PluggableCount: 4,
		VirtualBase:    8,
		VirtualCount:   1,
	}
}

// BuiltinSet derives the set of built-in handles from the layout.
func (r Ranges) BuiltinSet() BuiltinSet {
	handles := []Handle{r.Primary}
	for i := int32(0); i < r.BuiltinCount; i++ {
		handles = append(handles, Handle(r.BuiltinBase+i))
	}
	return NewBuiltinSet(handles...)
}

// Classifier maps handles to categories. It is immutable once built.
type Classifier struct {
	ranges  Ranges
	builtin BuiltinSet
}

// NewClassifier returns a classifier whose builtin set is derived from r.
func NewClassifier(r Ranges) *Classifier {
	return &Classifier{ranges: r, builtin: r.BuiltinSet()}
}

// NewClassifierWithSet returns a classifier with an explicit builtin set.
func NewClassifierWithSet(r Ranges, builtin BuiltinSet) *Classifier {
	return &Classifier{ranges: r, builtin: builtin}
}

// Ranges returns the layout the classifier was built with.
func (c *Classifier) Ranges() Ranges {
	return c.ranges
}

// Builtin returns the builtin set.
func (c *Classifier) Builtin() BuiltinSet {
	return c.builtin
}

// Classify returns the category of h. Unknown handles are CategoryInvalid.
func (c *Classifier) Classify(h Handle) Category {
	if c == nil || h < 0 {
		return CategoryInvalid
	}
	if int32(h) < c.ranges.PhysicalCount {
		if c.builtin.Has(h) {
			return CategoryBuiltin
		}
		return CategoryPluggable
	}
	if c.ranges.VirtualCount > 0 &&
		int32(h) >= c.ranges.VirtualBase &&
		int32(h) < c.ranges.VirtualBase+c.ranges.VirtualCount {
		return CategoryVirtual
	}
	return CategoryInvalid
}

// IsBuiltin reports whether h is a built-in display.
func (c *Classifier) IsBuiltin(h Handle) bool {
	return c.Classify(h) == CategoryBuiltin
}

// IsExternal reports whether h is pluggable or virtual.
func (c *Classifier) IsExternal(h Handle) bool {
	switch c.Classify(h) {
	case CategoryPluggable, CategoryVirtual:
		return true
	default:
		return false
	}
}

// DisplayType is the category identifier understood by the display-config service.
type DisplayType int32

const (
	DisplayTypeVirtual   DisplayType = 2
	DisplayTypeBuiltin   DisplayType = 3
	DisplayTypePluggable DisplayType = 4
)

// String returns the string representation of DisplayType.
func (t DisplayType) String() string {
	switch t {
	case DisplayTypeVirtual:
		return "virtual"
	case DisplayTypeBuiltin:
		return "builtin"
	case DisplayTypePluggable:
		return "pluggable"
	default:
		return "unknown"
	}
}

// Negotiator assigns index blocks on the display-config service.
type Negotiator interface {
	SetDisplayIndex(ctx context.Context, t DisplayType, base, count int32) error
}

// ErrNoNegotiator is returned by Negotiate when no service is available.
var ErrNoNegotiator = errors.New("display-index service unavailable")

// Negotiate asks n to adopt the builtin, pluggable and virtual blocks of want,
// in that order, stopping at the first failure. It returns want on success and
// DefaultRanges otherwise, together with the reason.
func Negotiate(ctx context.Context, n Negotiator, want Ranges, logger *slog.Logger) (Ranges, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		logger.Debug("no display-index service, using static layout")
		return DefaultRanges(), ErrNoNegotiator
	}

	steps := []struct {
		t           DisplayType
		base, count int32
	}{
		{DisplayTypeBuiltin, want.BuiltinBase, want.BuiltinCount},
		{DisplayTypePluggable, want.PluggableBase, want.PluggableCount},
		{DisplayTypeVirtual, want.VirtualBase, want.VirtualCount},
	}

	for _, s := range steps {
		if err := n.SetDisplayIndex(ctx, s.t, s.base, s.count); err != nil {
			logger.Warn("display index negotiation failed, using static layout",
				"type", s.t.String(), "base", s.base, "count", s.count, "error", err)
			return DefaultRanges(), fmt.Errorf("set %s index: %w", s.t, err)
		}
		logger.Debug("display index assigned", "type", s.t.String(), "base", s.base, "count", s.count)
	}

	return want, nil
}
