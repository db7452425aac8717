package offset

import (
	"github.com/wippyai/ipcgen/errors"
)

// Tracker follows the write position of one message region. It starts
// constant and becomes dynamic the first time a runtime-sized slot is
// appended; the transition cannot be undone.
type Tracker struct {
	name    string
	pos     uint32
	fixed   uint32
	dynamic bool
}

// New returns a constant tracker at 0. name is the runtime offset variable
// reported by Current once the region is dynamic.
func New(name string) *Tracker {
	return &Tracker{name: name}
}

// NewAt returns a tracker that starts at o. A symbolic start is dynamic from
// the first slot on.
func NewAt(name string, o Offset) *Tracker {
	t := &Tracker{name: name}
	if o.IsConstant() {
		t.pos = o.Const
	} else {
		t.dynamic = true
	}
	return t
}

// AdvanceBy moves past a slot of size n. A dynamic n marks the tracker
// dynamic before anything else.
func (t *Tracker) AdvanceBy(n Size) error {
	if n.Dynamic {
		t.dynamic = true
		return nil
	}
	fixed, ok := SafeAddU32(t.fixed, n.Bytes)
	if !ok {
		return errors.UnsupportedLayout(nil, "message exceeds 4 GiB")
	}
	t.fixed = fixed
	if t.dynamic {
		return nil
	}
	pos, ok := SafeAddU32(t.pos, n.Bytes)
	if !ok {
		return errors.UnsupportedLayout(nil, "message exceeds 4 GiB")
	}
	t.pos = pos
	return nil
}

// MarkDynamic switches to runtime offsets.
func (t *Tracker) MarkDynamic() {
	t.dynamic = true
}

func (t *Tracker) IsDynamic() bool {
	return t.dynamic
}

// Current returns the offset of the next slot.
func (t *Tracker) Current() Offset {
	if t.dynamic {
		return Symbolic(t.name)
	}
	return At(t.pos)
}

// Pos is the constant position. It stops moving once the tracker is dynamic.
func (t *Tracker) Pos() uint32 {
	return t.pos
}

// Fixed is the sum of all fixed-size advances, including those made after the
// region went dynamic.
func (t *Tracker) Fixed() uint32 {
	return t.fixed
}

// Name is the runtime offset variable.
func (t *Tracker) Name() string {
	return t.name
}

// Fork returns an independent copy, used to plan union arms side by side.
func (t *Tracker) Fork() *Tracker {
	c := *t
	return &c
}
