package wire

import (
	"fmt"

	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/planner"
)

// RegisterFile is a short-IPC message: the tag register and one word per
// payload register, in the order of RegisterMap.Registers.
type RegisterFile struct {
	Words []uint64
	Tag   uint64
}

// Named returns the payload words keyed by register name.
func (f *RegisterFile) Named(rm planner.RegisterMap) map[string]uint64 {
	out := make(map[string]uint64, len(f.Words))
	for i, w := range f.Words {
		if i < len(rm.Registers) {
			out[rm.Registers[i].Name] = w
		}
	}
	return out
}

// Get returns the payload word holding the value at name.
func (f *RegisterFile) Get(rm planner.RegisterMap, name string) (uint64, bool) {
	i, ok := rm.Values[name]
	if !ok || i < 1 || i > len(f.Words) {
		return 0, false
	}
	return f.Words[i-1], true
}

// Registers loads an encoded short-IPC message into registers. The header
// word becomes the tag, the words after it the payload.
func (e *Encoder) Registers(plan *planner.MarshalPlan, rm planner.RegisterMap, msg *Message) (*RegisterFile, error) {
	word := e.cells.facts.WordSize()
	start, err := registerLayout(plan, rm, word)
	if err != nil {
		return nil, err
	}
	buf := msg.Buf
	rf := &RegisterFile{Words: make([]uint64, rm.Words)}
	if h := plan.Header(); h != nil {
		end := h.Offset.Const + h.Size.Bytes
		if int(end) > len(buf) {
			return nil, errors.OutOfBounds(errors.PhaseMarshal, nil, int(end), len(buf))
		}
		rf.Tag = getUint(buf[h.Offset.Const:end], h.Size.Bytes)
	}
	for i := range rf.Words {
		at := start + uint32(i)*word
		if at >= uint32(len(buf)) {
			break
		}
		// the last word may run past a message shorter than a full word
		var w [8]byte
		copy(w[:word], buf[at:])
		rf.Words[i] = getUint(w[:word], word)
	}
	return rf, nil
}

// FromRegisters rebuilds the message a short-IPC receiver decodes.
func (d *Decoder) FromRegisters(plan *planner.MarshalPlan, rm planner.RegisterMap, rf *RegisterFile) (*Message, error) {
	word := d.cells.facts.WordSize()
	start, err := registerLayout(plan, rm, word)
	if err != nil {
		return nil, err
	}
	if len(rf.Words) < rm.Words {
		return nil, errors.OutOfBounds(errors.PhaseUnmarshal, nil, rm.Words, len(rf.Words))
	}
	buf := make([]byte, max(start+uint32(rm.Words)*word, plan.FixedSize))
	if h := plan.Header(); h != nil {
		putUint(buf[h.Offset.Const:], h.Size.Bytes, rf.Tag)
	}
	for i := 0; i < rm.Words; i++ {
		putUint(buf[start+uint32(i)*word:], word, rf.Words[i])
	}
	return NewMessage(buf), nil
}

func registerLayout(plan *planner.MarshalPlan, rm planner.RegisterMap, word uint32) (uint32, error) {
	if !plan.ShortIPC {
		return 0, errors.InvalidInput(errors.PhaseMarshal,
			fmt.Sprintf("%s %s does not travel in registers", plan.Operation, plan.Flow))
	}
	if rm.Words > len(rm.Registers) {
		return 0, errors.InvalidInput(errors.PhaseMarshal,
			fmt.Sprintf("%d payload words exceed %d registers", rm.Words, len(rm.Registers)))
	}
	if word != 4 && word != 8 {
		return 0, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("word size %d", word))
	}
	var start uint32
	if h := plan.Header(); h != nil {
		start = h.Offset.Const + h.Size.Bytes
	}
	return start, nil
}
