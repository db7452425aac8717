package planner

import (
	"fmt"

	"github.com/wippyai/ipcgen/errors"
)

// Validate checks the layout invariants of a finished plan: within each
// region constant offsets are contiguous and never follow a symbolic one,
// and the fixed size is word-rounded.
func (p *MarshalPlan) Validate(word uint32) error {
	if word != 0 && p.FixedSize%word != 0 {
		return p.invalid(fmt.Sprintf("fixed size %d is not a multiple of %d", p.FixedSize, word))
	}
	for _, region := range []Region{RegionMain, RegionStrings} {
		if err := p.checkRegion(region); err != nil {
			return err
		}
	}
	return nil
}

func (p *MarshalPlan) checkRegion(region Region) error {
	var (
		next    uint32
		started bool
		dynamic bool
	)
	for i := range p.Slots {
		s := &p.Slots[i]
		if s.Region != region || s.Kind.IsControl() {
			continue
		}
		if !s.Offset.IsConstant() {
			dynamic = true
			continue
		}
		if dynamic {
			return p.invalid(fmt.Sprintf("%s slot %s at %d after a runtime offset", s.Kind, s.Name(), s.Offset.Const))
		}
		if started && s.Offset.Const != next {
			return p.invalid(fmt.Sprintf("%s slot %s at %d, want %d", s.Kind, s.Name(), s.Offset.Const, next))
		}
		started = true
		if s.Size.Dynamic {
			dynamic = true
			continue
		}
		next = s.Offset.Const + s.Size.Bytes
	}
	return nil
}

func (p *MarshalPlan) invalid(detail string) error {
	return errors.New(errors.PhaseFinalize, errors.KindInvalidData).
		Operation(p.Operation).
		Detail("%s: %s", p.Flow, detail).
		Build()
}
