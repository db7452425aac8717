package planner

import "fmt"

// State is the phase of one MarshalContext.
type State uint8

const (
	StateStart State = iota
	StateSorting
	StatePlanning
	StateFlexpageClosing
	StateFinalizing
)

var stateNames = [...]string{"start", "sorting", "planning", "flexpage-closing", "finalizing"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

var transitions = map[State][]State{
	StateStart:           {StateSorting},
	StateSorting:         {StatePlanning},
	StatePlanning:        {StateFlexpageClosing, StateFinalizing},
	StateFlexpageClosing: {StatePlanning, StateFinalizing},
}

// transition moves to next. Any other order is a planner bug.
func (c *MarshalContext) transition(next State) {
	for _, s := range transitions[c.state] {
		if s == next {
			debugf("%s/%s: %s -> %s", c.Op.Name, c.Flow, c.state, next)
			c.state = next
			return
		}
	}
	panic(fmt.Sprintf("planner: illegal transition %s -> %s", c.state, next))
}

// State returns the current phase.
func (c *MarshalContext) State() State {
	return c.state
}
