// Package path keeps the member access path of the parameter being planned.
package path

import (
	"strconv"
	"strings"
)

// Stack is a path of member names and index segments, e.g. req.items[2].len.
type Stack struct {
	segs []string
}

// Index returns the segment for element i of an array.
func Index(i uint32) string {
	return "[" + strconv.FormatUint(uint64(i), 10) + "]"
}

// IsIndex reports whether seg was produced by Index.
func IsIndex(seg string) bool {
	return strings.HasPrefix(seg, "[")
}

// ParseIndex returns the element number of an index segment.
func ParseIndex(seg string) (uint32, bool) {
	if !IsIndex(seg) || !strings.HasSuffix(seg, "]") {
		return 0, false
	}
	n, err := strconv.ParseUint(seg[1:len(seg)-1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func (s *Stack) Push(seg string) {
	s.segs = append(s.segs, seg)
}

// Pop removes the last segment. Popping an empty stack is a planner bug.
func (s *Stack) Pop() {
	if len(s.segs) == 0 {
		panic("path: pop on empty stack")
	}
	s.segs = s.segs[:len(s.segs)-1]
}

// With runs fn with seg pushed and pops it on every return path, including
// panics.
func (s *Stack) With(seg string, fn func() error) error {
	s.Push(seg)
	defer s.Pop()
	return fn()
}

func (s *Stack) Len() int {
	return len(s.segs)
}

// Segments returns a copy of the current path.
func (s *Stack) Segments() []string {
	out := make([]string, len(s.segs))
	copy(out, s.segs)
	return out
}

func (s *Stack) String() string {
	return Join(s.segs)
}

// Join renders segments with dots between names and no dot before indexes.
func Join(segs []string) string {
	var b strings.Builder
	for i, seg := range segs {
		if i > 0 && !IsIndex(seg) {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}
