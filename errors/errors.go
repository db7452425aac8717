package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in planning the error occurred
type Phase string

const (
	PhaseLoad      Phase = "load"      // interface description loading
	PhaseSort      Phase = "sort"      // parameter ordering
	PhaseCount     Phase = "count"     // per-interface flexpage counting
	PhasePlan      Phase = "plan"      // per-parameter slot planning
	PhaseFinalize  Phase = "finalize"  // plan sealing and short-IPC analysis
	PhaseMarshal   Phase = "marshal"   // values into a message buffer
	PhaseUnmarshal Phase = "unmarshal" // message buffer into values
	PhaseConfig    Phase = "config"    // options and ABI tables
)

// Kind categorizes the error
type Kind string

const (
	KindAttributeConflict Kind = "attribute_conflict"
	KindUnsupportedLayout Kind = "unsupported_layout"
	KindFlexpageOrdering  Kind = "flexpage_ordering"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindNotFound          Kind = "not_found"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindAllocation        Kind = "allocation"
	KindOverflow          Kind = "overflow"
)

// Error is the structured error type used by the planner and its collaborators
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Operation string
	Type      string
	Detail    string
	Path      []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Operation != "" {
		b.WriteString(" in ")
		b.WriteString(e.Operation)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase on the target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase == "" {
			return e.Kind == t.Kind
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Operation sets the operation name
func (b *Builder) Operation(name string) *Builder {
	b.err.Operation = name
	return b
}

// Type sets the IDL type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// AttributeConflict creates an error for a sizing attribute that cannot be honored
func AttributeConflict(path []string, attr, detail string) *Error {
	return &Error{
		Phase:  PhasePlan,
		Kind:   KindAttributeConflict,
		Path:   path,
		Detail: fmt.Sprintf("%s: %s", attr, detail),
	}
}

// UnsupportedLayout creates an error for an element the active strategy cannot place
func UnsupportedLayout(path []string, what string) *Error {
	return &Error{
		Phase:  PhasePlan,
		Kind:   KindUnsupportedLayout,
		Path:   path,
		Detail: what,
	}
}

// FlexpageOrdering creates the internal-consistency error raised when a flexpage
// would end up behind a non-flexpage element. It is used as a panic value.
func FlexpageOrdering(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFlexpageOrdering,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset %d out of bounds (length %d)", offset, length),
		Value:  offset,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, what),
		Value:  value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates an interface loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// InOperation returns a copy of err tagged with the operation name.
// Errors that are not *Error are wrapped as invalid data.
func InOperation(err error, op string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		c := *e
		c.Operation = op
		return &c
	}
	return &Error{
		Phase:     PhasePlan,
		Kind:      KindInvalidData,
		Operation: op,
		Cause:     err,
	}
}
