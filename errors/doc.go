// Package errors provides structured error types for the layout planner.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the operation name, the member path, the IDL type and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhasePlan, errors.KindAttributeConflict).
//		Operation("read").
//		Path("buf").
//		Detail("size_is names unknown sibling %q", "len").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AttributeConflict(path, "size_is", "sibling \"len\" does not exist")
//	err := errors.UnsupportedLayout(path, "indirect string inside union")
//
// A target Error with an empty Phase matches on Kind alone, so callers can test
// errors.Is(err, &errors.Error{Kind: errors.KindAttributeConflict}).
package errors
