package interp

import "fmt"

// RuntimeError is a typed evaluation failure: a type mismatch, a bad
// argument count, division by zero, an unknown function or action.
// The executor catches these per rule; they terminate the rule and
// are logged with the rule id and line.
type RuntimeError struct {
	Msg  string
	Line int
}

func (e *RuntimeError) Error() string {
	return "RuntimeError: " + e.Msg
}

// Errf makes a RuntimeError at the given line.
func Errf(line int, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{
		Msg:  fmt.Sprintf(format, args...),
		Line: line,
	}
}

// ResolveError is a failure to resolve a context-variable path:
// an unknown path component against a non-null parent, or a store
// failure.  The resolver converts misses on vars.* paths to null
// itself; a ResolveError that reaches the executor fails the rule.
type ResolveError struct {
	Path string
	Msg  string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("cannot resolve '%s': %s", e.Path, e.Msg)
}
