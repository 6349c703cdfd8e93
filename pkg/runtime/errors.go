package runtime

import "fmt"

// Error is a language-level runtime error: the raised value plus the source
// position it was raised from. It unwinds the VM to the nearest protected
// call boundary, where the value is handed to the caller. Errors raised by
// error() carry whatever value the script passed, not just strings.
//
// Internal interpreter invariant violations are Go panics, not Errors, and
// are never catchable from the script.
type Error struct {
	Value  Value
	Source string // chunk name, may be empty
	Line   int    // 0 when unknown
}

// NewError builds a runtime error carrying a plain string message. The
// message value is allocated on the given heap.
func NewError(h *Heap, format string, args ...any) *Error {
	return &Error{Value: h.String(fmt.Sprintf(format, args...))}
}

func (e *Error) Error() string {
	msg := e.Value.String()
	if e.Source != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, msg)
	}
	return msg
}

// AsError extracts a *Error from an error chain, so hosts and the VM can
// tell script-level errors from infrastructure failures.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
