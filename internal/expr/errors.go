package expr

import (
	"errors"
	"fmt"
)

// ErrInvalidOperation is matched by every evaluation and parse failure.
var ErrInvalidOperation = errors.New("invalid operation")

// Error names the operator and the violated constraint.
type Error struct {
	Op  string
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid operation %q: %s", e.Op, e.Msg)
}

func (e *Error) Is(target error) bool { return target == ErrInvalidOperation }

func errorf(op Op, format string, args ...any) error {
	return &Error{Op: op.String(), Msg: fmt.Sprintf(format, args...)}
}
