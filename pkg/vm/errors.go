package vm

import "errors"

var (
	ErrInvalidCommand       = errors.New("invalid command")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrUnresolvedCallTarget = errors.New("unresolved call target")
	ErrUnbalancedControl    = errors.New("unbalanced control structure")
	ErrSourceUnavailable    = errors.New("source unavailable")
)

// KindOf names the taxonomy entry err belongs to, or "Error" when it is
// not one of the sentinels above.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return "InvalidCommand"
	case errors.Is(err, ErrIndexOutOfRange):
		return "IndexOutOfRange"
	case errors.Is(err, ErrUnresolvedCallTarget):
		return "UnresolvedCallTarget"
	case errors.Is(err, ErrUnbalancedControl):
		return "UnbalancedControlStructure"
	case errors.Is(err, ErrSourceUnavailable):
		return "SourceUnavailable"
	}
	return "Error"
}
