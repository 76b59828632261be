package message

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned by Decode for any line that does not match
// the wire grammar. Returned errors wrap it with the specific reason.
var ErrMalformedMessage = errors.New("malformed message")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}
