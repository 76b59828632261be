package hub

import "errors"

var (
	// ErrAlreadyStopped is returned by StopAccepting once the listener is closed.
	ErrAlreadyStopped = errors.New("hub already stopped accepting")

	// ErrInvalidGenerator is returned by SendUniqueToEach when the generator
	// is nil or yields a nil message.
	ErrInvalidGenerator = errors.New("generator produced no message")
)
