package conn

import "errors"

var (
	// ErrNotConnected is returned by every operation on a dead connection.
	// The returned error also wraps the failure that killed the connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyDisconnected is returned by Disconnect on a dead connection.
	ErrAlreadyDisconnected = errors.New("already disconnected")

	// ErrDisconnected is the recorded cause after an explicit Disconnect.
	ErrDisconnected = errors.New("disconnected by local side")

	// ErrNilMessage is returned when Send is given a nil message.
	ErrNilMessage = errors.New("nil message")
)
