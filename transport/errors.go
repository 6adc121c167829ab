package transport

import (
	"errors"
	"fmt"

	"github.com/opd-ai/secstream/codec"
)

// Common errors for encrypted sessions.
var (
	// ErrConnClosed indicates the session or adapter has been closed locally.
	ErrConnClosed = errors.New("connection closed")

	// ErrTruncatedFrame indicates the transport ended in the middle of a frame.
	ErrTruncatedFrame = errors.New("transport closed mid-frame")
)

// HandshakeError reports a handshake that failed because the peer sent
// something other than the expected protocol value, the connection ended
// first, or a frame failed decoding. Got is nil when no value was observed;
// Err carries the underlying decode or transport failure, if any.
type HandshakeError struct {
	Role     codec.Role
	Expected codec.IngressValue
	Got      *codec.IngressValue
	Err      error
}

func (e *HandshakeError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s handshake: expected %s: %v", e.Role, e.Expected.String(), e.Err)
	case e.Got != nil:
		return fmt.Sprintf("%s handshake: expected %s, got %s", e.Role, e.Expected.String(), e.Got)
	default:
		return fmt.Sprintf("%s handshake: expected %s, stream ended", e.Role, e.Expected.String())
	}
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a non-Message protocol value observed on an
// established session. It indicates peer or codec desync; the caller should
// terminate the session.
type ProtocolError struct {
	Got *codec.IngressValue
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: expected message, got %s", e.Got)
}
