package codec

import (
	"fmt"

	"github.com/opd-ai/secstream/crypto"
)

// IngressKind identifies the type of a decoded protocol value.
type IngressKind uint8

const (
	// IngressAck is the responder's handshake acknowledgement.
	IngressAck IngressKind = iota + 1
	// IngressAuthReceive is the initiator's handshake opening, carrying its identity.
	IngressAuthReceive
	// IngressMessage is an application payload frame.
	IngressMessage
)

// String returns the wire-facing name of the kind.
func (k IngressKind) String() string {
	switch k {
	case IngressAck:
		return "ack"
	case IngressAuthReceive:
		return "auth-receive"
	case IngressMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// IngressValue is a protocol value received from the peer. Exactly one of the
// optional fields is meaningful depending on Kind: RemoteID for AuthReceive,
// Payload for Message.
type IngressValue struct {
	Kind     IngressKind
	RemoteID crypto.PeerID
	Payload  []byte
}

// String describes the value for error reporting and logs.
func (v *IngressValue) String() string {
	if v == nil {
		return "none"
	}
	switch v.Kind {
	case IngressAuthReceive:
		return fmt.Sprintf("auth-receive(%s)", v.RemoteID)
	case IngressMessage:
		return fmt.Sprintf("message(%d bytes)", len(v.Payload))
	default:
		return v.Kind.String()
	}
}

// EgressKind identifies the type of a protocol value to be sent.
type EgressKind uint8

const (
	// EgressAuth is the initiator's handshake opening.
	EgressAuth EgressKind = iota + 1
	// EgressAck is the responder's handshake acknowledgement.
	EgressAck
	// EgressMessage is an application payload frame.
	EgressMessage
)

// String returns the wire-facing name of the kind.
func (k EgressKind) String() string {
	switch k {
	case EgressAuth:
		return "auth"
	case EgressAck:
		return "ack"
	case EgressMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// EgressValue is a protocol value constructed locally for transmission.
// Payload is meaningful only for Message values.
type EgressValue struct {
	Kind    EgressKind
	Payload []byte
}

// String describes the value for error reporting and logs.
func (v *EgressValue) String() string {
	if v == nil {
		return "none"
	}
	if v.Kind == EgressMessage {
		return fmt.Sprintf("message(%d bytes)", len(v.Payload))
	}
	return v.Kind.String()
}

// Auth constructs the initiator's handshake opening value.
func Auth() *EgressValue {
	return &EgressValue{Kind: EgressAuth}
}

// Ack constructs the responder's handshake acknowledgement value.
func Ack() *EgressValue {
	return &EgressValue{Kind: EgressAck}
}

// Message wraps an application payload as an egress value.
func Message(payload []byte) *EgressValue {
	return &EgressValue{Kind: EgressMessage, Payload: payload}
}
