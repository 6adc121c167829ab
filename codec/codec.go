// Package codec implements the encrypting codec behind a secstream session.
//
// The codec binds a local secret key and a role to a Noise IK channel
// (Curve25519 key agreement, ChaCha20-Poly1305 framing, SHA-256 hashing via
// the formally verified flynn/noise library). IK matches the session
// handshake exactly: the client must know the server's static public key
// before connecting, and the server learns the client's identity from the
// opening message.
//
// Wire format, one frame per protocol value:
//
//	[tag (1 byte)][payload length (4 bytes, big endian)][payload]
//
// Auth and Ack frames carry the two IK handshake messages; Message frames
// carry an AEAD-sealed application payload. Decode is incremental and
// consumes nothing until a full frame is buffered, so a fragmenting
// transport never corrupts codec state.
package codec

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/flynn/noise"

	"github.com/opd-ai/secstream/crypto"
)

// Frame layout constants.
const (
	frameHeaderSize = 5

	// maxFramePayload bounds the announced payload length of a single frame.
	// Noise transport messages cannot exceed 65535 bytes, so anything larger
	// is a malformed or hostile announcement.
	maxFramePayload = 65535

	// MaxMessageSize is the largest application payload a single Message
	// frame can carry, leaving room for the 16-byte AEAD tag.
	MaxMessageSize = maxFramePayload - 16
)

// Frame tags.
const (
	tagAuth    byte = 0x01
	tagAck     byte = 0x02
	tagMessage byte = 0x03
)

var (
	// ErrFrameTooLarge indicates a frame announcing a payload beyond the protocol maximum.
	ErrFrameTooLarge = errors.New("frame payload exceeds protocol maximum")
	// ErrMessageTooLarge indicates an application payload too large for one frame.
	ErrMessageTooLarge = errors.New("message payload exceeds maximum frame size")
	// ErrUnknownFrameTag indicates a frame with an unrecognized tag byte.
	ErrUnknownFrameTag = errors.New("unknown frame tag")
	// ErrHandshakeNotComplete indicates a data operation attempted before the handshake finished.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates a handshake operation attempted after completion.
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrInvalidState indicates a protocol value that this role cannot produce
	// in its current handshake state.
	ErrInvalidState = errors.New("invalid value for current handshake state")
)

// Role defines which side of the handshake this codec drives.
type Role uint8

const (
	// RoleClient initiates the handshake and knows the peer's identity up front.
	RoleClient Role = iota
	// RoleServer responds to a handshake and discovers the peer's identity.
	RoleServer
)

// String returns the role name for logs and errors.
func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Codec encrypts egress protocol values and decrypts ingress ones for a
// single session. It is a state machine: Auth and Ack frames are only
// processed in the role and order the handshake prescribes, and Message
// frames only once the handshake completed. A Codec is not safe for
// concurrent use; the framed adapter above it serializes access per
// direction.
type Codec struct {
	role     Role
	state    *noise.HandshakeState
	send     *noise.CipherState
	recv     *noise.CipherState
	complete bool
	authSent bool
	authRead bool
	remoteID crypto.PeerID
}

// NewClientCodec creates a client-role codec bound to the local secret key
// and the expected remote identity. Construction validates the key material
// before any bytes can be exchanged. The remote identity participates in the
// key agreement: a peer holding a different static key cannot complete the
// handshake.
func NewClientCodec(secretKey [32]byte, remoteID crypto.PeerID) (*Codec, error) {
	if remoteID.IsZero() {
		return nil, errors.New("client codec requires the expected remote peer ID")
	}
	return newCodec(secretKey, remoteID, RoleClient)
}

// NewServerCodec creates a server-role codec bound to the local secret key
// only. The remote identity is learned from the peer's Auth frame.
func NewServerCodec(secretKey [32]byte) (*Codec, error) {
	return newCodec(secretKey, crypto.PeerID{}, RoleServer)
}

func newCodec(secretKey [32]byte, remoteID crypto.PeerID, role Role) (*Codec, error) {
	keyPair, err := crypto.FromSecretKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}

	staticKey := noise.DHKey{
		Private: make([]byte, 32),
		Public:  make([]byte, 32),
	}
	copy(staticKey.Private, keyPair.Private[:])
	copy(staticKey.Public, keyPair.Public[:])
	crypto.WipeKeyPair(keyPair)

	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	config := noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     role == RoleClient,
		StaticKeypair: staticKey,
	}

	if role == RoleClient {
		config.PeerStatic = remoteID.Bytes()
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	return &Codec{
		role:     role,
		state:    state,
		remoteID: remoteID,
	}, nil
}

// Role returns the role the codec was constructed for.
func (c *Codec) Role() Role {
	return c.role
}

// HandshakeComplete reports whether both handshake messages have been
// processed and the data ciphers are established.
func (c *Codec) HandshakeComplete() bool {
	return c.complete
}

// RemoteID returns the peer identity the codec is bound to. For the server
// role it is the zero PeerID until the Auth frame has been decoded.
func (c *Codec) RemoteID() crypto.PeerID {
	return c.remoteID
}

// Decode consumes at most one frame from buf and returns the protocol value
// it carries. It returns (nil, nil) when buf does not yet hold a complete
// frame; the caller should read more transport bytes and retry. Handshake
// frames arriving outside the state the role expects are returned
// unprocessed so the caller can classify them; frames that fail
// cryptographic processing return an error.
func (c *Codec) Decode(buf *bytes.Buffer) (*IngressValue, error) {
	b := buf.Bytes()
	if len(b) < frameHeaderSize {
		return nil, nil
	}

	tag := b[0]
	length := binary.BigEndian.Uint32(b[1:frameHeaderSize])
	if length > maxFramePayload {
		return nil, fmt.Errorf("%w: announced %d bytes", ErrFrameTooLarge, length)
	}
	if len(b) < frameHeaderSize+int(length) {
		return nil, nil
	}

	// Full frame buffered: consume it before interpreting, so a processing
	// failure never leaves a half-read frame behind.
	buf.Next(frameHeaderSize)
	payload := make([]byte, length)
	copy(payload, buf.Next(int(length)))

	switch tag {
	case tagAuth:
		return c.decodeAuth(payload)
	case tagAck:
		return c.decodeAck(payload)
	case tagMessage:
		return c.decodeMessage(payload)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownFrameTag, tag)
	}
}

// decodeAuth processes the initiator's opening IK message when this codec is
// a server still awaiting it. In any other state the frame is returned bare
// for the caller to reject.
func (c *Codec) decodeAuth(payload []byte) (*IngressValue, error) {
	if c.role != RoleServer || c.complete || c.authRead {
		return &IngressValue{Kind: IngressAuthReceive}, nil
	}

	if _, _, _, err := c.state.ReadMessage(nil, payload); err != nil {
		return nil, fmt.Errorf("auth read failed: %w", err)
	}
	c.authRead = true

	remote := c.state.PeerStatic()
	if len(remote) != crypto.PeerIDSize {
		return nil, fmt.Errorf("auth carried a %d-byte static key", len(remote))
	}
	copy(c.remoteID[:], remote)

	return &IngressValue{Kind: IngressAuthReceive, RemoteID: c.remoteID}, nil
}

// decodeAck processes the responder's IK reply when this codec is a client
// that already sent Auth. The reply completes the handshake and installs the
// data ciphers.
func (c *Codec) decodeAck(payload []byte) (*IngressValue, error) {
	if c.role != RoleClient || !c.authSent || c.complete {
		return &IngressValue{Kind: IngressAck}, nil
	}

	_, recvCipher, sendCipher, err := c.state.ReadMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("ack read failed: %w", err)
	}

	c.recv = recvCipher
	c.send = sendCipher
	c.complete = true

	return &IngressValue{Kind: IngressAck}, nil
}

func (c *Codec) decodeMessage(payload []byte) (*IngressValue, error) {
	if !c.complete {
		return nil, fmt.Errorf("%w: message frame during handshake", ErrHandshakeNotComplete)
	}

	plaintext, err := c.recv.Decrypt(nil, nil, payload)
	if err != nil {
		return nil, fmt.Errorf("message decrypt failed: %w", err)
	}

	return &IngressValue{Kind: IngressMessage, Payload: plaintext}, nil
}

// Encode appends exactly one frame carrying v to out. Handshake values are
// only accepted in the role and order the handshake prescribes; Message
// values only after completion.
func (c *Codec) Encode(v *EgressValue, out *bytes.Buffer) error {
	switch v.Kind {
	case EgressAuth:
		return c.encodeAuth(out)
	case EgressAck:
		return c.encodeAck(out)
	case EgressMessage:
		return c.encodeMessage(v.Payload, out)
	default:
		return fmt.Errorf("%w: cannot encode %s", ErrInvalidState, v)
	}
}

func (c *Codec) encodeAuth(out *bytes.Buffer) error {
	if c.role != RoleClient {
		return fmt.Errorf("%w: only the client sends auth", ErrInvalidState)
	}
	if c.complete {
		return ErrHandshakeComplete
	}
	if c.authSent {
		return fmt.Errorf("%w: auth already sent", ErrInvalidState)
	}

	message, _, _, err := c.state.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("auth write failed: %w", err)
	}
	c.authSent = true

	writeFrame(out, tagAuth, message)
	return nil
}

func (c *Codec) encodeAck(out *bytes.Buffer) error {
	if c.role != RoleServer {
		return fmt.Errorf("%w: only the server sends ack", ErrInvalidState)
	}
	if c.complete {
		return ErrHandshakeComplete
	}
	if !c.authRead {
		return fmt.Errorf("%w: ack before auth was received", ErrInvalidState)
	}

	message, sendCipher, recvCipher, err := c.state.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("ack write failed: %w", err)
	}

	c.send = sendCipher
	c.recv = recvCipher
	c.complete = true

	writeFrame(out, tagAck, message)
	return nil
}

func (c *Codec) encodeMessage(payload []byte, out *bytes.Buffer) error {
	if !c.complete {
		return fmt.Errorf("%w: message before handshake", ErrHandshakeNotComplete)
	}
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}

	ciphertext, err := c.send.Encrypt(nil, nil, payload)
	if err != nil {
		return fmt.Errorf("message encrypt failed: %w", err)
	}

	writeFrame(out, tagMessage, ciphertext)
	return nil
}

func writeFrame(out *bytes.Buffer, tag byte, payload []byte) {
	var header [frameHeaderSize]byte
	header[0] = tag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	out.Write(header[:])
	out.Write(payload)
}
