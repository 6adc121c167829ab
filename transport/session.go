package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/secstream/codec"
	"github.com/opd-ai/secstream/crypto"
)

// Session is an established encrypted channel to a remote peer. It exists
// only after a successful Auth/Ack handshake; once constructed, every frame
// in either direction is a Message frame and the remote identity never
// changes.
type Session struct {
	framed   *FramedConn
	remoteID crypto.PeerID
}

// Connect runs the initiator handshake over rw: it sends exactly one Auth
// value, awaits exactly one ingress value, and requires it to be Ack.
// remoteID is the identity the peer is expected to hold; it participates in
// the key agreement, so a peer with a different static key cannot complete
// the handshake.
//
// There is no built-in timeout. A silent peer blocks until ctx is cancelled.
func Connect(ctx context.Context, rw io.ReadWriteCloser, secretKey [32]byte, remoteID crypto.PeerID) (*Session, error) {
	c, err := codec.NewClientCodec(secretKey, remoteID)
	if err != nil {
		return nil, fmt.Errorf("handshake setup: %w", err)
	}

	framed := NewFramedConn(rw, c)
	log := logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"role":     codec.RoleClient,
		"peer":     framed.RemoteAddr(),
	})

	log.Debug("sending auth")
	if err := framed.WriteValue(codec.Auth()); err != nil {
		return nil, err
	}
	if err := framed.Flush(); err != nil {
		return nil, err
	}

	log.Debug("waiting for ack")
	msg, err := framed.ReadValue(ctx)
	if err != nil {
		return nil, handshakeFailure(log, codec.RoleClient, codec.IngressAck, nil, err)
	}
	if msg.Kind != codec.IngressAck {
		return nil, handshakeFailure(log, codec.RoleClient, codec.IngressAck, msg, nil)
	}

	log.WithField("remote_id", remoteID).Debug("handshake complete")
	return &Session{framed: framed, remoteID: remoteID}, nil
}

// Incoming runs the responder handshake over a just-accepted rw: it awaits
// exactly one ingress value, requires it to be AuthReceive, extracts the
// peer identity from it, and replies with exactly one Ack value.
//
// On failure no session exists and rw must be discarded.
func Incoming(ctx context.Context, rw io.ReadWriteCloser, secretKey [32]byte) (*Session, error) {
	c, err := codec.NewServerCodec(secretKey)
	if err != nil {
		return nil, fmt.Errorf("handshake setup: %w", err)
	}

	framed := NewFramedConn(rw, c)
	log := logrus.WithFields(logrus.Fields{
		"function": "Incoming",
		"role":     codec.RoleServer,
		"peer":     framed.RemoteAddr(),
	})

	log.Debug("waiting for auth")
	msg, err := framed.ReadValue(ctx)
	if err != nil {
		return nil, handshakeFailure(log, codec.RoleServer, codec.IngressAuthReceive, nil, err)
	}
	if msg.Kind != codec.IngressAuthReceive || msg.RemoteID.IsZero() {
		return nil, handshakeFailure(log, codec.RoleServer, codec.IngressAuthReceive, msg, nil)
	}
	remoteID := msg.RemoteID

	log.Debug("sending ack")
	if err := framed.WriteValue(codec.Ack()); err != nil {
		return nil, err
	}
	if err := framed.Flush(); err != nil {
		return nil, err
	}

	log.WithField("remote_id", remoteID).Debug("handshake complete")
	return &Session{framed: framed, remoteID: remoteID}, nil
}

// handshakeFailure builds the typed handshake error and logs it. The
// expected value uses the zero PeerID as placeholder when no identity was
// known beforehand.
func handshakeFailure(log *logrus.Entry, role codec.Role, expected codec.IngressKind, got *codec.IngressValue, cause error) error {
	err := &HandshakeError{
		Role:     role,
		Expected: codec.IngressValue{Kind: expected},
		Got:      got,
		Err:      cause,
	}
	log.WithError(err).Warn("handshake failed")
	return err
}

// RemoteID returns the peer's identity: caller-supplied for the initiator,
// extracted from the Auth exchange for the responder.
func (s *Session) RemoteID() crypto.PeerID {
	return s.remoteID
}

// ReadMessage blocks until the next message payload arrives and returns it.
// It returns io.EOF when the peer closed the channel cleanly, a
// *ProtocolError when a non-Message value appears (the session should be
// treated as terminal afterwards), and forwards decode and transport errors
// unchanged.
func (s *Session) ReadMessage(ctx context.Context) ([]byte, error) {
	msg, err := s.framed.ReadValue(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Kind != codec.IngressMessage {
		perr := &ProtocolError{Got: msg}
		logrus.WithFields(logrus.Fields{
			"function":  "ReadMessage",
			"remote_id": s.remoteID,
		}).WithError(perr).Warn("protocol violation on established session")
		return nil, perr
	}
	return msg.Payload, nil
}

// WriteMessage wraps payload as a Message value and hands it to the
// adapter's write path. Acceptance does not guarantee transmission; call
// Flush for delivery-ordering guarantees visible to the peer.
func (s *Session) WriteMessage(payload []byte) error {
	if err := s.framed.Ready(); err != nil {
		return err
	}
	return s.framed.WriteValue(codec.Message(payload))
}

// Flush pushes all accepted messages to the transport.
func (s *Session) Flush() error {
	return s.framed.Flush()
}

// Close performs an orderly shutdown: buffered messages are flushed and the
// transport is closed. No sends are valid afterwards.
func (s *Session) Close() error {
	return s.framed.Close()
}
