package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/secstream/crypto"
)

// codecPair returns a client codec and server codec wired to the same server
// identity, plus the client's own identity.
func codecPair(t *testing.T) (client, server *Codec, clientID crypto.PeerID) {
	t.Helper()

	clientKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	serverKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	client, err = NewClientCodec(clientKeys.Private, crypto.PeerIDFromPublicKey(serverKeys.Public))
	require.NoError(t, err)
	server, err = NewServerCodec(serverKeys.Private)
	require.NoError(t, err)

	return client, server, crypto.PeerIDFromPublicKey(clientKeys.Public)
}

// completeHandshake runs the Auth/Ack exchange between the two codecs.
func completeHandshake(t *testing.T, client, server *Codec) {
	t.Helper()

	var wire bytes.Buffer
	require.NoError(t, client.Encode(Auth(), &wire))
	v, err := server.Decode(&wire)
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, IngressAuthReceive, v.Kind)

	wire.Reset()
	require.NoError(t, server.Encode(Ack(), &wire))
	v, err = client.Decode(&wire)
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, IngressAck, v.Kind)
}

func TestNewClientCodecValidation(t *testing.T) {
	serverKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	clientKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	var zeroKey [32]byte
	_, err = NewClientCodec(zeroKey, crypto.PeerIDFromPublicKey(serverKeys.Public))
	assert.Error(t, err, "all-zero secret key must be rejected")

	_, err = NewClientCodec(clientKeys.Private, crypto.PeerID{})
	assert.Error(t, err, "zero remote ID must be rejected")

	c, err := NewClientCodec(clientKeys.Private, crypto.PeerIDFromPublicKey(serverKeys.Public))
	require.NoError(t, err)
	assert.Equal(t, RoleClient, c.Role())
	assert.False(t, c.HandshakeComplete())
}

func TestNewServerCodecValidation(t *testing.T) {
	var zeroKey [32]byte
	_, err := NewServerCodec(zeroKey)
	assert.Error(t, err)

	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c, err := NewServerCodec(keys.Private)
	require.NoError(t, err)
	assert.Equal(t, RoleServer, c.Role())
	assert.True(t, c.RemoteID().IsZero(), "server learns the remote ID from auth")
}

func TestHandshakeExchange(t *testing.T) {
	client, server, clientID := codecPair(t)

	var wire bytes.Buffer
	require.NoError(t, client.Encode(Auth(), &wire))

	v, err := server.Decode(&wire)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, IngressAuthReceive, v.Kind)
	assert.Equal(t, clientID, v.RemoteID, "server must learn the client identity from auth")
	assert.Equal(t, clientID, server.RemoteID())
	assert.False(t, server.HandshakeComplete(), "server completes only after sending ack")

	wire.Reset()
	require.NoError(t, server.Encode(Ack(), &wire))
	assert.True(t, server.HandshakeComplete())

	v, err = client.Decode(&wire)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, IngressAck, v.Kind)
	assert.True(t, client.HandshakeComplete())
}

func TestMessageRoundTrip(t *testing.T) {
	client, server, _ := codecPair(t)
	completeHandshake(t, client, server)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xaa}, 4096),
	}

	for _, payload := range payloads {
		var wire bytes.Buffer
		require.NoError(t, client.Encode(Message(payload), &wire))

		v, err := server.Decode(&wire)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, IngressMessage, v.Kind)
		assert.Equal(t, payload, append([]byte{}, v.Payload...))

		// And the reverse direction.
		wire.Reset()
		require.NoError(t, server.Encode(Message(payload), &wire))
		v, err = client.Decode(&wire)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, IngressMessage, v.Kind)
		assert.Equal(t, payload, append([]byte{}, v.Payload...))
	}
}

func TestDecodePartialFrame(t *testing.T) {
	client, server, _ := codecPair(t)

	var wire bytes.Buffer
	require.NoError(t, client.Encode(Auth(), &wire))
	frame := wire.Bytes()

	// Feed the frame one byte at a time; the codec must consume nothing
	// until the frame is complete.
	var partial bytes.Buffer
	for i, b := range frame {
		v, err := server.Decode(&partial)
		require.NoError(t, err, "byte %d", i)
		require.Nil(t, v, "no value before the frame completes (byte %d)", i)
		partial.WriteByte(b)
	}

	v, err := server.Decode(&partial)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, IngressAuthReceive, v.Kind)
	assert.Zero(t, partial.Len(), "frame fully consumed")
}

func TestDecodeOversizedFrame(t *testing.T) {
	_, server, _ := codecPair(t)

	var wire bytes.Buffer
	wire.Write([]byte{tagMessage, 0xff, 0xff, 0xff, 0xff})

	_, err := server.Decode(&wire)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, server, _ := codecPair(t)

	var wire bytes.Buffer
	writeFrame(&wire, 0x7f, []byte("junk"))

	_, err := server.Decode(&wire)
	require.ErrorIs(t, err, ErrUnknownFrameTag)
}

func TestDecodeGarbageAuth(t *testing.T) {
	_, server, _ := codecPair(t)

	var wire bytes.Buffer
	writeFrame(&wire, tagAuth, bytes.Repeat([]byte{0x42}, 96))

	_, err := server.Decode(&wire)
	require.Error(t, err, "garbage auth must fail cryptographic processing")
}

func TestDecodeMessageBeforeHandshake(t *testing.T) {
	client, server, _ := codecPair(t)

	var wire bytes.Buffer
	writeFrame(&wire, tagMessage, []byte("too early"))
	_, err := server.Decode(&wire)
	require.ErrorIs(t, err, ErrHandshakeNotComplete)

	wire.Reset()
	writeFrame(&wire, tagMessage, []byte("too early"))
	_, err = client.Decode(&wire)
	require.ErrorIs(t, err, ErrHandshakeNotComplete)
}

func TestDecodeOutOfOrderHandshakeFrames(t *testing.T) {
	client, server, _ := codecPair(t)

	// The client receiving auth gets the bare value back for classification.
	var wire bytes.Buffer
	writeFrame(&wire, tagAuth, []byte("bogus"))
	v, err := client.Decode(&wire)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, IngressAuthReceive, v.Kind)
	assert.True(t, v.RemoteID.IsZero(), "unprocessed auth carries no identity")

	// Same for the server receiving an unsolicited ack.
	wire.Reset()
	writeFrame(&wire, tagAck, []byte("bogus"))
	v, err = server.Decode(&wire)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, IngressAck, v.Kind)
}

func TestEncodeStateGuards(t *testing.T) {
	client, server, _ := codecPair(t)

	var wire bytes.Buffer
	require.ErrorIs(t, client.Encode(Ack(), &wire), ErrInvalidState)
	require.ErrorIs(t, server.Encode(Auth(), &wire), ErrInvalidState)
	require.ErrorIs(t, client.Encode(Message([]byte("x")), &wire), ErrHandshakeNotComplete)
	require.ErrorIs(t, server.Encode(Ack(), &wire), ErrInvalidState, "ack before auth was received")

	wire.Reset()
	require.NoError(t, client.Encode(Auth(), &wire))
	require.ErrorIs(t, client.Encode(Auth(), &wire), ErrInvalidState, "auth must be sent exactly once")

	v, err := server.Decode(&wire)
	require.NoError(t, err)
	require.Equal(t, IngressAuthReceive, v.Kind)

	wire.Reset()
	require.NoError(t, server.Encode(Ack(), &wire))
	require.ErrorIs(t, server.Encode(Ack(), &wire), ErrHandshakeComplete)
}

func TestEncodeMessageTooLarge(t *testing.T) {
	client, server, _ := codecPair(t)
	completeHandshake(t, client, server)

	var wire bytes.Buffer
	err := client.Encode(Message(make([]byte, MaxMessageSize+1)), &wire)
	require.ErrorIs(t, err, ErrMessageTooLarge)

	require.NoError(t, client.Encode(Message(make([]byte, MaxMessageSize)), &wire))
}

func TestCorruptedMessageFailsDecrypt(t *testing.T) {
	client, server, _ := codecPair(t)
	completeHandshake(t, client, server)

	var wire bytes.Buffer
	require.NoError(t, client.Encode(Message([]byte("sensitive")), &wire))

	// Flip one ciphertext byte; the AEAD tag must catch it.
	tampered := wire.Bytes()
	tampered[frameHeaderSize] ^= 0x01

	_, err := server.Decode(bytes.NewBuffer(tampered))
	require.Error(t, err)
}

func TestWrongRemoteIDFailsAuthRead(t *testing.T) {
	clientKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	serverKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	otherKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	// Client is told the wrong server identity.
	client, err := NewClientCodec(clientKeys.Private, crypto.PeerIDFromPublicKey(otherKeys.Public))
	require.NoError(t, err)
	server, err := NewServerCodec(serverKeys.Private)
	require.NoError(t, err)

	var wire bytes.Buffer
	require.NoError(t, client.Encode(Auth(), &wire))

	// The auth message was encrypted to the wrong static key, so the real
	// server cannot process it.
	_, err = server.Decode(&wire)
	require.Error(t, err, "handshake must fail when the client expects a different identity")
	assert.False(t, server.HandshakeComplete())
}
