package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opd-ai/secstream/crypto"
)

func TestIngressValueString(t *testing.T) {
	var none *IngressValue
	assert.Equal(t, "none", none.String())

	assert.Equal(t, "ack", (&IngressValue{Kind: IngressAck}).String())

	id := crypto.PeerID{0xab, 0xcd, 0x01, 0x02}
	v := &IngressValue{Kind: IngressAuthReceive, RemoteID: id}
	assert.Equal(t, "auth-receive(abcd0102)", v.String())

	v = &IngressValue{Kind: IngressMessage, Payload: []byte("hello")}
	assert.Equal(t, "message(5 bytes)", v.String())
}

func TestEgressValueString(t *testing.T) {
	assert.Equal(t, "auth", Auth().String())
	assert.Equal(t, "ack", Ack().String())
	assert.Equal(t, "message(3 bytes)", Message([]byte("abc")).String())
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "auth-receive", IngressAuthReceive.String())
	assert.Equal(t, "message", IngressMessage.String())
	assert.Equal(t, "unknown(99)", IngressKind(99).String())
	assert.Equal(t, "auth", EgressAuth.String())
	assert.Equal(t, "unknown(99)", EgressKind(99).String())
}
