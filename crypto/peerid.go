package crypto

import (
	"encoding/hex"
	"errors"
)

// PeerIDSize is the length of a peer identifier in bytes.
const PeerIDSize = 32

// PeerID is the public identifier of a node, equal to its Curve25519 public
// key. It is compared by value; the zero value identifies no peer.
type PeerID [PeerIDSize]byte

// PeerIDFromPublicKey converts a public key into a PeerID.
func PeerIDFromPublicKey(publicKey [32]byte) PeerID {
	return PeerID(publicKey)
}

// PeerIDFromHex parses a PeerID from its 64-character hex representation.
func PeerIDFromHex(s string) (PeerID, error) {
	var id PeerID
	if len(s) != PeerIDSize*2 {
		return id, errors.New("invalid peer ID length")
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}

	copy(id[:], data)
	return id, nil
}

// Hex returns the full hex representation of the PeerID.
func (id PeerID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String returns a short prefix of the PeerID suitable for log output.
func (id PeerID) String() string {
	return hex.EncodeToString(id[:4])
}

// Bytes returns a copy of the identifier.
func (id PeerID) Bytes() []byte {
	b := make([]byte, PeerIDSize)
	copy(b, id[:])
	return b
}

// IsZero reports whether the identifier is the zero value.
func (id PeerID) IsZero() bool {
	return id == PeerID{}
}
