// Package crypto implements the key material and peer identity types used by
// the secstream handshake.
//
// Keys are Curve25519 key pairs generated through the NaCl primitives in
// Go's x/crypto packages.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Peer ID:", crypto.PeerIDFromPublicKey(keys.Public).Hex())
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"runtime"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// ErrInvalidSecretKey indicates secret key material that cannot produce a key pair.
var ErrInvalidSecretKey = errors.New("invalid secret key: all zeros")

// KeyPair represents a Curve25519 key pair. The public half doubles as the
// node's wire identity, see PeerIDFromPublicKey.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random Curve25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	keyPair := &KeyPair{
		Public:  *publicKey,
		Private: *privateKey,
	}

	return keyPair, nil
}

// FromSecretKey creates a key pair from an existing private key. The public
// half is derived by scalar multiplication with the curve base point, so the
// result matches what GenerateKeyPair would have produced for the same
// private key.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, ErrInvalidSecretKey
	}

	publicKey, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], publicKey)

	return keyPair, nil
}

// Wipe zeroes sensitive byte slices. The constant-time compare forces a
// read of every byte so the compiler cannot elide the overwrite. A nil
// slice is a no-op.
func Wipe(data []byte) {
	if len(data) == 0 {
		return
	}
	zeros := make([]byte, len(data))
	subtle.ConstantTimeCompare(data, zeros)
	copy(data, zeros)
	runtime.KeepAlive(data)
}

// WipeKeyPair zeroes the private half of kp. Call it once the key material
// has been handed to the handshake. Safe on nil.
func WipeKeyPair(kp *KeyPair) {
	if kp == nil {
		return
	}
	Wipe(kp.Private[:])
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
