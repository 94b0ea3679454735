package ed25519

import (
	"crypto/ed25519"
	"errors"

	"lukechampine.com/blake3"

	"github.com/iykyk-syn/accountable/crypto"
)

const (
	KeyType = "ed25519"
)

var errInvalidKeyLength = errors.New("invalid key length")

type PublicKey []byte

func (pubKey PublicKey) VerifySignature(msg []byte, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize || len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig)
}

func (pubKey PublicKey) Equals(other []byte) bool {
	if len(other) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.PublicKey(pubKey).Equal(ed25519.PublicKey(other))
}

func (pubKey PublicKey) Bytes() []byte {
	return pubKey
}

func (pubKey PublicKey) Type() string {
	return KeyType
}

type PrivateKey []byte

// Sign signs the message with pure Ed25519. Callers pre-hash when they need a digest.
func (privKey PrivateKey) Sign(msg []byte) ([]byte, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, errInvalidKeyLength
	}
	return ed25519.Sign(ed25519.PrivateKey(privKey), msg), nil
}

func (privKey PrivateKey) PubKey() crypto.PubKey {
	public := ed25519.PrivateKey(privKey).Public().(ed25519.PublicKey)
	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, public)
	return key
}

func (privKey PrivateKey) Equals(other []byte) bool {
	if len(other) != ed25519.PrivateKeySize {
		return false
	}
	return ed25519.PrivateKey(privKey).Equal(ed25519.PrivateKey(other))
}

func (privKey PrivateKey) Type() string {
	return KeyType
}

// GenKeys generates a fresh random key pair.
func GenKeys() (PublicKey, PrivateKey, error) {
	pubK, privK, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, err
	}

	public := make(PublicKey, ed25519.PublicKeySize)
	copy(public, pubK)
	private := make(PrivateKey, ed25519.PrivateKeySize)
	copy(private, privK)

	return public, private, nil
}

// KeyFromSeed deterministically derives a key pair from arbitrary seed material.
// The seed is stretched with blake3, so any length is accepted.
func KeyFromSeed(seed []byte) (PublicKey, PrivateKey) {
	digest := blake3.Sum256(seed)
	privK := ed25519.NewKeyFromSeed(digest[:])

	private := make(PrivateKey, ed25519.PrivateKeySize)
	copy(private, privK)
	return private.PubKey().(PublicKey), private
}

func BytesToPubKey(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, errInvalidKeyLength
	}

	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, b)
	return key, nil
}
