// Package crypto defines the key and signature abstractions the confirmer's
// signature provider is built from. Concrete schemes live in subpackages.
package crypto

// PubKey verifies signatures produced by the matching PrivKey.
type PubKey interface {
	VerifySignature(msg []byte, sig []byte) bool
	Bytes() []byte
	Equals([]byte) bool
	Type() string
}

// PrivKey produces signatures attributable to its PubKey.
type PrivKey interface {
	Sign([]byte) ([]byte, error)
	PubKey() PubKey
	Equals([]byte) bool
	Type() string
}
