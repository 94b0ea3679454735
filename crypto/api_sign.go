package crypto

import "bytes"

// Signature is a tuple containing signature body and reference to signing identity.
type Signature struct {
	// Body of the signature.
	Body []byte
	// Signer identity(public key bytes) who produced the signature.
	Signer []byte
}

// IsEmpty reports whether the Signature carries no body or no signer.
func (s Signature) IsEmpty() bool {
	return len(s.Body) == 0 || len(s.Signer) == 0
}

// Equal reports whether both signatures are byte-identical.
func (s Signature) Equal(other Signature) bool {
	return bytes.Equal(s.Body, other.Body) && bytes.Equal(s.Signer, other.Signer)
}

// Clone returns a deep copy of the Signature.
func (s Signature) Clone() Signature {
	return Signature{
		Body:   bytes.Clone(s.Body),
		Signer: bytes.Clone(s.Signer),
	}
}
