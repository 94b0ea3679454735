package confirm

import (
	"bytes"
	"fmt"
)

// Value is the opaque payload processes submit and confirm.
type Value []byte

// Equal reports whether both values are byte-identical.
func (v Value) Equal(other Value) bool {
	return bytes.Equal(v, other)
}

// Clone returns a copy of the Value that does not alias the original.
func (v Value) Clone() Value {
	return Value(bytes.Clone(v))
}

func (v Value) String() string {
	return string(v)
}

// Share is a signature produced by Signer over (Signer, value).
type Share struct {
	// Signer is the process which produced the Share.
	Signer ProcessID
	// Body of the signature.
	Body []byte
}

// Clone returns a deep copy of the Share.
func (s Share) Clone() Share {
	return Share{Signer: s.Signer, Body: bytes.Clone(s.Body)}
}

// Equal reports whether both shares are identical.
func (s Share) Equal(other Share) bool {
	return s.Signer == other.Signer && bytes.Equal(s.Body, other.Body)
}

// Kind enumerates protocol message kinds.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSubmit
	KindLightCertificate
	KindFullCertificate
)

func (k Kind) String() string {
	switch k {
	case KindSubmit:
		return "submit"
	case KindLightCertificate:
		return "light-certificate"
	case KindFullCertificate:
		return "full-certificate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Message is a protocol message exchanged over the Broadcaster.
// Which of the optional fields are set depends on the Kind:
//   - KindSubmit: Value and Share
//   - KindLightCertificate: Value and Light
//   - KindFullCertificate: Value and Full
type Message struct {
	Kind  Kind
	Value Value

	Share Share
	Light *LightCertificate
	Full  *FullCertificate
}

// NewSubmit constructs a Submit Message.
func NewSubmit(v Value, share Share) Message {
	return Message{Kind: KindSubmit, Value: v, Share: share}
}

// NewLightCertificateMessage constructs a LightCertificate Message for the certificate's value.
func NewLightCertificateMessage(cert LightCertificate) Message {
	return Message{Kind: KindLightCertificate, Value: cert.Value, Light: &cert}
}

// NewFullCertificateMessage constructs a FullCertificate Message for the certificate's value.
func NewFullCertificateMessage(cert FullCertificate) Message {
	return Message{Kind: KindFullCertificate, Value: cert.Value, Full: &cert}
}
