package confirm

import (
	"slices"

	"github.com/iykyk-syn/accountable/crypto"
)

// LightCertificate is evidence that at least a quorum of processes endorsed Value.
// It is immutable once assembled: new evidence always produces a new certificate.
type LightCertificate struct {
	Value  Value
	Shares []Share
}

// Signers lists the endorsing processes in certificate order.
func (c LightCertificate) Signers() []ProcessID {
	ids := make([]ProcessID, len(c.Shares))
	for i, s := range c.Shares {
		ids[i] = s.Signer
	}
	return ids
}

// Clone returns a deep copy of the certificate.
func (c LightCertificate) Clone() LightCertificate {
	shares := make([]Share, len(c.Shares))
	for i, s := range c.Shares {
		shares[i] = s.Clone()
	}
	return LightCertificate{Value: c.Value.Clone(), Shares: shares}
}

// Equal reports whether both certificates are identical, including share order.
func (c LightCertificate) Equal(other LightCertificate) bool {
	return c.Value.Equal(other.Value) && slices.EqualFunc(c.Shares, other.Shares, Share.Equal)
}

// Entry is a signed submission: a Share cross signed by the process which collected it.
// Unlike a bare Share, an Entry lets an external auditor attribute the endorsement and
// the collection to concrete identities.
type Entry struct {
	Signer         ProcessID
	Value          Value
	Share          Share
	CrossSignature crypto.Signature
}

// Clone returns a deep copy of the Entry.
func (e Entry) Clone() Entry {
	return Entry{
		Signer:         e.Signer,
		Value:          e.Value.Clone(),
		Share:          e.Share.Clone(),
		CrossSignature: e.CrossSignature.Clone(),
	}
}

// Equal reports whether both entries are identical.
func (e Entry) Equal(other Entry) bool {
	return e.Signer == other.Signer &&
		e.Value.Equal(other.Value) &&
		e.Share.Equal(other.Share) &&
		e.CrossSignature.Equal(other.CrossSignature)
}

// FullCertificate is the attributable counterpart of LightCertificate.
type FullCertificate struct {
	Value   Value
	Entries []Entry
}

// Signers lists the endorsing processes in certificate order.
func (c FullCertificate) Signers() []ProcessID {
	ids := make([]ProcessID, len(c.Entries))
	for i, e := range c.Entries {
		ids[i] = e.Signer
	}
	return ids
}

// Clone returns a deep copy of the certificate.
func (c FullCertificate) Clone() FullCertificate {
	entries := make([]Entry, len(c.Entries))
	for i, e := range c.Entries {
		entries[i] = e.Clone()
	}
	return FullCertificate{Value: c.Value.Clone(), Entries: entries}
}

// Equal reports whether both certificates are identical, including entry order.
func (c FullCertificate) Equal(other FullCertificate) bool {
	return c.Value.Equal(other.Value) && slices.EqualFunc(c.Entries, other.Entries, Entry.Equal)
}

// Evidence is a pair of valid light certificates for the same value built from disjoint
// quorums. Its existence proves more processes misbehaved than the fault bound permits.
type Evidence struct {
	First  LightCertificate
	Second LightCertificate
}

// Value returns the disputed value.
func (ev Evidence) Value() Value {
	return ev.First.Value
}

// Clone returns a deep copy of the Evidence.
func (ev Evidence) Clone() Evidence {
	return Evidence{First: ev.First.Clone(), Second: ev.Second.Clone()}
}
