package confirm

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// domain separation tags for everything the Confirmer hashes
const (
	shareDomain    = "confirm/share"
	crossDomain    = "confirm/cross"
	lightDomain    = "confirm/light"
	fullDomain     = "confirm/full"
	evidenceDomain = "confirm/evidence"
)

// ShareBytes returns the canonical digest a Share from the process over the value signs.
func ShareBytes(id ProcessID, v Value) []byte {
	h := blake3.New(32, nil)
	h.Write([]byte(shareDomain))
	h.Write(binary.BigEndian.AppendUint32(nil, uint32(id)))
	writeBytes(h, v)
	return h.Sum(nil)
}

// CrossSignBytes returns the canonical digest a cross signature binding the Share to the value signs.
func CrossSignBytes(v Value, share Share) []byte {
	h := blake3.New(32, nil)
	h.Write([]byte(crossDomain))
	writeBytes(h, v)
	h.Write(binary.BigEndian.AppendUint32(nil, uint32(share.Signer)))
	writeBytes(h, share.Body)
	return h.Sum(nil)
}

// Digest returns a collision resistant identifier of the certificate content.
func (c LightCertificate) Digest() []byte {
	h := blake3.New(32, nil)
	h.Write([]byte(lightDomain))
	writeBytes(h, c.Value)
	for _, s := range c.Shares {
		h.Write(binary.BigEndian.AppendUint32(nil, uint32(s.Signer)))
		writeBytes(h, s.Body)
	}
	return h.Sum(nil)
}

// Digest returns a collision resistant identifier of the certificate content.
func (c FullCertificate) Digest() []byte {
	h := blake3.New(32, nil)
	h.Write([]byte(fullDomain))
	writeBytes(h, c.Value)
	for _, e := range c.Entries {
		h.Write(binary.BigEndian.AppendUint32(nil, uint32(e.Signer)))
		writeBytes(h, e.Value)
		h.Write(binary.BigEndian.AppendUint32(nil, uint32(e.Share.Signer)))
		writeBytes(h, e.Share.Body)
		writeBytes(h, e.CrossSignature.Signer)
		writeBytes(h, e.CrossSignature.Body)
	}
	return h.Sum(nil)
}

// Digest identifies the Evidence regardless of the order its certificates were observed in.
func (ev Evidence) Digest() []byte {
	first, second := ev.First.Digest(), ev.Second.Digest()
	if string(first) > string(second) {
		first, second = second, first
	}

	h := blake3.New(32, nil)
	h.Write([]byte(evidenceDomain))
	h.Write(first)
	h.Write(second)
	return h.Sum(nil)
}

// writeBytes writes length prefixed bytes, so that concatenations stay unambiguous.
func writeBytes(h *blake3.Hasher, b []byte) {
	h.Write(binary.BigEndian.AppendUint32(nil, uint32(len(b))))
	h.Write(b)
}
