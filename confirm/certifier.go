package confirm

// Certifier assembles and validates light and full certificates for a fixed quorum threshold.
// It holds no mutable state and is safe for concurrent use if the SignatureProvider is.
type Certifier struct {
	quorum int
	signer SignatureProvider
}

// NewCertifier instantiates a new Certifier requiring at least quorum distinct signers.
func NewCertifier(quorum int, signer SignatureProvider) *Certifier {
	return &Certifier{quorum: quorum, signer: signer}
}

// Quorum returns the signer threshold certificates are validated against.
func (c *Certifier) Quorum() int {
	return c.quorum
}

// AssembleLight builds a LightCertificate from the shares in the given order.
// It neither reorders nor deduplicates: the caller's accumulation guarantees distinct signers.
func (c *Certifier) AssembleLight(v Value, shares []Share) LightCertificate {
	cert := LightCertificate{
		Value:  v.Clone(),
		Shares: make([]Share, len(shares)),
	}
	for i, s := range shares {
		cert.Shares[i] = s.Clone()
	}
	return cert
}

// ValidateLight reports whether the certificate proves a quorum endorsed v.
// Malformed certificates are simply reported as invalid.
func (c *Certifier) ValidateLight(v Value, cert LightCertificate) bool {
	if len(v) == 0 || !cert.Value.Equal(v) {
		return false
	}
	if len(cert.Shares) < c.quorum {
		return false
	}

	seen := make(map[ProcessID]struct{}, len(cert.Shares))
	for _, s := range cert.Shares {
		if _, ok := seen[s.Signer]; ok {
			return false
		}
		seen[s.Signer] = struct{}{}

		if !c.signer.ShareVerify(s.Signer, v, s) {
			return false
		}
	}
	return true
}

// AssembleFull builds a FullCertificate from the entries in the given order.
func (c *Certifier) AssembleFull(v Value, entries []Entry) FullCertificate {
	cert := FullCertificate{
		Value:   v.Clone(),
		Entries: make([]Entry, len(entries)),
	}
	for i, e := range entries {
		cert.Entries[i] = e.Clone()
	}
	return cert
}

// ValidateFull reports whether the certificate proves a quorum endorsed v, with every
// endorsement attributable and cross signed by a known participant.
func (c *Certifier) ValidateFull(v Value, cert FullCertificate) bool {
	if len(v) == 0 || !cert.Value.Equal(v) {
		return false
	}
	if len(cert.Entries) < c.quorum {
		return false
	}

	seen := make(map[ProcessID]struct{}, len(cert.Entries))
	for _, e := range cert.Entries {
		if _, ok := seen[e.Signer]; ok {
			return false
		}
		seen[e.Signer] = struct{}{}

		if !c.verifyEntry(v, e) {
			return false
		}
	}
	return true
}

// NewEntry cross signs the Share, producing a signed submission Entry.
func (c *Certifier) NewEntry(v Value, share Share) (Entry, error) {
	sig, err := c.signer.Sign(v, share)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Signer:         share.Signer,
		Value:          v.Clone(),
		Share:          share.Clone(),
		CrossSignature: sig,
	}, nil
}

func (c *Certifier) verifyEntry(v Value, e Entry) bool {
	if !e.Value.Equal(v) || e.Share.Signer != e.Signer || e.CrossSignature.IsEmpty() {
		return false
	}
	if !c.signer.ShareVerify(e.Signer, v, e.Share) {
		return false
	}
	return c.signer.Verify(CrossSignBytes(v, e.Share), e.CrossSignature)
}
