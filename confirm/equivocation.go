package confirm

import "fmt"

// Conflicting reports whether two light certificates for the same value were built from
// disjoint signer sets. Assuming both are valid, each set meets the quorum, so disjointness
// means the quorum intersection property 2(N-T0) > N does not hold for the actual run.
//
// Overlapping signer sets never conflict: a single honest quorum may legitimately produce
// several certificates that differ in composition.
func Conflicting(a, b LightCertificate) bool {
	if !a.Value.Equal(b.Value) {
		return false
	}

	signers := make(map[ProcessID]struct{}, len(a.Shares))
	for _, s := range a.Shares {
		signers[s.Signer] = struct{}{}
	}
	for _, s := range b.Shares {
		if _, ok := signers[s.Signer]; ok {
			return false
		}
	}
	return true
}

// findConflict compares every pair of certificates and returns the first conflicting one.
// The caller guarantees every certificate is valid.
func findConflict(certs []LightCertificate) (Evidence, bool) {
	for i := 0; i < len(certs); i++ {
		for j := i + 1; j < len(certs); j++ {
			if Conflicting(certs[i], certs[j]) {
				return Evidence{First: certs[i].Clone(), Second: certs[j].Clone()}, true
			}
		}
	}
	return Evidence{}, false
}

// VerifyEvidence independently checks the Evidence: both certificates must validate for the
// same value against the quorum and their signer sets must be disjoint. It lets any auditor
// holding the participants' public keys confirm an accusation without trusting the accuser.
func VerifyEvidence(ev Evidence, quorum int, signer SignatureProvider) error {
	cert := NewCertifier(quorum, signer)
	v := ev.Value()
	if !cert.ValidateLight(v, ev.First) {
		return fmt.Errorf("%w: first certificate does not validate", ErrInvalidEvidence)
	}
	if !cert.ValidateLight(v, ev.Second) {
		return fmt.Errorf("%w: second certificate does not validate", ErrInvalidEvidence)
	}
	if !Conflicting(ev.First, ev.Second) {
		return fmt.Errorf("%w: certificates share signers", ErrInvalidEvidence)
	}
	return nil
}
