package signing

import (
	"encoding/binary"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/crypto/ed25519"
	"github.com/iykyk-syn/accountable/member"
)

// Keyring derives deterministic Ed25519 identities for the given processes out of a shared seed
// and returns the member Set with a Provider per process. Intended for simulations and tests,
// where every participant is local.
func Keyring(seed string, ids ...confirm.ProcessID) (*member.Set, map[confirm.ProcessID]*Provider, error) {
	members := make([]*member.Member, len(ids))
	privs := make([]ed25519.PrivateKey, len(ids))
	for i, id := range ids {
		pub, priv := ed25519.KeyFromSeed(binary.BigEndian.AppendUint32([]byte(seed), uint32(id)))
		members[i] = member.New(id, pub)
		privs[i] = priv
	}

	set := member.NewSet(members)
	if err := set.Validate(); err != nil {
		return nil, nil, err
	}

	providers := make(map[confirm.ProcessID]*Provider, len(ids))
	for i, id := range ids {
		p, err := NewProvider(id, privs[i], set)
		if err != nil {
			return nil, nil, err
		}
		providers[id] = p
	}
	return set, providers, nil
}

// IDs returns process identities 0..n-1.
func IDs(n int) []confirm.ProcessID {
	ids := make([]confirm.ProcessID, n)
	for i := range ids {
		ids[i] = confirm.ProcessID(i)
	}
	return ids
}
