// Package signing implements confirm.SignatureProvider over Ed25519 keys of a fixed member set.
package signing

import (
	"errors"
	"fmt"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/crypto"
	"github.com/iykyk-syn/accountable/member"
)

var _ confirm.SignatureProvider = (*Provider)(nil)

// Provider signs on behalf of a single member and verifies signatures of every member in the Set.
type Provider struct {
	self    confirm.ProcessID
	privKey crypto.PrivKey
	pubKey  crypto.PubKey
	members *member.Set
}

// NewProvider instantiates a new Provider for the member self.
// The private key must match the public key registered for self.
func NewProvider(self confirm.ProcessID, privKey crypto.PrivKey, members *member.Set) (*Provider, error) {
	m, err := members.Get(self)
	if err != nil {
		return nil, err
	}

	pubKey := privKey.PubKey()
	if !m.PubKey.Equals(pubKey.Bytes()) {
		return nil, errors.New("private key does not match the registered public key")
	}

	return &Provider{
		self:    self,
		privKey: privKey,
		pubKey:  pubKey,
		members: members,
	}, nil
}

// ID returns the public key of the signing member.
func (p *Provider) ID() []byte {
	return p.pubKey.Bytes()
}

func (p *Provider) ShareSign(v confirm.Value) (confirm.Share, error) {
	body, err := p.privKey.Sign(confirm.ShareBytes(p.self, v))
	if err != nil {
		return confirm.Share{}, fmt.Errorf("signing share: %w", err)
	}
	return confirm.Share{Signer: p.self, Body: body}, nil
}

func (p *Provider) ShareVerify(id confirm.ProcessID, v confirm.Value, share confirm.Share) bool {
	if share.Signer != id {
		return false
	}
	m, err := p.members.Get(id)
	if err != nil {
		return false
	}
	return m.PubKey.VerifySignature(confirm.ShareBytes(id, v), share.Body)
}

func (p *Provider) Sign(v confirm.Value, share confirm.Share) (crypto.Signature, error) {
	body, err := p.privKey.Sign(confirm.CrossSignBytes(v, share))
	if err != nil {
		return crypto.Signature{}, fmt.Errorf("cross signing: %w", err)
	}
	return crypto.Signature{
		Body:   body,
		Signer: p.ID(),
	}, nil
}

func (p *Provider) Verify(msg []byte, sig crypto.Signature) bool {
	m := p.members.GetByPubKey(sig.Signer)
	if m == nil {
		return false
	}
	return m.PubKey.VerifySignature(msg, sig.Body)
}
