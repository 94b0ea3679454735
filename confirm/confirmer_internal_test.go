package confirm

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/accountable/crypto"
)

// plainSigner "signs" by echoing the signed bytes, which is enough to exercise the state machine.
type plainSigner struct {
	self ProcessID
}

func (p plainSigner) ShareSign(v Value) (Share, error) {
	return Share{Signer: p.self, Body: ShareBytes(p.self, v)}, nil
}

func (p plainSigner) ShareVerify(id ProcessID, v Value, share Share) bool {
	return share.Signer == id && bytes.Equal(share.Body, ShareBytes(id, v))
}

func (p plainSigner) Sign(v Value, share Share) (crypto.Signature, error) {
	return crypto.Signature{Body: CrossSignBytes(v, share), Signer: []byte{byte(p.self)}}, nil
}

func (p plainSigner) Verify(msg []byte, sig crypto.Signature) bool {
	return bytes.Equal(msg, sig.Body)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, ProcessID, Message) error { return nil }

func TestCheckAccountabilityInvariant(t *testing.T) {
	ctx := context.Background()
	c, err := New(Config{Self: 0, N: 3, T0: 1}, nopBroadcaster{}, plainSigner{self: 0})
	require.NoError(t, err)
	c.Init()

	v := Value("hello")
	require.NoError(t, c.Submit(ctx, v))
	for _, id := range []ProcessID{1, 2} {
		share, _ := plainSigner{self: id}.ShareSign(v)
		require.NoError(t, c.Deliver(ctx, id, NewSubmit(v, share)))
	}
	require.True(t, c.Confirmed())
	require.Len(t, c.observedLight, 1)

	// corrupt the stored certificate behind the Confirmer's back
	c.observedLight[0].Shares[0].Body[0] ^= 0xff

	share, _ := plainSigner{self: 3}.ShareSign(v)
	err = c.Deliver(ctx, 3, NewSubmit(v, share))
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, StateConfirmed, c.State())
}

func TestFindConflict(t *testing.T) {
	v := Value("hello")
	cert := func(ids ...ProcessID) LightCertificate {
		shares := make([]Share, len(ids))
		for i, id := range ids {
			shares[i], _ = plainSigner{self: id}.ShareSign(v)
		}
		return LightCertificate{Value: v, Shares: shares}
	}

	_, ok := findConflict(nil)
	assert.False(t, ok)

	_, ok = findConflict([]LightCertificate{cert(1, 2), cert(2, 3), cert(1, 3)})
	assert.False(t, ok)

	ev, ok := findConflict([]LightCertificate{cert(1, 2), cert(2, 3), cert(3, 4)})
	require.True(t, ok)
	assert.Equal(t, []ProcessID{1, 2}, ev.First.Signers())
	assert.Equal(t, []ProcessID{3, 4}, ev.Second.Signers())

	// different values never conflict
	other := cert(3, 4)
	other.Value = Value("world")
	_, ok = findConflict([]LightCertificate{cert(1, 2), other})
	assert.False(t, ok)
}
