package mem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/signing"
)

func TestNetworkConfirms(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"ordered", nil},
		{"reordered", []Option{WithReordering(7)}},
		{"duplicated", []Option{WithReordering(11), WithDuplication(0.5, 13)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()

			net := NewNetwork(tt.opts...)
			cs := newConfirmers(t, net, 4, 1, 4)
			for _, c := range cs {
				require.NoError(t, c.Submit(ctx, confirm.Value("hello")))
			}
			require.NoError(t, net.Drain(ctx))
			assert.Zero(t, net.Pending())

			for _, c := range cs {
				assert.True(t, c.Confirmed())
				assert.Equal(t, confirm.StateConfirmed, c.State())
				assert.Len(t, c.Endorsers(), 3)
				// every other honest certificate and its own one
				assert.Len(t, c.ObservedLight(), 4)
			}
		})
	}
}

func TestNetworkEquivocation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	net := NewNetwork()
	// three honest processes assume n=3, t0=1 while five keys are registered
	cs := newConfirmers(t, net, 3, 1, 5)
	for _, c := range cs {
		require.NoError(t, c.Submit(ctx, confirm.Value("hello")))
	}
	require.NoError(t, net.Drain(ctx))
	for _, c := range cs {
		require.True(t, c.Confirmed())
	}

	// processes 3 and 4 are outside the assumption and forge a disjoint quorum
	_, providers, err := signing.Keyring(t.Name(), signing.IDs(5)...)
	require.NoError(t, err)
	value := confirm.Value("hello")
	shares := make([]confirm.Share, 0, 2)
	for _, id := range []confirm.ProcessID{3, 4} {
		share, err := providers[id].ShareSign(value)
		require.NoError(t, err)
		shares = append(shares, share)
	}
	forged := confirm.NewCertifier(2, providers[3]).AssembleLight(value, shares)
	require.NoError(t, net.Send(ctx, 3, 0, confirm.NewLightCertificateMessage(forged)))
	require.NoError(t, net.Drain(ctx))

	assert.Equal(t, confirm.StateAborted, cs[0].State())
	ev, ok := cs[0].Evidence()
	require.True(t, ok)
	assert.NoError(t, confirm.VerifyEvidence(ev, 2, providers[4]))

	// the others never received the forged certificate
	assert.Equal(t, confirm.StateConfirmed, cs[1].State())
	assert.Equal(t, confirm.StateConfirmed, cs[2].State())
}

func TestNetworkDropsMalformed(t *testing.T) {
	ctx := context.Background()
	net := NewNetwork()
	cs := newConfirmers(t, net, 3, 1, 3)
	require.NoError(t, cs[0].Submit(ctx, confirm.Value("hello")))

	net.SendRaw(1, 0, []byte("definitely not capnp"))
	net.SendRaw(1, 7, []byte("to nobody"))
	require.NoError(t, net.Drain(ctx))
	assert.Empty(t, cs[0].Endorsers())
}

func TestNetworkDrainReportsErrors(t *testing.T) {
	ctx := context.Background()
	net := NewNetwork()
	_, providers, err := signing.Keyring(t.Name(), signing.IDs(3)...)
	require.NoError(t, err)

	// uninitialized confirmers refuse deliveries
	c, err := confirm.New(confirm.Config{Self: 0, N: 3, T0: 1}, net, providers[0])
	require.NoError(t, err)
	net.Attach(0, c)

	share, err := providers[1].ShareSign(confirm.Value("hello"))
	require.NoError(t, err)
	require.NoError(t, net.Send(ctx, 1, 0, confirm.NewSubmit(confirm.Value("hello"), share)))
	require.NoError(t, net.Send(ctx, 1, 0, confirm.NewSubmit(confirm.Value("hello"), share)))

	err = net.Drain(ctx)
	assert.ErrorIs(t, err, confirm.ErrInvalidState)
	assert.Zero(t, net.Pending())
}

func TestNetworkDuplication(t *testing.T) {
	net := NewNetwork(WithDuplication(1, 1))
	net.SendRaw(0, 1, []byte{1})
	assert.Equal(t, 2, net.Pending())
}

// newConfirmers attaches confirmers for processes 0..n-1 out of the registered ones.
func newConfirmers(t *testing.T, net *Network, n, t0, registered int) []*confirm.Confirmer {
	_, providers, err := signing.Keyring(t.Name(), signing.IDs(registered)...)
	require.NoError(t, err)

	cs := make([]*confirm.Confirmer, n)
	for i := range cs {
		id := confirm.ProcessID(i)
		cs[i], err = confirm.New(confirm.Config{Self: id, N: n, T0: t0}, net, providers[id])
		require.NoError(t, err)
		cs[i].Init()
		net.Attach(id, cs[i])
	}
	return cs
}
