package gossip

import (
	"context"
	"testing"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/node"
	"github.com/iykyk-syn/accountable/signing"
)

var testNetworkID NetworkID = "test"

func TestBroadcaster(t *testing.T) {
	const (
		nodeCount = 4
		faulty    = 1
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshLinked(nodeCount)
	require.NoError(t, err)

	_, providers, err := signing.Keyring(t.Name(), signing.IDs(nodeCount)...)
	require.NoError(t, err)

	bros := make([]*Broadcaster, nodeCount)
	nodes := make([]*node.Node, nodeCount)
	for i, h := range net.Hosts() {
		id := confirm.ProcessID(i)
		bros[i] = newBroadcaster(t, h, id)
		nodes[i], err = node.New(confirm.Config{Self: id, N: nodeCount, T0: faulty}, bros[i], providers[id])
		require.NoError(t, err)
	}

	connect(ctx, t, net)
	for i, bro := range bros {
		require.NoError(t, bro.Start(nodes[i]))
	}
	t.Cleanup(func() {
		for i := range bros {
			_ = nodes[i].Stop(context.Background())
			_ = bros[i].Stop(context.Background())
		}
	})
	awaitPeers(t, bros, nodeCount-1)

	value := confirm.Value("hello")
	errgrp, gctx := errgroup.WithContext(ctx)
	for _, nd := range nodes {
		nd := nd
		errgrp.Go(func() error {
			if err := nd.Submit(gctx, value); err != nil {
				return err
			}
			confirmed, err := nd.Confirmed(gctx)
			if err != nil {
				return err
			}
			assert.Equal(t, value, confirmed)
			return nil
		})
	}
	require.NoError(t, errgrp.Wait())

	// certificates of everyone else eventually arrive
	for _, nd := range nodes {
		require.Eventually(t, func() bool {
			status, err := nd.Status(ctx)
			return err == nil && status.ObservedLight == nodeCount
		}, time.Second*5, time.Millisecond*20)
	}
}

func TestBroadcasterRejectsMalformed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshLinked(1)
	require.NoError(t, err)

	var delivered int
	bro := newBroadcaster(t, net.Hosts()[0], 0)
	require.NoError(t, bro.Start(delivererFunc(func(context.Context, confirm.ProcessID, confirm.Message) error {
		delivered++
		return nil
	})))
	t.Cleanup(func() {
		_ = bro.Stop(context.Background())
	})

	err = bro.topic.Publish(ctx, []byte("not an envelope"))
	assert.Error(t, err)

	// own messages are accepted without delivering them back
	share := confirm.Share{Signer: 0, Body: []byte("share")}
	err = bro.Broadcast(ctx, 0, confirm.NewSubmit(confirm.Value("hello"), share))
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestMessageID(t *testing.T) {
	a := []byte("a")
	assert.Equal(t, messageID(&pb.Message{Data: a}), messageID(&pb.Message{Data: a}))
	assert.NotEqual(t, messageID(&pb.Message{Data: a}), messageID(&pb.Message{Data: []byte("b")}))
}

type delivererFunc func(context.Context, confirm.ProcessID, confirm.Message) error

func (f delivererFunc) Deliver(ctx context.Context, from confirm.ProcessID, msg confirm.Message) error {
	return f(ctx, from, msg)
}

func newBroadcaster(t *testing.T, h host.Host, id confirm.ProcessID) *Broadcaster {
	psub, err := pubsub.NewFloodSub(context.Background(), h, PubSubOptions()...)
	require.NoError(t, err)
	return NewBroadcaster(testNetworkID, id, psub)
}

func connect(ctx context.Context, t *testing.T, net mocknet.Mocknet) {
	hs := net.Hosts()
	subs := make([]event.Subscription, len(hs))
	for i, h := range hs {
		subs[i], _ = h.EventBus().Subscribe(&event.EvtPeerIdentificationCompleted{})
	}

	err := net.ConnectAllButSelf()
	require.NoError(t, err)

	for _, sub := range subs {
		select {
		case <-sub.Out():
		case <-ctx.Done():
			require.Fail(t, "timeout waiting for peers to connect")
		}
	}
}

func awaitPeers(t *testing.T, bros []*Broadcaster, peers int) {
	for _, bro := range bros {
		require.Eventually(t, func() bool {
			return len(bro.Peers()) == peers
		}, time.Second*5, time.Millisecond*10)
	}
}
