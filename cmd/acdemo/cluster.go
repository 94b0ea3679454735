package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/iykyk-syn/accountable/beb/gossip"
	"github.com/iykyk-syn/accountable/beb/mem"
	"github.com/iykyk-syn/accountable/beb/stream"
	"github.com/iykyk-syn/accountable/bootstrap"
	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/evidence"
	"github.com/iykyk-syn/accountable/member"
	"github.com/iykyk-syn/accountable/node"
	"github.com/iykyk-syn/accountable/signing"
)

var networkID gossip.NetworkID = "acdemo"

// cluster runs a Node per honest process over one of the transports.
type cluster struct {
	nodes []*node.Node
	// inject hands a message from a process outside the cluster to one of its nodes
	inject func(ctx context.Context, from, to confirm.ProcessID, msg confirm.Message) error
	// settle waits until the transport has nothing left in flight
	settle func(ctx context.Context) error
	close  func() error
}

func newCluster(
	ctx context.Context,
	transport string,
	cfg confirm.Config,
	members *member.Set,
	providers map[confirm.ProcessID]*signing.Provider,
	pool *evidence.MemPool,
	metrics *confirm.Metrics,
) (*cluster, error) {
	newNode := func(id confirm.ProcessID, bcast confirm.Broadcaster) (*node.Node, error) {
		cfg := cfg
		cfg.Self = id
		return node.New(cfg, bcast, providers[id],
			node.WithEvidencePool(pool),
			node.WithConfirmerOptions(confirm.WithMetrics(metrics)),
		)
	}

	switch transport {
	case "mem":
		return newMemCluster(newNode)
	case "gossip":
		return newGossipCluster(ctx, members, newNode)
	case "stream":
		return newStreamCluster(ctx, members, newNode)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

type newNodeFn func(confirm.ProcessID, confirm.Broadcaster) (*node.Node, error)

func newMemCluster(newNode newNodeFn) (*cluster, error) {
	net := mem.NewNetwork(mem.WithReordering(seed), mem.WithDuplication(duplicate, seed))

	cl := &cluster{
		inject: net.Send,
		settle: net.Drain,
	}
	for _, id := range signing.IDs(processes) {
		nd, err := newNode(id, net)
		if err != nil {
			return nil, err
		}
		net.Attach(id, nd)
		cl.nodes = append(cl.nodes, nd)
	}
	cl.close = cl.stopNodes
	return cl, nil
}

func newGossipCluster(ctx context.Context, members *member.Set, newNode newNodeFn) (*cluster, error) {
	hosts, _, err := newHosts(ctx, members)
	if err != nil {
		return nil, err
	}

	cl := &cluster{
		settle: settleNothing,
	}
	bros := make([]*gossip.Broadcaster, len(hosts))
	for i, h := range hosts {
		psub, err := pubsub.NewFloodSub(ctx, h, gossip.PubSubOptions()...)
		if err != nil {
			return nil, err
		}

		id := confirm.ProcessID(i)
		bros[i] = gossip.NewBroadcaster(networkID, id, psub)
		nd, err := newNode(id, bros[i])
		if err != nil {
			return nil, err
		}
		if err = bros[i].Start(nd); err != nil {
			return nil, err
		}
		cl.nodes = append(cl.nodes, nd)
	}

	cl.inject = cl.deliverDirect
	cl.close = func() error {
		err := cl.stopNodes()
		for i := range bros {
			err = errors.Join(err, bros[i].Stop(context.Background()), hosts[i].Close())
		}
		return err
	}

	// messages published before the topic mesh forms are lost
	for _, bro := range bros {
		for len(bro.Peers()) < len(hosts)-1 {
			select {
			case <-time.After(time.Millisecond * 50):
			case <-ctx.Done():
				return nil, errors.Join(ctx.Err(), cl.close())
			}
		}
	}
	return cl, nil
}

func newStreamCluster(ctx context.Context, members *member.Set, newNode newNodeFn) (*cluster, error) {
	hosts, dir, err := newHosts(ctx, members)
	if err != nil {
		return nil, err
	}

	cl := &cluster{
		settle: settleNothing,
	}
	mcs := make([]*stream.Multicast, len(hosts))
	for i, h := range hosts {
		mcs[i] = stream.NewMulticast(h, dir)
		nd, err := newNode(confirm.ProcessID(i), mcs[i])
		if err != nil {
			return nil, err
		}
		mcs[i].Start(nd)
		cl.nodes = append(cl.nodes, nd)
	}

	cl.inject = cl.deliverDirect
	cl.close = func() error {
		err := cl.stopNodes()
		for i := range mcs {
			mcs[i].Stop()
			err = errors.Join(err, hosts[i].Close())
		}
		return err
	}
	return cl, nil
}

// newHosts starts a libp2p host per process on the loopback interface. The first process
// bootstraps the rest, which learn each other's keys and addresses from it.
func newHosts(ctx context.Context, members *member.Set) ([]p2phost.Host, stream.Directory, error) {
	listen, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	if err != nil {
		return nil, nil, err
	}

	hosts := make([]p2phost.Host, processes)
	svcs := make([]*bootstrap.Service, processes)
	for i := range hosts {
		hosts[i], err = libp2p.New(
			libp2p.ListenAddrs(listen),
			libp2p.ResourceManager(&network.NullResourceManager{}),
		)
		if err != nil {
			return nil, nil, err
		}

		addrs, err := peer.AddrInfoToP2pAddrs(p2phost.InfoFromHost(hosts[i]))
		if err != nil {
			return nil, nil, err
		}
		fmt.Printf("process %d is listening on:\n", i)
		for _, addr := range addrs {
			fmt.Println("* ", addr.String())
		}

		id := confirm.ProcessID(i)
		m, err := members.Get(id)
		if err != nil {
			return nil, nil, err
		}
		svcs[i] = bootstrap.NewService(id, m.PubKey, hosts[i])
	}
	fmt.Println()

	svcs[0].Serve(processes)
	defer svcs[0].Stop()

	errgrp, gctx := errgroup.WithContext(ctx)
	for _, svc := range svcs[1:] {
		errgrp.Go(func() error {
			return svc.Start(gctx, *p2phost.InfoFromHost(hosts[0]))
		})
	}
	if err = errgrp.Wait(); err != nil {
		return nil, nil, fmt.Errorf("bootstrapping: %w", err)
	}

	roster, dir, err := svcs[0].Members()
	if err != nil {
		return nil, nil, err
	}
	// keys announced over the network must be the ones processes sign with
	for _, id := range roster.IDs() {
		announced, _ := roster.Get(id)
		known, err := members.Get(id)
		if err != nil {
			return nil, nil, err
		}
		if !known.PubKey.Equals(announced.PubKey.Bytes()) {
			return nil, nil, fmt.Errorf("process %s announced a foreign key", id)
		}
	}
	return hosts, dir, nil
}

// deliverDirect simulates an authenticated point-to-point link from a process without a host.
func (cl *cluster) deliverDirect(ctx context.Context, from, to confirm.ProcessID, msg confirm.Message) error {
	for _, nd := range cl.nodes {
		if nd.ID() == to {
			return nd.Deliver(ctx, from, msg)
		}
	}
	return fmt.Errorf("no process %s", to)
}

func (cl *cluster) stopNodes() (err error) {
	for _, nd := range cl.nodes {
		err = errors.Join(err, nd.Stop(context.Background()))
	}
	return err
}

func settleNothing(context.Context) error {
	return nil
}
