// Package mem implements an in-process Best-Effort Broadcast network for simulations and tests.
//
// Every message is encoded with the wire codec before it is queued, so the network exercises
// exactly the bytes a real transport would carry. Delivery is driven explicitly through Step
// and Drain, which keeps runs deterministic for a given seed.
package mem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/wire"
)

var _ confirm.Broadcaster = (*Network)(nil)

// Option configures a Network.
type Option func(*Network)

// WithReordering delivers queued packets in a pseudo-random order derived from the seed.
func WithReordering(seed int64) Option {
	return func(n *Network) {
		n.reorder = rand.New(rand.NewSource(seed))
	}
}

// WithDuplication queues every packet a second time with the given probability.
func WithDuplication(rate float64, seed int64) Option {
	return func(n *Network) {
		n.dupRate = rate
		n.dup = rand.New(rand.NewSource(seed))
	}
}

// WithLogger sets the logger of the Network.
func WithLogger(log *slog.Logger) Option {
	return func(n *Network) {
		n.log = log
	}
}

type packet struct {
	from, to confirm.ProcessID
	data     []byte
}

// Network connects attached Deliverers over authenticated point-to-point links.
// Broadcasts reach every attached process except the origin.
type Network struct {
	mu      sync.Mutex
	nodes   map[confirm.ProcessID]confirm.Deliverer
	queue   []packet
	reorder *rand.Rand
	dup     *rand.Rand
	dupRate float64

	log *slog.Logger
}

// NewNetwork instantiates an empty Network.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		nodes: make(map[confirm.ProcessID]confirm.Deliverer),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = slog.With("module", "mem-beb")
	}
	return n
}

// Attach registers the Deliverer of the process, replacing any previous one.
func (n *Network) Attach(id confirm.ProcessID, d confirm.Deliverer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[id] = d
}

// Broadcast queues the Message to every attached process but the origin.
func (n *Network) Broadcast(_ context.Context, origin confirm.ProcessID, msg confirm.Message) error {
	data, err := wire.Marshal(origin, msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]confirm.ProcessID, 0, len(n.nodes))
	for id := range n.nodes {
		if id != origin {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		n.enqueue(packet{from: origin, to: id, data: data})
	}
	return nil
}

// Send queues the Message to a single process. Faulty processes use it to equivocate.
func (n *Network) Send(_ context.Context, from, to confirm.ProcessID, msg confirm.Message) error {
	data, err := wire.Marshal(from, msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	n.SendRaw(from, to, data)
	return nil
}

// SendRaw queues arbitrary bytes to a single process.
func (n *Network) SendRaw(from, to confirm.ProcessID, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enqueue(packet{from: from, to: to, data: data})
}

func (n *Network) enqueue(p packet) {
	n.queue = append(n.queue, p)
	if n.dup != nil && n.dup.Float64() < n.dupRate {
		n.queue = append(n.queue, p)
	}
}

// Pending returns the number of queued packets.
func (n *Network) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Step delivers a single queued packet. It reports false once the queue is empty.
// Packets to unattached processes and malformed packets are dropped.
func (n *Network) Step(ctx context.Context) (bool, error) {
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.mu.Unlock()
		return false, nil
	}

	i := 0
	if n.reorder != nil {
		i = n.reorder.Intn(len(n.queue))
	}
	p := n.queue[i]
	n.queue = slices.Delete(n.queue, i, i+1)
	d, ok := n.nodes[p.to]
	n.mu.Unlock()

	if !ok {
		n.log.DebugContext(ctx, "no receiver", "to", p.to)
		return true, nil
	}

	_, msg, err := wire.Unmarshal(p.data)
	if err != nil {
		n.log.DebugContext(ctx, "dropping packet", "from", p.from, "to", p.to, "err", err)
		return true, nil
	}

	// the link authenticates the sender, whatever the envelope claims
	err = d.Deliver(ctx, p.from, msg)
	if err != nil {
		return true, fmt.Errorf("delivering to %s: %w", p.to, err)
	}
	return true, nil
}

// Drain delivers packets until the queue is empty, including the ones queued by deliveries.
// Delivery errors don't stop draining and are returned joined.
func (n *Network) Drain(ctx context.Context) error {
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		ok, err := n.Step(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		if !ok {
			return errors.Join(errs...)
		}
	}
}
