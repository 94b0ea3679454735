// Package node runs a confirm.Confirmer behind a single state goroutine, so transports
// and the application may call into it concurrently.
package node

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/evidence"
)

const stateOperationsChannelSize = 32

// ErrStopped signals that the Node is accessed after being stopped.
var ErrStopped = errors.New("node stopped")

var _ confirm.Deliverer = (*Node)(nil)

// Option configures a Node.
type Option func(*Node)

// WithEvidencePool makes the Node push evidence into the pool once aborted.
func WithEvidencePool(pool *evidence.MemPool) Option {
	return func(n *Node) {
		n.pool = pool
	}
}

// WithNotifier forwards Confirmer notifications to the Notifier. It is called on the state goroutine,
// so it must not call back into the Node.
func WithNotifier(notifier confirm.Notifier) Option {
	return func(n *Node) {
		n.notifier = notifier
	}
}

// WithLogger sets the logger of the Node and its Confirmer.
func WithLogger(log *slog.Logger) Option {
	return func(n *Node) {
		n.log = log
	}
}

// WithConfirmerOptions passes options through to the Confirmer.
func WithConfirmerOptions(opts ...confirm.Option) Option {
	return func(n *Node) {
		n.confirmerOpts = append(n.confirmerOpts, opts...)
	}
}

// Node owns a [confirm.Confirmer] and guards it from concurrent access.
type Node struct {
	// the actual state of the Node, accessed by stateLoop only
	confirmer *confirm.Confirmer

	pool          *evidence.MemPool
	notifier      confirm.Notifier
	confirmerOpts []confirm.Option
	log           *slog.Logger

	// channel for operation submission to be executed
	stateOpCh chan *stateOp
	// confirmedCh and abortedCh get closed once the respective outcome is known.
	// value and ev are written before closing and are read-only afterwards.
	confirmedCh, abortedCh chan struct{}
	confirmedOnce          sync.Once
	abortedOnce            sync.Once
	value                  confirm.Value
	ev                     confirm.Evidence
	// signalling for graceful shutdown
	closeCh, closedCh chan struct{}
	closeOnce         sync.Once
}

// New instantiates, initializes and starts a Node for the given process.
func New(cfg confirm.Config, bcast confirm.Broadcaster, signer confirm.SignatureProvider, opts ...Option) (*Node, error) {
	n := &Node{
		stateOpCh:   make(chan *stateOp, stateOperationsChannelSize),
		confirmedCh: make(chan struct{}),
		abortedCh:   make(chan struct{}),
		closeCh:     make(chan struct{}),
		closedCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = slog.With("module", "node")
	}
	n.log = n.log.With("self", cfg.Self)

	confirmerOpts := append([]confirm.Option{confirm.WithLogger(n.log)}, n.confirmerOpts...)
	// the Node must always be the Confirmer's notifier
	confirmerOpts = append(confirmerOpts, confirm.WithNotifier(confirm.NotifierFuncs{
		OnConfirmed: n.confirmed,
		OnAborted:   n.aborted,
	}))

	var err error
	n.confirmer, err = confirm.New(cfg, bcast, signer, confirmerOpts...)
	if err != nil {
		return nil, err
	}
	n.confirmer.Init()

	go n.stateLoop()
	return n, nil
}

// ID returns identity of the local process.
func (n *Node) ID() confirm.ProcessID {
	// immutable after New
	return n.confirmer.Self()
}

// Stop gracefully stops the [Node] allowing early termination through context.
// It ensures all the in-progress state operations are completed before termination.
func (n *Node) Stop(ctx context.Context) error {
	stopping := false
	n.closeOnce.Do(func() {
		close(n.closeCh)
		stopping = true
	})
	if !stopping {
		return ErrStopped
	}

	select {
	case <-n.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit puts the value forward. See [confirm.Confirmer.Submit].
func (n *Node) Submit(ctx context.Context, v confirm.Value) error {
	op := newStateOp(ctx, submitOp)
	op.value = v
	return n.execOp(ctx, op)
}

// Deliver hands a Message over to the Confirmer. See [confirm.Confirmer.Deliver].
func (n *Node) Deliver(ctx context.Context, from confirm.ProcessID, msg confirm.Message) error {
	op := newStateOp(ctx, deliverOp)
	op.from = from
	op.msg = msg
	return n.execOp(ctx, op)
}

// Rebroadcast retransmits local messages. See [confirm.Confirmer.Rebroadcast].
func (n *Node) Rebroadcast(ctx context.Context) error {
	op := newStateOp(ctx, rebroadcastOp)
	return n.execOp(ctx, op)
}

// Status returns a snapshot of the Confirmer.
func (n *Node) Status(ctx context.Context) (confirm.Status, error) {
	op := newStateOp(ctx, statusOp)
	err := n.execOp(ctx, op)
	if err != nil {
		return confirm.Status{}, err
	}
	return op.status, nil
}

// Confirmed awaits confirmation of the submitted value and returns it.
func (n *Node) Confirmed(ctx context.Context) (confirm.Value, error) {
	select {
	case <-n.confirmedCh:
		return n.value.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Aborted awaits detection of a quorum safety violation and returns the Evidence.
func (n *Node) Aborted(ctx context.Context) (confirm.Evidence, error) {
	select {
	case <-n.abortedCh:
		return n.ev.Clone(), nil
	case <-ctx.Done():
		return confirm.Evidence{}, ctx.Err()
	}
}

// confirmed and aborted are notified by the Confirmer on the state goroutine.
func (n *Node) confirmed(ctx context.Context, v confirm.Value) {
	n.confirmedOnce.Do(func() {
		n.value = v
		close(n.confirmedCh)
	})
	if n.notifier != nil {
		n.notifier.Confirmed(ctx, v)
	}
}

func (n *Node) aborted(ctx context.Context, ev confirm.Evidence) {
	n.abortedOnce.Do(func() {
		n.ev = ev
		close(n.abortedCh)
	})
	if n.pool != nil {
		if err := n.pool.Push(ctx, ev); err != nil {
			n.log.ErrorContext(ctx, "pushing evidence", "err", err)
		}
	}
	if n.notifier != nil {
		n.notifier.Aborted(ctx, ev)
	}
}

// execOp submits operation for execution by [stateLoop] and awaits for its completion
// It permits submission until closedCh is closed or context is cancelled, even after closing is
// triggered. This allows some "last-minute" operations to "squeeze in" before [Node] fully finishes.
func (n *Node) execOp(ctx context.Context, op *stateOp) error {
	select {
	case n.stateOpCh <- op:
	case <-n.closedCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-op.doneCh:
		return op.err
	case <-n.closedCh:
		// the op might have squeezed in right before closing
		select {
		case <-op.doneCh:
			return op.err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stateLoop is an event loop performing state operations on the node
// and ensures access to the Confirmer is single-threaded
func (n *Node) stateLoop() {
	doOp := func(op *stateOp) {
		switch op.kind {
		case submitOp:
			op.SetError(n.confirmer.Submit(op.ctx, op.value))
		case deliverOp:
			op.SetError(n.confirmer.Deliver(op.ctx, op.from, op.msg))
		case rebroadcastOp:
			op.SetError(n.confirmer.Rebroadcast(op.ctx))
		case statusOp:
			op.SetStatus(n.confirmer.Status())
		default:
			panic("unknown operation type")
		}
	}

	defer func() {
		// this mechanism ensures we drain the channel
		// and execute all the pending ops before we fully close
		for {
			select {
			case op := <-n.stateOpCh:
				doOp(op)
			default:
				close(n.closedCh)
				return
			}
		}
	}()

	for {
		select {
		case op := <-n.stateOpCh:
			doOp(op)
		case <-n.closeCh:
			return
		}
	}
}
