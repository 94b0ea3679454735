// Package confirm implements the Accountable Confirmer: a per-process primitive that certifies
// a locally held value is endorsed by a quorum of processes and produces publicly verifiable
// evidence when two quorums for the same value could not have intersected in an honest run.
//
// The Confirmer runs on top of a Best-Effort Broadcast channel which provides neither ordering,
// integrity nor exactly-once delivery. Everything received from the channel is validated before
// the Confirmer acts on it; invalid input is dropped without surfacing an error.
//
// Confirmer is a single-owner state machine. Submit and Deliver must never run concurrently on
// the same instance; see package node for a serialized runtime suitable for concurrent transports.
package confirm

import (
	"context"
	"strconv"

	"github.com/iykyk-syn/accountable/crypto"
)

// ProcessID identifies a protocol participant for the lifetime of a run.
type ProcessID uint32

// String returns string representation of ProcessID.
func (id ProcessID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Broadcaster is the Best-Effort Broadcast capability the Confirmer depends on.
//
// Broadcast is fire-and-forget: it sends the Message to every other process with origin as the
// sender identity and returns without waiting for delivery. Implementations may duplicate and
// reorder messages, but must not deliver the Message back to its origin.
type Broadcaster interface {
	Broadcast(ctx context.Context, origin ProcessID, msg Message) error
}

// Deliverer receives Messages from a Broadcaster.
type Deliverer interface {
	// Deliver hands a Message received from the sender to the protocol instance.
	// Errors are reserved for local misuse, invalid input is dropped silently.
	Deliver(ctx context.Context, from ProcessID, msg Message) error
}

// SignatureProvider encapsulates the signature scheme used for shares and cross signatures.
type SignatureProvider interface {
	// ShareSign produces the local process' Share over the value.
	ShareSign(Value) (Share, error)
	// ShareVerify reports whether the Share was produced by the given process over the value.
	ShareVerify(ProcessID, Value, Share) bool
	// Sign produces the local cross signature binding a Share to the value.
	Sign(Value, Share) (crypto.Signature, error)
	// Verify reports whether the Signature over the message is valid and attributable to a
	// known participant.
	Verify(msg []byte, sig crypto.Signature) bool
}

// Notifier receives the Confirmer's outcomes. Callbacks run synchronously inside
// Submit or Deliver and must not call back into the same Confirmer.
type Notifier interface {
	// Confirmed fires exactly once, when the submitted value reaches quorum.
	Confirmed(context.Context, Value)
	// Aborted fires at most once, with the conflicting certificates as evidence.
	Aborted(context.Context, Evidence)
}

// NotifierFuncs adapts plain functions to the Notifier interface. Nil fields are ignored.
type NotifierFuncs struct {
	OnConfirmed func(context.Context, Value)
	OnAborted   func(context.Context, Evidence)
}

func (n NotifierFuncs) Confirmed(ctx context.Context, v Value) {
	if n.OnConfirmed != nil {
		n.OnConfirmed(ctx, v)
	}
}

func (n NotifierFuncs) Aborted(ctx context.Context, ev Evidence) {
	if n.OnAborted != nil {
		n.OnAborted(ctx, ev)
	}
}
