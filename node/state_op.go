package node

import (
	"context"

	"github.com/iykyk-syn/accountable/confirm"
)

// defines types of state machine operations
type stateOpKind uint8

const (
	submitOp stateOpKind = iota
	deliverOp
	rebroadcastOp
	statusOp
)

// stateOp defines operations on the [Node] state machine
type stateOp struct {
	kind   stateOpKind
	ctx    context.Context
	doneCh chan struct{}

	// request data:
	value confirm.Value     // submitOp
	from  confirm.ProcessID // deliverOp
	msg   confirm.Message   // deliverOp

	// response data:
	err    error          // submitOp, deliverOp, rebroadcastOp
	status confirm.Status // statusOp
}

func newStateOp(ctx context.Context, kind stateOpKind) *stateOp {
	return &stateOp{kind: kind, ctx: ctx, doneCh: make(chan struct{})}
}

// SetError sets error result on the operation
// and notifies that operation has been done.
func (op *stateOp) SetError(err error) {
	op.err = err
	close(op.doneCh)
}

// SetStatus sets [confirm.Status] result on the operation
// and notifies that operation has been done.
func (op *stateOp) SetStatus(status confirm.Status) {
	op.status = status
	close(op.doneCh)
}
