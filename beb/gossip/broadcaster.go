// Package gossip implements Best-Effort Broadcast over a libp2p PubSub topic.
package gossip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/peer"
	"lukechampine.com/blake3"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/wire"
)

var _ confirm.Broadcaster = (*Broadcaster)(nil)

// NetworkID identifies the confirmation network a Broadcaster gossips on.
type NetworkID string

func (nid NetworkID) String() string {
	return string(nid)
}

func (nid NetworkID) topic() string {
	return fmt.Sprintf("/confirmer/%s/v0.0.1", nid)
}

// PubSubOptions returns the options PubSub must be constructed with for the Broadcaster.
// Messages are authenticated by the protocol's own signatures, so PubSub signing is off,
// and message ids are content hashes, since unsigned messages carry no sender sequence numbers.
func PubSubOptions() []pubsub.Option {
	return []pubsub.Option{
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
		pubsub.WithMessageIdFn(messageID),
	}
}

func messageID(msg *pb.Message) string {
	digest := blake3.Sum256(msg.Data)
	return string(digest[:])
}

// Broadcaster disseminates protocol messages over a PubSub topic and delivers received ones
// from within the topic validator. A message that fails to decode is rejected, so PubSub
// stops propagating it and penalizes the peer that sent it.
//
// PubSub gives no authenticated origin for unsigned messages, so the origin is taken from the
// envelope. Forging it gains nothing: shares are attributable and are checked against the origin.
type Broadcaster struct {
	networkID NetworkID
	self      confirm.ProcessID

	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	deliverer confirm.Deliverer

	log *slog.Logger
}

// NewBroadcaster instantiates a new gossiping [Broadcaster].
// PubSub must be constructed with [PubSubOptions].
func NewBroadcaster(networkID NetworkID, self confirm.ProcessID, ps *pubsub.PubSub) *Broadcaster {
	return &Broadcaster{
		networkID: networkID,
		self:      self,
		pubsub:    ps,
		log:       slog.With("module", "gossip-beb", "self", self),
	}
}

// Start joins the topic and starts delivering received messages to the Deliverer.
func (bro *Broadcaster) Start(d confirm.Deliverer) (err error) {
	bro.deliverer = d

	bro.topic, err = bro.pubsub.Join(bro.networkID.topic())
	if err != nil {
		return err
	}

	// pubsub forces us to create at least one subscription
	bro.sub, err = bro.topic.Subscribe()
	if err != nil {
		return err
	}
	go func() {
		for {
			_, err := bro.sub.Next(context.Background())
			if err != nil {
				return
			}
		}
	}()

	err = bro.pubsub.RegisterTopicValidator(
		bro.networkID.topic(),
		bro.deliverGossip,
		pubsub.WithValidatorTimeout(time.Second),
	)
	if err != nil {
		return err
	}

	return nil
}

func (bro *Broadcaster) Stop(context.Context) (err error) {
	err = errors.Join(err, bro.pubsub.UnregisterTopicValidator(bro.networkID.topic()))
	bro.sub.Cancel()
	err = errors.Join(err, bro.topic.Close())
	return err
}

// Broadcast publishes the Message to the topic.
func (bro *Broadcaster) Broadcast(ctx context.Context, origin confirm.ProcessID, msg confirm.Message) error {
	data, err := wire.Marshal(origin, msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	err = bro.topic.Publish(ctx, data)
	if err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}
	return nil
}

// Peers returns the peers the Broadcaster currently gossips with.
func (bro *Broadcaster) Peers() []peer.ID {
	return bro.topic.ListPeers()
}

// deliverGossip delivers a PubSub gossip and reports its validity status
func (bro *Broadcaster) deliverGossip(ctx context.Context, _ peer.ID, gossip *pubsub.Message) (res pubsub.ValidationResult) {
	defer func() {
		// recover from potential panics caused by network gossips
		err := recover()
		if err != nil {
			bro.log.ErrorContext(ctx, "deliver gossip panic", "err", err)
			res = pubsub.ValidationReject
		}
	}()

	origin, msg, err := wire.Unmarshal(gossip.Data)
	if err != nil {
		bro.log.ErrorContext(ctx, "unmarshalling gossip data", "err", err)
		return pubsub.ValidationReject
	}
	// local publishes pass through validation as well
	if origin == bro.self {
		return pubsub.ValidationAccept
	}

	err = bro.deliverer.Deliver(ctx, origin, msg)
	if err != nil {
		// the message may be fine, yet the local process can't take it
		bro.log.ErrorContext(ctx, "delivering gossip", "origin", origin, "err", err)
		return pubsub.ValidationIgnore
	}

	return pubsub.ValidationAccept
}
