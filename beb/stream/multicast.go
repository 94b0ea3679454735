// Package stream implements Best-Effort Broadcast as a multicast of direct libp2p streams.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"golang.org/x/sync/errgroup"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/wire"
)

var defaultProtocolID = protocol.ID("/confirmer/beb/v0.0.1")

const (
	// maxMessageSize bounds a single envelope read off the stream
	maxMessageSize = 4 << 20
	// maxConcurrentSends bounds streams opened by a single Broadcast
	maxConcurrentSends = 16
	deliverTimeout     = time.Second * 10
)

var _ confirm.Broadcaster = (*Multicast)(nil)

// Directory maps processes to the peers they run on.
type Directory map[confirm.ProcessID]peer.ID

// Resolve finds the process running on the peer.
func (d Directory) Resolve(pid peer.ID) (confirm.ProcessID, bool) {
	for id, p := range d {
		if p == pid {
			return id, true
		}
	}
	return 0, false
}

// Peers lists all the peers but the given one.
func (d Directory) Peers(except peer.ID) []peer.ID {
	peers := make([]peer.ID, 0, len(d))
	for _, p := range d {
		if p != except {
			peers = append(peers, p)
		}
	}
	return peers
}

// Multicast sends every message over a dedicated stream to every other peer in the Directory.
// The stream's remote peer authenticates the sender: messages whose envelope origin does not
// match the peer's process are dropped.
type Multicast struct {
	host      host.Host
	directory Directory
	deliverer confirm.Deliverer

	protocolID protocol.ID

	log *slog.Logger
}

func NewMulticast(host host.Host, directory Directory) *Multicast {
	return &Multicast{
		host:       host,
		directory:  directory,
		protocolID: defaultProtocolID,
		log:        slog.With("module", "stream-beb"),
	}
}

func (m *Multicast) Start(d confirm.Deliverer) {
	m.deliverer = d
	m.host.SetStreamHandler(m.protocolID, func(stream network.Stream) {
		if err := m.rcvMsg(stream); err != nil {
			m.log.Error("receiving message", "peer", stream.Conn().RemotePeer(), "err", err)
		}
	})
}

func (m *Multicast) Stop() {
	m.host.RemoveStreamHandler(m.protocolID)
}

// Broadcast sends the Message to every other peer. Failures to reach a peer are logged,
// as Best-Effort Broadcast gives no delivery guarantee.
func (m *Multicast) Broadcast(ctx context.Context, origin confirm.ProcessID, msg confirm.Message) error {
	data, err := wire.Marshal(origin, msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	errgrp, ctx := errgroup.WithContext(ctx)
	errgrp.SetLimit(maxConcurrentSends)
	for _, r := range m.directory.Peers(m.host.ID()) {
		r := r
		errgrp.Go(func() error {
			if err := m.sendMsg(ctx, data, r); err != nil {
				m.log.ErrorContext(ctx, "sending message", "peer", r, "err", err)
			}
			return nil
		})
	}
	return errgrp.Wait()
}

func (m *Multicast) sendMsg(ctx context.Context, data []byte, to peer.ID) error {
	stream, err := m.host.NewStream(ctx, to, m.protocolID)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	// set stream deadline from the context deadline.
	// if it is empty, then we assume that it will
	// hang until the server will close the stream by the timeout.
	if dl, ok := ctx.Deadline(); ok {
		if err = stream.SetDeadline(dl); err != nil {
			m.log.WarnContext(ctx, "error setting deadline", "err", err)
		}
	}

	if _, err = stream.Write(data); err != nil {
		return fmt.Errorf("writing message to stream: %w", err)
	}
	if err = stream.CloseWrite(); err != nil {
		return err
	}
	// await ack from the other side
	if _, err = stream.Read(make([]byte, 1)); err != nil && err != io.EOF {
		return fmt.Errorf("awaiting acknowledgement: %w", err)
	}

	return nil
}

func (m *Multicast) rcvMsg(s network.Stream) error {
	if err := s.SetReadDeadline(time.Now().Add(deliverTimeout)); err != nil {
		m.log.Warn("error setting read deadline", "err", err)
	}

	data, err := io.ReadAll(io.LimitReader(s, maxMessageSize))
	if err != nil {
		_ = s.Reset()
		return fmt.Errorf("reading message: %w", err)
	}

	from, ok := m.directory.Resolve(s.Conn().RemotePeer())
	if !ok {
		_ = s.Reset()
		return fmt.Errorf("unknown peer")
	}
	origin, msg, err := wire.Unmarshal(data)
	if err != nil {
		_ = s.Reset()
		return err
	}
	if origin != from {
		_ = s.Reset()
		return fmt.Errorf("origin %s sent by process %s", origin, from)
	}

	// ack other side that we are done by closing the stream
	// delivery happens after, so the sender never waits on our state
	if err = s.Close(); err != nil {
		return fmt.Errorf("closing Stream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err = m.deliverer.Deliver(ctx, from, msg); err != nil {
		return fmt.Errorf("delivering message: %w", err)
	}
	return nil
}
