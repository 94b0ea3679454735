// Package bootstrap assembles the roster of a confirmation network: every process registers its
// identity, signing key and addresses with a bootstrapper and gets everyone else's in return.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/iykyk-syn/accountable/beb/stream"
	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/crypto"
	"github.com/iykyk-syn/accountable/crypto/ed25519"
	"github.com/iykyk-syn/accountable/member"
)

var bootstrapProtocol protocol.ID = "/confirmer/bootstrap/v0.0.1"

const maxRecordSize = 64 << 10

// Record is a roster entry of a single process.
type Record struct {
	ID     confirm.ProcessID `json:"id"`
	PubKey []byte            `json:"pub_key"`
	Peer   peer.AddrInfo     `json:"peer"`
}

type Service struct {
	host host.Host
	self Record

	rosterMu sync.Mutex
	roster   map[confirm.ProcessID]Record
	// readyCh is closed once the bootstrapper knows the expected number of processes
	readyCh  chan struct{}
	expected int

	log *slog.Logger
}

func NewService(id confirm.ProcessID, pubKey crypto.PubKey, h host.Host) *Service {
	self := Record{
		ID:     id,
		PubKey: pubKey.Bytes(),
		Peer:   *host.InfoFromHost(h),
	}
	return &Service{
		host:    h,
		self:    self,
		roster:  map[confirm.ProcessID]Record{id: self},
		readyCh: make(chan struct{}),
		log:     slog.With("module", "bootstrap-svc", "self", id),
	}
}

// Start registers with the bootstrapper, fetches the roster and connects to its peers.
func (serv *Service) Start(ctx context.Context, bootstrapper peer.AddrInfo) error {
	err := serv.host.Connect(ctx, bootstrapper)
	if err != nil {
		return fmt.Errorf("connecting to bootstrapper: %w", err)
	}
	serv.log.DebugContext(ctx, "connected to bootstrapper")

	s, err := serv.host.NewStream(ctx, bootstrapper.ID, bootstrapProtocol)
	if err != nil {
		return err
	}
	defer s.Close()
	if dl, ok := ctx.Deadline(); ok {
		if err = s.SetDeadline(dl); err != nil {
			serv.log.WarnContext(ctx, "error setting deadline", "err", err)
		}
	}

	err = json.NewEncoder(s).Encode(serv.self)
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	if err = s.CloseWrite(); err != nil {
		return err
	}

	// the bootstrapper answers once everyone is registered
	bytes, err := io.ReadAll(s)
	if err != nil {
		return err
	}

	var records []Record
	err = json.Unmarshal(bytes, &records)
	if err != nil {
		return err
	}

	serv.rosterMu.Lock()
	for _, r := range records {
		serv.roster[r.ID] = r
	}
	serv.rosterMu.Unlock()

	for _, r := range records {
		if r.Peer.ID == serv.host.ID() || r.Peer.ID == bootstrapper.ID {
			continue
		}
		err := serv.host.Connect(ctx, r.Peer)
		if err != nil {
			serv.log.ErrorContext(ctx, "connecting to peer", "id", r.ID, "err", err)
		}
	}

	serv.log.DebugContext(ctx, "started", "roster", len(records))
	return nil
}

// Serve starts serving registrations. Every registrant gets the roster once expected
// processes, including the bootstrapper, have registered.
func (serv *Service) Serve(expected int) {
	serv.rosterMu.Lock()
	serv.expected = expected
	serv.checkReady()
	serv.rosterMu.Unlock()

	serv.host.SetStreamHandler(bootstrapProtocol, func(stream network.Stream) {
		if err := serv.register(stream); err != nil {
			serv.log.Error("serving registration", "peer", stream.Conn().RemotePeer(), "err", err)
			_ = stream.Reset()
			return
		}
		_ = stream.Close()
	})
}

// Stop stops serving registrations.
func (serv *Service) Stop() {
	serv.host.RemoveStreamHandler(bootstrapProtocol)
}

func (serv *Service) register(s network.Stream) error {
	var r Record
	err := json.NewDecoder(io.LimitReader(s, maxRecordSize)).Decode(&r)
	if err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	// the record must be registered by its own peer
	if r.Peer.ID != s.Conn().RemotePeer() {
		return fmt.Errorf("record of %s registered by %s", r.Peer.ID, s.Conn().RemotePeer())
	}
	if _, err = ed25519.BytesToPubKey(r.PubKey); err != nil {
		return err
	}

	serv.rosterMu.Lock()
	if known, ok := serv.roster[r.ID]; ok && known.Peer.ID != r.Peer.ID {
		serv.rosterMu.Unlock()
		return fmt.Errorf("process %s is already registered", r.ID)
	}
	serv.roster[r.ID] = r
	serv.checkReady()
	serv.rosterMu.Unlock()

	select {
	case <-serv.readyCh:
	case <-time.After(time.Minute):
		return fmt.Errorf("timeout waiting for the roster")
	}

	return json.NewEncoder(s).Encode(serv.records())
}

func (serv *Service) checkReady() {
	if serv.expected == 0 || len(serv.roster) < serv.expected {
		return
	}
	select {
	case <-serv.readyCh:
	default:
		close(serv.readyCh)
	}
}

func (serv *Service) records() []Record {
	serv.rosterMu.Lock()
	defer serv.rosterMu.Unlock()

	records := make([]Record, 0, len(serv.roster))
	for _, r := range serv.roster {
		records = append(records, r)
	}
	return records
}

// Members constructs the member Set and the stream Directory out of the roster.
func (serv *Service) Members() (*member.Set, stream.Directory, error) {
	records := serv.records()
	members := make([]*member.Member, len(records))
	dir := make(stream.Directory, len(records))
	for i, r := range records {
		key, err := ed25519.BytesToPubKey(r.PubKey)
		if err != nil {
			return nil, nil, err
		}
		members[i] = member.New(r.ID, key)
		dir[r.ID] = r.Peer.ID
	}

	set := member.NewSet(members)
	if err := set.Validate(); err != nil {
		return nil, nil, err
	}
	return set, dir, nil
}
