// Package evidence stores accusations produced by Confirmers so they can be audited and
// disseminated after a run is aborted.
package evidence

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/iykyk-syn/accountable/confirm"
)

var ErrEvidenceDeleted = errors.New("evidence deleted")

// Option configures a MemPool.
type Option func(*MemPool)

// WithRetention makes the pool forget evidence older than retention, checking every interval.
// Zero retention keeps evidence until deleted.
func WithRetention(retention, interval time.Duration) Option {
	return func(p *MemPool) {
		p.retention = retention
		p.gcInterval = interval
	}
}

// WithVerifier makes Push reject evidence that does not verify against the quorum.
func WithVerifier(quorum int, signer confirm.SignatureProvider) Option {
	return func(p *MemPool) {
		p.verify = func(ev confirm.Evidence) error {
			return confirm.VerifyEvidence(ev, quorum, signer)
		}
	}
}

type MemPool struct {
	evidenceMu   sync.Mutex
	evidence     map[string]evidenceEntry
	evidenceSubs map[string]map[chan confirm.Evidence]struct{}
	seq          uint64

	verify     func(confirm.Evidence) error
	retention  time.Duration
	gcInterval time.Duration

	closeOnce sync.Once
	closeCh   chan struct{}
	gcDone    chan struct{}
}

type evidenceEntry struct {
	confirm.Evidence
	seq  uint64
	time time.Time
}

func NewMemPool(opts ...Option) *MemPool {
	pool := &MemPool{
		evidence:     make(map[string]evidenceEntry),
		evidenceSubs: make(map[string]map[chan confirm.Evidence]struct{}),
		closeCh:      make(chan struct{}),
		gcDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pool)
	}

	if pool.retention > 0 && pool.gcInterval > 0 {
		go pool.gc()
	} else {
		close(pool.gcDone)
	}
	return pool
}

// Close stops garbage collection. Stored evidence stays accessible.
func (p *MemPool) Close() {
	p.closeOnce.Do(func() {
		close(p.closeCh)
	})
	<-p.gcDone
}

// Push stores the Evidence and wakes up everyone pulling it.
// Pushing the same evidence again refreshes its retention.
func (p *MemPool) Push(_ context.Context, ev confirm.Evidence) error {
	if p.verify != nil {
		if err := p.verify(ev); err != nil {
			return err
		}
	}

	p.evidenceMu.Lock()
	defer p.evidenceMu.Unlock()

	key := string(ev.Digest())
	entry, ok := p.evidence[key]
	if !ok {
		p.seq++
		entry = evidenceEntry{Evidence: ev.Clone(), seq: p.seq}
	}
	entry.time = time.Now()
	p.evidence[key] = entry

	subs, ok := p.evidenceSubs[key]
	if ok {
		for sub := range subs {
			sub <- entry.Evidence.Clone() // subs are always buffered, so this won't block
		}
		delete(p.evidenceSubs, key)
	}
	return nil
}

// Pull returns the Evidence with the digest, waiting for it to be pushed if needed.
func (p *MemPool) Pull(ctx context.Context, digest []byte) (confirm.Evidence, error) {
	p.evidenceMu.Lock()
	key := string(digest)
	e, ok := p.evidence[key]
	if ok {
		p.evidenceMu.Unlock()
		return e.Evidence.Clone(), nil
	}

	subs, ok := p.evidenceSubs[key]
	if !ok {
		subs = make(map[chan confirm.Evidence]struct{})
		p.evidenceSubs[key] = subs
	}

	sub := make(chan confirm.Evidence, 1)
	subs[sub] = struct{}{}
	p.evidenceMu.Unlock()

	select {
	case ev, ok := <-sub:
		if !ok {
			return confirm.Evidence{}, ErrEvidenceDeleted
		}
		return ev, nil
	case <-ctx.Done():
		// no need to keep the request, if the caller has canceled
		p.evidenceMu.Lock()
		delete(subs, sub)
		if len(subs) == 0 {
			delete(p.evidenceSubs, key)
		}
		p.evidenceMu.Unlock()
		return confirm.Evidence{}, ctx.Err()
	}
}

// List returns all the stored evidence in push order.
func (p *MemPool) List(context.Context) ([]confirm.Evidence, error) {
	return p.list(func(confirm.Evidence) bool { return true }), nil
}

// ListByValue returns the stored evidence against the value in push order.
func (p *MemPool) ListByValue(_ context.Context, v confirm.Value) ([]confirm.Evidence, error) {
	return p.list(func(ev confirm.Evidence) bool { return ev.Value().Equal(v) }), nil
}

func (p *MemPool) list(filter func(confirm.Evidence) bool) []confirm.Evidence {
	p.evidenceMu.Lock()
	defer p.evidenceMu.Unlock()

	entries := make([]evidenceEntry, 0, len(p.evidence))
	for _, e := range p.evidence {
		if filter(e.Evidence) {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b evidenceEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})

	evs := make([]confirm.Evidence, len(entries))
	for i, e := range entries {
		evs[i] = e.Evidence.Clone()
	}
	return evs
}

// Delete removes the evidence with the digest. Pending pulls fail with ErrEvidenceDeleted.
func (p *MemPool) Delete(_ context.Context, digest []byte) error {
	p.evidenceMu.Lock()
	defer p.evidenceMu.Unlock()

	key := string(digest)
	p.delete(key)
	return nil
}

func (p *MemPool) delete(key string) {
	delete(p.evidence, key)
	for sub := range p.evidenceSubs[key] {
		close(sub)
	}
	delete(p.evidenceSubs, key)
}

func (p *MemPool) Size(context.Context) (int, error) {
	p.evidenceMu.Lock()
	defer p.evidenceMu.Unlock()
	return len(p.evidence), nil
}

// gc periodically cleans up stale evidence
func (p *MemPool) gc() {
	defer close(p.gcDone)

	ticker := time.NewTicker(p.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			p.evidenceMu.Lock()
			for key, e := range p.evidence {
				if e.time.Add(p.retention).Before(now) {
					p.delete(key)
				}
			}
			p.evidenceMu.Unlock()
		case <-p.closeCh:
			return
		}
	}
}
