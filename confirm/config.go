package confirm

import "fmt"

// Config holds the explicit construction parameters of a Confirmer instance.
type Config struct {
	// Self is the local process identity.
	Self ProcessID
	// N is the assumed number of processes.
	N int
	// T0 is the assumed upper bound on faulty processes. It must satisfy 1 <= T0 < N/2:
	// two quorums must intersect, and a quorum of N-T0 must be reachable without the
	// local process.
	T0 int
	// BroadcastFull additionally broadcasts the full certificate on confirmation,
	// making attributable evidence available to every peer.
	BroadcastFull bool
}

// Quorum returns the number of distinct endorsers required to confirm.
func (cfg Config) Quorum() int {
	return cfg.N - cfg.T0
}

// Validate checks the Config for consistency.
func (cfg Config) Validate() error {
	if cfg.N <= 0 {
		return fmt.Errorf("%w: N must be positive, got %d", ErrInvalidConfig, cfg.N)
	}
	if cfg.T0 < 0 {
		return fmt.Errorf("%w: T0 must not be negative, got %d", ErrInvalidConfig, cfg.T0)
	}
	// quorum intersection: 2(N-T0) > N
	if 2*cfg.Quorum() <= cfg.N {
		return fmt.Errorf("%w: T0(%d) must be less than N(%d)/2", ErrInvalidConfig, cfg.T0, cfg.N)
	}
	// a process never endorses its own value, so at most N-1 endorsers exist
	if cfg.Quorum() > cfg.N-1 {
		return fmt.Errorf("%w: quorum %d exceeds the %d other processes, T0 must be at least 1",
			ErrInvalidConfig, cfg.Quorum(), cfg.N-1)
	}
	return nil
}
