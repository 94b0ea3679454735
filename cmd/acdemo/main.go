package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/evidence"
	"github.com/iykyk-syn/accountable/signing"
)

var (
	processes     int
	faulty        int
	value         string
	transport     string
	equivocate    bool
	broadcastFull bool
	seed          int64
	duplicate     float64
	timeout       time.Duration
	debug         bool
)

func init() {
	flag.IntVar(&processes, "n", 4, "Number of honest processes, also the assumed process count")
	flag.IntVar(&faulty, "t0", 1, "Assumed upper bound on faulty processes. Must be at least 1 and less than n/2")
	flag.StringVar(&value, "value", "hello", "Value every process submits")
	flag.StringVar(&transport, "transport", "mem",
		"Best-Effort Broadcast transport: 'mem', 'gossip' or 'stream'",
	)
	flag.BoolVar(&equivocate, "equivocate", false,
		"Let processes outside the assumption certify the value with a disjoint quorum",
	)
	flag.BoolVar(&broadcastFull, "broadcast-full", false, "Broadcast full certificates on confirmation")
	flag.Int64Var(&seed, "seed", 1, "Seed for keys and the 'mem' transport reordering")
	flag.Float64Var(&duplicate, "duplicate", 0, "Probability of duplicating a packet on the 'mem' transport")
	flag.DurationVar(&timeout, "timeout", time.Second*30, "Timeout for the whole run")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx)
	if err != nil {
		fmt.Println(err)
		defer os.Exit(1)
		return
	}
}

func run(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := confirm.Config{N: processes, T0: faulty, BroadcastFull: broadcastFull}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// processes [n, n+quorum) are registered but fall outside the assumption
	registered := processes
	if equivocate {
		registered += cfg.Quorum()
	}
	members, providers, err := signing.Keyring(fmt.Sprintf("acdemo-%d", seed), signing.IDs(registered)...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := confirm.NewMetrics(reg)
	if err != nil {
		return err
	}

	pool := evidence.NewMemPool(evidence.WithVerifier(cfg.Quorum(), providers[0]))
	defer pool.Close()

	cl, err := newCluster(ctx, transport, cfg, members, providers, pool, metrics)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cl.close())
	}()

	fmt.Printf("Confirming %q among %d processes tolerating %d faults over %s\n\n", value, processes, faulty, transport)
	if err = confirmAll(ctx, cl, confirm.Value(value)); err != nil {
		return err
	}

	if equivocate {
		if err = injectEquivocation(ctx, cl, cfg, providers); err != nil {
			return err
		}
		if err = awaitAborts(ctx, cl, pool, cfg, providers); err != nil {
			return err
		}
	}

	return dumpMetrics(reg)
}

func confirmAll(ctx context.Context, cl *cluster, v confirm.Value) error {
	for _, nd := range cl.nodes {
		if err := nd.Submit(ctx, v); err != nil {
			return fmt.Errorf("submitting at %s: %w", nd.ID(), err)
		}
	}
	if err := cl.settle(ctx); err != nil {
		return err
	}

	for _, nd := range cl.nodes {
		confirmed, err := nd.Confirmed(ctx)
		if err != nil {
			return fmt.Errorf("awaiting confirmation at %s: %w", nd.ID(), err)
		}
		status, err := nd.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("* process %s confirmed %q, endorsed by %v\n", nd.ID(), confirmed, status.Endorsers)
	}
	fmt.Println()
	return nil
}

// injectEquivocation has the processes outside the assumption certify the value on their own
// and hand the certificate to every honest process.
func injectEquivocation(ctx context.Context, cl *cluster, cfg confirm.Config, providers map[confirm.ProcessID]*signing.Provider) error {
	v := confirm.Value(value)
	shares := make([]confirm.Share, 0, cfg.Quorum())
	for id := confirm.ProcessID(processes); int(id) < len(providers); id++ {
		share, err := providers[id].ShareSign(v)
		if err != nil {
			return err
		}
		shares = append(shares, share)
	}

	forger := confirm.ProcessID(processes)
	cert := confirm.NewCertifier(cfg.Quorum(), providers[forger]).AssembleLight(v, shares)
	fmt.Printf("Processes %v certify %q once more\n\n", cert.Signers(), v)

	for _, nd := range cl.nodes {
		err := cl.inject(ctx, forger, nd.ID(), confirm.NewLightCertificateMessage(cert))
		if err != nil {
			return fmt.Errorf("injecting into %s: %w", nd.ID(), err)
		}
	}
	return cl.settle(ctx)
}

func awaitAborts(ctx context.Context, cl *cluster, pool *evidence.MemPool, cfg confirm.Config, providers map[confirm.ProcessID]*signing.Provider) error {
	for _, nd := range cl.nodes {
		ev, err := nd.Aborted(ctx)
		if err != nil {
			return fmt.Errorf("awaiting abort at %s: %w", nd.ID(), err)
		}
		fmt.Printf("* process %s aborted: %v and %v certified the same value\n",
			nd.ID(), ev.First.Signers(), ev.Second.Signers())
	}

	evs, err := pool.List(ctx)
	if err != nil {
		return err
	}
	// an auditor outside the run verifies all the evidence independently
	auditor := providers[confirm.ProcessID(len(providers)-1)]
	for _, ev := range evs {
		if err := confirm.VerifyEvidence(ev, cfg.Quorum(), auditor); err != nil {
			return err
		}
	}
	fmt.Printf("\n%d pieces of evidence verified\n\n", len(evs))
	return nil
}

func dumpMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	fmt.Println("Metrics:")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue())
			}
			fmt.Printf("* %s{%s} %v\n", mf.GetName(), labels, m.GetCounter().GetValue())
		}
	}
	return nil
}
