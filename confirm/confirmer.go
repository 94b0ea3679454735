package confirm

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
)

// State of the Confirmer.
type State uint8

const (
	StateIdle State = iota
	StateSubmitted
	StateConfirmed
	// StateAborted is reachable only after confirmation and does not retract it.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Option configures optional Confirmer dependencies.
type Option func(*Confirmer)

// WithLogger sets the logger of the Confirmer.
func WithLogger(log *slog.Logger) Option {
	return func(c *Confirmer) {
		c.log = log
	}
}

// WithNotifier sets the receiver of Confirmed and Aborted notifications.
func WithNotifier(n Notifier) Option {
	return func(c *Confirmer) {
		c.notifier = n
	}
}

// WithMetrics enables protocol metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Confirmer) {
		c.metrics = m
	}
}

// Confirmer is the per-process Accountable Confirmer state machine.
// It is not safe for concurrent use.
type Confirmer struct {
	cfg       Config
	bcast     Broadcaster
	signer    SignatureProvider
	certifier *Certifier

	notifier Notifier
	metrics  *Metrics
	log      *slog.Logger

	initialized bool
	value       Value
	share       Share // own share over value, kept for rebroadcasts
	confirmed   bool
	aborted     bool

	endorsers map[ProcessID]struct{}
	shares    []Share // light certificate accumulator
	entries   []Entry // full certificate accumulator
	light     *LightCertificate
	full      *FullCertificate
	evidence  *Evidence

	observedLight []LightCertificate
	observedFull  []FullCertificate
	seen          map[string]struct{} // observedKey of observed certificates
}

// New instantiates a new Confirmer. Init must be called before Submit or Deliver.
func New(cfg Config, bcast Broadcaster, signer SignatureProvider, opts ...Option) (*Confirmer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bcast == nil || signer == nil {
		return nil, fmt.Errorf("%w: broadcaster and signature provider are required", ErrInvalidConfig)
	}

	c := &Confirmer{
		cfg:       cfg,
		bcast:     bcast,
		signer:    signer,
		certifier: NewCertifier(cfg.Quorum(), signer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = NotifierFuncs{}
	}
	if c.log == nil {
		c.log = slog.With("module", "confirmer")
	}
	c.log = c.log.With("self", cfg.Self)
	return c, nil
}

// Init resets all the accumulated state. It must be called before the first Submit or Deliver.
func (c *Confirmer) Init() {
	c.initialized = true
	c.value = nil
	c.share = Share{}
	c.confirmed = false
	c.aborted = false
	c.endorsers = make(map[ProcessID]struct{}, c.cfg.N)
	c.shares = make([]Share, 0, c.cfg.Quorum())
	c.entries = make([]Entry, 0, c.cfg.Quorum())
	c.light = nil
	c.full = nil
	c.evidence = nil
	c.observedLight = nil
	c.observedFull = nil
	c.seen = make(map[string]struct{})
}

// Submit puts the value forward: it signs a share over it and broadcasts it to every other process.
// A value can only be submitted once per run.
func (c *Confirmer) Submit(ctx context.Context, v Value) error {
	if !c.initialized {
		return fmt.Errorf("%w: submit before init", ErrInvalidState)
	}
	if len(v) == 0 {
		return ErrEmptyValue
	}
	if c.value != nil {
		return fmt.Errorf("%w: value already submitted", ErrInvalidState)
	}

	share, err := c.signer.ShareSign(v)
	if err != nil {
		return fmt.Errorf("signing share: %w", err)
	}

	c.value = v.Clone()
	c.share = share
	c.log.DebugContext(ctx, "submitting", "value", c.value)

	err = c.bcast.Broadcast(ctx, c.cfg.Self, NewSubmit(c.value, c.share))
	if err != nil {
		return fmt.Errorf("broadcasting submit: %w", err)
	}
	return nil
}

// Rebroadcast retransmits the local Submit and, once confirmed, the local certificates.
// Best-Effort Broadcast gives no delivery guarantee, so the surrounding system may call it
// periodically to recover liveness.
func (c *Confirmer) Rebroadcast(ctx context.Context) error {
	if !c.initialized || c.value == nil {
		return fmt.Errorf("%w: nothing to rebroadcast", ErrInvalidState)
	}

	err := c.bcast.Broadcast(ctx, c.cfg.Self, NewSubmit(c.value, c.share))
	if err != nil {
		return fmt.Errorf("broadcasting submit: %w", err)
	}
	if !c.confirmed {
		return nil
	}
	return c.broadcastCertificates(ctx)
}

// Deliver processes a Message from the sender. Invalid messages are dropped without error.
// It returns ErrInvalidState if called before Init and ErrInvariantViolation if previously
// validated certificates no longer validate.
func (c *Confirmer) Deliver(ctx context.Context, from ProcessID, msg Message) error {
	if !c.initialized {
		return fmt.Errorf("%w: deliver before init", ErrInvalidState)
	}

	switch msg.Kind {
	case KindSubmit:
		c.processSubmit(ctx, from, msg)
	case KindLightCertificate:
		c.processLight(ctx, from, msg)
	case KindFullCertificate:
		c.processFull(ctx, from, msg)
	default:
		c.drop(ctx, from, msg, dropMalformed)
	}

	c.checkQuorum(ctx)
	return c.checkAccountability(ctx)
}

func (c *Confirmer) processSubmit(ctx context.Context, from ProcessID, msg Message) {
	if len(msg.Value) == 0 || len(msg.Share.Body) == 0 {
		c.drop(ctx, from, msg, dropMalformed)
		return
	}
	if !c.signer.ShareVerify(from, msg.Value, msg.Share) {
		c.drop(ctx, from, msg, dropVerification)
		return
	}
	if c.value == nil || !msg.Value.Equal(c.value) {
		c.drop(ctx, from, msg, dropValue)
		return
	}
	if _, ok := c.endorsers[from]; ok {
		c.drop(ctx, from, msg, dropDuplicate)
		return
	}

	entry, err := c.certifier.NewEntry(c.value, msg.Share)
	if err != nil {
		// without the entry the full certificate would lag the light one, so don't count the endorser
		c.log.ErrorContext(ctx, "cross signing share", "from", from, "err", err)
		return
	}

	c.endorsers[from] = struct{}{}
	c.shares = append(c.shares, msg.Share.Clone())
	c.entries = append(c.entries, entry)
	c.metrics.observeDelivered(msg.Kind)
	c.log.DebugContext(ctx, "accepted share", "from", from, "endorsers", len(c.endorsers))
}

func (c *Confirmer) processLight(ctx context.Context, from ProcessID, msg Message) {
	if msg.Light == nil {
		c.drop(ctx, from, msg, dropMalformed)
		return
	}
	// reorderings of an observed certificate are duplicates
	if _, ok := c.seen[observedKey(KindLightCertificate, msg.Value, msg.Light.Signers())]; ok {
		c.drop(ctx, from, msg, dropDuplicate)
		return
	}
	if !c.certifier.ValidateLight(msg.Value, *msg.Light) {
		c.drop(ctx, from, msg, dropVerification)
		return
	}
	c.observeLight(*msg.Light)

	c.metrics.observeDelivered(msg.Kind)
	c.log.DebugContext(ctx, "observed light certificate", "from", from, "signers", msg.Light.Signers())
}

func (c *Confirmer) processFull(ctx context.Context, from ProcessID, msg Message) {
	if msg.Full == nil {
		c.drop(ctx, from, msg, dropMalformed)
		return
	}
	key := observedKey(KindFullCertificate, msg.Value, msg.Full.Signers())
	if _, ok := c.seen[key]; ok {
		c.drop(ctx, from, msg, dropDuplicate)
		return
	}
	if !c.certifier.ValidateFull(msg.Value, *msg.Full) {
		c.drop(ctx, from, msg, dropVerification)
		return
	}
	c.seen[key] = struct{}{}
	c.observedFull = append(c.observedFull, msg.Full.Clone())

	c.metrics.observeDelivered(msg.Kind)
	c.log.DebugContext(ctx, "observed full certificate", "from", from, "signers", msg.Full.Signers())
}

// observeLight appends a deep copy of the certificate, unless one with the same signers
// was already observed for the value.
func (c *Confirmer) observeLight(cert LightCertificate) {
	key := observedKey(KindLightCertificate, cert.Value, cert.Signers())
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.observedLight = append(c.observedLight, cert.Clone())
}

// observedKey identifies a certificate by its kind, value and signer set, regardless of order.
// Observed certificates are thereby bounded by the distinct signer sets of valid quorums.
func observedKey(kind Kind, v Value, signers []ProcessID) string {
	signers = slices.Clone(signers)
	slices.Sort(signers)

	key := make([]byte, 0, 5+len(v)+4*len(signers))
	key = append(key, byte(kind))
	key = binary.BigEndian.AppendUint32(key, uint32(len(v)))
	key = append(key, v...)
	for _, id := range signers {
		key = binary.BigEndian.AppendUint32(key, uint32(id))
	}
	return string(key)
}

// checkQuorum confirms the submitted value once enough distinct endorsers were accepted.
func (c *Confirmer) checkQuorum(ctx context.Context) {
	if c.confirmed || len(c.endorsers) < c.cfg.Quorum() {
		return
	}

	c.confirmed = true
	c.metrics.observeConfirmed()
	c.log.InfoContext(ctx, "confirmed", "value", c.value, "endorsers", len(c.endorsers))
	c.notifier.Confirmed(ctx, c.value.Clone())

	light := c.certifier.AssembleLight(c.value, c.shares)
	full := c.certifier.AssembleFull(c.value, c.entries)
	c.light, c.full = &light, &full
	// own certificate takes part in equivocation detection like any observed one
	c.observeLight(light)

	if err := c.broadcastCertificates(ctx); err != nil {
		c.log.ErrorContext(ctx, "broadcasting certificates", "err", err)
	}
}

func (c *Confirmer) broadcastCertificates(ctx context.Context) error {
	err := c.bcast.Broadcast(ctx, c.cfg.Self, NewLightCertificateMessage(c.light.Clone()))
	if err != nil {
		return fmt.Errorf("broadcasting light certificate: %w", err)
	}
	if !c.cfg.BroadcastFull {
		return nil
	}

	err = c.bcast.Broadcast(ctx, c.cfg.Self, NewFullCertificateMessage(c.full.Clone()))
	if err != nil {
		return fmt.Errorf("broadcasting full certificate: %w", err)
	}
	return nil
}

// checkAccountability re-validates observed light certificates and looks for a conflicting pair.
func (c *Confirmer) checkAccountability(ctx context.Context) error {
	if !c.confirmed || c.aborted {
		return nil
	}

	for i, cert := range c.observedLight {
		if !c.certifier.ValidateLight(cert.Value, cert) {
			return fmt.Errorf("%w: observed light certificate #%d no longer validates", ErrInvariantViolation, i)
		}
	}

	ev, ok := findConflict(c.observedLight)
	if !ok {
		return nil
	}

	c.aborted = true
	c.evidence = &ev
	c.metrics.observeAborted()
	c.log.WarnContext(ctx, "quorum safety violated",
		"value", ev.Value(),
		"first_signers", ev.First.Signers(),
		"second_signers", ev.Second.Signers(),
	)
	c.notifier.Aborted(ctx, ev.Clone())
	return nil
}

func (c *Confirmer) drop(ctx context.Context, from ProcessID, msg Message, reason string) {
	c.metrics.observeDropped(reason)
	c.log.DebugContext(ctx, "dropped message", "from", from, "kind", msg.Kind, "reason", reason)
}

// State returns the current State.
func (c *Confirmer) State() State {
	switch {
	case c.aborted:
		return StateAborted
	case c.confirmed:
		return StateConfirmed
	case c.value != nil:
		return StateSubmitted
	default:
		return StateIdle
	}
}

// Self returns the local process identity.
func (c *Confirmer) Self() ProcessID {
	return c.cfg.Self
}

// Value returns the submitted value, or nil before Submit.
func (c *Confirmer) Value() Value {
	return c.value.Clone()
}

// Confirmed reports whether the submitted value reached quorum.
func (c *Confirmer) Confirmed() bool {
	return c.confirmed
}

// Endorsers returns accepted endorsers in ascending order.
func (c *Confirmer) Endorsers() []ProcessID {
	ids := make([]ProcessID, 0, len(c.endorsers))
	for id := range c.endorsers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LightCertificate returns the local light certificate, available once confirmed.
func (c *Confirmer) LightCertificate() (LightCertificate, bool) {
	if c.light == nil {
		return LightCertificate{}, false
	}
	return c.light.Clone(), true
}

// FullCertificate returns the local full certificate, available once confirmed.
func (c *Confirmer) FullCertificate() (FullCertificate, bool) {
	if c.full == nil {
		return FullCertificate{}, false
	}
	return c.full.Clone(), true
}

// ObservedLight returns copies of all the observed light certificates in observation order.
func (c *Confirmer) ObservedLight() []LightCertificate {
	certs := make([]LightCertificate, len(c.observedLight))
	for i, cert := range c.observedLight {
		certs[i] = cert.Clone()
	}
	return certs
}

// ObservedFull returns copies of all the observed full certificates in observation order.
func (c *Confirmer) ObservedFull() []FullCertificate {
	certs := make([]FullCertificate, len(c.observedFull))
	for i, cert := range c.observedFull {
		certs[i] = cert.Clone()
	}
	return certs
}

// Evidence returns the accusation evidence, available once aborted.
func (c *Confirmer) Evidence() (Evidence, bool) {
	if c.evidence == nil {
		return Evidence{}, false
	}
	return c.evidence.Clone(), true
}

// Status is a point-in-time snapshot of a Confirmer.
type Status struct {
	Self          ProcessID
	State         State
	Value         Value
	Endorsers     []ProcessID
	ObservedLight int
	ObservedFull  int
}

// Status returns a snapshot of the Confirmer.
func (c *Confirmer) Status() Status {
	return Status{
		Self:          c.cfg.Self,
		State:         c.State(),
		Value:         c.Value(),
		Endorsers:     c.Endorsers(),
		ObservedLight: len(c.observedLight),
		ObservedFull:  len(c.observedFull),
	}
}
