package selector

import (
	"context"
	"github.com/miguelmartens/sidekv/lib/store"
	"github.com/miguelmartens/sidekv/lib/store/memstore"
	"github.com/miguelmartens/sidekv/lib/telemetry"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultProbeInterval  = 10 * time.Second
	defaultErrorThreshold = 3
	startupPollStep       = 500 * time.Millisecond
)

// --------------------------------------------------------------------------
// Health State
// --------------------------------------------------------------------------

// HealthState is the readiness state machine driven by the health monitor.
type HealthState int32

const (
	// Starting means no probe has resolved yet. Readiness probes fail.
	Starting HealthState = iota
	// Ready means a backend is confirmed reachable, sidecar or fallback.
	Ready
	// Degraded means the last operation against the active backend failed
	// and no fallback succeeded. Unreachable in practice since the
	// in-memory fallback cannot fail, but modeled for completeness.
	Degraded
)

// String returns the string representation of a HealthState.
func (h HealthState) String() string {
	switch h {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Operation Outcome
// --------------------------------------------------------------------------

// Outcome describes how a single logical operation was satisfied. It is an
// internal result: the HTTP facade collapses it to a plain success/failure
// boundary and never exposes which backend served a request.
type Outcome int

const (
	// ServedPrimary means the currently active backend satisfied the
	// operation.
	ServedPrimary Outcome = iota
	// ServedFallback means the active backend failed but the in-memory
	// fallback satisfied the same logical operation transparently.
	ServedFallback
	// Failed means no backend satisfied the operation.
	Failed
)

// String returns the telemetry label for an Outcome.
func (o Outcome) String() string {
	switch o {
	case ServedPrimary:
		return telemetry.OutcomePrimary
	case ServedFallback:
		return telemetry.OutcomeFallback
	default:
		return telemetry.OutcomeError
	}
}

// --------------------------------------------------------------------------
// Probe Result
// --------------------------------------------------------------------------

// ProbeResult is the most recent reachability check per backend. Only the
// latest instance is retained - it feeds readiness decisions, nothing else.
type ProbeResult struct {
	AttemptedAt time.Time
	Backend     store.BackendKind
	Success     bool
}

// --------------------------------------------------------------------------
// Selector
// --------------------------------------------------------------------------

// Options configures a Selector.
type Options struct {
	// Sidecar is the sidecar-routed backend. Nil means no sidecar is
	// configured and the selector serves from the in-memory backend only.
	Sidecar store.Backend
	// Fallback overrides the in-memory fallback backend. Defaults to a
	// fresh memstore instance.
	Fallback store.Backend
	// ProbeInterval is the fixed re-probe cadence of the health monitor.
	ProbeInterval time.Duration
	// StartupWait bounds the initial wait for the sidecar to come up
	// before the first selection probe. Zero skips the wait.
	StartupWait time.Duration
	// ErrorThreshold is the number of consecutive backend-reported faults
	// after which the sidecar is demoted. A single fault never demotes.
	ErrorThreshold int
	// Logger receives selection and probe events. Defaults to slog.Default.
	Logger *slog.Logger
	// Recorder receives telemetry events. Defaults to the no-op recorder.
	Recorder telemetry.Recorder
}

// Selector owns the process-wide backend choice and health state. The active
// backend is a single atomically read value on every request's hot path;
// it is written only by the health monitor and by demotions. Construct one
// per process (or per test case) and pass it to the HTTP handlers explicitly.
type Selector struct {
	sidecar        store.Backend
	fallback       store.Backend
	probeInterval  time.Duration
	startupWait    time.Duration
	errorThreshold int
	logger         *slog.Logger
	recorder       telemetry.Recorder

	active       atomic.Int32 // store.BackendKind
	health       atomic.Int32 // HealthState
	fault        atomic.Bool  // unrecoverable internal fault, gates liveness
	consecFaults atomic.Int32 // consecutive sidecar RetCBackendError count

	lastSidecarProbe  atomic.Pointer[ProbeResult]
	lastFallbackProbe atomic.Pointer[ProbeResult]

	probeCh  chan struct{} // coalesced immediate re-probe trigger
	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// New creates a Selector in the Starting state with the in-memory backend
// active. Call Start to run the initial probe and launch the health monitor.
func New(opts Options) *Selector {
	if opts.Fallback == nil {
		opts.Fallback = memstore.NewInMemoryBackend()
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.ErrorThreshold <= 0 {
		opts.ErrorThreshold = defaultErrorThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = telemetry.NoopRecorder{}
	}

	s := &Selector{
		sidecar:        opts.Sidecar,
		fallback:       opts.Fallback,
		probeInterval:  opts.ProbeInterval,
		startupWait:    opts.StartupWait,
		errorThreshold: opts.ErrorThreshold,
		logger:         opts.Logger,
		recorder:       opts.Recorder,
		probeCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	s.active.Store(int32(store.KindInMemory))
	s.health.Store(int32(Starting))
	return s
}

// Start runs the startup probe synchronously, so readiness is resolved when
// it returns, and then launches the background health monitor. The monitor
// stops when ctx is canceled or Close is called.
func (s *Selector) Start(ctx context.Context) {
	if s.sidecar != nil && s.startupWait > 0 {
		s.awaitSidecar(ctx)
	}
	s.probeCycle(ctx)
	if s.started.CompareAndSwap(false, true) {
		go s.monitor(ctx)
	}
}

// Close stops the health monitor. It does not wait for in-flight operations.
func (s *Selector) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.Load() {
		<-s.done
	}
}

// --------------------------------------------------------------------------
// State Accessors
// --------------------------------------------------------------------------

// Backend returns the currently active backend kind.
func (s *Selector) Backend() store.BackendKind {
	return store.BackendKind(s.active.Load())
}

// Readiness returns the current health state. Ready gates traffic admission.
func (s *Selector) Readiness() HealthState {
	return HealthState(s.health.Load())
}

// Liveness reports whether the process itself is healthy. Backend
// unavailability never affects liveness - only an unrecoverable internal
// fault (the guaranteed fallback failing a write) turns it false.
func (s *Selector) Liveness() bool {
	return !s.fault.Load()
}

// LastProbe returns the most recent probe result for the given backend kind.
func (s *Selector) LastProbe(kind store.BackendKind) (ProbeResult, bool) {
	var p *ProbeResult
	switch kind {
	case store.KindSidecar:
		p = s.lastSidecarProbe.Load()
	default:
		p = s.lastFallbackProbe.Load()
	}
	if p == nil {
		return ProbeResult{}, false
	}
	return *p, true
}

// --------------------------------------------------------------------------
// State Operations
// --------------------------------------------------------------------------

// Get reads a key through the active backend, falling back transparently on
// sidecar unavailability. Absence is reported via found, never as an error.
func (s *Selector) Get(ctx context.Context, key string) (value []byte, found bool, outcome Outcome, err error) {
	start := time.Now()
	kind := s.Backend()

	if kind == store.KindSidecar {
		value, found, err = s.sidecar.Get(ctx, key)
		outcome = s.afterSidecarOp(ctx, err)
		switch outcome {
		case ServedPrimary:
			s.recordOp(ctx, "get", kind, ServedPrimary, start)
			return value, found, ServedPrimary, nil
		case ServedFallback:
			value, found, err = s.fallback.Get(ctx, key)
			return value, found, s.finishFallback(ctx, "get", start, err), err
		default:
			s.recordOp(ctx, "get", kind, Failed, start)
			return nil, false, Failed, err
		}
	}

	value, found, err = s.fallback.Get(ctx, key)
	if err != nil {
		s.markFault(err)
		s.recordOp(ctx, "get", kind, Failed, start)
		return nil, false, Failed, err
	}
	s.recordOp(ctx, "get", kind, ServedPrimary, start)
	return value, found, ServedPrimary, nil
}

// Set upserts a key through the active backend, falling back transparently
// on sidecar unavailability.
func (s *Selector) Set(ctx context.Context, key string, value []byte) (outcome Outcome, err error) {
	start := time.Now()
	kind := s.Backend()

	if kind == store.KindSidecar {
		err = s.sidecar.Set(ctx, key, value)
		outcome = s.afterSidecarOp(ctx, err)
		switch outcome {
		case ServedPrimary:
			s.recordOp(ctx, "set", kind, ServedPrimary, start)
			return ServedPrimary, nil
		case ServedFallback:
			err = s.fallback.Set(ctx, key, value)
			return s.finishFallback(ctx, "set", start, err), err
		default:
			s.recordOp(ctx, "set", kind, Failed, start)
			return Failed, err
		}
	}

	err = s.fallback.Set(ctx, key, value)
	if err != nil {
		s.markFault(err)
		s.recordOp(ctx, "set", kind, Failed, start)
		return Failed, err
	}
	s.recordOp(ctx, "set", kind, ServedPrimary, start)
	return ServedPrimary, nil
}

// Delete removes a key through the active backend, falling back transparently
// on sidecar unavailability. Deleting an absent key succeeds.
func (s *Selector) Delete(ctx context.Context, key string) (outcome Outcome, err error) {
	start := time.Now()
	kind := s.Backend()

	if kind == store.KindSidecar {
		err = s.sidecar.Delete(ctx, key)
		outcome = s.afterSidecarOp(ctx, err)
		switch outcome {
		case ServedPrimary:
			s.recordOp(ctx, "delete", kind, ServedPrimary, start)
			return ServedPrimary, nil
		case ServedFallback:
			err = s.fallback.Delete(ctx, key)
			return s.finishFallback(ctx, "delete", start, err), err
		default:
			s.recordOp(ctx, "delete", kind, Failed, start)
			return Failed, err
		}
	}

	err = s.fallback.Delete(ctx, key)
	if err != nil {
		s.markFault(err)
		s.recordOp(ctx, "delete", kind, Failed, start)
		return Failed, err
	}
	s.recordOp(ctx, "delete", kind, ServedPrimary, start)
	return ServedPrimary, nil
}

// --------------------------------------------------------------------------
// Failure Handling
// --------------------------------------------------------------------------

// afterSidecarOp classifies the result of a sidecar operation and updates
// selection state. It returns ServedPrimary on success, ServedFallback when
// the operation should be replayed against the fallback backend, and Failed
// when the error must surface to the caller.
func (s *Selector) afterSidecarOp(ctx context.Context, err error) Outcome {
	if err == nil {
		s.consecFaults.Store(0)
		return ServedPrimary
	}

	// An abandoned operation (caller disconnect) is not a reachability
	// signal and must not mutate selection state
	if ctx.Err() != nil && !store.IsUnavailable(err) {
		return Failed
	}

	if store.IsUnavailable(err) {
		s.demote(err)
		return ServedFallback
	}

	if store.IsBackendError(err) {
		// A single backend-reported fault does not demote; a run of them
		// does, so the monitor stops routing to a consistently broken agent.
		// Either way the failure schedules an immediate re-probe.
		if s.consecFaults.Add(1) >= int32(s.errorThreshold) {
			s.demote(err)
			return Failed
		}
		s.triggerProbe()
		return Failed
	}

	return Failed
}

// finishFallback records the outcome of a fallback attempt following a
// sidecar demotion. A fallback failure is an unrecoverable internal fault.
func (s *Selector) finishFallback(ctx context.Context, op string, start time.Time, err error) Outcome {
	if err != nil {
		s.markFault(err)
		s.recordOp(ctx, op, store.KindInMemory, Failed, start)
		return Failed
	}
	s.recordOp(ctx, op, store.KindInMemory, ServedFallback, start)
	return ServedFallback
}

// demote switches the active backend to the in-memory fallback and schedules
// an immediate background re-probe. The CAS makes concurrent demotions
// idempotent: only the first failing request logs and records the event.
func (s *Selector) demote(cause error) {
	if s.active.CompareAndSwap(int32(store.KindSidecar), int32(store.KindInMemory)) {
		s.logger.Warn("sidecar backend demoted, serving from in-memory fallback", "cause", cause)
		s.recorder.RecordDemotion(store.KindSidecar.String())
	}
	s.triggerProbe()
}

// markFault flags an unrecoverable internal fault. The guaranteed in-memory
// fallback failing an operation must not happen by construction; if it does,
// liveness goes false and the health state degrades so the process is
// restarted rather than silently dropping writes.
func (s *Selector) markFault(err error) {
	if s.fault.CompareAndSwap(false, true) {
		s.logger.Error("in-memory fallback failed, process is faulted", "err", err)
	}
	s.health.Store(int32(Degraded))
}

// triggerProbe schedules an immediate re-probe without blocking. Multiple
// triggers between two cycles coalesce into one.
func (s *Selector) triggerProbe() {
	select {
	case s.probeCh <- struct{}{}:
	default:
	}
}

// recordOp emits the telemetry hook for one finished operation.
func (s *Selector) recordOp(_ context.Context, op string, kind store.BackendKind, outcome Outcome, start time.Time) {
	s.recorder.RecordOp(op, kind.String(), outcome.String(), time.Since(start))
}

// --------------------------------------------------------------------------
// Health Monitor
// --------------------------------------------------------------------------

// monitor is the background probe loop. It re-probes on the fixed interval
// and immediately when an operation failure triggers a re-probe. It never
// holds a lock across a network call - all shared state is atomic.
func (s *Selector) monitor(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.probeCh:
		}
		s.probeCycle(ctx)
	}
}

// probeCycle runs one full selection cycle: probe the sidecar if configured,
// choose the active backend and resolve the health state. The health state is
// written exactly once per cycle.
func (s *Selector) probeCycle(ctx context.Context) {
	now := time.Now()

	// The fallback is reachable by construction
	s.lastFallbackProbe.Store(&ProbeResult{AttemptedAt: now, Backend: store.KindInMemory, Success: true})

	next := Ready
	if s.fault.Load() {
		next = Degraded
	}

	if s.sidecar == nil {
		s.active.Store(int32(store.KindInMemory))
		s.health.Store(int32(next))
		return
	}

	prober, ok := s.sidecar.(store.Prober)
	var err error
	if ok {
		err = prober.Probe(ctx)
	} else {
		// Cheap get against the sidecar doubles as a reachability check
		_, _, err = s.sidecar.Get(ctx, "sidekv-probe")
	}

	s.lastSidecarProbe.Store(&ProbeResult{AttemptedAt: now, Backend: store.KindSidecar, Success: err == nil})
	s.recorder.RecordProbe(store.KindSidecar.String(), err == nil)

	if err == nil {
		if s.active.CompareAndSwap(int32(store.KindInMemory), int32(store.KindSidecar)) {
			// A fresh selection starts with a clean fault run
			s.consecFaults.Store(0)
			s.logger.Info("sidecar backend selected")
		}
	} else {
		if s.active.CompareAndSwap(int32(store.KindSidecar), int32(store.KindInMemory)) {
			s.logger.Warn("sidecar unreachable, serving from in-memory fallback", "err", err)
		}
	}

	s.health.Store(int32(next))
}

// awaitSidecar polls the sidecar until it is reachable or the startup
// deadline passes. The health state stays Starting for the whole wait.
func (s *Selector) awaitSidecar(ctx context.Context) {
	prober, ok := s.sidecar.(store.Prober)
	if !ok {
		return
	}

	deadline := time.Now().Add(s.startupWait)
	for time.Now().Before(deadline) {
		if err := prober.Probe(ctx); err == nil {
			s.logger.Info("sidecar ready")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(startupPollStep):
		}
	}
	s.logger.Warn("sidecar not reachable within startup deadline", "waited", s.startupWait)
}
