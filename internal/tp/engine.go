package tp

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Collaborators are the external systems the engine consumes (§6). None
// of these block: CanTx returns ErrCANBusy rather than waiting for queue
// space, and Deliver/MyAddress are expected to return immediately.
type Collaborators struct {
	// CanTx transmits an 8-byte CAN frame with the given 29-bit extended
	// identifier. Returns ErrCANBusy if the controller's queue is full.
	CanTx func(id uint32, data [8]byte) error

	// NowMs returns the current monotonic millisecond timestamp.
	NowMs func() uint32

	// MyAddress returns this node's current J1939 source address.
	MyAddress func() Address

	// Deliver hands a fully reassembled message to the application. It is
	// invoked once the final packet has been written: a BAM-receiver is
	// then already in its Complete state, while a CM-receiver calls it
	// before transmitting the EoMA and stays in the table until that EoMA
	// is sent or its retry window runs out. The engine does not read or
	// write the buffer after the call (move semantics, §5).
	Deliver func(pgn PGN, src Address, data []byte)
}

// Handle identifies a session created by Send, for Cancel and for
// correlating OnSessionTerminated callbacks.
type Handle struct {
	Peer Address
	Role Role
}

// Options configures an Engine beyond its required Collaborators.
type Options struct {
	// MaxSessions bounds the Session Table (§4.2). Zero selects DefaultMaxSessions.
	MaxSessions int

	// DefaultMaxPerCTS is the packets-per-CTS value a CM-sender requests
	// and a CM-receiver is willing to grant (Open Question 1, default 4).
	DefaultMaxPerCTS int

	// Tbam is the BAM sender's inter-packet spacing. A value outside
	// [TbamMin, TbamMax] is replaced by TbamDefault.
	Tbam time.Duration

	// ThInterval is the CM-sender's inter-packet spacing within a CTS
	// window. A value <= 0 or above Th (the J1939-21 upper bound) is
	// replaced by ThDefault.
	ThInterval time.Duration

	// OnSessionTerminated, if set, is invoked when a session reaches a
	// terminal state, synchronously from OnFrame/Poll/Cancel/Send. It is
	// not invoked for a receiver session whose payload was handed to
	// Deliver.
	OnSessionTerminated func(h Handle, outcome Outcome)

	// Logger receives structured diagnostics. A discard logger is used
	// if nil.
	Logger *slog.Logger

	// Metrics receives session lifecycle and traffic counters. A no-op
	// reporter is used if nil.
	Metrics MetricsReporter
}

// Engine is the single entry point for inbound CAN frames and application
// send requests (§4.5). It is reentrancy-safe: OnFrame, Send, Cancel, and
// Poll may be called from different goroutines (CAN RX, tick, application)
// and are serialized behind an internal mutex. None of them block; Send
// returns Busy immediately rather than waiting for a colliding session to
// finish (§5).
type Engine struct {
	mu sync.Mutex

	table  *Table
	collab Collaborators
	opts   Options
	logger *slog.Logger
}

// NewEngine constructs an Engine. collab.CanTx, collab.NowMs,
// collab.MyAddress, and collab.Deliver must all be non-nil.
func NewEngine(collab Collaborators, opts Options) *Engine {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.DefaultMaxPerCTS <= 0 {
		opts.DefaultMaxPerCTS = 4
	}
	if opts.Tbam < TbamMin || opts.Tbam > TbamMax {
		opts.Tbam = TbamDefault
	}
	if opts.ThInterval <= 0 || opts.ThInterval > Th {
		opts.ThInterval = ThDefault
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}

	return &Engine{
		table:  NewTable(opts.MaxSessions),
		collab: collab,
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "tp.engine")),
	}
}

// now is a convenience wrapper around the NowMs collaborator.
func (e *Engine) now() uint32 {
	return e.collab.NowMs()
}

// OnFrame decodes an inbound CAN frame and routes it to the matching
// session. Unknown or stale frames are dropped without side effect.
func (e *Engine) OnFrame(rawID uint32, data [8]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := ParseID(rawID)
	isCM, isDT := id.isTP()
	my := e.collab.MyAddress()

	switch {
	case isCM:
		cm, err := DecodeCM(data)
		if err != nil {
			e.logger.Debug("dropping frame with unknown control byte", slog.Int("control", int(data[0])))
			e.opts.Metrics.FrameDropped()
			return
		}
		e.routeCM(id, cm, my)
	case isDT:
		seq, payload := DecodeDT(data)
		e.routeDT(id, seq, payload, my)
	default:
		// Not a TP.CM or TP.DT frame; nothing for this engine to do.
	}
}

// routeCM dispatches a decoded TP.CM frame to the session it belongs to,
// or creates one (BAM, RTS).
func (e *Engine) routeCM(id ID, cm CM, my Address) {
	src := id.Source
	dst := Address(id.PDUSpecific)

	switch cm.Control {
	case CtrlBAM:
		if dst != Broadcast {
			return
		}
		e.bamRXOnBAM(src, cm)
	case CtrlRTS:
		if dst != my {
			return
		}
		e.cmRXOnRTS(src, cm)
	case CtrlCTS:
		if dst != my {
			return
		}
		if s, ok := e.table.Lookup(src, kindCMTX); ok {
			e.cmTXOnCTS(s, cm)
		}
	case CtrlEoMA:
		if dst != my {
			return
		}
		if s, ok := e.table.Lookup(src, kindCMTX); ok {
			e.cmTXOnEoMA(s)
		}
	case CtrlAbort:
		if dst != my {
			return
		}
		if s, ok := e.table.Lookup(src, kindCMTX); ok {
			e.terminate(s, OutcomeAborted, false)
		}
		if s, ok := e.table.Lookup(src, kindCMRX); ok {
			e.terminate(s, OutcomeAborted, false)
		}
	}
}

// routeDT dispatches a decoded TP.DT frame to the CM-receiver or
// BAM-receiver session it belongs to.
func (e *Engine) routeDT(id ID, seq uint8, payload [7]byte, my Address) {
	src := id.Source
	dst := Address(id.PDUSpecific)

	if dst == Broadcast {
		if s, ok := e.table.Lookup(src, kindBAMRX); ok {
			e.bamRXOnDT(s, seq, payload)
		}
		return
	}
	if dst != my {
		return
	}
	if s, ok := e.table.Lookup(src, kindCMRX); ok {
		e.cmRXOnDT(s, seq, payload)
	}
}

// Send creates a new outbound session: a CM-sender when dest != Broadcast,
// a BAM-sender when dest == Broadcast.
func (e *Engine) Send(dest Address, pgn PGN, payload []byte) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	size := len(payload)
	if size > MaxMessageSize {
		return Handle{}, ErrTooLarge
	}
	if size < MinMessageSize {
		return Handle{}, ErrTooSmall
	}

	if dest == Broadcast {
		return e.bamTXStart(pgn, payload)
	}
	return e.cmTXStart(dest, pgn, payload)
}

// Cancel terminates any session with peer, transmitting a local Abort
// (reason Timeout) for CM sessions; BAM sessions have no abort path and
// are simply dropped (§5, §6).
func (e *Engine) Cancel(peer Address) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.table.Lookup(peer, kindCMTX); ok {
		e.abort(s, AbortTimeout)
	}
	if s, ok := e.table.Lookup(peer, kindCMRX); ok {
		e.abort(s, AbortTimeout)
	}
	if s, ok := e.table.Lookup(peer, kindBAMTX); ok {
		e.terminate(s, OutcomeLocalError, false)
	}
	if s, ok := e.table.Lookup(peer, kindBAMRX); ok {
		e.terminate(s, OutcomeLocalError, false)
	}
}

// Poll processes every session whose deadline has passed at or before
// nowMs (§4.3, §4.5). The caller drives this from an external tick of at
// least 10ms granularity.
func (e *Engine) Poll(nowMs uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.table.Due(nowMs) {
		e.onDeadline(s)
	}
}

// onDeadline routes an expired deadline to the owning role's handler.
func (e *Engine) onDeadline(s *Session) {
	switch s.Role {
	case RoleBAMSender:
		e.bamTXOnDeadline(s)
	case RoleBAMReceiver:
		e.bamRXOnDeadline(s)
	case RoleCMSender:
		e.cmTXOnDeadline(s)
	case RoleCMReceiver:
		e.cmRXOnDeadline(s)
	}
}

// Snapshot returns a read-only view of every live session, for
// introspection and tests.
func (e *Engine) Snapshot() []Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	all := e.table.All()
	out := make([]Session, len(all))
	for i, s := range all {
		out[i] = *s
	}
	return out
}

// --- shared helpers used by the per-role FSM files ---

// sendCM transmits a TP.CM frame from my address to dst. Callers that need
// the retriable-CAN-busy handling of §4.5/§7 go through sendCMRetriable
// instead of calling this directly.
func (e *Engine) sendCM(my, dst Address, cm CM) error {
	id := cmID(my, dst)
	return e.collab.CanTx(id.Raw(), EncodeCM(cm))
}

// sendDT transmits one TP.DT frame. Callers that need the retriable-CAN-busy
// handling of §4.5/§7 go through sendDTRetriable instead of calling this
// directly.
func (e *Engine) sendDT(my, dst Address, seq uint8, chunk []byte) error {
	id := dtID(my, dst)
	return e.collab.CanTx(id.Raw(), EncodeDT(seq, chunk))
}

// sendCMRetriable attempts to transmit cm, deferring a transient ErrCANBusy
// to holdForRetry instead of treating it as immediately terminal (§4.5,
// §7). It returns true when cm was actually sent (the caller proceeds with
// its normal post-send state change) and false when the send was deferred
// to a re-try deadline or escalated via escalate — either way, the caller
// must return without further action, since a successful retry re-enters
// through the same site that made this call.
func (e *Engine) sendCMRetriable(s *Session, my, dst Address, cm CM, now uint32, window time.Duration, escalate func()) bool {
	if err := e.sendCM(my, dst, cm); err != nil {
		e.holdForRetry(s, now, err, window, escalate)
		return false
	}
	s.retryHoldSince = 0
	return true
}

// sendDTRetriable is sendCMRetriable for a TP.DT frame.
func (e *Engine) sendDTRetriable(s *Session, my, dst Address, seq uint8, chunk []byte, now uint32, window time.Duration, escalate func()) bool {
	if err := e.sendDT(my, dst, seq, chunk); err != nil {
		e.holdForRetry(s, now, err, window, escalate)
		return false
	}
	s.retryHoldSince = 0
	return true
}

// holdForRetry handles a failed send: a non-ErrCANBusy error escalates
// immediately (it isn't the transient condition §4.5 describes), and an
// ErrCANBusy that has now persisted for window since its first occurrence
// escalates too. Otherwise it arms a short RetryInterval deadline and
// leaves s where it is, so the next onDeadline retries the same send.
func (e *Engine) holdForRetry(s *Session, now uint32, err error, window time.Duration, escalate func()) {
	if !errors.Is(err, ErrCANBusy) {
		s.retryHoldSince = 0
		escalate()
		return
	}
	if s.retryHoldSince == 0 {
		s.retryHoldSince = Deadline(now)
	}
	elapsed := time.Duration(int32(now-uint32(s.retryHoldSince))) * time.Millisecond
	if elapsed >= window {
		s.retryHoldSince = 0
		escalate()
		return
	}
	e.arm(s, now, RetryInterval)
}

// abort transmits a TP.CM/Abort to s.Peer and terminates s locally. Used
// by CM roles only; BAM roles have no abort path (§4.4.1, §4.4.2).
func (e *Engine) abort(s *Session, reason AbortReason) {
	my := e.collab.MyAddress()
	cm := CM{Control: CtrlAbort, Reason: reason, PGN: s.PGN}
	if err := e.sendCM(my, s.Peer, cm); err != nil {
		e.logger.Debug("abort frame send failed", slog.String("peer", fmt.Sprintf("%d", s.Peer)), slog.String("error", err.Error()))
	} else {
		e.opts.Metrics.FrameSent("Abort")
	}
	e.terminate(s, OutcomeAborted, false)
}

// terminate removes s from the table, releases its buffer (I2), and
// invokes the OnSessionTerminated callback, if one is configured, unless
// delivered is true (the payload already reached the application through
// Deliver).
func (e *Engine) terminate(s *Session, outcome Outcome, delivered bool) {
	e.table.Remove(s)
	s.Buffer = nil // release (I2); the table held the only other reference

	e.opts.Metrics.SessionTerminated(s.Role, outcome)
	e.logger.Debug("session terminated",
		slog.String("role", s.Role.String()),
		slog.String("outcome", outcome.String()),
		slog.Int("peer", int(s.Peer)),
	)

	if !delivered && e.opts.OnSessionTerminated != nil {
		e.opts.OnSessionTerminated(Handle{Peer: s.Peer, Role: s.Role}, outcome)
	}
}

// arm sets s's next deadline to d after now.
func (e *Engine) arm(s *Session, now uint32, d time.Duration) {
	s.Deadline = deadlineAfter(now, d)
}

// transition moves s to newState. The log line and the StateTransition
// metric are emitted only when the state actually changes; a call with the
// current state (bamTXSendNext makes one for every packet after the first)
// leaves s as it is.
func (e *Engine) transition(s *Session, newState State) {
	if s.State != newState {
		e.logger.Debug("state transition",
			slog.String("role", s.Role.String()),
			slog.Int("peer", int(s.Peer)),
			slog.String("from", s.State.String()),
			slog.String("to", newState.String()),
		)
		e.opts.Metrics.StateTransition(s.Role, s.State, newState)
	}
	s.State = newState
}
