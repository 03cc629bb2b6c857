package tp

// Role identifies which of the four role-specific sub-machines a session
// runs (§4.4).
type Role uint8

const (
	RoleBAMSender Role = iota + 1
	RoleBAMReceiver
	RoleCMSender
	RoleCMReceiver
)

// String returns the human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleBAMSender:
		return "BAM-sender"
	case RoleBAMReceiver:
		return "BAM-receiver"
	case RoleCMSender:
		return "CM-sender"
	case RoleCMReceiver:
		return "CM-receiver"
	default:
		return "unknown"
	}
}

// State is a session's position within its role's state machine (§4.4).
// Values are unique across roles so a single field can hold any of them;
// which values are reachable depends on Session.Role.
type State uint8

const (
	// BAM-sender: Init -> Announce -> Sending(k) -> Done.
	StateBAMTXInit State = iota + 1
	StateBAMTXAnnounce
	StateBAMTXSending
	StateBAMTXDone

	// BAM-receiver: AwaitFirst -> Receiving(k) -> Complete.
	StateBAMRXAwaitFirst
	StateBAMRXReceiving
	StateBAMRXComplete

	// CM-sender: AwaitCTS -> Sending(window) -> AwaitNextCTS -> AwaitEoMA -> Done | Aborted.
	StateCMTXAwaitCTS
	StateCMTXSending
	StateCMTXAwaitNextCTS
	StateCMTXAwaitEoMA
	StateCMTXDone
	StateCMTXAborted

	// CM-receiver: SendCTS -> AwaitDT(window) -> SendNextCTS | SendEoMA -> Done | Aborted.
	StateCMRXSendCTS
	StateCMRXAwaitDT
	StateCMRXSendNextCTS
	StateCMRXSendEoMA
	StateCMRXDone
	StateCMRXAborted
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateBAMTXInit:
		return "BAMTX:Init"
	case StateBAMTXAnnounce:
		return "BAMTX:Announce"
	case StateBAMTXSending:
		return "BAMTX:Sending"
	case StateBAMTXDone:
		return "BAMTX:Done"
	case StateBAMRXAwaitFirst:
		return "BAMRX:AwaitFirst"
	case StateBAMRXReceiving:
		return "BAMRX:Receiving"
	case StateBAMRXComplete:
		return "BAMRX:Complete"
	case StateCMTXAwaitCTS:
		return "CMTX:AwaitCTS"
	case StateCMTXSending:
		return "CMTX:Sending"
	case StateCMTXAwaitNextCTS:
		return "CMTX:AwaitNextCTS"
	case StateCMTXAwaitEoMA:
		return "CMTX:AwaitEoMA"
	case StateCMTXDone:
		return "CMTX:Done"
	case StateCMTXAborted:
		return "CMTX:Aborted"
	case StateCMRXSendCTS:
		return "CMRX:SendCTS"
	case StateCMRXAwaitDT:
		return "CMRX:AwaitDT"
	case StateCMRXSendNextCTS:
		return "CMRX:SendNextCTS"
	case StateCMRXSendEoMA:
		return "CMRX:SendEoMA"
	case StateCMRXDone:
		return "CMRX:Done"
	case StateCMRXAborted:
		return "CMRX:Aborted"
	default:
		return "unknown"
	}
}

// terminal reports whether s is an exit state of its role's state machine
// (a Done, Complete or Aborted state).
func (s State) terminal() bool {
	switch s {
	case StateBAMTXDone, StateBAMRXComplete, StateCMTXDone, StateCMTXAborted,
		StateCMRXDone, StateCMRXAborted:
		return true
	default:
		return false
	}
}

// Outcome describes how a terminated session ended, for
// Options.OnSessionTerminated (§7).
type Outcome uint8

const (
	OutcomeDone Outcome = iota + 1
	OutcomeAborted
	OutcomeTimedOut
	OutcomeLocalError
)

// String returns the human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeAborted:
		return "aborted"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeLocalError:
		return "local-error"
	default:
		return "unknown"
	}
}

// Session is the central entity of the engine: one instance per transfer,
// tracking everything needed to drive its role's state machine (§3).
type Session struct {
	Role Role
	Peer Address // 255 for BAM
	PGN  PGN

	Size         int // total bytes (L)
	TotalPackets int // N = ceil(L/7)

	// Buffer is allocated exactly once at session creation and released
	// exactly once at termination (I2): sender source payload, or
	// receiver reassembly target.
	Buffer []byte

	// NextExpected is the next packet number to receive (receiver) or
	// transmit (sender), 1..TotalPackets+1 (I3).
	NextExpected int

	// CTSWindowStart/CTSWindowLen describe the packet range the latest
	// CTS permits (sender) or offers (receiver), for CM sessions only.
	CTSWindowStart int
	CTSWindowLen   int

	// MaxPerCTS is the negotiated packets-per-CTS ceiling: the value this
	// node requested (CM-sender) or is willing to grant (CM-receiver).
	MaxPerCTS int

	State    State
	Deadline Deadline

	// retryHoldSince is the absolute time (ms) of the first ErrCANBusy seen
	// for the send currently being attempted, or zero when no local
	// CAN-enqueue failure is being retried. Set by holdForRetry and cleared
	// on the next successful send or on escalation (§4.5).
	retryHoldSince Deadline
}

// key returns the Session Table slot this session occupies.
func (s *Session) key() tableKey {
	switch s.Role {
	case RoleCMSender:
		return tableKey{peer: s.Peer, kind: kindCMTX}
	case RoleCMReceiver:
		return tableKey{peer: s.Peer, kind: kindCMRX}
	case RoleBAMSender:
		return tableKey{peer: Broadcast, kind: kindBAMTX}
	case RoleBAMReceiver:
		return tableKey{peer: s.Peer, kind: kindBAMRX}
	default:
		return tableKey{}
	}
}

// newBuffer allocates a session buffer of exactly size bytes (I2, I5).
func newBuffer(size int) []byte {
	return make([]byte, size)
}
