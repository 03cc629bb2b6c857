package tp

import "time"

// Timeouts per J1939-21 Section 5.10.2.5. The engine is driven by an
// external monotonic millisecond clock (Timer Service, §4.3); these are
// the deadlines each session role arms at its wait states.
const (
	// Tr is the receiver's maximum interval between consecutive DT packets.
	Tr = 200 * time.Millisecond
	// Th is the sender's maximum hold between consecutive DT packets.
	Th = 500 * time.Millisecond
	// T1 is the receiver's DT timeout.
	T1 = 750 * time.Millisecond
	// T2 is the sender's CTS timeout.
	T2 = 1250 * time.Millisecond
	// T3 is the sender's EoMA timeout after the last DT packet.
	T3 = 1250 * time.Millisecond
	// T4 is the receiver's hold timeout between a zero-window CTS and resumption.
	T4 = 1050 * time.Millisecond

	// TbamMin and TbamMax bound the BAM sender's inter-packet spacing.
	TbamMin = 50 * time.Millisecond
	TbamMax = 200 * time.Millisecond
	// TbamDefault is the implementer's chosen default within [TbamMin,TbamMax].
	TbamDefault = 50 * time.Millisecond

	// ThDefault is the default CM-sender inter-packet spacing within a window.
	ThDefault = 50 * time.Millisecond

	// RetryInterval is the short re-try deadline armed after a local
	// CAN-enqueue failure (ErrCANBusy), bounded by Th as required by §4.5.
	RetryInterval = 50 * time.Millisecond

	// RetryWindowRX and RetryWindowTX bound how long a session may keep
	// re-trying a local CAN-enqueue failure before escalating to the
	// timeout path (§4.5, §7): Tr for receiver roles, Th+T2 for sender
	// roles.
	RetryWindowRX = Tr
	RetryWindowTX = Th + T2
)

// Deadline is an absolute monotonic timestamp in milliseconds, as returned
// by the collaborator now_ms() clock. The zero value means "no deadline
// armed".
type Deadline uint32

// deadlineAfter computes the deadline d milliseconds after now.
func deadlineAfter(now uint32, d time.Duration) Deadline {
	return Deadline(now + uint32(d.Milliseconds()))
}

// due reports whether the deadline has passed at or before now. A zero
// deadline is never due.
func (d Deadline) due(now uint32) bool {
	if d == 0 {
		return false
	}
	return int32(now-uint32(d)) >= 0
}
