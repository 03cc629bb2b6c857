package tp

// This file drives the BAM-sender sub-machine (§4.4.1):
//
//	Init -> Announce -> Sending(k) -> Done
//
// There is no CTS, no EoMA, and no abort protocol for BAM — it has no
// return channel. Local CAN failures terminate the session with local
// cleanup only; no abort frame is ever emitted for this role.

// bamTXStart creates and starts a BAM-sender session for payload,
// transmitting the initial TP.CM/BAM announcement synchronously.
func (e *Engine) bamTXStart(pgn PGN, payload []byte) (Handle, error) {
	size := len(payload)
	s := &Session{
		Role:         RoleBAMSender,
		Peer:         Broadcast,
		PGN:          pgn,
		Size:         size,
		TotalPackets: PacketCount(size),
		Buffer:       newBuffer(size),
		NextExpected: 1,
		State:        StateBAMTXInit,
	}
	copy(s.Buffer, payload)

	if err := e.table.Insert(s); err != nil {
		return Handle{}, err
	}
	e.opts.Metrics.SessionCreated(s.Role)

	e.bamTXSendAnnounce(s)

	return Handle{Peer: Broadcast, Role: RoleBAMSender}, nil
}

// bamTXSendAnnounce transmits the initial TP.CM/BAM announcement for s,
// retrying on a transient CAN-busy failure (§4.5, §7). A BAM session has no
// abort channel, so an escalated failure here drops the session locally
// (OutcomeLocalError) rather than notifying the peer. It is called both
// from bamTXStart and, on retry, from bamTXOnDeadline.
func (e *Engine) bamTXSendAnnounce(s *Session) {
	now := e.now()
	my := e.collab.MyAddress()
	cm := CM{Control: CtrlBAM, Size: uint16(s.Size), TotalPackets: uint8(s.TotalPackets), PGN: s.PGN}

	if !e.sendCMRetriable(s, my, Broadcast, cm, now, RetryWindowTX, func() { e.terminate(s, OutcomeLocalError, false) }) {
		return
	}
	e.opts.Metrics.FrameSent("BAM")

	e.transition(s, StateBAMTXAnnounce)
	e.arm(s, now, e.opts.Tbam)
}

// bamTXOnDeadline retries a deferred send whose CAN-busy retry deadline has
// come due, transmits the next DT packet, or completes the transfer once
// all N packets have been sent.
func (e *Engine) bamTXOnDeadline(s *Session) {
	if s.retryHoldSince != 0 && s.State == StateBAMTXInit {
		e.bamTXSendAnnounce(s)
		return
	}
	e.bamTXSendNext(s)
}

// bamTXSendNext transmits the next DT packet of a BAM-sender session,
// retrying on a transient CAN-busy failure (§4.5, §7). As with the
// announcement, an escalated failure drops the session locally; there is
// no abort channel for BAM. A retry re-enters here unchanged, since
// NextExpected is only advanced after a successful send.
func (e *Engine) bamTXSendNext(s *Session) {
	now := e.now()
	my := e.collab.MyAddress()

	chunk := packetChunk(s.Buffer, s.NextExpected, s.TotalPackets)
	seq := uint8(s.NextExpected)
	if !e.sendDTRetriable(s, my, Broadcast, seq, chunk, now, RetryWindowTX, func() { e.terminate(s, OutcomeLocalError, false) }) {
		return
	}
	e.opts.Metrics.FrameSent("DT")

	if s.NextExpected == s.TotalPackets {
		e.transition(s, StateBAMTXDone)
		e.terminate(s, OutcomeDone, false)
		return
	}

	s.NextExpected++
	e.transition(s, StateBAMTXSending)
	e.arm(s, now, e.opts.Tbam)
}
