package tp

// This file drives the CM-sender sub-machine (§4.4.3):
//
//	AwaitCTS -> Sending(window) -> AwaitNextCTS -> AwaitEoMA -> Done | Aborted

// cmTXStart creates and starts a CM-sender session, transmitting the
// initial TP.CM/RTS synchronously.
func (e *Engine) cmTXStart(dest Address, pgn PGN, payload []byte) (Handle, error) {
	size := len(payload)
	s := &Session{
		Role:         RoleCMSender,
		Peer:         dest,
		PGN:          pgn,
		Size:         size,
		TotalPackets: PacketCount(size),
		Buffer:       newBuffer(size),
		NextExpected: 1,
		MaxPerCTS:    e.opts.DefaultMaxPerCTS,
		State:        StateCMTXAwaitCTS,
	}
	copy(s.Buffer, payload)

	if err := e.table.Insert(s); err != nil {
		return Handle{}, err
	}
	e.opts.Metrics.SessionCreated(s.Role)

	e.cmTXSendRTS(s)

	return Handle{Peer: dest, Role: RoleCMSender}, nil
}

// cmTXSendRTS transmits the initial TP.CM/RTS for s, retrying on a
// transient CAN-busy failure (§4.5, §7). It is called both from
// cmTXStart and, on retry, from cmTXOnDeadline.
func (e *Engine) cmTXSendRTS(s *Session) {
	now := e.now()
	my := e.collab.MyAddress()
	rts := CM{
		Control:      CtrlRTS,
		Size:         uint16(s.Size),
		TotalPackets: uint8(s.TotalPackets),
		MaxPerCTS:    uint8(s.MaxPerCTS),
		PGN:          s.PGN,
	}
	if !e.sendCMRetriable(s, my, s.Peer, rts, now, RetryWindowTX, func() { e.abort(s, AbortTimeout) }) {
		return
	}
	e.opts.Metrics.FrameSent("RTS")
	e.arm(s, now, T2)
}

// cmTXOnCTS handles an inbound TP.CM/CTS for a live CM-sender session.
func (e *Engine) cmTXOnCTS(s *Session, cm CM) {
	if s.State != StateCMTXAwaitCTS && s.State != StateCMTXAwaitNextCTS {
		// A CTS arriving mid-burst means the peer lost track of the
		// session; there is no well-defined way to resume.
		e.abort(s, AbortCTSWhileSending)
		return
	}

	if cm.NumPacketsNext == 0 {
		// Hold: the receiver is not ready for more data yet.
		e.transition(s, StateCMTXAwaitNextCTS)
		e.arm(s, e.now(), T4)
		return
	}

	next := int(cm.NextPacket)
	count := int(cm.NumPacketsNext)
	if next < 1 || next > s.TotalPackets || count < 1 || next+count-1 > s.TotalPackets {
		e.abort(s, AbortTimeout)
		return
	}
	if next != s.NextExpected {
		// The receiver is requesting packets already sent; this engine
		// does not support mid-transfer retransmission.
		e.abort(s, AbortTimeout)
		return
	}

	s.CTSWindowStart = next
	s.CTSWindowLen = count
	e.transition(s, StateCMTXSending)
	e.arm(s, e.now(), 0)
}

// cmTXOnEoMA completes a CM-sender session once the receiver confirms
// reassembly.
func (e *Engine) cmTXOnEoMA(s *Session) {
	if s.State != StateCMTXAwaitEoMA {
		return
	}
	e.transition(s, StateCMTXDone)
	e.terminate(s, OutcomeDone, false)
}

// cmTXOnDeadline advances a CM-sender session past an expired T2/T3/T4 wait,
// retries a deferred send whose CAN-busy retry deadline has come due, or
// transmits the next DT packet within an open CTS window.
func (e *Engine) cmTXOnDeadline(s *Session) {
	switch s.State {
	case StateCMTXAwaitCTS:
		if s.retryHoldSince != 0 {
			e.cmTXSendRTS(s)
			return
		}
		e.abort(s, AbortTimeout)
	case StateCMTXAwaitNextCTS, StateCMTXAwaitEoMA:
		e.abort(s, AbortTimeout)
	case StateCMTXSending:
		e.cmTXSendNext(s)
	}
}

// cmTXSendNext transmits the next DT packet of the current CTS window,
// retrying on a transient CAN-busy failure (§4.5, §7). A retry re-enters
// here unchanged, since NextExpected is only advanced after a successful
// send.
func (e *Engine) cmTXSendNext(s *Session) {
	now := e.now()
	my := e.collab.MyAddress()

	chunk := packetChunk(s.Buffer, s.NextExpected, s.TotalPackets)
	seq := uint8(s.NextExpected)
	if !e.sendDTRetriable(s, my, s.Peer, seq, chunk, now, RetryWindowTX, func() { e.abort(s, AbortTimeout) }) {
		return
	}
	e.opts.Metrics.FrameSent("DT")

	sentInWindow := s.NextExpected - s.CTSWindowStart + 1
	last := s.NextExpected == s.TotalPackets
	s.NextExpected++

	switch {
	case last:
		e.transition(s, StateCMTXAwaitEoMA)
		e.arm(s, now, T3)
	case sentInWindow >= s.CTSWindowLen:
		e.transition(s, StateCMTXAwaitNextCTS)
		e.arm(s, now, T2)
	default:
		e.arm(s, now, e.opts.ThInterval)
	}
}
