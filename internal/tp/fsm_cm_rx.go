package tp

import "log/slog"

// This file drives the CM-receiver sub-machine (§4.4.4):
//
//	SendCTS -> AwaitDT(window) -> SendNextCTS | SendEoMA -> Done | Aborted

// cmRXOnRTS handles an inbound TP.CM/RTS from src, creating a new
// CM-receiver session or rejecting it with an abort.
func (e *Engine) cmRXOnRTS(src Address, cm CM) {
	if _, exists := e.table.Lookup(src, kindCMRX); exists {
		e.rejectRTS(src, cm.PGN, AbortAlreadyConnected)
		return
	}

	size := int(cm.Size)
	if err := ValidateSize(size); err != nil || int(cm.TotalPackets) != PacketCount(size) {
		e.rejectRTS(src, cm.PGN, AbortTooBig)
		return
	}

	peerCap := int(cm.MaxPerCTS)
	if peerCap == 0 || peerCap == 0xFF {
		peerCap = e.opts.DefaultMaxPerCTS
	}
	localMax := e.opts.DefaultMaxPerCTS
	window := minInt(minInt(peerCap, localMax), PacketCount(size))

	s := &Session{
		Role:           RoleCMReceiver,
		Peer:           src,
		PGN:            cm.PGN,
		Size:           size,
		TotalPackets:   PacketCount(size),
		Buffer:         newBuffer(size),
		NextExpected:   1,
		CTSWindowStart: 1,
		CTSWindowLen:   window,
		MaxPerCTS:      localMax,
		State:          StateCMRXSendCTS,
	}

	if err := e.table.Insert(s); err != nil {
		e.rejectRTS(src, cm.PGN, AbortResourcesBusy)
		return
	}
	e.opts.Metrics.SessionCreated(s.Role)

	e.cmRXSendInitialCTS(s)
}

// cmRXSendInitialCTS transmits the first CTS granting s's opening window,
// retrying on a transient CAN-busy failure (§4.5, §7). It is called both
// from cmRXOnRTS and, on retry, from cmRXOnDeadline.
func (e *Engine) cmRXSendInitialCTS(s *Session) {
	now := e.now()
	my := e.collab.MyAddress()
	cts := CM{Control: CtrlCTS, NumPacketsNext: uint8(s.CTSWindowLen), NextPacket: uint8(s.NextExpected), PGN: s.PGN}
	if !e.sendCMRetriable(s, my, s.Peer, cts, now, RetryWindowRX, func() { e.abort(s, AbortTimeout) }) {
		return
	}
	e.opts.Metrics.FrameSent("CTS")

	e.transition(s, StateCMRXAwaitDT)
	e.arm(s, now, T1)
}

// cmRXOnDT handles an inbound TP.DT packet for a live CM-receiver session.
func (e *Engine) cmRXOnDT(s *Session, seq uint8, data [7]byte) {
	if s.State != StateCMRXAwaitDT || int(seq) != s.NextExpected {
		e.abort(s, AbortTimeout)
		return
	}

	writeSegment(s.Buffer, int(seq), data)

	if int(seq) == s.TotalPackets {
		e.transition(s, StateCMRXSendEoMA)
		e.collab.Deliver(s.PGN, s.Peer, s.Buffer)
		e.cmRXSendEoMA(s)
		return
	}

	sentInWindow := int(seq) - s.CTSWindowStart + 1
	s.NextExpected++

	if sentInWindow < s.CTSWindowLen {
		e.arm(s, e.now(), T1)
		return
	}

	remaining := s.TotalPackets - s.NextExpected + 1
	window := minInt(s.MaxPerCTS, remaining)
	s.CTSWindowStart = s.NextExpected
	s.CTSWindowLen = window

	e.transition(s, StateCMRXSendNextCTS)
	e.cmRXSendNextCTS(s)
}

// cmRXSendNextCTS transmits the CTS opening the next window mid-transfer,
// retrying on a transient CAN-busy failure (§4.5, §7). It is called both
// from cmRXOnDT and, on retry, from cmRXOnDeadline.
func (e *Engine) cmRXSendNextCTS(s *Session) {
	now := e.now()
	my := e.collab.MyAddress()
	cts := CM{Control: CtrlCTS, NumPacketsNext: uint8(s.CTSWindowLen), NextPacket: uint8(s.NextExpected), PGN: s.PGN}
	if !e.sendCMRetriable(s, my, s.Peer, cts, now, RetryWindowRX, func() { e.abort(s, AbortTimeout) }) {
		return
	}
	e.opts.Metrics.FrameSent("CTS")

	e.transition(s, StateCMRXAwaitDT)
	e.arm(s, now, T1)
}

// cmRXSendEoMA transmits the end-of-message acknowledgement after full
// reassembly, retrying on a transient CAN-busy failure (§4.5, §7). The
// payload has already reached the application via Deliver, so an
// escalated failure here releases the session quietly (OutcomeLocalError,
// delivered=true) instead of aborting a transfer the application already
// has in full. It is called both from cmRXOnDT and, on retry, from
// cmRXOnDeadline.
func (e *Engine) cmRXSendEoMA(s *Session) {
	now := e.now()
	my := e.collab.MyAddress()
	eoma := CM{Control: CtrlEoMA, Size: uint16(s.Size), TotalPackets: uint8(s.TotalPackets), PGN: s.PGN}
	if !e.sendCMRetriable(s, my, s.Peer, eoma, now, RetryWindowRX, func() { e.terminate(s, OutcomeLocalError, true) }) {
		return
	}
	e.opts.Metrics.FrameSent("EoMA")

	e.transition(s, StateCMRXDone)
	e.terminate(s, OutcomeDone, true)
}

// cmRXOnDeadline retries a deferred send whose CAN-busy retry deadline has
// come due, or aborts a CM-receiver session that has gone silent past T1.
func (e *Engine) cmRXOnDeadline(s *Session) {
	if s.retryHoldSince != 0 {
		switch s.State {
		case StateCMRXSendCTS:
			e.cmRXSendInitialCTS(s)
		case StateCMRXSendNextCTS:
			e.cmRXSendNextCTS(s)
		case StateCMRXSendEoMA:
			e.cmRXSendEoMA(s)
		}
		return
	}
	e.abort(s, AbortTimeout)
}

// rejectRTS sends a TP.CM/Abort in response to an RTS that will not become
// a session, with no Session Table entry ever created.
func (e *Engine) rejectRTS(src Address, pgn PGN, reason AbortReason) {
	my := e.collab.MyAddress()
	cm := CM{Control: CtrlAbort, Reason: reason, PGN: pgn}
	if err := e.sendCM(my, src, cm); err != nil {
		e.logger.Debug("abort frame send failed", slog.Int("peer", int(src)), slog.String("error", err.Error()))
		return
	}
	e.opts.Metrics.FrameSent("Abort")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
