package tp

// This file drives the BAM-receiver sub-machine (§4.4.2):
//
//	AwaitFirst -> Receiving(k) -> Complete
//
// BAM has no return channel: every failure path (bad size, allocation
// failure, out-of-order sequence, timeout) silently drops the session
// and releases its buffer. No abort frame is ever emitted for this role.

// bamRXOnBAM handles an inbound TP.CM/BAM announcement from src, creating
// a new BAM-receiver session.
func (e *Engine) bamRXOnBAM(src Address, cm CM) {
	if _, exists := e.table.Lookup(src, kindBAMRX); exists {
		// J1939-21 permits only one BAM-receive session per source
		// address; a second announcement before the first completes is
		// dropped (no abort channel to report the collision).
		return
	}

	size := int(cm.Size)
	if err := ValidateSize(size); err != nil {
		return
	}
	if int(cm.TotalPackets) != PacketCount(size) {
		return
	}

	s := &Session{
		Role:         RoleBAMReceiver,
		Peer:         src,
		PGN:          cm.PGN,
		Size:         size,
		TotalPackets: PacketCount(size),
		Buffer:       newBuffer(size),
		NextExpected: 1,
		State:        StateBAMRXAwaitFirst,
	}

	if err := e.table.Insert(s); err != nil {
		// Table full: BAM has no abort path, so the announcement is
		// simply dropped (§5.10.3.3 note, Open Question 2).
		return
	}
	e.opts.Metrics.SessionCreated(s.Role)

	e.transition(s, StateBAMRXReceiving)
	e.arm(s, e.now(), T1)
}

// bamRXOnDT handles an inbound TP.DT packet for a live BAM-receiver
// session.
func (e *Engine) bamRXOnDT(s *Session, seq uint8, data [7]byte) {
	if int(seq) != s.NextExpected {
		e.terminate(s, OutcomeAborted, false)
		return
	}

	writeSegment(s.Buffer, int(seq), data)

	if int(seq) == s.TotalPackets {
		e.transition(s, StateBAMRXComplete)
		e.collab.Deliver(s.PGN, s.Peer, s.Buffer)
		e.terminate(s, OutcomeDone, true)
		return
	}

	s.NextExpected++
	e.arm(s, e.now(), T1)
}

// bamRXOnDeadline drops a BAM-receiver session that has gone silent for
// longer than T1.
func (e *Engine) bamRXOnDeadline(s *Session) {
	e.terminate(s, OutcomeTimedOut, false)
}
