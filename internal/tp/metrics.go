package tp

// MetricsReporter receives engine lifecycle counters. Implementations
// must be safe to call while the Engine's internal mutex is held (the
// engine calls these synchronously from OnFrame/Poll/Send/Cancel); they
// must not call back into the Engine.
type MetricsReporter interface {
	// SessionCreated is called once a new session is registered in the
	// Session Table.
	SessionCreated(role Role)

	// SessionTerminated is called once a session is removed from the
	// table, regardless of exit path.
	SessionTerminated(role Role, outcome Outcome)

	// StateTransition is called on every FSM state change.
	StateTransition(role Role, from, to State)

	// FrameSent/FrameDropped count wire activity. kind is one of "BAM",
	// "RTS", "CTS", "EoMA", "Abort", or "DT".
	FrameSent(kind string)
	FrameDropped()
}

// noopMetrics discards every call; used when no MetricsReporter is configured.
type noopMetrics struct{}

func (noopMetrics) SessionCreated(Role)                {}
func (noopMetrics) SessionTerminated(Role, Outcome)    {}
func (noopMetrics) StateTransition(Role, State, State) {}
func (noopMetrics) FrameSent(string)                   {}
func (noopMetrics) FrameDropped()                      {}
