package tpmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	tpmetrics "github.com/dantte-lp/gotpd/internal/metrics"
	"github.com/dantte-lp/gotpd/internal/tp"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := tpmetrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.SessionsTerminated == nil {
		t.Error("SessionsTerminated is nil")
	}
	if c.FramesSent == nil {
		t.Error("FramesSent is nil")
	}
	if c.FramesDropped == nil {
		t.Error("FramesDropped is nil")
	}
	if c.StateTransitions == nil {
		t.Error("StateTransitions is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := tpmetrics.NewCollector(reg)

	c.SessionCreated(tp.RoleBAMSender)
	if val := gaugeValue(t, c.Sessions, "BAM-sender"); val != 1 {
		t.Errorf("after SessionCreated: sessions gauge = %v, want 1", val)
	}

	c.SessionTerminated(tp.RoleBAMSender, tp.OutcomeDone)
	if val := gaugeValue(t, c.Sessions, "BAM-sender"); val != 0 {
		t.Errorf("after SessionTerminated: sessions gauge = %v, want 0", val)
	}

	if val := counterValue(t, c.SessionsTerminated, "BAM-sender", "done"); val != 1 {
		t.Errorf("SessionsTerminated(BAM-sender,done) = %v, want 1", val)
	}
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := tpmetrics.NewCollector(reg)

	c.FrameSent("RTS")
	c.FrameSent("RTS")
	c.FrameSent("DT")
	c.FrameDropped()
	c.FrameDropped()

	if val := counterValue(t, c.FramesSent, "RTS"); val != 2 {
		t.Errorf("FramesSent(RTS) = %v, want 2", val)
	}
	if val := counterValue(t, c.FramesSent, "DT"); val != 1 {
		t.Errorf("FramesSent(DT) = %v, want 1", val)
	}

	m := &dto.Metric{}
	if err := c.FramesDropped.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("FramesDropped = %v, want 2", got)
	}
}

func TestStateTransition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := tpmetrics.NewCollector(reg)

	c.StateTransition(tp.RoleCMSender, tp.StateCMTXAwaitCTS, tp.StateCMTXSending)
	c.StateTransition(tp.RoleCMSender, tp.StateCMTXAwaitCTS, tp.StateCMTXSending)

	val := counterValue(t, c.StateTransitions, "CM-sender", "CMTX:AwaitCTS", "CMTX:Sending")
	if val != 2 {
		t.Errorf("StateTransitions(AwaitCTS->Sending) = %v, want 2", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
