package candrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/dantte-lp/gotpd/internal/candrv"
)

func TestMemoryBusRoundTrip(t *testing.T) {
	t.Parallel()

	a := candrv.NewMemoryBus(4)
	b := candrv.NewMemoryBus(4)
	candrv.Join(a, b)

	var data [8]byte
	copy(data[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})

	if err := a.Send(0x18EBFF00, data); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if frame.ID != 0x18EBFF00 {
		t.Errorf("ID = %#x, want %#x", frame.ID, 0x18EBFF00)
	}
	if frame.Data != data {
		t.Errorf("Data = %v, want %v", frame.Data, data)
	}
}

func TestMemoryBusUnjoinedDropsSilently(t *testing.T) {
	t.Parallel()

	a := candrv.NewMemoryBus(4)

	var data [8]byte
	if err := a.Send(0x18EBFF00, data); err != nil {
		t.Fatalf("Send on unjoined bus: %v", err)
	}
}

func TestMemoryBusRecvCanceled(t *testing.T) {
	t.Parallel()

	a := candrv.NewMemoryBus(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Recv(ctx); err == nil {
		t.Error("Recv with canceled context: want error, got nil")
	}
}

func TestMemoryBusSendAfterClose(t *testing.T) {
	t.Parallel()

	a := candrv.NewMemoryBus(1)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var data [8]byte
	if err := a.Send(0, data); err != candrv.ErrClosed {
		t.Errorf("Send after Close: got %v, want ErrClosed", err)
	}

	// Close is idempotent.
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMemoryBusRecvAfterClose(t *testing.T) {
	t.Parallel()

	a := candrv.NewMemoryBus(1)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := a.Recv(context.Background()); err != candrv.ErrClosed {
		t.Errorf("Recv after Close: got %v, want ErrClosed", err)
	}
}

func TestMemoryBusFullInboxDrops(t *testing.T) {
	t.Parallel()

	a := candrv.NewMemoryBus(1)
	b := candrv.NewMemoryBus(1)
	candrv.Join(a, b)

	var data [8]byte
	for range 5 {
		if err := a.Send(0, data); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := b.Recv(ctx); err != nil {
		t.Fatalf("Recv: %v", err)
	}
}

func TestJoinIsSymmetric(t *testing.T) {
	t.Parallel()

	a := candrv.NewMemoryBus(4)
	b := candrv.NewMemoryBus(4)
	candrv.Join(a, b)

	var data [8]byte
	if err := b.Send(0x1CECFF20, data); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := a.Recv(ctx); err != nil {
		t.Fatalf("Recv on reverse direction: %v", err)
	}
}
