//go:build linux

package candrv

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// afCAN and canRAW are not exposed as named constants by every
// golang.org/x/sys/unix build tag combination; they are fixed values from
// linux/can.h (AF_CAN = 29, CAN_RAW = 1, the only defined CAN socket
// protocol).
const (
	afCAN  = 29
	canRAW = 1
)

// SocketCANBus is a Bus backed by a Linux SocketCAN CAN_RAW socket bound to
// a single interface (e.g. "can0" or a vcan virtual interface for testing).
type SocketCANBus struct {
	fd     int
	ifName string

	mu     sync.Mutex
	closed bool

	frames chan Frame
	errs   chan error
}

// NewSocketCANBus opens and binds a CAN_RAW socket on ifName. The interface
// must already exist and be up (`ip link set can0 up type can bitrate
// 250000`, or `ip link add vcan0 type vcan && ip link set vcan0 up` for a
// virtual bus).
func NewSocketCANBus(ifName string) (*SocketCANBus, error) {
	fd, err := unix.Socket(afCAN, unix.SOCK_RAW, canRAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: open raw socket: %w", err)
	}

	idx, err := unix.IfNameToIndex(ifName)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: resolve interface %q: %w", ifName, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: idx}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind to %q: %w", ifName, err)
	}

	b := &SocketCANBus{
		fd:     fd,
		ifName: ifName,
		frames: make(chan Frame, 64),
		errs:   make(chan error, 1),
	}
	go b.readLoop()

	return b, nil
}

// readLoop blocks on unix.Read until a frame arrives or the socket is
// closed, in which case Read returns an error and the goroutine exits.
func (b *SocketCANBus) readLoop() {
	var raw [canFrameSize]byte
	for {
		n, err := unix.Read(b.fd, raw[:])
		if err != nil {
			b.errs <- fmt.Errorf("socketcan: read from %q: %w", b.ifName, err)
			return
		}
		if n != canFrameSize {
			continue
		}
		b.frames <- decodeCANFrame(raw)
	}
}

// Send implements Bus.
func (b *SocketCANBus) Send(id uint32, data [8]byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	buf := encodeCANFrame(id, data)
	if _, err := unix.Write(b.fd, buf[:]); err != nil {
		return fmt.Errorf("socketcan: write to %q: %w", b.ifName, err)
	}
	return nil
}

// Recv implements Bus.
func (b *SocketCANBus) Recv(ctx context.Context) (Frame, error) {
	select {
	case f := <-b.frames:
		return f, nil
	case err := <-b.errs:
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return Frame{}, ErrClosed
		}
		return Frame{}, err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close implements Bus. Closing the file descriptor unblocks the pending
// unix.Read in readLoop, which then exits after reporting the resulting
// error on b.errs.
func (b *SocketCANBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	if err := unix.Close(b.fd); err != nil {
		return fmt.Errorf("socketcan: close %q: %w", b.ifName, err)
	}
	return nil
}
