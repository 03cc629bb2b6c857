//go:build !linux

package candrv

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform indicates SocketCAN is unavailable on this OS.
var ErrUnsupportedPlatform = errors.New("socketcan: not supported on this platform")

// NewSocketCANBus always fails on non-Linux platforms; SocketCAN is a Linux
// kernel feature with no equivalent elsewhere. Use MemoryBus for
// development and testing off Linux.
func NewSocketCANBus(ifName string) (*SocketCANBus, error) {
	return nil, ErrUnsupportedPlatform
}

// SocketCANBus is an unusable placeholder type on non-Linux platforms, kept
// so candrv's exported API surface does not vary by build target.
type SocketCANBus struct{}

func (*SocketCANBus) Send(uint32, [8]byte) error                   { return ErrUnsupportedPlatform }
func (*SocketCANBus) Recv(context.Context) (Frame, error)          { return Frame{}, ErrUnsupportedPlatform }
func (*SocketCANBus) Close() error                                 { return nil }
