package tp

import (
	"errors"
	"fmt"
)

// MinMessageSize and MaxMessageSize bound a valid multipacket message
// (J1939-21 Section 5.10: 9 to 1785 bytes). Below 9 bytes a message fits
// in a single CAN frame and does not use Transport Protocol at all.
const (
	MinMessageSize = 9
	MaxMessageSize = 1785
)

// ErrSizeOutOfRange indicates a message size outside [MinMessageSize,
// MaxMessageSize].
var ErrSizeOutOfRange = errors.New("tp: message size out of range [9,1785]")

// ValidateSize enforces invariant I5.
func ValidateSize(size int) error {
	if size < MinMessageSize || size > MaxMessageSize {
		return fmt.Errorf("tp: size %d: %w", size, ErrSizeOutOfRange)
	}
	return nil
}

// PacketCount returns N = ceil(size/7), the number of TP.DT packets
// needed to carry a message of the given size.
func PacketCount(size int) int {
	return (size + chunkSize - 1) / chunkSize
}

// packetChunk returns the live bytes of packet number pktNum (1-based)
// from buf, without padding. The final packet carries size-7*(N-1) bytes.
func packetChunk(buf []byte, pktNum, totalPackets int) []byte {
	start := (pktNum - 1) * chunkSize
	end := start + chunkSize
	if end > len(buf) {
		end = len(buf)
	}
	if start > len(buf) {
		start = len(buf)
	}
	_ = totalPackets
	return buf[start:end]
}

// writeSegment copies a 7-byte DT data window into buf at the offset for
// sequence seq, clamped to len(buf) (invariant I6): bytes at or beyond
// size are never written even if the peer sends a spurious chunk.
func writeSegment(buf []byte, seq int, data [7]byte) {
	start := (seq - 1) * chunkSize
	if start >= len(buf) {
		return
	}
	end := start + chunkSize
	if end > len(buf) {
		end = len(buf)
	}
	copy(buf[start:end], data[:end-start])
}
