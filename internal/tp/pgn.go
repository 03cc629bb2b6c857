package tp

// PGN is an 18-bit Parameter Group Number identifying the application
// message being transported.
type PGN uint32

// TPCM is the Transport Protocol — Connection Management PGN (0x00EC00).
const TPCM PGN = 0x00EC00

// TPDT is the Transport Protocol — Data Transfer PGN (0x00EB00).
const TPDT PGN = 0x00EB00

// maxPGN is the largest representable 18-bit PGN value.
const maxPGN PGN = 1<<18 - 1

// encode writes the PGN little-endian (low, mid, high) into dst[0:3], as
// carried in TP.CM payload offsets 5-7.
func (p PGN) encode(dst []byte) {
	dst[0] = byte(p)
	dst[1] = byte(p >> 8)
	dst[2] = byte(p >> 16)
}

// decodePGN reads a little-endian 3-byte PGN from src[0:3].
func decodePGN(src []byte) PGN {
	return PGN(src[0]) | PGN(src[1])<<8 | PGN(src[2])<<16
}
