package tp

import "errors"

// PDU-Format values for the two TP PGNs (J1939-21 Section 5.10).
const (
	pfConnMgmt  = 0xEC // TP.CM, PGN 0x00EC00
	pfDataXfer  = 0xEB // TP.DT, PGN 0x00EB00
	defaultPrio = 7    // default CAN priority for TP frames
)

// ErrUnknownPDUFormat indicates a CAN identifier whose PDU-Format byte is
// neither TP.CM (0xEC) nor TP.DT (0xEB).
var ErrUnknownPDUFormat = errors.New("tp: unknown PDU-Format for transport protocol frame")

// ID is a 29-bit extended CAN identifier as used by J1939, decomposed into
// its constituent fields (big-endian bit numbering from the MSB):
//
//	bits 28-26: Priority
//	bit  25:    EDP (always 0 for J1939)
//	bit  24:    DP  (always 0 for J1939)
//	bits 23-16: PDU-Format
//	bits 15-8:  PDU-Specific (destination address, or 255 for broadcast)
//	bits 7-0:   Source Address
type ID struct {
	Priority    uint8
	PDUFormat   uint8
	PDUSpecific uint8
	Source      Address
}

// Raw packs the identifier fields into a 29-bit value suitable for an
// extended CAN frame.
func (id ID) Raw() uint32 {
	return uint32(id.Priority&0x7)<<26 |
		uint32(id.PDUFormat)<<16 |
		uint32(id.PDUSpecific)<<8 |
		uint32(id.Source)
}

// ParseID decomposes a 29-bit extended CAN identifier into its fields.
// EDP/DP (bits 25-24) are expected to be zero for J1939 but are not
// validated here; callers that care can inspect them via raw>>24&0x3.
func ParseID(raw uint32) ID {
	return ID{
		Priority:    uint8(raw>>26) & 0x7,
		PDUFormat:   uint8(raw >> 16),
		PDUSpecific: uint8(raw >> 8),
		Source:      Address(raw),
	}
}

// cmID builds the CAN identifier for a TP.CM frame: PDU-Format 0xEC,
// destination in PDU-Specific (255 for BAM), priority 7.
func cmID(src, dst Address) ID {
	return ID{Priority: defaultPrio, PDUFormat: pfConnMgmt, PDUSpecific: uint8(dst), Source: src}
}

// dtID builds the CAN identifier for a TP.DT frame.
func dtID(src, dst Address) ID {
	return ID{Priority: defaultPrio, PDUFormat: pfDataXfer, PDUSpecific: uint8(dst), Source: src}
}

// isTP reports whether id carries a TP.CM or TP.DT payload, and which.
func (id ID) isTP() (isCM, isDT bool) {
	switch id.PDUFormat {
	case pfConnMgmt:
		return true, false
	case pfDataXfer:
		return false, true
	default:
		return false, false
	}
}
