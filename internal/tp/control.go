package tp

import (
	"errors"
	"fmt"
)

// Control identifies the TP.CM control byte (J1939-21 Section 5.10.3).
type Control uint8

const (
	// CtrlRTS is Request To Send, initiating a Connection-Mode transfer.
	CtrlRTS Control = 16
	// CtrlCTS is Clear To Send, the receiver's flow-control grant.
	CtrlCTS Control = 17
	// CtrlEoMA is End of Message Acknowledgment, confirming reassembly.
	CtrlEoMA Control = 19
	// CtrlBAM is Broadcast Announce Message, initiating a one-to-all transfer.
	CtrlBAM Control = 32
	// CtrlAbort terminates a session (Connection Abort).
	CtrlAbort Control = 255
)

// String returns the human-readable name of the control byte.
func (c Control) String() string {
	switch c {
	case CtrlRTS:
		return "RTS"
	case CtrlCTS:
		return "CTS"
	case CtrlEoMA:
		return "EoMA"
	case CtrlBAM:
		return "BAM"
	case CtrlAbort:
		return "Abort"
	default:
		return fmt.Sprintf("Control(%d)", uint8(c))
	}
}

// AbortReason is the wire value carried in byte 1 of a TP.CM/Abort frame
// (J1939-21 Section 5.10.3.4).
type AbortReason uint8

const (
	// AbortAlreadyConnected: already in a TP session, cannot support another.
	AbortAlreadyConnected AbortReason = 1
	// AbortResourcesBusy: system resources were needed for another task.
	AbortResourcesBusy AbortReason = 2
	// AbortTimeout indicates a protocol timer expired.
	AbortTimeout AbortReason = 3
	// AbortCTSWhileSending: CTS received while a DT burst is already in progress.
	AbortCTSWhileSending AbortReason = 4
	// AbortTooBig indicates the total message size exceeds 1785 bytes.
	AbortTooBig AbortReason = 9
	// AbortMemory is an implementation-specific allocation failure.
	AbortMemory AbortReason = 250
)

// String returns the human-readable meaning of the abort reason.
func (r AbortReason) String() string {
	switch r {
	case AbortAlreadyConnected:
		return "already connected"
	case AbortResourcesBusy:
		return "resources busy"
	case AbortTimeout:
		return "timeout"
	case AbortCTSWhileSending:
		return "CTS while sending"
	case AbortTooBig:
		return "message too big"
	case AbortMemory:
		return "memory allocation failure"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Sentinel errors for TP.CM decoding failures.
var (
	// ErrUnknownControl indicates a TP.CM control byte the engine does not
	// recognize (not RTS, CTS, EoMA, BAM, or Abort).
	ErrUnknownControl = errors.New("tp: unknown TP.CM control byte")
)

// CM is a decoded TP.CM payload. Fields are populated according to which
// Control this frame carries; see the table in J1939-21 Section 5.10.3.
type CM struct {
	Control Control

	// Size is the total message length in bytes. Set for BAM, RTS, EoMA.
	Size uint16

	// TotalPackets is N = ceil(Size/7). Set for BAM, RTS, EoMA.
	TotalPackets uint8

	// MaxPerCTS is the sender's requested packets-per-CTS limit, 0xFF for
	// no limit. Set for RTS only.
	MaxPerCTS uint8

	// NumPacketsNext is the receiver's granted packet count for the next
	// burst (0 means "hold"). Set for CTS only.
	NumPacketsNext uint8

	// NextPacket is the sequence number of the first packet in the next
	// granted burst. Set for CTS only.
	NextPacket uint8

	// Reason is the abort reason. Set for Abort only.
	Reason AbortReason

	// PGN is the multipacket message's PGN, carried in bytes 5-7 of every
	// TP.CM control type.
	PGN PGN
}

// EncodeCM serializes cm into an 8-byte TP.CM payload.
func EncodeCM(cm CM) [8]byte {
	var b [8]byte
	b[0] = byte(cm.Control)

	switch cm.Control {
	case CtrlBAM, CtrlRTS, CtrlEoMA:
		b[1] = byte(cm.Size)
		b[2] = byte(cm.Size >> 8)
		b[3] = cm.TotalPackets
		if cm.Control == CtrlRTS {
			b[4] = cm.MaxPerCTS
		} else {
			b[4] = 0xFF
		}
	case CtrlCTS:
		b[1] = cm.NumPacketsNext
		b[2] = cm.NextPacket
		b[3] = 0xFF
		b[4] = 0xFF
	case CtrlAbort:
		b[1] = byte(cm.Reason)
		b[2] = 0xFF
		b[3] = 0xFF
		b[4] = 0xFF
	}

	cm.PGN.encode(b[5:8])
	return b
}

// DecodeCM parses an 8-byte TP.CM payload. Returns ErrUnknownControl for
// any control byte other than RTS/CTS/EoMA/BAM/Abort.
func DecodeCM(b [8]byte) (CM, error) {
	cm := CM{Control: Control(b[0])}

	switch cm.Control {
	case CtrlBAM, CtrlRTS, CtrlEoMA:
		cm.Size = uint16(b[1]) | uint16(b[2])<<8
		cm.TotalPackets = b[3]
		if cm.Control == CtrlRTS {
			cm.MaxPerCTS = b[4]
		}
	case CtrlCTS:
		cm.NumPacketsNext = b[1]
		cm.NextPacket = b[2]
	case CtrlAbort:
		cm.Reason = AbortReason(b[1])
	default:
		return CM{}, fmt.Errorf("tp: control byte %d: %w", b[0], ErrUnknownControl)
	}

	cm.PGN = decodePGN(b[5:8])
	return cm, nil
}
