package candrv

// canFrameSize is sizeof(struct can_frame) from linux/can.h: a 4-byte
// identifier, a 1-byte length, 3 reserved/padding bytes, then 8 data bytes.
const canFrameSize = 16

// canEFFFlag marks can_id as a 29-bit extended identifier (CAN_EFF_FLAG).
// J1939 always uses extended identifiers.
const canEFFFlag = 0x80000000

// encodeCANFrame packs id and data into the wire layout of struct can_frame.
func encodeCANFrame(id uint32, data [8]byte) [canFrameSize]byte {
	var buf [canFrameSize]byte

	raw := id | canEFFFlag
	buf[0] = byte(raw)
	buf[1] = byte(raw >> 8)
	buf[2] = byte(raw >> 16)
	buf[3] = byte(raw >> 24)
	buf[4] = 8 // can_dlc: J1939 TP frames always carry 8 bytes
	// buf[5..7] reserved/padding, left zero
	copy(buf[8:16], data[:])

	return buf
}

// decodeCANFrame unpacks the wire layout of struct can_frame, masking off
// the EFF/RTR/ERR flag bits from the identifier.
func decodeCANFrame(buf [canFrameSize]byte) Frame {
	raw := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	var f Frame
	f.ID = raw & 0x1FFFFFFF // CAN_EFF_MASK: drops EFF, RTR and ERR
	f.Len = buf[4]
	if f.Len > 8 {
		f.Len = 8
	}
	copy(f.Data[:], buf[8:16])
	return f
}
