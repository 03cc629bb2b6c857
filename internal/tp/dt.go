package tp

// chunkSize is the number of live payload bytes carried per TP.DT packet.
const chunkSize = 7

// pad is the fill byte for unused trailing bytes of the final DT packet.
const pad = 0xFF

// EncodeDT serializes one TP.DT packet: byte 0 is the sequence number
// (1-255), bytes 1-7 are up to 7 payload bytes, 0xFF-padded when fewer
// than 7 live bytes are supplied.
func EncodeDT(seq uint8, chunk []byte) [8]byte {
	var b [8]byte
	b[0] = seq
	for i := 0; i < chunkSize; i++ {
		if i < len(chunk) {
			b[1+i] = chunk[i]
		} else {
			b[1+i] = pad
		}
	}
	return b
}

// DecodeDT splits a TP.DT payload into its sequence number and 7-byte
// data window. Padding bytes on the final packet are not stripped here;
// the caller clamps writes to the session's declared size (I6).
func DecodeDT(b [8]byte) (seq uint8, data [7]byte) {
	seq = b[0]
	copy(data[:], b[1:8])
	return seq, data
}
