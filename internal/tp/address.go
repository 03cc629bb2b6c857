package tp

// Address is an 8-bit J1939 source or destination address.
type Address uint8

// Broadcast is the reserved destination address meaning "all stations".
// It is never a valid session peer in Connection-Mode (CM).
const Broadcast Address = 255

// IsBroadcast reports whether a is the broadcast address.
func (a Address) IsBroadcast() bool {
	return a == Broadcast
}
