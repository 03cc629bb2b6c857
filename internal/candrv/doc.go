// Package candrv provides the CAN bus transport used to carry J1939
// transport-protocol frames.
//
// Bus is the seam the rest of the daemon programs against; SocketCANBus
// (Linux only) binds it to a real SocketCAN interface via a CAN_RAW socket,
// and MemoryBus wires two or more in-process engines together for testing
// without a kernel CAN stack.
package candrv
