// Package tp implements the core of the SAE J1939-21 Transport Protocol:
// the session state machine and framing logic that carries multi-packet
// application messages (9 to 1785 bytes) over a CAN 2.0B bus whose raw
// frames carry at most 8 data bytes.
//
// It covers Broadcast Announce Message (BAM) and Connection-Mode Data
// Transfer (RTS/CTS/EoMA) transport, together with their abort semantics
// and J1939-21 Section 5.10.2.5 timeouts. The underlying CAN controller,
// network-management address claiming, task scheduling, and application
// PGN handlers are external collaborators consumed through the Engine
// façade's interfaces, not implemented here.
package tp
