package tp

import "errors"

// ErrDuplicateSession indicates a session already exists for this
// (peer, kind) slot (invariant I1).
var ErrDuplicateSession = errors.New("tp: duplicate session for peer")

// ErrNoResources indicates the Session Table is at capacity.
var ErrNoResources = errors.New("tp: session table full")

// ErrSessionNotFound indicates no session exists for the given key.
var ErrSessionNotFound = errors.New("tp: session not found")

// kind distinguishes the four uniqueness pools a session can occupy
// (invariant I1): at most one CM session per direction per peer, at most
// one BAM-receive session per source address, and (by construction, since
// the destination is always the broadcast address) at most one BAM-send
// session overall.
type kind uint8

const (
	kindCMTX kind = iota
	kindCMRX
	kindBAMTX
	kindBAMRX
)

// tableKey identifies a session's uniqueness slot.
type tableKey struct {
	peer Address
	kind kind
}

// DefaultMaxSessions is the Session Table's default capacity, sized for a
// small embedded ECU (§4.2).
const DefaultMaxSessions = 8

// Table is the keyed store of active sessions. It enforces session
// uniqueness (I1) and owns the bounded capacity described in §4.2. Table
// is not safe for concurrent use from multiple goroutines; the Engine
// façade serializes all access behind its own mutex (§5).
type Table struct {
	sessions map[tableKey]*Session
	capacity int
}

// NewTable creates an empty Session Table with the given capacity. A
// capacity <= 0 selects DefaultMaxSessions.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	return &Table{
		sessions: make(map[tableKey]*Session, capacity),
		capacity: capacity,
	}
}

// Insert adds s to the table, keyed by s's peer and kind. Returns
// ErrDuplicateSession if the slot is occupied, or ErrNoResources if the
// table is already at capacity.
func (t *Table) Insert(s *Session) error {
	key := s.key()
	if _, exists := t.sessions[key]; exists {
		return ErrDuplicateSession
	}
	if len(t.sessions) >= t.capacity {
		return ErrNoResources
	}
	t.sessions[key] = s
	return nil
}

// Lookup returns the session for (peer, kind), if any.
func (t *Table) Lookup(peer Address, k kind) (*Session, bool) {
	s, ok := t.sessions[tableKey{peer: peer, kind: k}]
	return s, ok
}

// Remove deletes s from the table. Removing a session not present is a
// no-op. The caller is responsible for releasing s's buffer (I2); Remove
// only unlinks the table entry.
func (t *Table) Remove(s *Session) {
	delete(t.sessions, s.key())
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	return len(t.sessions)
}

// Due returns every session whose deadline has passed at or before now.
// The order is unspecified; callers process independent sessions with no
// cross-session ordering guarantee (§5).
func (t *Table) Due(now uint32) []*Session {
	var due []*Session
	for _, s := range t.sessions {
		if s.Deadline.due(now) {
			due = append(due, s)
		}
	}
	return due
}

// All returns every live session, for introspection (Engine.Snapshot).
func (t *Table) All() []*Session {
	all := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		all = append(all, s)
	}
	return all
}
