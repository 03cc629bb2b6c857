package tp_test

import (
	"testing"

	"github.com/dantte-lp/gotpd/internal/tp"
)

// -------------------------------------------------------------------------
// Session Table uniqueness and capacity (invariant I1, section 4.2)
// -------------------------------------------------------------------------

func TestTableInsertLookupRemove(t *testing.T) {
	t.Parallel()

	table := tp.NewTable(4)
	s := &tp.Session{Role: tp.RoleCMSender, Peer: 0x10}

	if err := table.Insert(s); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Len = %d, want 1", table.Len())
	}

	table.Remove(s)
	if table.Len() != 0 {
		t.Fatalf("Len after Remove = %d, want 0", table.Len())
	}
}

func TestTableDuplicateSessionRejected(t *testing.T) {
	t.Parallel()

	table := tp.NewTable(4)
	a := &tp.Session{Role: tp.RoleCMSender, Peer: 0x10}
	b := &tp.Session{Role: tp.RoleCMSender, Peer: 0x10}

	if err := table.Insert(a); err != nil {
		t.Fatalf("Insert(a): %v", err)
	}
	if err := table.Insert(b); err == nil {
		t.Fatal("Insert(b) with same (peer,role): want ErrDuplicateSession, got nil")
	}
}

func TestTableDistinctRolesSamePeerCoexist(t *testing.T) {
	t.Parallel()

	// A CM-sender and a CM-receiver session toward the same peer occupy
	// distinct uniqueness slots (I1): a node can simultaneously send to
	// and receive from the same address.
	table := tp.NewTable(4)
	tx := &tp.Session{Role: tp.RoleCMSender, Peer: 0x10}
	rx := &tp.Session{Role: tp.RoleCMReceiver, Peer: 0x10}

	if err := table.Insert(tx); err != nil {
		t.Fatalf("Insert(tx): %v", err)
	}
	if err := table.Insert(rx); err != nil {
		t.Fatalf("Insert(rx): %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2", table.Len())
	}
}

func TestTableCapacityExhausted(t *testing.T) {
	t.Parallel()

	table := tp.NewTable(2)
	for i, peer := range []tp.Address{0x01, 0x02} {
		s := &tp.Session{Role: tp.RoleCMSender, Peer: peer}
		if err := table.Insert(s); err != nil {
			t.Fatalf("Insert(#%d): %v", i, err)
		}
	}

	overflow := &tp.Session{Role: tp.RoleCMSender, Peer: 0x03}
	if err := table.Insert(overflow); err == nil {
		t.Fatal("Insert beyond capacity: want ErrNoResources, got nil")
	}
}

func TestTableDefaultCapacity(t *testing.T) {
	t.Parallel()

	table := tp.NewTable(0)
	for i := 0; i < tp.DefaultMaxSessions; i++ {
		s := &tp.Session{Role: tp.RoleCMSender, Peer: tp.Address(i)}
		if err := table.Insert(s); err != nil {
			t.Fatalf("Insert(#%d) within default capacity: %v", i, err)
		}
	}
	overflow := &tp.Session{Role: tp.RoleCMSender, Peer: tp.Address(tp.DefaultMaxSessions)}
	if err := table.Insert(overflow); err == nil {
		t.Fatal("Insert beyond DefaultMaxSessions: want ErrNoResources, got nil")
	}
}

func TestTableAllReturnsEveryLiveSession(t *testing.T) {
	t.Parallel()

	table := tp.NewTable(4)
	table.Insert(&tp.Session{Role: tp.RoleCMSender, Peer: 0x01})
	table.Insert(&tp.Session{Role: tp.RoleBAMReceiver, Peer: 0x02})

	all := table.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d sessions, want 2", len(all))
	}
}
