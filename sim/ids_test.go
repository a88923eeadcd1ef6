package sim

import "testing"

func TestIDStore_InterningIsDenseAndStable(t *testing.T) {
	store := NewIDStore()

	a := store.LinkID("l1")
	b := store.LinkID("l2")
	again := store.LinkID("l1")

	if a != 0 || b != 1 {
		t.Errorf("ids not dense: got %d, %d", a, b)
	}
	if again != a {
		t.Errorf("re-interning changed id: got %d, want %d", again, a)
	}
	if store.LinkName(a) != "l1" {
		t.Errorf("name round trip: got %q, want l1", store.LinkName(a))
	}
}

func TestIDStore_KindsAreIndependent(t *testing.T) {
	store := NewIDStore()

	link := store.LinkID("shared-name")
	node := store.NodeID("shared-name")

	// same external string, separate id spaces
	if int(link) != 0 || int(node) != 0 {
		t.Errorf("expected both kinds to start at 0, got link %d node %d", link, node)
	}
}

func TestIDStore_LookupDoesNotIntern(t *testing.T) {
	store := NewIDStore()

	if _, ok := store.LookupLinkID("absent"); ok {
		t.Error("lookup of unknown id reported ok")
	}
	if store.LinkName(5) != "<unknown:5>" {
		t.Errorf("unknown name: got %q", store.LinkName(5))
	}
}

func TestResetIDs_StartsAFreshRun(t *testing.T) {
	ResetIDs()
	first := InternPerson("p1")
	ResetIDs()
	second := InternPerson("someone-else")

	if first != second {
		t.Errorf("fresh store should reassign dense ids: got %d and %d", first, second)
	}
}
