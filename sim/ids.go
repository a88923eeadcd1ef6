package sim

import (
	"fmt"
	"sync"
)

// Typed identifiers for the entities of a scenario. Values are dense indexes
// assigned by the run's IDStore, so per-link and per-vehicle lookups stay
// cheap array/map-by-int operations instead of string hashing in the tick loop.
type (
	NodeID    int
	LinkID    int
	PersonID  int
	VehicleID int
	ModeID    int
)

// idSet interns external string identifiers of one entity kind and hands out
// dense int indexes in insertion order.
type idSet struct {
	index map[string]int
	names []string
}

func newIDSet() *idSet {
	return &idSet{index: make(map[string]int)}
}

func (s *idSet) get(external string) int {
	if idx, ok := s.index[external]; ok {
		return idx
	}
	idx := len(s.names)
	s.index[external] = idx
	s.names = append(s.names, external)
	return idx
}

func (s *idSet) lookup(external string) (int, bool) {
	idx, ok := s.index[external]
	return idx, ok
}

func (s *idSet) name(idx int) string {
	if idx < 0 || idx >= len(s.names) {
		return fmt.Sprintf("<unknown:%d>", idx)
	}
	return s.names[idx]
}

// IDStore interns all external identifiers of a run. It is scoped per run and
// must be reset between independent runs (tests touching the default store
// must not run in parallel with each other).
type IDStore struct {
	mu       sync.RWMutex
	nodes    *idSet
	links    *idSet
	persons  *idSet
	vehicles *idSet
	modes    *idSet
}

func NewIDStore() *IDStore {
	return &IDStore{
		nodes:    newIDSet(),
		links:    newIDSet(),
		persons:  newIDSet(),
		vehicles: newIDSet(),
		modes:    newIDSet(),
	}
}

// defaultIDs is the process-wide store used by the convenience functions
// below. Scenario loading and the CLI use it; library code receives IDs that
// were interned through it.
var defaultIDs = NewIDStore()

// ResetIDs replaces the default store. Call between independent runs.
func ResetIDs() {
	defaultIDs = NewIDStore()
}

func (s *IDStore) NodeID(external string) NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NodeID(s.nodes.get(external))
}

func (s *IDStore) LinkID(external string) LinkID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LinkID(s.links.get(external))
}

func (s *IDStore) PersonID(external string) PersonID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PersonID(s.persons.get(external))
}

func (s *IDStore) VehicleID(external string) VehicleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return VehicleID(s.vehicles.get(external))
}

func (s *IDStore) ModeID(external string) ModeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ModeID(s.modes.get(external))
}

// LookupLinkID resolves an external link identifier without interning it.
func (s *IDStore) LookupLinkID(external string) (LinkID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.links.lookup(external)
	return LinkID(idx), ok
}

// LookupNodeID resolves an external node identifier without interning it.
func (s *IDStore) LookupNodeID(external string) (NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.nodes.lookup(external)
	return NodeID(idx), ok
}

func (s *IDStore) NodeName(id NodeID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.name(int(id))
}

func (s *IDStore) LinkName(id LinkID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.links.name(int(id))
}

func (s *IDStore) PersonName(id PersonID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persons.name(int(id))
}

func (s *IDStore) VehicleName(id VehicleID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vehicles.name(int(id))
}

func (s *IDStore) ModeName(id ModeID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes.name(int(id))
}

// Convenience wrappers over the default store.

func InternNode(external string) NodeID       { return defaultIDs.NodeID(external) }
func InternLink(external string) LinkID       { return defaultIDs.LinkID(external) }
func InternPerson(external string) PersonID   { return defaultIDs.PersonID(external) }
func InternVehicle(external string) VehicleID { return defaultIDs.VehicleID(external) }
func InternMode(external string) ModeID       { return defaultIDs.ModeID(external) }

func IDs() *IDStore { return defaultIDs }
