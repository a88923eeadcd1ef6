package sim

import "testing"

func TestLocalLink_TraversalTakesAtLeastOneSecond(t *testing.T) {
	ResetIDs()
	// GIVEN a link shorter than one second of driving
	net := chainNetwork(2, 5, 10, 3600)
	link := NewLocalLink(net.Link(0), testLinkParams())
	veh := vehicleOnLeg("v1", []LinkID{0, 1})
	events := NewEventsManager()

	// WHEN the vehicle enters at t=0
	link.PushVehicle(veh, 0)

	// THEN it is not offered before t=1
	link.DoSimStep(0, events)
	if link.OffersVeh(0) != nil {
		t.Error("vehicle offered in the same second it entered")
	}
	link.DoSimStep(1, events)
	if link.OffersVeh(1) != veh {
		t.Error("vehicle not offered after minimum traversal time")
	}
}

func TestLocalLink_NoOvertakingWithinALink(t *testing.T) {
	ResetIDs()
	// GIVEN a slow vehicle ahead of a fast one on a 100m link
	net := chainNetwork(2, 100, 10, 3600)
	link := NewLocalLink(net.Link(0), testLinkParams())
	events := NewEventsManager()

	slow := vehicleOnLeg("slow", []LinkID{0, 1})
	slow.Type = &VehicleType{ID: "tractor", MaxV: 2, PCE: 1.0}
	fast := vehicleOnLeg("fast", []LinkID{0, 1})

	link.PushVehicle(slow, 0)
	link.PushVehicle(fast, 0)

	// WHEN the fast vehicle's own exit time has long passed
	link.DoSimStep(10, events)

	// THEN it still waits behind the slow head
	if link.OffersVeh(10) != nil {
		t.Error("fast vehicle overtook the slow head of the queue")
	}

	// AND both leave in entry order once the head is due
	link.DoSimStep(50, events)
	if got := link.PopVeh(); got != slow {
		t.Errorf("first out: got %v, want the slow vehicle", got.ID)
	}
	link.DoSimStep(51, events)
	if got := link.PopVeh(); got != fast {
		t.Errorf("second out: got %v, want the fast vehicle", got.ID)
	}
}

func TestLocalLink_FlowCapacityGatesTheBuffer(t *testing.T) {
	ResetIDs()
	// GIVEN a link releasing one vehicle per second and three queued vehicles
	net := chainNetwork(2, 10, 10, 3600)
	link := NewLocalLink(net.Link(0), testLinkParams())
	events := NewEventsManager()
	for _, name := range []string{"v1", "v2", "v3"} {
		link.PushVehicle(vehicleOnLeg(name, []LinkID{0, 1}), 0)
	}

	// WHEN all three are due
	link.DoSimStep(1, events)

	// THEN only one occupies the buffer per step
	if link.PopVeh() == nil {
		t.Fatal("expected a buffered vehicle")
	}
	if link.OffersVeh(1) != nil {
		t.Error("second vehicle buffered within the same step")
	}

	// AND the next step admits the next vehicle
	link.DoSimStep(2, events)
	if link.OffersVeh(2) == nil {
		t.Error("no vehicle buffered after capacity accumulated")
	}
}

func TestLocalLink_ArrivingVehiclesBypassFlowCapacity(t *testing.T) {
	ResetIDs()
	// GIVEN a nearly capacity-less link with two vehicles ending their leg on it
	net := chainNetwork(1, 10, 10, 90)
	link := NewLocalLink(net.Link(0), testLinkParams())
	events := NewEventsManager()
	link.PushVehicle(vehicleOnLeg("v1", []LinkID{0}), 0)
	link.PushVehicle(vehicleOnLeg("v2", []LinkID{0}), 0)

	// WHEN both are due
	ending := link.DoSimStep(1, events)

	// THEN both leave traffic in the same step, flow capacity notwithstanding
	if len(ending) != 2 {
		t.Errorf("ending vehicles: got %d, want 2", len(ending))
	}
}

func TestLocalLink_WaitingListDrainsBeforeQueue(t *testing.T) {
	ResetIDs()
	// GIVEN one vehicle due in the moving queue and one departing vehicle
	net := chainNetwork(2, 10, 10, 3600)
	link := NewLocalLink(net.Link(0), testLinkParams())
	events := NewEventsManager()

	queued := vehicleOnLeg("queued", []LinkID{0, 1})
	departing := vehicleOnLeg("departing", []LinkID{0, 1})
	link.PushVehicle(queued, 0)
	link.PushWaiting(departing)

	// WHEN one unit of flow capacity is available
	link.DoSimStep(1, events)

	// THEN the departing vehicle claims it first
	if got := link.PopVeh(); got != departing {
		t.Errorf("buffered vehicle: got %v, want the departing one", got.ID)
	}
	if link.OffersVeh(1) != nil {
		t.Error("queued vehicle buffered despite exhausted flow capacity")
	}
}

func TestLocalLink_StorageConsumedOnEntryReleasedOnBuffering(t *testing.T) {
	ResetIDs()
	// GIVEN a link holding exactly two car equivalents
	net := chainNetwork(2, 15, 10, 360)
	link := NewLocalLink(net.Link(0), testLinkParams())
	events := NewEventsManager()

	link.PushVehicle(vehicleOnLeg("v1", []LinkID{0, 1}), 0)
	link.PushVehicle(vehicleOnLeg("v2", []LinkID{0, 1}), 0)

	if link.IsAvailable() {
		t.Error("full link reported as available")
	}

	// WHEN the head moves into the outflow buffer
	link.DoSimStep(2, events)

	// THEN its storage is free for upstream vehicles again
	if !link.IsAvailable() {
		t.Error("storage not released when vehicle left the moving queue")
	}
}

func TestLocalLink_StuckTimerForcesRelease(t *testing.T) {
	ResetIDs()
	net := chainNetwork(2, 10, 10, 3600)
	p := testLinkParams()
	p.StuckThreshold = 5
	link := NewLocalLink(net.Link(0), p)
	events := NewEventsManager()

	link.PushVehicle(vehicleOnLeg("v1", []LinkID{0, 1}), 0)
	link.DoSimStep(1, events)

	// GIVEN the buffer head was first offered at t=1
	if link.OffersVeh(1) == nil {
		t.Fatal("expected an offered vehicle")
	}

	// THEN it counts as stuck once the threshold elapsed, and not before
	if link.IsVehStuck(3) {
		t.Error("vehicle stuck before threshold")
	}
	if !link.IsVehStuck(6) {
		t.Error("vehicle not stuck after threshold")
	}

	// AND popping resets the timer
	link.PopVeh()
	if link.IsVehStuck(20) {
		t.Error("stuck timer survived a release")
	}
}

func TestSplitOutLink_BuffersCrossingsAndMirrorsStorage(t *testing.T) {
	ResetIDs()
	net := chainNetwork(2, 15, 10, 360)
	out := NewSplitOutLink(net.Link(0), testLinkParams(), 1)

	v1 := vehicleOnLeg("v1", []LinkID{0, 1})
	v2 := vehicleOnLeg("v2", []LinkID{0, 1})
	out.PushVehicle(v1)
	out.PushVehicle(v2)

	// two car equivalents fill the mirror
	if out.IsAvailable() {
		t.Error("full mirror reported as available")
	}

	// WHEN the crossing buffer is drained for the sync message
	taken := out.TakeVehicles()
	if len(taken) != 2 || taken[0] != v1 || taken[1] != v2 {
		t.Errorf("taken vehicles out of order: got %v", taken)
	}
	if len(out.TakeVehicles()) != 0 {
		t.Error("second take returned vehicles")
	}

	// THEN storage stays booked until the downstream partition reports it
	if out.IsAvailable() {
		t.Error("storage freed before downstream reported release")
	}
	out.ApplyStorageUpdate(1.0)
	if !out.IsAvailable() {
		t.Error("storage not freed after downstream report")
	}
}
