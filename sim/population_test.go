package sim

import "testing"

func TestActivity_WakeupTimePrecedence(t *testing.T) {
	// GIVEN an activity with both an end time and a maximum duration
	act := &Activity{Type: "home", EndTime: 100, MaxDuration: 10}

	// THEN the end time wins
	if got := act.wakeupTime(50); got != 100 {
		t.Errorf("wakeup: got %d, want 100", got)
	}

	// AND without an end time the duration counts from now
	act = &Activity{Type: "home", EndTime: -1, MaxDuration: 10}
	if got := act.wakeupTime(50); got != 60 {
		t.Errorf("wakeup: got %d, want 60", got)
	}

	// AND with neither the agent sleeps forever
	act = &Activity{Type: "home", EndTime: -1, MaxDuration: -1}
	if got := act.wakeupTime(50); got != 1<<31-1 {
		t.Errorf("wakeup: got %d, want max", got)
	}
}

func TestAgent_PlanCursorAdvances(t *testing.T) {
	ResetIDs()
	agent := networkAgent("p1", []LinkID{InternLink("l1")}, 100)

	if agent.State() != StateActivity {
		t.Error("fresh agent not performing its first activity")
	}
	agent.AdvancePlan()
	if agent.State() != StateLeg {
		t.Error("agent not on leg after advancing")
	}
	agent.AdvancePlan()
	if !agent.PlanDone() {
		t.Error("agent not done on its last activity")
	}
}

func TestAgent_ReplaceNextTripSplicesPlan(t *testing.T) {
	ResetIDs()
	l1, l2 := InternLink("l1"), InternLink("l2")
	agent := networkAgent("p1", []LinkID{l1, l2}, 100)

	// GIVEN a fresh two-leg trip with an intermediate stop
	walk := &Leg{Mode: InternMode("walk"), DepartureTime: -1, TravelTime: 60,
		Route: &Route{Kind: GenericRoute, StartLink: l1, EndLink: l1}}
	car := &Leg{Mode: InternMode("car"), DepartureTime: -1, TravelTime: -1,
		Route: &Route{Kind: NetworkRoute, StartLink: l1, EndLink: l2, Links: []LinkID{l1, l2}}}
	stop := &Activity{Type: "pt interaction", Link: l1, EndTime: -1, MaxDuration: 0}

	// WHEN it replaces the agent's next leg
	if err := agent.ReplaceNextTrip([]*Leg{walk, car}, []*Activity{stop}); err != nil {
		t.Fatalf("splice failed: %v", err)
	}

	// THEN the plan alternates through the new trip and keeps its tail
	if got := len(agent.Plan.Elements); got != 5 {
		t.Fatalf("plan length: got %d, want 5", got)
	}
	agent.AdvancePlan()
	if agent.CurrLeg() != walk {
		t.Error("first spliced element is not the walk leg")
	}
	agent.AdvancePlan()
	if agent.CurrAct() != stop {
		t.Error("second spliced element is not the stop activity")
	}
	agent.AdvancePlan()
	if agent.CurrLeg() != car {
		t.Error("third spliced element is not the car leg")
	}
	agent.AdvancePlan()
	if agent.CurrAct().Type != "work" {
		t.Error("original tail activity lost by the splice")
	}
}

func TestAgent_ReplaceNextTripInheritsVehicleBinding(t *testing.T) {
	ResetIDs()
	l1, l2 := InternLink("l1"), InternLink("l2")
	agent := networkAgent("p1", []LinkID{l1, l2}, 100)
	original := agent.Plan.Elements[1].Leg.Route.Vehicle

	// GIVEN a freshly routed network leg without a vehicle binding
	rerouted := &Leg{Mode: InternMode("car"), DepartureTime: -1, TravelTime: -1,
		Route: &Route{Kind: NetworkRoute, StartLink: l1, EndLink: l2, Links: []LinkID{l1, l2}}}

	if err := agent.ReplaceNextTrip([]*Leg{rerouted}, nil); err != nil {
		t.Fatalf("splice failed: %v", err)
	}

	// THEN it drives the vehicle of the leg it replaced
	if !rerouted.Route.HasVehicle || rerouted.Route.Vehicle != original {
		t.Errorf("rerouted leg vehicle: got %v (has %t), want %v",
			rerouted.Route.Vehicle, rerouted.Route.HasVehicle, original)
	}
}

func TestAgent_ReplaceNextTripRejectsMismatchedShape(t *testing.T) {
	ResetIDs()
	agent := networkAgent("p1", []LinkID{InternLink("l1")}, 100)

	leg := &Leg{Mode: InternMode("walk"), Route: &Route{Kind: GenericRoute}}
	if err := agent.ReplaceNextTrip([]*Leg{leg, leg}, nil); err == nil {
		t.Error("expected error for legs without intermediate activities")
	}
	if err := agent.ReplaceNextTrip(nil, nil); err == nil {
		t.Error("expected error for empty trip")
	}
}

func TestAgent_ValidateCatchesUnknownLinks(t *testing.T) {
	ResetIDs()
	net := chainNetwork(1, 100, 10, 3600)

	// route referencing a link the network does not have
	ghost := LinkID(7)
	agent := networkAgent("p1", []LinkID{0, ghost}, 100)

	if err := agent.Validate(net); err == nil {
		t.Error("expected validation error for unknown route link")
	}
}

func TestAgent_ValidateRejectsTeleportedLegWithoutTravelTime(t *testing.T) {
	ResetIDs()
	net := chainNetwork(1, 100, 10, 3600)
	agent := NewAgent(InternPerson("p1"), []PlanElement{
		{Act: &Activity{Type: "home", Link: 0, EndTime: 0, MaxDuration: -1}},
		{Leg: &Leg{Mode: InternMode("walk"), DepartureTime: -1, TravelTime: -1,
			Route: &Route{Kind: GenericRoute, StartLink: 0, EndLink: 0, TravelTime: -1}}},
		{Act: &Activity{Type: "work", Link: 0, EndTime: -1, MaxDuration: -1}},
	})

	if err := agent.Validate(net); err == nil {
		t.Error("expected validation error for a teleported leg with no travel time at all")
	}
}

func TestAgent_ValidateRejectsPlanStartingWithLeg(t *testing.T) {
	ResetIDs()
	net := chainNetwork(1, 100, 10, 3600)
	agent := NewAgent(InternPerson("p1"), []PlanElement{
		{Leg: &Leg{Mode: InternMode("car"), Route: &Route{Kind: GenericRoute}}},
	})

	if err := agent.Validate(net); err == nil {
		t.Error("expected validation error for plan starting with a leg")
	}
}
