package sim

import "fmt"

// Helpers shared by the package tests. The default id store is process-wide,
// so every test builds its fixtures after a ResetIDs() and the tests of this
// package do not run in parallel.

func testLinkParams() LinkParams {
	return LinkParams{SampleSize: 1.0, EffectiveCellSize: DefaultEffectiveCellSize, StuckThreshold: 30}
}

// chainNetwork builds n0 -> n1 -> ... with links l1..ln of uniform geometry.
func chainNetwork(links int, length, freeSpeed, capacity float64) *Network {
	net := NewNetwork()
	for i := 0; i <= links; i++ {
		net.AddNode(&Node{ID: InternNode(fmt.Sprintf("n%d", i))})
	}
	for i := 1; i <= links; i++ {
		net.AddLink(&Link{
			ID:        InternLink(fmt.Sprintf("l%d", i)),
			From:      NodeID(i - 1),
			To:        NodeID(i),
			Length:    length,
			FreeSpeed: freeSpeed,
			Capacity:  capacity,
			PermLanes: 1,
		})
	}
	return net
}

func carType() *VehicleType {
	return &VehicleType{ID: "car", MaxV: 100, PCE: 1.0, NetMode: InternMode("car"), Capacity: 4}
}

// networkAgent builds home -> car leg over links -> work, departing at endTime.
func networkAgent(name string, links []LinkID, endTime int) *Agent {
	route := &Route{
		Kind:       NetworkRoute,
		StartLink:  links[0],
		EndLink:    links[len(links)-1],
		Links:      links,
		Vehicle:    InternVehicle(name + "_car"),
		HasVehicle: true,
	}
	elements := []PlanElement{
		{Act: &Activity{Type: "home", Link: links[0], EndTime: endTime, MaxDuration: -1}},
		{Leg: &Leg{Mode: InternMode("car"), DepartureTime: endTime, TravelTime: -1, Route: route}},
		{Act: &Activity{Type: "work", Link: links[len(links)-1], EndTime: -1, MaxDuration: -1}},
	}
	return NewAgent(InternPerson(name), elements)
}

// vehicleOnLeg returns a vehicle whose driver is mid network leg over links.
func vehicleOnLeg(name string, links []LinkID) *Vehicle {
	agent := networkAgent(name+"_driver", links, 0)
	agent.AdvancePlan()
	return &Vehicle{ID: InternVehicle(name), Type: carType(), Driver: agent}
}

// noopBroker satisfies SyncBroker for single-partition tests: nothing ever
// crosses a boundary.
type noopBroker struct{}

func (noopBroker) Rank() int                           { return 0 }
func (noopBroker) AddVehicle(int, *Vehicle)            {}
func (noopBroker) AddStorageUpdate(int, StorageUpdate) {}
func (noopBroker) SendRecv(int) ([]SyncMessage, error) { return nil, nil }

func testConfig(endTime int) *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Simulation.EndTime = endTime
	cfg.Scenario.Path = "unused"
	return cfg
}

// singlePartitionSim wires a one-partition runtime over net with the given
// agents, registering their vehicles, and returns it with an event collector.
func singlePartitionSim(net *Network, cfg *Config, agents []*Agent) (*Simulation, *EventCollector) {
	if err := NoPartitioning(net).Apply(net); err != nil {
		panic(err)
	}
	garage := NewGarage()
	garage.AddType(carType())
	for _, agent := range agents {
		for _, el := range agent.Plan.Elements {
			if el.Leg != nil && el.Leg.Route.HasVehicle {
				if err := garage.RegisterVehicle(el.Leg.Route.Vehicle, "car"); err != nil {
					panic(err)
				}
			}
		}
	}
	events := NewEventsManager()
	collector := &EventCollector{}
	events.Subscribe(collector)

	part := BuildSimNetworkPartition(net, 0, cfg.LinkParams())
	linkPart := make([]int, net.LinkCount())
	s := NewSimulation(cfg, part, garage, events, noopBroker{}, nil, nil, linkPart, agents)
	return s, collector
}

// eventsOf filters the collected stream by kind.
func eventsOf(c *EventCollector, kind EventKind) []Event {
	var out []Event
	for _, ev := range c.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
