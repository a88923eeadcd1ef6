package sim

import "github.com/pkg/errors"

// LegEngine executes legs: it puts departing vehicles onto the network or
// into the teleportation queue, routes boundary-crossing vehicles through the
// sync broker, and winds legs down on arrival.
type LegEngine struct {
	partition int
	net       *SimNetworkPartition
	garage    *Garage
	teleport  *TeleportationEngine
	events    *EventsManager
	broker    SyncBroker

	// linkPart maps every link of the global network to its owning partition.
	// Kept after the global scenario is discarded so teleported legs can be
	// handed to the partition owning their end link.
	linkPart []int
}

func NewLegEngine(net *SimNetworkPartition, garage *Garage, events *EventsManager,
	broker SyncBroker, linkPart []int) *LegEngine {
	return &LegEngine{
		partition: net.Partition(),
		net:       net,
		garage:    garage,
		teleport:  NewTeleportationEngine(events),
		events:    events,
		broker:    broker,
		linkPart:  linkPart,
	}
}

// Depart starts the agent's current leg.
func (e *LegEngine) Depart(agent *Agent, now int) error {
	leg := agent.CurrLeg()
	route := leg.Route

	e.events.Publish(Event{
		Time:   now,
		Kind:   EventDeparture,
		Person: agent.ID,
		Link:   route.StartLink,
		Mode:   leg.Mode,
	})

	if route.Kind == NetworkRoute {
		veh, err := e.garage.Unpark(e.vehicleID(agent, leg), agent)
		if err != nil {
			return errors.Wrapf(err, "agent %s departing at %d", IDs().PersonName(agent.ID), now)
		}
		e.events.Publish(Event{
			Time:    now,
			Kind:    EventPersonEntersVehicle,
			Person:  agent.ID,
			Vehicle: veh.ID,
		})
		e.net.SendVehEnRoute(veh, true, now, e.events)
		return nil
	}

	// Teleported legs ride a bookkeeping vehicle so partition hand-off and
	// arrival handling work the same as for network legs.
	veh := e.garage.UnparkTeleport(e.vehicleID(agent, leg), agent)

	duration := leg.TravelTime
	if duration < 0 {
		duration = route.TravelTime
	}
	veh.TeleportArrival = now + duration

	if target := e.linkPart[route.EndLink]; target != e.partition {
		e.broker.AddVehicle(target, veh)
		return nil
	}
	e.teleport.ReceiveVehicle(veh)
	return nil
}

// vehicleID resolves the vehicle a leg rides. Routes without an explicit
// vehicle get an implicit per-person, per-mode one.
func (e *LegEngine) vehicleID(agent *Agent, leg *Leg) VehicleID {
	if leg.Route.HasVehicle {
		return leg.Route.Vehicle
	}
	return InternVehicle(IDs().PersonName(agent.ID) + "_" + IDs().ModeName(leg.Mode))
}

// ReceiveCrossing places a vehicle that arrived in a sync message. Network
// vehicles join their current link's moving queue; teleporting vehicles wait
// out their remaining duration.
func (e *LegEngine) ReceiveCrossing(veh *Vehicle, now int) {
	if veh.Driver.CurrLeg().Route.Kind == NetworkRoute {
		e.net.SendVehEnRoute(veh, false, now, e.events)
		return
	}
	e.teleport.ReceiveVehicle(veh)
}

// TeleportArrivals returns the teleporting vehicles whose legs end now.
func (e *LegEngine) TeleportArrivals(now int) []*Vehicle {
	return e.teleport.Arrivals(now)
}

// EndLeg parks the vehicle and returns its occupants, driver first. network
// distinguishes real network legs, which publish vehicle occupancy events,
// from teleported ones, which do not.
func (e *LegEngine) EndLeg(veh *Vehicle, now int, network bool) []*Agent {
	if network {
		e.events.Publish(Event{
			Time:    now,
			Kind:    EventPersonLeavesVehicle,
			Person:  veh.Driver.ID,
			Vehicle: veh.ID,
		})
		for _, p := range veh.Passengers {
			e.events.Publish(Event{
				Time:    now,
				Kind:    EventPassengerDroppedOff,
				Person:  p.ID,
				Vehicle: veh.ID,
				Link:    veh.Driver.CurrLeg().Route.EndLink,
			})
		}
	}
	return e.garage.Park(veh)
}

// TeleportingVehCount reports how many vehicles are mid-teleport.
func (e *LegEngine) TeleportingVehCount() int { return e.teleport.VehCount() }
