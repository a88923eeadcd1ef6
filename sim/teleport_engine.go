package sim

// TeleportationEngine moves vehicles on non-network legs: they disappear at
// the origin and reappear at the destination after the leg's travel time,
// without touching any link state.
type TeleportationEngine struct {
	q      *TimeQueue[*Vehicle]
	events *EventsManager
}

func NewTeleportationEngine(events *EventsManager) *TeleportationEngine {
	return &TeleportationEngine{q: NewTimeQueue[*Vehicle](), events: events}
}

// ReceiveVehicle queues a teleporting vehicle until its arrival time. The
// arrival time is absolute and survives a partition hand-off, so a vehicle
// received mid-leg waits only for the remaining duration.
func (e *TeleportationEngine) ReceiveVehicle(veh *Vehicle) {
	e.q.Add(veh, veh.TeleportArrival)
}

// Arrivals removes and returns all vehicles whose teleport ends at or before
// now, publishing the travelled distance for scoring.
func (e *TeleportationEngine) Arrivals(now int) []*Vehicle {
	arrived := e.q.PopDue(now)
	for _, veh := range arrived {
		leg := veh.Driver.CurrLeg()
		e.events.Publish(Event{
			Time:     now,
			Kind:     EventTravelled,
			Person:   veh.Driver.ID,
			Mode:     leg.Mode,
			Distance: leg.Route.Distance,
		})
	}
	return arrived
}

// VehCount reports how many vehicles are currently teleporting.
func (e *TeleportationEngine) VehCount() int { return e.q.Len() }
