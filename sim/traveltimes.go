package sim

// TravelTimeCollector aggregates per-link travel times from the event stream.
// The aggregate feeds the coarser-cadence travel-times broadcast consumed by
// replanning tooling.
type TravelTimeCollector struct {
	travelTimes map[LinkID][]int
	enterTimes  map[VehicleID]int
}

func NewTravelTimeCollector() *TravelTimeCollector {
	return &TravelTimeCollector{
		travelTimes: make(map[LinkID][]int),
		enterTimes:  make(map[VehicleID]int),
	}
}

func (c *TravelTimeCollector) ReceiveEvent(ev Event) {
	switch ev.Kind {
	case EventLinkEnter:
		c.enterTimes[ev.Vehicle] = ev.Time
	case EventLinkLeave:
		// A missing enter time means the leave is the begin of a leg; no
		// travel time can be computed for it.
		if enter, ok := c.enterTimes[ev.Vehicle]; ok {
			delete(c.enterTimes, ev.Vehicle)
			c.travelTimes[ev.Link] = append(c.travelTimes[ev.Link], ev.Time-enter)
		}
	case EventPersonLeavesVehicle:
		delete(c.enterTimes, ev.Vehicle)
	}
}

func (c *TravelTimeCollector) Finish() {}

// TravelTime returns the mean observed travel time of a link.
func (c *TravelTimeCollector) TravelTime(link LinkID) (int, bool) {
	samples, ok := c.travelTimes[link]
	if !ok || len(samples) == 0 {
		return 0, false
	}
	sum := 0
	for _, s := range samples {
		sum += s
	}
	return sum / len(samples), true
}

// TravelTimes snapshots all links with at least one observation.
func (c *TravelTimeCollector) TravelTimes() map[LinkID]int {
	out := make(map[LinkID]int, len(c.travelTimes))
	for link := range c.travelTimes {
		if tt, ok := c.TravelTime(link); ok {
			out[link] = tt
		}
	}
	return out
}

// Flush drops collected travel times but keeps pending enter times, since
// those vehicles have not left their links yet.
func (c *TravelTimeCollector) Flush() {
	c.travelTimes = make(map[LinkID][]int)
}
