package sim

// EventKind enumerates the closed set of simulation events.
type EventKind int

const (
	EventActStart EventKind = iota
	EventActEnd
	EventDeparture
	EventArrival
	EventPersonEntersVehicle
	EventPersonLeavesVehicle
	EventVehicleEntersTraffic
	EventVehicleLeavesTraffic
	EventLinkEnter
	EventLinkLeave
	EventTravelled
	EventPassengerDroppedOff
)

var eventKindNames = map[EventKind]string{
	EventActStart:             "actstart",
	EventActEnd:               "actend",
	EventDeparture:            "departure",
	EventArrival:              "arrival",
	EventPersonEntersVehicle:  "PersonEntersVehicle",
	EventPersonLeavesVehicle:  "PersonLeavesVehicle",
	EventVehicleEntersTraffic: "vehicle enters traffic",
	EventVehicleLeavesTraffic: "vehicle leaves traffic",
	EventLinkEnter:            "entered link",
	EventLinkLeave:            "left link",
	EventTravelled:            "travelled",
	EventPassengerDroppedOff:  "passenger dropped off",
}

func (k EventKind) String() string { return eventKindNames[k] }

// Event is one record of the simulation event stream. Fields are populated
// per kind; unused fields stay zero.
type Event struct {
	Time    int
	Kind    EventKind
	Person  PersonID
	Vehicle VehicleID
	Link    LinkID
	Mode    ModeID
	ActType string

	// teleportation
	Distance float64

	// transit
	TransitLine  string
	TransitRoute string
}

// EventSubscriber consumes the event stream of one partition. Subscribers run
// on the partition's goroutine; they must not block.
type EventSubscriber interface {
	ReceiveEvent(ev Event)
	Finish()
}

// EventsManager fans events out to the subscribers of one partition. Each
// partition owns its manager exclusively, so no locking is needed.
type EventsManager struct {
	subscribers []EventSubscriber
}

func NewEventsManager() *EventsManager {
	return &EventsManager{}
}

func (m *EventsManager) Subscribe(s EventSubscriber) {
	m.subscribers = append(m.subscribers, s)
}

func (m *EventsManager) Publish(ev Event) {
	for _, s := range m.subscribers {
		s.ReceiveEvent(ev)
	}
}

// Finish flushes all subscribers at the end of a run.
func (m *EventsManager) Finish() {
	for _, s := range m.subscribers {
		s.Finish()
	}
}

// EventCollector records every event it sees. Used by tests and by the
// partition-invariance checks.
type EventCollector struct {
	Events []Event
}

func (c *EventCollector) ReceiveEvent(ev Event) { c.Events = append(c.Events, ev) }
func (c *EventCollector) Finish()               {}
