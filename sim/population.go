package sim

import "github.com/pkg/errors"

// RouteKind discriminates the closed set of route variants. The set is known
// at design time, so dispatch happens by switch rather than dynamic dispatch.
type RouteKind int

const (
	// GenericRoute is a point-to-point route traversed by teleportation.
	GenericRoute RouteKind = iota
	// NetworkRoute is an explicit ordered link sequence traversed on the
	// queue network.
	NetworkRoute
	// TransitRoute references a transit line/route and is traversed by
	// teleportation like a generic route.
	TransitRoute
)

// Route describes how a leg is traversed. StartLink and EndLink are always
// set; Links is populated for NetworkRoute only and includes both of them.
type Route struct {
	Kind       RouteKind
	StartLink  LinkID
	EndLink    LinkID
	Distance   float64
	TravelTime int // seconds, used by teleported legs
	Vehicle    VehicleID
	HasVehicle bool

	// NetworkRoute
	Links []LinkID

	// TransitRoute
	TransitLine  string
	TransitRoute string
	AccessStop   string
	EgressStop   string
}

// Activity is a stationary plan element at a link.
type Activity struct {
	Type        string
	Link        LinkID
	EndTime     int // absolute seconds; < 0 means unset
	MaxDuration int // seconds; < 0 means unset
}

// wakeupTime computes when an agent performing this activity wants to depart.
// An absolute end time wins over a maximum duration.
func (a *Activity) wakeupTime(now int) int {
	switch {
	case a.EndTime >= 0:
		return a.EndTime
	case a.MaxDuration >= 0:
		return now + a.MaxDuration
	default:
		// agents without departure information sleep forever
		return 1<<31 - 1
	}
}

// Leg is a moving plan element.
type Leg struct {
	Mode          ModeID
	DepartureTime int // absolute seconds; < 0 means unset
	TravelTime    int // seconds; used for teleportation
	Route         *Route
}

// PlanElement is the tagged union of activity and leg. Exactly one field is
// non-nil.
type PlanElement struct {
	Act *Activity
	Leg *Leg
}

// Plan is an alternating sequence activity, leg, activity, ... with a cursor
// to the current element. The cursor only ever advances.
type Plan struct {
	Elements []PlanElement
	cursor   int
}

// AgentState tells whether an agent currently performs an activity or
// travels on a leg.
type AgentState int

const (
	StateActivity AgentState = iota
	StateLeg
)

// Agent is a simulated person executing its plan.
type Agent struct {
	ID   PersonID
	Plan *Plan
}

func NewAgent(id PersonID, elements []PlanElement) *Agent {
	return &Agent{ID: id, Plan: &Plan{Elements: elements}}
}

func (a *Agent) State() AgentState {
	if a.Plan.Elements[a.Plan.cursor].Act != nil {
		return StateActivity
	}
	return StateLeg
}

// CurrAct returns the current activity. Panics when the agent is on a leg;
// that is an internal-consistency error, not a recoverable condition.
func (a *Agent) CurrAct() *Activity {
	act := a.Plan.Elements[a.Plan.cursor].Act
	if act == nil {
		panic("agent is not performing an activity")
	}
	return act
}

// CurrLeg returns the current leg. Panics when the agent performs an activity.
func (a *Agent) CurrLeg() *Leg {
	leg := a.Plan.Elements[a.Plan.cursor].Leg
	if leg == nil {
		panic("agent is not on a leg")
	}
	return leg
}

// NextLeg peeks at the element after the current one if it is a leg.
func (a *Agent) NextLeg() (*Leg, bool) {
	if a.Plan.cursor+1 >= len(a.Plan.Elements) {
		return nil, false
	}
	leg := a.Plan.Elements[a.Plan.cursor+1].Leg
	return leg, leg != nil
}

// AdvancePlan moves the cursor forward by one element. The cursor never moves
// backwards for the life of the plan.
func (a *Agent) AdvancePlan() {
	if a.Plan.cursor+1 >= len(a.Plan.Elements) {
		panic("advancing past the end of the plan")
	}
	a.Plan.cursor++
}

// PlanDone reports whether the current element is the last one.
func (a *Agent) PlanDone() bool {
	return a.Plan.cursor == len(a.Plan.Elements)-1
}

// WakeupTime returns the departure time of the current activity.
func (a *Agent) WakeupTime(now int) int {
	return a.CurrAct().wakeupTime(now)
}

// ReplaceNextLeg swaps in a freshly routed leg for the element following the
// current activity. Used when a routing response arrives before departure.
func (a *Agent) ReplaceNextLeg(leg *Leg) error {
	idx := a.Plan.cursor + 1
	if idx >= len(a.Plan.Elements) || a.Plan.Elements[idx].Leg == nil {
		return errors.Errorf("agent %s has no upcoming leg to replace", IDs().PersonName(a.ID))
	}
	a.Plan.Elements[idx].Leg = leg
	return nil
}

// ReplaceNextTrip swaps the leg following the current activity for a freshly
// routed trip of alternating legs and intermediate activities. len(acts) must
// be len(legs)-1.
func (a *Agent) ReplaceNextTrip(legs []*Leg, acts []*Activity) error {
	if len(legs) == 0 {
		return errors.Errorf("agent %s: replacement trip has no legs", IDs().PersonName(a.ID))
	}
	if len(acts) != len(legs)-1 {
		return errors.Errorf("agent %s: replacement trip has %d legs but %d intermediate activities",
			IDs().PersonName(a.ID), len(legs), len(acts))
	}
	idx := a.Plan.cursor + 1
	if idx >= len(a.Plan.Elements) || a.Plan.Elements[idx].Leg == nil {
		return errors.Errorf("agent %s has no upcoming leg to replace", IDs().PersonName(a.ID))
	}
	// Routing backends answer with bare link sequences; network legs without a
	// vehicle binding inherit the vehicle of the leg they replace.
	old := a.Plan.Elements[idx].Leg
	if old.Route != nil && old.Route.HasVehicle {
		for _, leg := range legs {
			if leg.Route != nil && leg.Route.Kind == NetworkRoute && !leg.Route.HasVehicle {
				leg.Route.Vehicle = old.Route.Vehicle
				leg.Route.HasVehicle = true
			}
		}
	}
	trip := make([]PlanElement, 0, len(legs)+len(acts))
	for i, leg := range legs {
		trip = append(trip, PlanElement{Leg: leg})
		if i < len(acts) {
			trip = append(trip, PlanElement{Act: acts[i]})
		}
	}
	tail := a.Plan.Elements[idx+1:]
	a.Plan.Elements = append(append(a.Plan.Elements[:idx:idx], trip...), tail...)
	return nil
}

// Validate checks plan shape and that all route links exist in the network.
// A plan referencing an unknown link is a configuration error that aborts the
// run before any tick executes.
func (a *Agent) Validate(net *Network) error {
	if len(a.Plan.Elements) == 0 {
		return errors.Errorf("agent %s has an empty plan", IDs().PersonName(a.ID))
	}
	if a.Plan.Elements[0].Act == nil {
		return errors.Errorf("agent %s: plan must start with an activity", IDs().PersonName(a.ID))
	}
	for i, el := range a.Plan.Elements {
		switch {
		case el.Act != nil && el.Leg != nil:
			return errors.Errorf("agent %s: plan element %d is both activity and leg", IDs().PersonName(a.ID), i)
		case el.Act == nil && el.Leg == nil:
			return errors.Errorf("agent %s: plan element %d is empty", IDs().PersonName(a.ID), i)
		case el.Act != nil:
			if int(el.Act.Link) < 0 || int(el.Act.Link) >= net.LinkCount() {
				return errors.Errorf("agent %s: activity %d references unknown link %d", IDs().PersonName(a.ID), i, el.Act.Link)
			}
		case el.Leg != nil:
			if el.Leg.Route == nil {
				return errors.Errorf("agent %s: leg %d has no route", IDs().PersonName(a.ID), i)
			}
			if el.Leg.Route.Kind != NetworkRoute && el.Leg.TravelTime < 0 && el.Leg.Route.TravelTime < 0 {
				return errors.Errorf("agent %s: teleported leg %d has no travel time", IDs().PersonName(a.ID), i)
			}
			for _, l := range el.Leg.Route.Links {
				if int(l) < 0 || int(l) >= net.LinkCount() {
					return errors.Errorf("agent %s: route of leg %d references unknown link %d", IDs().PersonName(a.ID), i, l)
				}
			}
		}
	}
	return nil
}

// Population is the set of all agents of the global scenario.
type Population struct {
	Agents map[PersonID]*Agent
}

func NewPopulation() *Population {
	return &Population{Agents: make(map[PersonID]*Agent)}
}

func (p *Population) Add(a *Agent) { p.Agents[a.ID] = a }
