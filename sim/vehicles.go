package sim

import "github.com/pkg/errors"

// VehicleType carries the physical parameters shared by vehicles of one kind.
// PCE (passenger car equivalents) is the share of flow and storage capacity a
// vehicle of this type consumes.
type VehicleType struct {
	ID       string
	MaxV     float64 // maximum velocity, meters per second
	PCE      float64
	NetMode  ModeID
	Capacity int // passenger seats, driver excluded
}

// Vehicle moves over the network on behalf of its driver. Passengers ride
// along and are handed off across partitions together with the vehicle.
type Vehicle struct {
	ID         VehicleID
	Type       *VehicleType
	Driver     *Agent
	Passengers []*Agent

	// RouteIndex points into the driver's current network route.
	RouteIndex int

	// TeleportArrival is the absolute arrival time while the vehicle is in a
	// teleportation queue. Carried in sync messages so a receiving partition
	// can re-queue the vehicle for the remaining duration.
	TeleportArrival int
}

func (v *Vehicle) MaxV() float64 { return v.Type.MaxV }
func (v *Vehicle) PCE() float64  { return v.Type.PCE }

// route returns the driver's current route.
func (v *Vehicle) route() *Route {
	return v.Driver.CurrLeg().Route
}

// CurrLink returns the link the vehicle currently occupies on its network
// route.
func (v *Vehicle) CurrLink() (LinkID, bool) {
	r := v.route()
	if r.Kind != NetworkRoute {
		return r.EndLink, r.Kind == GenericRoute || r.Kind == TransitRoute
	}
	if v.RouteIndex >= len(r.Links) {
		return 0, false
	}
	return r.Links[v.RouteIndex], true
}

// PeekNextLink returns the link after the current one, if any.
func (v *Vehicle) PeekNextLink() (LinkID, bool) {
	r := v.route()
	if r.Kind != NetworkRoute || v.RouteIndex+1 >= len(r.Links) {
		return 0, false
	}
	return r.Links[v.RouteIndex+1], true
}

// WantsToArrive reports whether the current link is the last of the route.
func (v *Vehicle) WantsToArrive() bool {
	r := v.route()
	if r.Kind != NetworkRoute {
		return true
	}
	return v.RouteIndex == len(r.Links)-1
}

// AdvanceRoute moves the vehicle onto the next link of its route.
func (v *Vehicle) AdvanceRoute() {
	v.RouteIndex++
}

// Garage owns all vehicles of one partition while they are parked, and hands
// them to agents when a leg departs. Vehicles cross partitions inside sync
// messages, so a garage may park a vehicle it has never seen before.
type Garage struct {
	types   map[string]*VehicleType
	parked  map[VehicleID]*Vehicle
	vehType map[VehicleID]*VehicleType
}

func NewGarage() *Garage {
	return &Garage{
		types:   make(map[string]*VehicleType),
		parked:  make(map[VehicleID]*Vehicle),
		vehType: make(map[VehicleID]*VehicleType),
	}
}

func (g *Garage) AddType(t *VehicleType) { g.types[t.ID] = t }

func (g *Garage) Type(id string) (*VehicleType, bool) {
	t, ok := g.types[id]
	return t, ok
}

// RegisterVehicle declares a vehicle of the given type. The vehicle starts
// parked.
func (g *Garage) RegisterVehicle(id VehicleID, typeID string) error {
	t, ok := g.types[typeID]
	if !ok {
		return errors.Errorf("unknown vehicle type %q for vehicle %s", typeID, IDs().VehicleName(id))
	}
	g.vehType[id] = t
	g.parked[id] = &Vehicle{ID: id, Type: t}
	return nil
}

// Unpark hands a declared vehicle to the agent as driver. The concrete
// instance may sit parked in another partition's garage after an earlier leg;
// the type table is replicated in every garage, so a fresh instance of the
// declared type is equivalent. Unparking an undeclared vehicle is a
// configuration error.
func (g *Garage) Unpark(id VehicleID, driver *Agent) (*Vehicle, error) {
	veh, ok := g.parked[id]
	if ok {
		delete(g.parked, id)
	} else {
		t, declared := g.vehType[id]
		if !declared {
			return nil, errors.Errorf("can't unpark undeclared vehicle %s", IDs().VehicleName(id))
		}
		veh = &Vehicle{ID: id, Type: t}
	}
	veh.Driver = driver
	veh.RouteIndex = 0
	return veh, nil
}

// teleportType is the type of the implicit per-person, per-mode bookkeeping
// vehicles of teleported legs. They never enter a link queue, so speed and
// capacity weight are inert.
var teleportType = &VehicleType{ID: "teleport", MaxV: 1e9, PCE: 1.0}

// UnparkTeleport hands out the bookkeeping vehicle of a teleported leg,
// creating it on first use.
func (g *Garage) UnparkTeleport(id VehicleID, driver *Agent) *Vehicle {
	veh, ok := g.parked[id]
	if ok {
		delete(g.parked, id)
	} else {
		t := g.vehType[id]
		if t == nil {
			t = teleportType
		}
		veh = &Vehicle{ID: id, Type: t}
	}
	veh.Driver = driver
	veh.RouteIndex = 0
	return veh
}

// Park releases the vehicle at the end of a leg and returns its occupants,
// driver first. The vehicle ceases to occupy any link.
func (g *Garage) Park(veh *Vehicle) []*Agent {
	occupants := make([]*Agent, 0, 1+len(veh.Passengers))
	occupants = append(occupants, veh.Driver)
	occupants = append(occupants, veh.Passengers...)
	veh.Driver = nil
	veh.Passengers = nil
	g.parked[veh.ID] = veh
	return occupants
}
