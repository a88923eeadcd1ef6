package sim

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

// WireVersion is the schema version stamped into every envelope. Decoding
// rejects any other version.
const WireVersion uint16 = 1

// MessageKind is the one-of discriminator of an envelope.
type MessageKind uint8

const (
	// MsgEmpty is a bare barrier marker.
	MsgEmpty MessageKind = iota
	MsgSync
	MsgTravelTimes
)

// Envelope wraps every message crossing a process boundary. Exactly the
// payload field matching Kind is set.
type Envelope struct {
	Version     uint16
	Kind        MessageKind
	Sync        *WireSyncMessage
	TravelTimes *WireTravelTimesMessage
}

// Wire records use string names instead of interned ids so payloads stay
// meaningful across processes with independently built id tables.

type WireSyncMessage struct {
	Time        int
	From        int
	To          int
	Vehicles    []WireVehicle
	StorageCaps []WireStorageCap
}

type WireStorageCap struct {
	Link     string
	FromPart int
	Released float64
}

type WireTravelTimesMessage struct {
	From        int
	TravelTimes map[string]int
}

type WireActivity struct {
	Type        string
	Link        string
	EndTime     int
	MaxDuration int
}

type WireRoute struct {
	Kind         int
	StartLink    string
	EndLink      string
	Distance     float64
	TravelTime   int
	Vehicle      string
	HasVehicle   bool
	Links        []string
	TransitLine  string
	TransitRoute string
	AccessStop   string
	EgressStop   string
}

type WireLeg struct {
	Mode          string
	DepartureTime int
	TravelTime    int
	Route         *WireRoute
}

type WirePlanElement struct {
	Act *WireActivity
	Leg *WireLeg
}

type WirePerson struct {
	ID       string
	Elements []WirePlanElement
	Cursor   int
}

type WireVehicleType struct {
	ID       string
	MaxV     float64
	PCE      float64
	NetMode  string
	Capacity int
}

type WireVehicle struct {
	ID              string
	Type            string
	Driver          *WirePerson
	Passengers      []*WirePerson
	RouteIndex      int
	TeleportArrival int
}

// EncodeEnvelope serializes an envelope to the binary wire form.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	env.Version = WireVersion
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, errors.Wrap(err, "encoding envelope")
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope parses the binary wire form and checks version and one-of
// consistency. A malformed payload is a protocol error and fatal to the run.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return Envelope{}, errors.Wrap(err, "decoding envelope")
	}
	if env.Version != WireVersion {
		return Envelope{}, errors.Errorf("unsupported wire version %d, want %d", env.Version, WireVersion)
	}
	switch env.Kind {
	case MsgEmpty:
		if env.Sync != nil || env.TravelTimes != nil {
			return Envelope{}, errors.New("empty envelope carries a payload")
		}
	case MsgSync:
		if env.Sync == nil {
			return Envelope{}, errors.New("sync envelope without payload")
		}
	case MsgTravelTimes:
		if env.TravelTimes == nil {
			return Envelope{}, errors.New("travel times envelope without payload")
		}
	default:
		return Envelope{}, errors.Errorf("unknown message kind %d", env.Kind)
	}
	return env, nil
}

// ToWireSyncMessage converts an in-memory sync message to its wire form.
func ToWireSyncMessage(m SyncMessage) *WireSyncMessage {
	w := &WireSyncMessage{Time: m.Time, From: m.From, To: m.To}
	for _, veh := range m.Vehicles {
		w.Vehicles = append(w.Vehicles, toWireVehicle(veh))
	}
	for _, u := range m.StorageCaps {
		w.StorageCaps = append(w.StorageCaps, WireStorageCap{
			Link:     IDs().LinkName(u.Link),
			FromPart: u.FromPart,
			Released: u.Released,
		})
	}
	return w
}

// FromWireSyncMessage interns the wire names and rebuilds the in-memory
// message. Vehicles get their types from the garage.
func FromWireSyncMessage(w *WireSyncMessage, garage *Garage) SyncMessage {
	m := SyncMessage{Time: w.Time, From: w.From, To: w.To}
	for _, wv := range w.Vehicles {
		m.Vehicles = append(m.Vehicles, fromWireVehicle(wv, garage))
	}
	for _, u := range w.StorageCaps {
		m.StorageCaps = append(m.StorageCaps, StorageUpdate{
			Link:     InternLink(u.Link),
			FromPart: u.FromPart,
			Released: u.Released,
		})
	}
	return m
}

func toWireVehicle(v *Vehicle) WireVehicle {
	w := WireVehicle{
		ID:              IDs().VehicleName(v.ID),
		Type:            v.Type.ID,
		RouteIndex:      v.RouteIndex,
		TeleportArrival: v.TeleportArrival,
	}
	if v.Driver != nil {
		driver := toWirePerson(v.Driver)
		w.Driver = &driver
	}
	for _, p := range v.Passengers {
		passenger := toWirePerson(p)
		w.Passengers = append(w.Passengers, &passenger)
	}
	return w
}

func fromWireVehicle(w WireVehicle, garage *Garage) *Vehicle {
	t, ok := garage.Type(w.Type)
	if !ok {
		t = &VehicleType{ID: w.Type, MaxV: 1e9, PCE: 1.0}
	}
	v := &Vehicle{
		ID:              InternVehicle(w.ID),
		Type:            t,
		RouteIndex:      w.RouteIndex,
		TeleportArrival: w.TeleportArrival,
	}
	if w.Driver != nil {
		v.Driver = fromWirePerson(*w.Driver)
	}
	for _, p := range w.Passengers {
		v.Passengers = append(v.Passengers, fromWirePerson(*p))
	}
	return v
}

func toWirePerson(a *Agent) WirePerson {
	w := WirePerson{ID: IDs().PersonName(a.ID), Cursor: a.Plan.cursor}
	for _, el := range a.Plan.Elements {
		w.Elements = append(w.Elements, toWirePlanElement(el))
	}
	return w
}

func fromWirePerson(w WirePerson) *Agent {
	elements := make([]PlanElement, 0, len(w.Elements))
	for _, el := range w.Elements {
		elements = append(elements, fromWirePlanElement(el))
	}
	return &Agent{
		ID:   InternPerson(w.ID),
		Plan: &Plan{Elements: elements, cursor: w.Cursor},
	}
}

// LegToWire and LegFromWire expose the leg wire conversion to transports
// outside this package, as do their activity counterparts.
func LegToWire(l *Leg) *WireLeg {
	return toWirePlanElement(PlanElement{Leg: l}).Leg
}

func LegFromWire(w *WireLeg) *Leg {
	return fromWirePlanElement(WirePlanElement{Leg: w}).Leg
}

func ActivityToWire(a *Activity) *WireActivity {
	return toWirePlanElement(PlanElement{Act: a}).Act
}

func ActivityFromWire(w *WireActivity) *Activity {
	return fromWirePlanElement(WirePlanElement{Act: w}).Act
}

func toWirePlanElement(el PlanElement) WirePlanElement {
	var w WirePlanElement
	if el.Act != nil {
		w.Act = &WireActivity{
			Type:        el.Act.Type,
			Link:        IDs().LinkName(el.Act.Link),
			EndTime:     el.Act.EndTime,
			MaxDuration: el.Act.MaxDuration,
		}
	}
	if el.Leg != nil {
		w.Leg = &WireLeg{
			Mode:          IDs().ModeName(el.Leg.Mode),
			DepartureTime: el.Leg.DepartureTime,
			TravelTime:    el.Leg.TravelTime,
			Route:         toWireRoute(el.Leg.Route),
		}
	}
	return w
}

func fromWirePlanElement(w WirePlanElement) PlanElement {
	var el PlanElement
	if w.Act != nil {
		el.Act = &Activity{
			Type:        w.Act.Type,
			Link:        InternLink(w.Act.Link),
			EndTime:     w.Act.EndTime,
			MaxDuration: w.Act.MaxDuration,
		}
	}
	if w.Leg != nil {
		el.Leg = &Leg{
			Mode:          InternMode(w.Leg.Mode),
			DepartureTime: w.Leg.DepartureTime,
			TravelTime:    w.Leg.TravelTime,
			Route:         fromWireRoute(w.Leg.Route),
		}
	}
	return el
}

func toWireRoute(r *Route) *WireRoute {
	if r == nil {
		return nil
	}
	w := &WireRoute{
		Kind:         int(r.Kind),
		StartLink:    IDs().LinkName(r.StartLink),
		EndLink:      IDs().LinkName(r.EndLink),
		Distance:     r.Distance,
		TravelTime:   r.TravelTime,
		HasVehicle:   r.HasVehicle,
		TransitLine:  r.TransitLine,
		TransitRoute: r.TransitRoute,
		AccessStop:   r.AccessStop,
		EgressStop:   r.EgressStop,
	}
	if r.HasVehicle {
		w.Vehicle = IDs().VehicleName(r.Vehicle)
	}
	for _, l := range r.Links {
		w.Links = append(w.Links, IDs().LinkName(l))
	}
	return w
}

func fromWireRoute(w *WireRoute) *Route {
	if w == nil {
		return nil
	}
	r := &Route{
		Kind:         RouteKind(w.Kind),
		StartLink:    InternLink(w.StartLink),
		EndLink:      InternLink(w.EndLink),
		Distance:     w.Distance,
		TravelTime:   w.TravelTime,
		HasVehicle:   w.HasVehicle,
		TransitLine:  w.TransitLine,
		TransitRoute: w.TransitRoute,
		AccessStop:   w.AccessStop,
		EgressStop:   w.EgressStop,
	}
	if w.HasVehicle {
		r.Vehicle = InternVehicle(w.Vehicle)
	}
	for _, l := range w.Links {
		r.Links = append(r.Links, InternLink(l))
	}
	return r
}
