package sim

import (
	"encoding/gob"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WireNode and WireLink are the network records of the scenario container.
type WireNode struct {
	ID string
}

type WireLink struct {
	ID        string
	From      string
	To        string
	Length    float64
	FreeSpeed float64
	Capacity  float64
	PermLanes float64
}

// WireVehicleDecl declares a concrete vehicle of a type.
type WireVehicleDecl struct {
	ID   string
	Type string
}

// WireScenario is the binary scenario container produced by the external
// conversion step: network, vehicle fleet and population in one file.
type WireScenario struct {
	Version      uint16
	Nodes        []WireNode
	Links        []WireLink
	VehicleTypes []WireVehicleType
	Vehicles     []WireVehicleDecl
	Persons      []WirePerson
}

// Scenario is the immutable global input of a run. It is owned by the builder
// and may be discarded once the partitions are constructed.
type Scenario struct {
	Network      *Network
	Population   *Population
	VehicleTypes []*VehicleType
	Vehicles     []WireVehicleDecl
}

// LoadScenario reads the binary container, interns all identifiers and
// assembles the global scenario. Plans are validated against the network; any
// reference to an unknown link aborts the load.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening scenario")
	}
	defer f.Close()

	var ws WireScenario
	if err := gob.NewDecoder(f).Decode(&ws); err != nil {
		return nil, errors.Wrap(err, "decoding scenario")
	}
	if ws.Version != WireVersion {
		return nil, errors.Errorf("unsupported scenario version %d, want %d", ws.Version, WireVersion)
	}
	return AssembleScenario(&ws)
}

// AssembleScenario builds the in-memory scenario from its wire form.
func AssembleScenario(ws *WireScenario) (*Scenario, error) {
	net := NewNetwork()
	for _, wn := range ws.Nodes {
		net.AddNode(&Node{ID: InternNode(wn.ID)})
	}
	for _, wl := range ws.Links {
		from, ok := IDs().LookupNodeID(wl.From)
		if !ok {
			return nil, errors.Errorf("link %s references unknown node %s", wl.ID, wl.From)
		}
		to, ok := IDs().LookupNodeID(wl.To)
		if !ok {
			return nil, errors.Errorf("link %s references unknown node %s", wl.ID, wl.To)
		}
		if wl.Length <= 0 || wl.FreeSpeed <= 0 {
			return nil, errors.Errorf("link %s must have positive length and free speed", wl.ID)
		}
		net.AddLink(&Link{
			ID:        InternLink(wl.ID),
			From:      from,
			To:        to,
			Length:    wl.Length,
			FreeSpeed: wl.FreeSpeed,
			Capacity:  wl.Capacity,
			PermLanes: wl.PermLanes,
		})
	}

	types := make([]*VehicleType, 0, len(ws.VehicleTypes))
	byName := make(map[string]bool, len(ws.VehicleTypes))
	for _, wt := range ws.VehicleTypes {
		types = append(types, &VehicleType{
			ID:       wt.ID,
			MaxV:     wt.MaxV,
			PCE:      wt.PCE,
			NetMode:  InternMode(wt.NetMode),
			Capacity: wt.Capacity,
		})
		byName[wt.ID] = true
	}
	declared := make(map[string]bool, len(ws.Vehicles))
	for _, wv := range ws.Vehicles {
		if !byName[wv.Type] {
			return nil, errors.Errorf("vehicle %s has unknown type %q", wv.ID, wv.Type)
		}
		InternVehicle(wv.ID)
		declared[wv.ID] = true
	}

	pop := NewPopulation()
	for _, wp := range ws.Persons {
		for i, el := range wp.Elements {
			if el.Leg == nil || el.Leg.Route == nil || el.Leg.Route.Kind != int(NetworkRoute) {
				continue
			}
			route := el.Leg.Route
			if !route.HasVehicle {
				return nil, errors.Errorf("person %s: network leg %d has no vehicle", wp.ID, i)
			}
			if !declared[route.Vehicle] {
				return nil, errors.Errorf("person %s: leg %d rides undeclared vehicle %q", wp.ID, i, route.Vehicle)
			}
		}
		agent := fromWirePerson(wp)
		if err := agent.Validate(net); err != nil {
			return nil, err
		}
		pop.Add(agent)
	}

	return &Scenario{
		Network:      net,
		Population:   pop,
		VehicleTypes: types,
		Vehicles:     ws.Vehicles,
	}, nil
}

// SaveScenario writes the binary container. Used by conversion tooling and
// round-trip tests.
func SaveScenario(path string, ws *WireScenario) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating scenario")
	}
	defer f.Close()
	ws.Version = WireVersion
	if err := gob.NewEncoder(f).Encode(ws); err != nil {
		return errors.Wrap(err, "encoding scenario")
	}
	return nil
}

// LoadPartitionAssignment reads an externally computed node-to-partition map
// (YAML, node name to partition index).
func LoadPartitionAssignment(path string, numParts int, net *Network) (*PartitionAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading partition assignment")
	}
	var raw map[string]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing partition assignment")
	}
	parts := make(map[NodeID]int, len(raw))
	for name, part := range raw {
		id, ok := IDs().LookupNodeID(name)
		if !ok {
			return nil, errors.Errorf("partition assignment references unknown node %q", name)
		}
		parts[id] = part
	}
	return &PartitionAssignment{NumParts: numParts, NodeToPart: parts}, nil
}

// NewGarage builds a partition's garage from the scenario fleet. Every
// partition knows all vehicle types; concrete vehicles start parked in every
// garage and are claimed by whichever partition unparks them first, which is
// well defined because a vehicle's owner departs in exactly one partition.
func (s *Scenario) NewGarage() (*Garage, error) {
	g := NewGarage()
	for _, t := range s.VehicleTypes {
		g.AddType(t)
	}
	for _, decl := range s.Vehicles {
		if err := g.RegisterVehicle(InternVehicle(decl.ID), decl.Type); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AgentsByPartition splits the population by the partition owning each
// agent's first activity link. Agents within a partition are ordered by id so
// downstream processing is deterministic.
func (s *Scenario) AgentsByPartition(numParts int) ([][]*Agent, error) {
	out := make([][]*Agent, numParts)
	for _, agent := range s.Population.Agents {
		act := agent.Plan.Elements[0].Act
		part := s.Network.Link(act.Link).Partition
		if part < 0 || part >= numParts {
			return nil, errors.Errorf("agent %s starts on link %s with invalid partition %d",
				IDs().PersonName(agent.ID), IDs().LinkName(act.Link), part)
		}
		out[part] = append(out[part], agent)
	}
	for _, agents := range out {
		sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	}
	return out, nil
}
