package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/queuesim/queuesim/sim"
)

// YAML input schema of the convert command. It mirrors the wire records but
// with snake_case keys and symbolic route kinds.

type yamlScenario struct {
	Nodes        []yamlNode        `yaml:"nodes"`
	Links        []yamlLink        `yaml:"links"`
	VehicleTypes []yamlVehicleType `yaml:"vehicle_types"`
	Vehicles     []yamlVehicle     `yaml:"vehicles"`
	Persons      []yamlPerson      `yaml:"persons"`
}

type yamlNode struct {
	ID string `yaml:"id"`
}

type yamlLink struct {
	ID        string  `yaml:"id"`
	From      string  `yaml:"from"`
	To        string  `yaml:"to"`
	Length    float64 `yaml:"length"`
	FreeSpeed float64 `yaml:"free_speed"`
	Capacity  float64 `yaml:"capacity"`
	PermLanes float64 `yaml:"perm_lanes"`
}

type yamlVehicleType struct {
	ID       string  `yaml:"id"`
	MaxV     float64 `yaml:"max_v"`
	PCE      float64 `yaml:"pce"`
	NetMode  string  `yaml:"net_mode"`
	Capacity int     `yaml:"capacity"`
}

type yamlVehicle struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
}

type yamlPerson struct {
	ID   string            `yaml:"id"`
	Plan []yamlPlanElement `yaml:"plan"`
}

type yamlPlanElement struct {
	Activity *yamlActivity `yaml:"activity"`
	Leg      *yamlLeg      `yaml:"leg"`
}

type yamlActivity struct {
	Type        string `yaml:"type"`
	Link        string `yaml:"link"`
	EndTime     *int   `yaml:"end_time"`
	MaxDuration *int   `yaml:"max_duration"`
}

type yamlLeg struct {
	Mode          string    `yaml:"mode"`
	DepartureTime *int      `yaml:"departure_time"`
	TravelTime    *int      `yaml:"travel_time"`
	Route         yamlRoute `yaml:"route"`
}

type yamlRoute struct {
	Kind       string   `yaml:"kind"` // generic, network, transit
	StartLink  string   `yaml:"start_link"`
	EndLink    string   `yaml:"end_link"`
	Distance   float64  `yaml:"distance"`
	TravelTime int      `yaml:"travel_time"`
	Vehicle    string   `yaml:"vehicle"`
	Links      []string `yaml:"links"`

	TransitLine  string `yaml:"transit_line"`
	TransitRoute string `yaml:"transit_route"`
	AccessStop   string `yaml:"access_stop"`
	EgressStop   string `yaml:"egress_stop"`
}

var routeKinds = map[string]int{
	"generic": int(sim.GenericRoute),
	"network": int(sim.NetworkRoute),
	"transit": int(sim.TransitRoute),
}

var (
	convertIn  string
	convertOut string
)

// convertCmd turns a YAML scenario description into the binary container the
// run command consumes.
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a YAML scenario into the binary scenario container",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(convertIn)
		if err != nil {
			logrus.Fatalf("Unable to read scenario: %v", err)
		}
		var ys yamlScenario
		if err := yaml.Unmarshal(data, &ys); err != nil {
			logrus.Fatalf("Unable to parse scenario: %v", err)
		}

		ws := toWireScenario(&ys)
		// Catch broken references before anything is written.
		sim.ResetIDs()
		if _, err := sim.AssembleScenario(ws); err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}
		if err := sim.SaveScenario(convertOut, ws); err != nil {
			logrus.Fatalf("Unable to write container: %v", err)
		}
		logrus.Infof("Wrote %s: %d nodes, %d links, %d persons.",
			convertOut, len(ws.Nodes), len(ws.Links), len(ws.Persons))
	},
}

func toWireScenario(ys *yamlScenario) *sim.WireScenario {
	ws := &sim.WireScenario{}
	for _, n := range ys.Nodes {
		ws.Nodes = append(ws.Nodes, sim.WireNode{ID: n.ID})
	}
	for _, l := range ys.Links {
		ws.Links = append(ws.Links, sim.WireLink{
			ID: l.ID, From: l.From, To: l.To,
			Length: l.Length, FreeSpeed: l.FreeSpeed,
			Capacity: l.Capacity, PermLanes: l.PermLanes,
		})
	}
	for _, t := range ys.VehicleTypes {
		ws.VehicleTypes = append(ws.VehicleTypes, sim.WireVehicleType{
			ID: t.ID, MaxV: t.MaxV, PCE: t.PCE, NetMode: t.NetMode, Capacity: t.Capacity,
		})
	}
	for _, v := range ys.Vehicles {
		ws.Vehicles = append(ws.Vehicles, sim.WireVehicleDecl{ID: v.ID, Type: v.Type})
	}
	for _, p := range ys.Persons {
		wp := sim.WirePerson{ID: p.ID}
		for _, el := range p.Plan {
			wp.Elements = append(wp.Elements, toWirePlanElement(p.ID, el))
		}
		ws.Persons = append(ws.Persons, wp)
	}
	return ws
}

func toWirePlanElement(person string, el yamlPlanElement) sim.WirePlanElement {
	var out sim.WirePlanElement
	if el.Activity != nil {
		out.Act = &sim.WireActivity{
			Type:        el.Activity.Type,
			Link:        el.Activity.Link,
			EndTime:     orUnset(el.Activity.EndTime),
			MaxDuration: orUnset(el.Activity.MaxDuration),
		}
	}
	if el.Leg != nil {
		kind, ok := routeKinds[el.Leg.Route.Kind]
		if !ok {
			logrus.Fatalf("Person %s: unknown route kind %q", person, el.Leg.Route.Kind)
		}
		out.Leg = &sim.WireLeg{
			Mode:          el.Leg.Mode,
			DepartureTime: orUnset(el.Leg.DepartureTime),
			TravelTime:    orUnset(el.Leg.TravelTime),
			Route: &sim.WireRoute{
				Kind:         kind,
				StartLink:    el.Leg.Route.StartLink,
				EndLink:      el.Leg.Route.EndLink,
				Distance:     el.Leg.Route.Distance,
				TravelTime:   el.Leg.Route.TravelTime,
				Vehicle:      el.Leg.Route.Vehicle,
				HasVehicle:   el.Leg.Route.Vehicle != "",
				Links:        el.Leg.Route.Links,
				TransitLine:  el.Leg.Route.TransitLine,
				TransitRoute: el.Leg.Route.TransitRoute,
				AccessStop:   el.Leg.Route.AccessStop,
				EgressStop:   el.Leg.Route.EgressStop,
			},
		}
	}
	return out
}

// orUnset maps an absent optional to the in-memory "unset" sentinel.
func orUnset(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func init() {
	convertCmd.Flags().StringVar(&convertIn, "in", "", "Path to the YAML scenario description")
	convertCmd.Flags().StringVar(&convertOut, "out", "scenario.bin", "Path of the binary container to write")

	rootCmd.AddCommand(convertCmd)
}
