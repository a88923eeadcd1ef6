package sim

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// CSVEventWriter streams the event log of one partition to a CSV file for
// scoring and analysis tooling.
type CSVEventWriter struct {
	file   *os.File
	writer *csv.Writer
}

func NewCSVEventWriter(path string) (*CSVEventWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "type", "person", "vehicle", "link", "mode", "act_type"}); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVEventWriter{file: f, writer: w}, nil
}

// Which columns carry meaning per event kind; the rest stay empty instead of
// rendering the zero id's name.
var (
	eventHasPerson = map[EventKind]bool{
		EventActStart: true, EventActEnd: true, EventDeparture: true, EventArrival: true,
		EventPersonEntersVehicle: true, EventPersonLeavesVehicle: true,
		EventVehicleEntersTraffic: true, EventVehicleLeavesTraffic: true,
		EventTravelled: true, EventPassengerDroppedOff: true,
	}
	eventHasVehicle = map[EventKind]bool{
		EventPersonEntersVehicle: true, EventPersonLeavesVehicle: true,
		EventVehicleEntersTraffic: true, EventVehicleLeavesTraffic: true,
		EventLinkEnter: true, EventLinkLeave: true, EventPassengerDroppedOff: true,
	}
	eventHasLink = map[EventKind]bool{
		EventActStart: true, EventActEnd: true, EventDeparture: true, EventArrival: true,
		EventVehicleEntersTraffic: true, EventVehicleLeavesTraffic: true,
		EventLinkEnter: true, EventLinkLeave: true, EventPassengerDroppedOff: true,
	}
	eventHasMode = map[EventKind]bool{
		EventDeparture: true, EventArrival: true,
		EventVehicleEntersTraffic: true, EventVehicleLeavesTraffic: true,
		EventTravelled: true,
	}
)

func (w *CSVEventWriter) ReceiveEvent(ev Event) {
	var person, vehicle, link, mode string
	if eventHasPerson[ev.Kind] {
		person = IDs().PersonName(ev.Person)
	}
	if eventHasVehicle[ev.Kind] {
		vehicle = IDs().VehicleName(ev.Vehicle)
	}
	if eventHasLink[ev.Kind] {
		link = IDs().LinkName(ev.Link)
	}
	if eventHasMode[ev.Kind] {
		mode = IDs().ModeName(ev.Mode)
	}
	record := []string{
		strconv.Itoa(ev.Time),
		ev.Kind.String(),
		person,
		vehicle,
		link,
		mode,
		ev.ActType,
	}
	if err := w.writer.Write(record); err != nil {
		logrus.Fatalf("Error writing event to %s: %v", w.file.Name(), err)
	}
}

func (w *CSVEventWriter) Finish() {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		logrus.Fatalf("Error flushing events file %s: %v", w.file.Name(), err)
	}
	if err := w.file.Close(); err != nil {
		logrus.Fatalf("Error closing events file %s: %v", w.file.Name(), err)
	}
}
