package sim

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TravelTimesPublisher receives the periodic aggregated travel-times
// broadcast for downstream replanning consumers.
type TravelTimesPublisher interface {
	PublishTravelTimes(msg TravelTimesMessage)
}

type pendingRoute struct {
	requestID string
	agent     *Agent
}

// Simulation is one partition's runtime. It owns the partition's mutable
// state exclusively and advances it tick by tick; everything crossing the
// partition border goes through the sync broker, everything slow through the
// routing client.
type Simulation struct {
	cfg       *Config
	partition int

	net      *SimNetworkPartition
	activity *ActivityEngine
	legs     *LegEngine
	events   *EventsManager
	broker   SyncBroker

	routing  RoutingClient
	fallback string
	pending  map[PersonID]pendingRoute

	ttColl *TravelTimeCollector
	ttPub  TravelTimesPublisher

	doneAgents int
}

// NewSimulation wires one partition runtime and seeds its agents. The initial
// activities publish no activity-start events, matching a cold start.
func NewSimulation(cfg *Config, net *SimNetworkPartition, garage *Garage,
	events *EventsManager, broker SyncBroker, routing RoutingClient,
	ttPub TravelTimesPublisher, linkPart []int, agents []*Agent) *Simulation {

	s := &Simulation{
		cfg:       cfg,
		partition: net.Partition(),
		net:       net,
		activity:  NewActivityEngine(events),
		legs:      NewLegEngine(net, garage, events, broker, linkPart),
		events:    events,
		broker:    broker,
		routing:   routing,
		fallback:  cfg.Services.Routing.Fallback,
		pending:   make(map[PersonID]pendingRoute),
		ttColl:    NewTravelTimeCollector(),
		ttPub:     ttPub,
	}
	events.Subscribe(s.ttColl)

	now := cfg.Simulation.StartTime
	for _, agent := range agents {
		s.activity.AddAgent(agent, now, false)
		s.maybeRequestRoute(agent, now)
	}
	return s
}

// Run executes the tick loop from start to end time. A returned error is
// fatal to the whole run; the controller cancels the sibling partitions.
func (s *Simulation) Run(ctx context.Context) error {
	// flush subscribers even on a fatal tick, so the partial event log
	// survives for diagnosis
	defer s.events.Finish()

	start, end := s.cfg.Simulation.StartTime, s.cfg.Simulation.EndTime
	standalone := len(s.net.Neighbors()) == 0

	for now := start; now < end; now++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if now%3600 == 0 {
			logrus.Infof("[partition %d] simtime %02d:%02d:%02d: %d at activities, %d teleporting, %d on network, %d done",
				s.partition, now/3600, now/60%60, now%60,
				s.activity.AgentCount(), s.legs.TeleportingVehCount(), s.net.VehOnNet(), s.doneAgents)
		}

		if err := s.doTick(now); err != nil {
			return err
		}

		if s.ttPub != nil && now > start && (now-start)%s.cfg.Simulation.SyncPeriod == 0 {
			s.ttPub.PublishTravelTimes(TravelTimesMessage{From: s.partition, TravelTimes: s.ttColl.TravelTimes()})
			s.ttColl.Flush()
		}

		// A partition without neighbors owes nobody a barrier and may stop
		// once it has nothing left to do.
		if standalone && s.idle() {
			logrus.Infof("[partition %d] no active agents left at simtime %d", s.partition, now)
			break
		}
	}

	if s.ttPub != nil {
		s.ttPub.PublishTravelTimes(TravelTimesMessage{From: s.partition, TravelTimes: s.ttColl.TravelTimes()})
	}
	return nil
}

func (s *Simulation) doTick(now int) error {
	if s.routing != nil {
		if err := s.pollRoutingResponses(); err != nil {
			return err
		}
	}

	if err := s.processWakeups(now); err != nil {
		return err
	}

	for _, veh := range s.legs.TeleportArrivals(now) {
		s.finishLeg(veh, now, false)
	}

	s.net.MoveNodes(now, s.events)
	res := s.net.MoveLinks(now, s.events)

	for _, veh := range res.VehiclesEndLeg {
		s.finishLeg(veh, now, true)
	}
	for _, veh := range res.VehiclesExitPartition {
		link, _ := veh.CurrLink()
		out, ok := s.net.SimLink(link).(*SplitOutLink)
		if !ok {
			return errors.Errorf("partition %d: vehicle %s exits over non-boundary link %s",
				s.partition, IDs().VehicleName(veh.ID), IDs().LinkName(link))
		}
		s.broker.AddVehicle(out.ToPart, veh)
	}
	for _, u := range res.StorageUpdates {
		s.broker.AddStorageUpdate(u.FromPart, u)
	}

	msgs, err := s.broker.SendRecv(now)
	if err != nil {
		return errors.Wrapf(err, "partition %d: tick %d sync", s.partition, now)
	}
	for _, msg := range msgs {
		if msg.Time != now {
			return errors.Errorf("partition %d: applying message for tick %d during tick %d",
				s.partition, msg.Time, now)
		}
		s.net.ApplyStorageUpdates(msg.StorageCaps)
		for _, veh := range msg.Vehicles {
			s.legs.ReceiveCrossing(veh, now)
		}
	}
	return nil
}

func (s *Simulation) processWakeups(now int) error {
	for _, agent := range s.activity.Wakeups(now) {
		if p, ok := s.pending[agent.ID]; ok {
			switch s.fallback {
			case "wait":
				s.activity.Postpone(agent, now+1)
				continue
			case "abort":
				return errors.Errorf("partition %d: agent %s departs at %d with routing request %s unanswered",
					s.partition, IDs().PersonName(agent.ID), now, p.requestID)
			default: // keep-route: depart on the stale route
				delete(s.pending, agent.ID)
			}
		}

		act := agent.CurrAct()
		s.events.Publish(Event{
			Time:    now,
			Kind:    EventActEnd,
			Person:  agent.ID,
			Link:    act.Link,
			ActType: act.Type,
		})
		agent.AdvancePlan()
		if err := s.legs.Depart(agent, now); err != nil {
			return err
		}
	}
	return nil
}

// finishLeg winds down a completed leg and returns its occupants to their
// activities.
func (s *Simulation) finishLeg(veh *Vehicle, now int, network bool) {
	for _, agent := range s.legs.EndLeg(veh, now, network) {
		leg := agent.CurrLeg()
		s.events.Publish(Event{
			Time:   now,
			Kind:   EventArrival,
			Person: agent.ID,
			Link:   leg.Route.EndLink,
			Mode:   leg.Mode,
		})
		agent.AdvancePlan()
		if agent.PlanDone() {
			act := agent.CurrAct()
			s.events.Publish(Event{
				Time:    now,
				Kind:    EventActStart,
				Person:  agent.ID,
				Link:    act.Link,
				ActType: act.Type,
			})
			s.doneAgents++
			continue
		}
		s.activity.AddAgent(agent, now, true)
		s.maybeRequestRoute(agent, now)
	}
}

// maybeRequestRoute submits a refresh of the agent's next leg to the external
// routing service. A full adapter queue is backpressure, not an error: the
// agent keeps its current route.
func (s *Simulation) maybeRequestRoute(agent *Agent, now int) {
	if s.routing == nil {
		return
	}
	nextLeg, ok := agent.NextLeg()
	if !ok {
		return
	}
	req := RoutingRequest{
		ID:            uuid.NewString(),
		Partition:     s.partition,
		Person:        agent.ID,
		FromLink:      agent.CurrAct().Link,
		ToLink:        nextLeg.Route.EndLink,
		Mode:          nextLeg.Mode,
		DepartureTime: agent.WakeupTime(now),
	}
	if err := s.routing.Submit(req); err != nil {
		logrus.Warnf("[partition %d] routing request for agent %s not submitted: %v",
			s.partition, IDs().PersonName(agent.ID), err)
		return
	}
	s.pending[agent.ID] = pendingRoute{requestID: req.ID, agent: agent}
}

func (s *Simulation) pollRoutingResponses() error {
	for _, resp := range s.routing.Poll(s.partition) {
		p, ok := s.pending[resp.Person]
		if !ok || p.requestID != resp.ID {
			// response to a request whose agent already departed
			continue
		}
		delete(s.pending, resp.Person)

		if resp.Failed {
			if s.fallback == "abort" {
				return errors.Errorf("partition %d: routing request %s for agent %s failed: %s",
					s.partition, resp.ID, IDs().PersonName(resp.Person), resp.Error)
			}
			logrus.Warnf("[partition %d] routing request for agent %s failed, keeping current route: %s",
				s.partition, IDs().PersonName(resp.Person), resp.Error)
			continue
		}
		if err := p.agent.ReplaceNextTrip(resp.Legs, resp.Activities); err != nil {
			logrus.Warnf("[partition %d] dropping routing response: %v", s.partition, err)
		}
	}
	return nil
}

func (s *Simulation) idle() bool {
	return s.activity.AgentCount() == 0 &&
		s.legs.TeleportingVehCount() == 0 &&
		s.net.VehOnNet() == 0 &&
		len(s.pending) == 0
}

// DoneAgents reports how many agents completed their plans.
func (s *Simulation) DoneAgents() int { return s.doneAgents }
