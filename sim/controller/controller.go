// Package controller assembles a run: it loads the scenario, builds the
// partitions, wires the synchronization channel and the external service
// adapter, and drives all partition runtimes to completion in lockstep.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/queuesim/queuesim/sim"
	"github.com/queuesim/queuesim/sim/comm"
	"github.com/queuesim/queuesim/sim/services"
)

// Result summarizes a finished run.
type Result struct {
	DoneAgents  int
	TravelTimes map[sim.LinkID]int
}

// Run loads everything from the config and executes the simulation.
func Run(ctx context.Context, cfg *sim.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scenario, err := sim.LoadScenario(cfg.Scenario.Path)
	if err != nil {
		return nil, err
	}

	var assignment *sim.PartitionAssignment
	switch cfg.Partitioning.Method {
	case "none":
		if cfg.Partitioning.NumParts != 1 {
			return nil, errors.Errorf("partitioning method \"none\" runs a single partition, got num_parts %d",
				cfg.Partitioning.NumParts)
		}
		assignment = sim.NoPartitioning(scenario.Network)
	case "file":
		assignment, err = sim.LoadPartitionAssignment(cfg.Partitioning.Path, cfg.Partitioning.NumParts, scenario.Network)
		if err != nil {
			return nil, err
		}
	}

	return RunScenario(ctx, cfg, scenario, assignment)
}

// RunScenario executes an already assembled scenario. Tests use it to run
// in-memory scenarios without container files.
func RunScenario(ctx context.Context, cfg *sim.Config, scenario *sim.Scenario,
	assignment *sim.PartitionAssignment) (*Result, error) {

	if err := assignment.Apply(scenario.Network); err != nil {
		return nil, err
	}
	k := assignment.NumParts

	linkPart := make([]int, scenario.Network.LinkCount())
	for _, link := range scenario.Network.Links() {
		linkPart[link.ID] = link.Partition
	}

	agentsByPart, err := scenario.AgentsByPartition(k)
	if err != nil {
		return nil, err
	}

	adapter, err := buildAdapter(ctx, cfg, scenario, k)
	if err != nil {
		return nil, err
	}

	comms := comm.NewChannelCommunicators(k)
	ttAgg := comm.NewTravelTimesAggregator()

	sims := make([]*sim.Simulation, k)
	for i := 0; i < k; i++ {
		events := sim.NewEventsManager()
		if cfg.Output.Events {
			if err := os.MkdirAll(cfg.Output.Directory, 0o755); err != nil {
				return nil, errors.Wrap(err, "creating output directory")
			}
			writer, err := sim.NewCSVEventWriter(filepath.Join(cfg.Output.Directory, fmt.Sprintf("events_%d.csv", i)))
			if err != nil {
				return nil, errors.Wrap(err, "creating events file")
			}
			events.Subscribe(writer)
		}

		garage, err := scenario.NewGarage()
		if err != nil {
			return nil, err
		}

		net := sim.BuildSimNetworkPartition(scenario.Network, i, cfg.LinkParams())

		// Teleported legs may hand a vehicle to any partition, not just the
		// ones sharing boundary links, so every rank barriers with every
		// other rank.
		var neighbors []int
		for r := 0; r < k; r++ {
			if r != i {
				neighbors = append(neighbors, r)
			}
		}
		broker := comm.NewNetMessageBroker(comms[i], neighbors)

		var routing sim.RoutingClient
		if adapter != nil {
			routing = adapter
		}
		sims[i] = sim.NewSimulation(cfg, net, garage, events, broker, routing, ttAgg, linkPart, agentsByPart[i])
	}

	logrus.Infof("starting run: %d partitions, %d agents, simtime %d..%d",
		k, len(scenario.Population.Agents), cfg.Simulation.StartTime, cfg.Simulation.EndTime)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, k)
	var wg sync.WaitGroup
	for i, s := range sims {
		wg.Add(1)
		go func(rank int, s *sim.Simulation) {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				errCh <- errors.Wrapf(err, "partition %d", rank)
				cancel()
			}
		}(i, s)
	}
	wg.Wait()
	close(errCh)

	if adapter != nil {
		if err := adapter.Stop(); err != nil {
			logrus.Warnf("adapter shutdown: %v", err)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	res := &Result{TravelTimes: ttAgg.Merged()}
	for _, s := range sims {
		res.DoneAgents += s.DoneAgents()
	}
	logrus.Infof("run finished: %d agents completed their plans", res.DoneAgents)
	return res, nil
}

func buildAdapter(ctx context.Context, cfg *sim.Config, scenario *sim.Scenario, k int) (*services.Adapter, error) {
	r := cfg.Services.Routing
	var backend services.RouteBackend
	switch r.Mode {
	case "off":
		return nil, nil
	case "local":
		b, err := services.NewLocalBackend(scenario.Network)
		if err != nil {
			return nil, err
		}
		backend = b
	case "remote":
		remotes := make([]services.RouteBackend, 0, len(r.Endpoints))
		for _, endpoint := range r.Endpoints {
			b, err := services.DialRemoteBackend(endpoint)
			if err != nil {
				for _, open := range remotes {
					open.Close()
				}
				return nil, err
			}
			remotes = append(remotes, b)
		}
		if len(remotes) == 1 {
			backend = remotes[0]
		} else {
			backend = services.NewFanOutBackend(remotes...)
		}
	}

	adapter := services.NewAdapter(backend, k, r.QueueSize)
	adapter.Start(ctx, r.Workers)
	return adapter, nil
}
