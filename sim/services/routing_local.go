package services

import (
	"context"
	"sync"

	"github.com/LdDl/ch"
	"github.com/pkg/errors"

	"github.com/queuesim/queuesim/sim"
)

// LocalBackend answers routing requests in-process with a contraction
// hierarchies shortest path over the scenario network, weighted by free-flow
// travel time.
type LocalBackend struct {
	// ch queries mutate internal search state, so they are serialized.
	mu    sync.Mutex
	graph ch.Graph

	// linkByPair resolves a vertex pair of the shortest path back to the
	// cheapest link connecting it.
	linkByPair map[[2]int64]sim.LinkID
	net        *sim.Network
}

// NewLocalBackend builds and contracts the routing graph. The network must be
// fully assembled; contraction happens once, queries are cheap afterwards.
func NewLocalBackend(net *sim.Network) (*LocalBackend, error) {
	b := &LocalBackend{
		linkByPair: make(map[[2]int64]sim.LinkID, net.LinkCount()),
		net:        net,
	}
	for _, node := range net.Nodes() {
		if err := b.graph.CreateVertex(int64(node.ID)); err != nil {
			return nil, errors.Wrapf(err, "creating routing vertex for node %s", sim.IDs().NodeName(node.ID))
		}
	}
	for _, link := range net.Links() {
		pair := [2]int64{int64(link.From), int64(link.To)}
		cost := link.Length / link.FreeSpeed
		if existing, ok := b.linkByPair[pair]; ok {
			prev := net.Link(existing)
			if prev.Length/prev.FreeSpeed <= cost {
				continue
			}
		}
		b.linkByPair[pair] = link.ID
		if err := b.graph.AddEdge(pair[0], pair[1], cost); err != nil {
			return nil, errors.Wrapf(err, "adding routing edge for link %s", sim.IDs().LinkName(link.ID))
		}
	}
	b.graph.PrepareContractionHierarchies()
	return b, nil
}

// Route computes a network leg from the downstream node of the origin link to
// the upstream node of the destination link, bracketed by both links.
func (b *LocalBackend) Route(ctx context.Context, req sim.RoutingRequest) (sim.RoutingResponse, error) {
	if err := ctx.Err(); err != nil {
		return sim.RoutingResponse{}, err
	}

	from := b.net.Link(req.FromLink)
	to := b.net.Link(req.ToLink)

	links := []sim.LinkID{req.FromLink}
	if req.FromLink != req.ToLink {
		source, target := int64(from.To), int64(to.From)
		if source != target {
			b.mu.Lock()
			cost, vertices := b.graph.ShortestPath(source, target)
			b.mu.Unlock()
			if cost < 0 || len(vertices) == 0 {
				return sim.RoutingResponse{}, errors.Errorf("no path from link %s to link %s",
					sim.IDs().LinkName(req.FromLink), sim.IDs().LinkName(req.ToLink))
			}
			for i := 0; i+1 < len(vertices); i++ {
				link, ok := b.linkByPair[[2]int64{vertices[i], vertices[i+1]}]
				if !ok {
					return sim.RoutingResponse{}, errors.Errorf("path vertex pair %d->%d has no link",
						vertices[i], vertices[i+1])
				}
				links = append(links, link)
			}
		}
		links = append(links, req.ToLink)
	}

	distance, travelTime := 0.0, 0.0
	for _, id := range links {
		link := b.net.Link(id)
		distance += link.Length
		travelTime += link.Length / link.FreeSpeed
	}

	leg := &sim.Leg{
		Mode:          req.Mode,
		DepartureTime: req.DepartureTime,
		TravelTime:    int(travelTime),
		Route: &sim.Route{
			Kind:       sim.NetworkRoute,
			StartLink:  req.FromLink,
			EndLink:    req.ToLink,
			Distance:   distance,
			TravelTime: int(travelTime),
			Links:      links,
		},
	}
	return sim.RoutingResponse{ID: req.ID, Person: req.Person, Legs: []*sim.Leg{leg}}, nil
}

func (b *LocalBackend) Close() error { return nil }
