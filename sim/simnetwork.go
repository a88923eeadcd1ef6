package sim

import (
	"fmt"
	"sort"
)

// StorageUpdate reports storage released on a split-in link back to the
// upstream partition that mirrors it.
type StorageUpdate struct {
	Link     LinkID
	FromPart int
	Released float64
}

// SimNode holds the in-links a node arbitrates between.
type SimNode struct {
	ID      NodeID
	InLinks []LinkID
}

// MoveLinksResult carries everything a tick's link phase produced.
type MoveLinksResult struct {
	VehiclesExitPartition []*Vehicle
	VehiclesEndLeg        []*Vehicle
	StorageUpdates        []StorageUpdate
}

// SimNetworkPartition owns one partition's share of the network. All state is
// exclusive to the partition's worker; cross-partition effects flow through
// sync messages only.
type SimNetworkPartition struct {
	partition int
	nodes     map[NodeID]*SimNode
	links     map[LinkID]SimLink

	activeNodes map[NodeID]struct{}
	activeLinks map[LinkID]struct{}

	vehCounter int
}

// BuildSimNetworkPartition carves the partition's subgraph out of the global
// network: all nodes assigned to the partition, plus every link incident to
// them. Links crossing the partition border become split links.
func BuildSimNetworkPartition(global *Network, partition int, p LinkParams) *SimNetworkPartition {
	nodes := make(map[NodeID]*SimNode)
	links := make(map[LinkID]SimLink)

	for _, node := range global.Nodes() {
		if node.Partition != partition {
			continue
		}
		nodes[node.ID] = &SimNode{ID: node.ID, InLinks: append([]LinkID(nil), node.InLinks...)}
		for _, id := range node.InLinks {
			links[id] = buildSimLink(global, global.Link(id), partition, p)
		}
		for _, id := range node.OutLinks {
			if _, ok := links[id]; !ok {
				links[id] = buildSimLink(global, global.Link(id), partition, p)
			}
		}
	}

	return &SimNetworkPartition{
		partition:   partition,
		nodes:       nodes,
		links:       links,
		activeNodes: make(map[NodeID]struct{}),
		activeLinks: make(map[LinkID]struct{}),
	}
}

func buildSimLink(global *Network, link *Link, partition int, p LinkParams) SimLink {
	fromPart := global.Node(link.From).Partition
	toPart := global.Node(link.To).Partition

	switch {
	case fromPart == toPart:
		return NewLocalLink(link, p)
	case toPart == partition:
		return &SplitInLink{FromPart: fromPart, Local: NewLocalLink(link, p)}
	default:
		return NewSplitOutLink(link, p, toPart)
	}
}

func (n *SimNetworkPartition) Partition() int { return n.partition }

// Neighbors lists the partitions this one shares boundary links with.
func (n *SimNetworkPartition) Neighbors() []int {
	seen := make(map[int]struct{})
	for _, link := range n.links {
		switch l := link.(type) {
		case *SplitInLink:
			seen[l.FromPart] = struct{}{}
		case *SplitOutLink:
			seen[l.ToPart] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func (n *SimNetworkPartition) ActiveNodes() int { return len(n.activeNodes) }
func (n *SimNetworkPartition) ActiveLinks() int { return len(n.activeLinks) }
func (n *SimNetworkPartition) VehOnNet() int    { return n.vehCounter }

func (n *SimNetworkPartition) SimLink(id LinkID) SimLink { return n.links[id] }

// SendVehEnRoute places a vehicle onto its current link. routeBegin marks
// vehicles departing an activity: they enter the waiting list and publish no
// link-enter event. Vehicles received from other partitions enter the moving
// queue and publish link enter at the receiving side.
func (n *SimNetworkPartition) SendVehEnRoute(veh *Vehicle, routeBegin bool, now int, events *EventsManager) {
	linkID, ok := veh.CurrLink()
	if !ok {
		panic(fmt.Sprintf("partition %d: vehicle %s is en route but has no current link",
			n.partition, IDs().VehicleName(veh.ID)))
	}
	link, found := n.links[linkID]
	if !found {
		panic(fmt.Sprintf("partition %d: link %s not in local network for vehicle %s",
			n.partition, IDs().LinkName(linkID), IDs().VehicleName(veh.ID)))
	}

	if !routeBegin {
		events.Publish(Event{Time: now, Kind: EventLinkEnter, Link: linkID, Vehicle: veh.ID})
	}

	switch l := link.(type) {
	case *LocalLink:
		if routeBegin {
			l.PushWaiting(veh)
		} else {
			l.PushVehicle(veh, now)
		}
	case *SplitInLink:
		if routeBegin {
			l.Local.PushWaiting(veh)
		} else {
			l.Local.PushVehicle(veh, now)
		}
	case *SplitOutLink:
		panic(fmt.Sprintf("partition %d: cannot place vehicle onto split out link %s",
			n.partition, IDs().LinkName(linkID)))
	}

	n.vehCounter++
	n.activeLinks[linkID] = struct{}{}
}

// ApplyStorageUpdates books downstream-released storage onto the local split
// out link mirrors.
func (n *SimNetworkPartition) ApplyStorageUpdates(updates []StorageUpdate) {
	for _, u := range updates {
		out, ok := n.links[u.Link].(*SplitOutLink)
		if !ok {
			panic(fmt.Sprintf("partition %d: storage update for %s does not target a split out link",
				n.partition, IDs().LinkName(u.Link)))
		}
		out.ApplyStorageUpdate(u.Released)
	}
}

// sortedActiveLinks returns the active link set in ascending id order so the
// tick produces identical results regardless of map iteration order.
func (n *SimNetworkPartition) sortedActiveLinks() []LinkID {
	ids := make([]LinkID, 0, len(n.activeLinks))
	for id := range n.activeLinks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (n *SimNetworkPartition) sortedActiveNodes() []NodeID {
	ids := make([]NodeID, 0, len(n.activeNodes))
	for id := range n.activeNodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MoveLinks runs the per-link phase: fill outflow buffers, collect vehicles
// ending their leg, drain split out links into the exit list, and record
// storage released on split in links for upstream mirrors.
func (n *SimNetworkPartition) MoveLinks(now int, events *EventsManager) MoveLinksResult {
	var res MoveLinksResult
	var deactivate []LinkID

	for _, id := range n.sortedActiveLinks() {
		active := true
		switch l := n.links[id].(type) {
		case *LocalLink:
			res.VehiclesEndLeg = append(res.VehiclesEndLeg, l.DoSimStep(now, events)...)
			if l.ToNodeActive(now) {
				n.activeNodes[l.to] = struct{}{}
			}
			active = l.IsActive()
		case *SplitInLink:
			before := l.OccupiedStorage()
			res.VehiclesEndLeg = append(res.VehiclesEndLeg, l.Local.DoSimStep(now, events)...)
			if l.Local.ToNodeActive(now) {
				n.activeNodes[l.Local.to] = struct{}{}
			}
			diff := before - l.OccupiedStorage()
			if diff < 0 {
				panic(fmt.Sprintf("occupied storage on link %s increased while moving vehicles",
					IDs().LinkName(l.LinkID())))
			}
			if diff > 0 {
				res.StorageUpdates = append(res.StorageUpdates, StorageUpdate{
					Link:     l.LinkID(),
					FromPart: l.FromPart,
					Released: diff,
				})
			}
			active = l.Local.IsActive()
		case *SplitOutLink:
			res.VehiclesExitPartition = append(res.VehiclesExitPartition, l.TakeVehicles()...)
			active = false
		}
		if !active {
			deactivate = append(deactivate, id)
		}
	}

	for _, id := range deactivate {
		delete(n.activeLinks, id)
	}
	n.vehCounter -= len(res.VehiclesExitPartition)
	n.vehCounter -= len(res.VehiclesEndLeg)
	return res
}

// MoveNodes runs the per-node phase: release vehicles from outflow buffers to
// their next links, bounded by flow capacity and downstream storage. In-links
// competing for the same node are served in ascending link id order, one
// vehicle per round, so results do not depend on scheduling.
func (n *SimNetworkPartition) MoveNodes(now int, events *EventsManager) {
	var deactivate []NodeID
	for _, id := range n.sortedActiveNodes() {
		if !n.moveNode(n.nodes[id], now, events) {
			deactivate = append(deactivate, id)
		}
	}
	for _, id := range deactivate {
		delete(n.activeNodes, id)
	}
}

func (n *SimNetworkPartition) moveNode(node *SimNode, now int, events *EventsManager) bool {
	inLinks := n.activeInLinks(node)

	for progress := true; progress; {
		progress = false
		for _, id := range inLinks {
			local := n.localHalf(id)
			veh := local.OffersVeh(now)
			if veh == nil {
				continue
			}
			next, ok := veh.PeekNextLink()
			if !ok {
				panic(fmt.Sprintf("vehicle %s offered by link %s has no next link; leg ends are handled in MoveLinks",
					IDs().VehicleName(veh.ID), IDs().LinkName(id)))
			}
			if !n.nextLinkAvailable(next) && !local.IsVehStuck(now) {
				continue
			}
			n.moveVehicle(local.PopVeh(), id, now, events)
			progress = true
		}
	}

	// keep the node active while any in-link offers next step
	for _, id := range inLinks {
		if n.localHalf(id).OffersVeh(now+1) != nil {
			return true
		}
	}
	return false
}

// activeInLinks filters the node's in-links down to active ones, keeping the
// ascending id order of the node's link list.
func (n *SimNetworkPartition) activeInLinks(node *SimNode) []LinkID {
	var active []LinkID
	for _, id := range node.InLinks {
		if _, ok := n.activeLinks[id]; ok {
			active = append(active, id)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	return active
}

// localHalf returns the locally simulated half of an in-link.
func (n *SimNetworkPartition) localHalf(id LinkID) *LocalLink {
	switch l := n.links[id].(type) {
	case *LocalLink:
		return l
	case *SplitInLink:
		return l.Local
	default:
		panic(fmt.Sprintf("link %s is not simulated locally", IDs().LinkName(id)))
	}
}

func (n *SimNetworkPartition) nextLinkAvailable(id LinkID) bool {
	link, ok := n.links[id]
	if !ok {
		panic(fmt.Sprintf("partition %d: next link %s not in local network",
			n.partition, IDs().LinkName(id)))
	}
	switch l := link.(type) {
	case *LocalLink:
		return l.IsAvailable()
	case *SplitInLink:
		return l.Local.IsAvailable()
	case *SplitOutLink:
		return l.IsAvailable()
	}
	return false
}

func (n *SimNetworkPartition) moveVehicle(veh *Vehicle, oldLink LinkID, now int, events *EventsManager) {
	events.Publish(Event{Time: now, Kind: EventLinkLeave, Link: oldLink, Vehicle: veh.ID})
	veh.AdvanceRoute()

	newLinkID, _ := veh.CurrLink()
	switch l := n.links[newLinkID].(type) {
	case *LocalLink:
		events.Publish(Event{Time: now, Kind: EventLinkEnter, Link: newLinkID, Vehicle: veh.ID})
		l.PushVehicle(veh, now)
	case *SplitInLink:
		events.Publish(Event{Time: now, Kind: EventLinkEnter, Link: newLinkID, Vehicle: veh.ID})
		l.Local.PushVehicle(veh, now)
	case *SplitOutLink:
		// link enter is published by the receiving partition
		l.PushVehicle(veh)
	}

	n.activeLinks[newLinkID] = struct{}{}

	if local := n.localHalf(oldLink); !local.IsActive() {
		delete(n.activeLinks, oldLink)
	}
}
