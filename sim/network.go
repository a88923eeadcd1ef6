package sim

import (
	"github.com/pkg/errors"
)

// Node is a purely topological element of the global network.
type Node struct {
	ID        NodeID
	InLinks   []LinkID
	OutLinks  []LinkID
	Partition int
}

// Link is a directed edge of the global network. Capacity is expressed in
// vehicles per hour; storage capacity is derived from length, lanes and the
// effective cell size when the link enters a partition (see StorageCap).
type Link struct {
	ID        LinkID
	From      NodeID
	To        NodeID
	Length    float64 // meters
	FreeSpeed float64 // meters per second
	Capacity  float64 // vehicles per hour
	PermLanes float64
	Partition int
}

// DefaultEffectiveCellSize is the road space one passenger car equivalent
// occupies, in meters.
const DefaultEffectiveCellSize = 7.5

// Network is the immutable global scenario network. It is fully assembled
// before any partition is built and never mutated afterwards.
type Network struct {
	nodes []*Node
	links []*Link

	// EffectiveCellSize is the road space one passenger car equivalent
	// occupies, in meters.
	EffectiveCellSize float64
}

func NewNetwork() *Network {
	return &Network{EffectiveCellSize: DefaultEffectiveCellSize}
}

// AddNode appends a node. Node IDs must be dense and added in interning order.
func (n *Network) AddNode(node *Node) {
	if int(node.ID) != len(n.nodes) {
		panic("nodes must be added in interning order")
	}
	n.nodes = append(n.nodes, node)
}

// AddLink appends a link and registers it with its endpoint nodes.
func (n *Network) AddLink(link *Link) {
	if int(link.ID) != len(n.links) {
		panic("links must be added in interning order")
	}
	n.links = append(n.links, link)
	n.nodes[link.From].OutLinks = append(n.nodes[link.From].OutLinks, link.ID)
	n.nodes[link.To].InLinks = append(n.nodes[link.To].InLinks, link.ID)
}

func (n *Network) Node(id NodeID) *Node { return n.nodes[id] }
func (n *Network) Link(id LinkID) *Link { return n.links[id] }
func (n *Network) Nodes() []*Node       { return n.nodes }
func (n *Network) Links() []*Link       { return n.links }
func (n *Network) NodeCount() int       { return len(n.nodes) }
func (n *Network) LinkCount() int       { return len(n.links) }

// PartitionAssignment maps every node of the network to an owning partition.
// A link is owned by the partition of its downstream node, which makes a link
// whose endpoints live in different partitions a boundary link.
type PartitionAssignment struct {
	NumParts   int
	NodeToPart map[NodeID]int
}

// NoPartitioning returns the pass-through assignment used for single-process
// runs: everything lives in partition 0.
func NoPartitioning(n *Network) *PartitionAssignment {
	parts := make(map[NodeID]int, n.NodeCount())
	for _, node := range n.nodes {
		parts[node.ID] = 0
	}
	return &PartitionAssignment{NumParts: 1, NodeToPart: parts}
}

// Apply stamps the assignment onto the network's nodes and links. It fails
// with a configuration error when the assignment references unknown nodes,
// misses nodes, or uses partition indexes outside [0, NumParts).
func (pa *PartitionAssignment) Apply(n *Network) error {
	if pa.NumParts < 1 {
		return errors.Errorf("partition count must be >= 1, got %d", pa.NumParts)
	}
	for id, part := range pa.NodeToPart {
		if int(id) < 0 || int(id) >= n.NodeCount() {
			return errors.Errorf("partition assignment references unknown node %d", id)
		}
		if part < 0 || part >= pa.NumParts {
			return errors.Errorf("node %s assigned to partition %d outside [0,%d)",
				IDs().NodeName(id), part, pa.NumParts)
		}
	}
	for _, node := range n.nodes {
		part, ok := pa.NodeToPart[node.ID]
		if !ok {
			return errors.Errorf("partition assignment misses node %s", IDs().NodeName(node.ID))
		}
		node.Partition = part
	}
	// A link is owned by the partition of its downstream node.
	for _, link := range n.links {
		link.Partition = n.nodes[link.To].Partition
	}
	return nil
}
