package comm

import (
	"container/heap"

	"github.com/pkg/errors"

	"github.com/queuesim/queuesim/sim"
)

// NetMessageBroker implements sim.SyncBroker on top of a Communicator. It
// queues outgoing payloads per target, sends empty barrier messages to
// neighbors without traffic, and buffers messages that arrive for a future
// tick until the runtime reaches it.
type NetMessageBroker struct {
	comm      Communicator
	neighbors []int
	out       map[int]*sim.SyncMessage
	future    futureHeap
}

// NewNetMessageBroker builds a broker expecting one message per tick from
// every rank in neighbors.
func NewNetMessageBroker(comm Communicator, neighbors []int) *NetMessageBroker {
	return &NetMessageBroker{
		comm:      comm,
		neighbors: append([]int(nil), neighbors...),
		out:       make(map[int]*sim.SyncMessage),
	}
}

func (b *NetMessageBroker) Rank() int { return b.comm.Rank() }

func (b *NetMessageBroker) AddVehicle(target int, veh *sim.Vehicle) {
	msg := b.outMessage(target)
	msg.Vehicles = append(msg.Vehicles, veh)
}

func (b *NetMessageBroker) AddStorageUpdate(target int, update sim.StorageUpdate) {
	msg := b.outMessage(target)
	msg.StorageCaps = append(msg.StorageCaps, update)
}

func (b *NetMessageBroker) outMessage(target int) *sim.SyncMessage {
	msg, ok := b.out[target]
	if !ok {
		msg = &sim.SyncMessage{From: b.comm.Rank(), To: target}
		b.out[target] = msg
	}
	return msg
}

// SendRecv implements the tick barrier: it sends this tick's message to every
// neighbor (empty if no payload accrued) and blocks until a tick-now message
// from each neighbor arrived. Messages stamped with a later tick are held
// back; a message for a past tick is a protocol error.
func (b *NetMessageBroker) SendRecv(now int) ([]sim.SyncMessage, error) {
	for _, target := range b.neighbors {
		msg := b.outMessage(target)
		msg.Time = now
		if err := b.comm.Send(*msg); err != nil {
			return nil, err
		}
	}
	if payload := b.payloadForNonNeighbor(); payload != -1 {
		return nil, errors.Errorf("rank %d: payload queued for rank %d, which is not a neighbor",
			b.comm.Rank(), payload)
	}
	b.out = make(map[int]*sim.SyncMessage)

	expected := make(map[int]bool, len(b.neighbors))
	for _, n := range b.neighbors {
		expected[n] = true
	}

	var received []sim.SyncMessage
	for len(b.future) > 0 && b.future[0].Time == now {
		msg := heap.Pop(&b.future).(sim.SyncMessage)
		if !expected[msg.From] {
			return nil, errors.Errorf("rank %d: second tick-%d message from rank %d",
				b.comm.Rank(), now, msg.From)
		}
		delete(expected, msg.From)
		received = append(received, msg)
	}

	for len(expected) > 0 {
		msg, err := b.comm.Recv()
		if err != nil {
			return nil, err
		}
		switch {
		case msg.Time < now:
			return nil, errors.Errorf("rank %d: message from rank %d for past tick %d during tick %d",
				b.comm.Rank(), msg.From, msg.Time, now)
		case msg.Time > now:
			heap.Push(&b.future, msg)
		case !expected[msg.From]:
			return nil, errors.Errorf("rank %d: unexpected tick-%d message from rank %d",
				b.comm.Rank(), now, msg.From)
		default:
			delete(expected, msg.From)
			received = append(received, msg)
		}
	}

	sim.SortSyncMessages(received)
	return received, nil
}

func (b *NetMessageBroker) payloadForNonNeighbor() int {
	neighbor := make(map[int]bool, len(b.neighbors))
	for _, n := range b.neighbors {
		neighbor[n] = true
	}
	for target := range b.out {
		if !neighbor[target] {
			return target
		}
	}
	return -1
}

// futureHeap orders buffered messages by tick, then by sender for stability.
type futureHeap []sim.SyncMessage

func (h futureHeap) Len() int { return len(h) }
func (h futureHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].From < h[j].From
}
func (h futureHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *futureHeap) Push(x any) { *h = append(*h, x.(sim.SyncMessage)) }

func (h *futureHeap) Pop() any {
	old := *h
	n := len(old)
	msg := old[n-1]
	*h = old[:n-1]
	return msg
}
