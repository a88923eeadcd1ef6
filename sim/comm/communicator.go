// Package comm implements the synchronization channel between partition
// runtimes: point-to-point tick-stamped messages with barrier semantics, and
// the travel-times broadcast.
//
// ChannelCommunicator covers the in-process deployment where all partitions
// share one address space. A multi-process deployment plugs in here with
// another Communicator whose Send and Recv frame each message through the
// versioned envelope in sim (EncodeEnvelope/DecodeEnvelope and the
// WireSyncMessage conversions); the broker and barrier logic are transport
// agnostic.
package comm

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/queuesim/queuesim/sim"
)

// DefaultRecvTimeout bounds how long a partition waits for a peer's barrier
// message before declaring the run failed. A peer that misses the bound is
// treated as permanently gone.
const DefaultRecvTimeout = 30 * time.Second

// Communicator moves sync messages between partition ranks. Implementations
// must deliver messages between a fixed ordered pair of ranks in send order.
type Communicator interface {
	Rank() int
	Send(msg sim.SyncMessage) error
	Recv() (sim.SyncMessage, error)
}

// ChannelCommunicator connects in-process partition goroutines through
// buffered channels, one inbox per rank.
type ChannelCommunicator struct {
	rank        int
	inboxes     []chan sim.SyncMessage
	recvTimeout time.Duration
}

// NewChannelCommunicators creates a fully connected set of n communicators
// sharing one inbox per rank.
func NewChannelCommunicators(n int) []*ChannelCommunicator {
	inboxes := make([]chan sim.SyncMessage, n)
	for i := range inboxes {
		// sized so a full tick's fan-in never blocks a sender
		inboxes[i] = make(chan sim.SyncMessage, 4*n)
	}
	comms := make([]*ChannelCommunicator, n)
	for i := range comms {
		comms[i] = &ChannelCommunicator{rank: i, inboxes: inboxes, recvTimeout: DefaultRecvTimeout}
	}
	return comms
}

func (c *ChannelCommunicator) Rank() int { return c.rank }

// SetRecvTimeout overrides the barrier wait bound. Tests use short values.
func (c *ChannelCommunicator) SetRecvTimeout(d time.Duration) { c.recvTimeout = d }

func (c *ChannelCommunicator) Send(msg sim.SyncMessage) error {
	if msg.To < 0 || msg.To >= len(c.inboxes) {
		return errors.Errorf("rank %d: send to unknown rank %d", c.rank, msg.To)
	}
	c.inboxes[msg.To] <- msg
	return nil
}

func (c *ChannelCommunicator) Recv() (sim.SyncMessage, error) {
	select {
	case msg := <-c.inboxes[c.rank]:
		return msg, nil
	case <-time.After(c.recvTimeout):
		return sim.SyncMessage{}, errors.Errorf("rank %d: no message within %s, peer presumed failed",
			c.rank, c.recvTimeout)
	}
}

// TravelTimesAggregator collects the travel-times broadcasts of all
// partitions. It is the one shared sink of a run and therefore locked.
type TravelTimesAggregator struct {
	mu       sync.Mutex
	messages []sim.TravelTimesMessage
}

func NewTravelTimesAggregator() *TravelTimesAggregator {
	return &TravelTimesAggregator{}
}

func (a *TravelTimesAggregator) PublishTravelTimes(msg sim.TravelTimesMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
}

// Merged folds all broadcasts into one map, later observations per link
// winning.
func (a *TravelTimesAggregator) Merged() map[sim.LinkID]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[sim.LinkID]int)
	for _, msg := range a.messages {
		for link, tt := range msg.TravelTimes {
			out[link] = tt
		}
	}
	return out
}
