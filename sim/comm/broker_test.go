package comm

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/queuesim/queuesim/sim"
)

func TestNetMessageBroker_TwoRankExchange(t *testing.T) {
	comms := NewChannelCommunicators(2)
	b0 := NewNetMessageBroker(comms[0], []int{1})
	b1 := NewNetMessageBroker(comms[1], []int{0})

	veh := &sim.Vehicle{ID: 7}
	b0.AddVehicle(1, veh)

	var wg sync.WaitGroup
	wg.Add(1)
	var got []sim.SyncMessage
	var gotErr error
	go func() {
		defer wg.Done()
		got, gotErr = b1.SendRecv(0)
	}()

	// rank 0 sends the payload and receives rank 1's barrier marker
	msgs, err := b0.SendRecv(0)
	if err != nil {
		t.Fatalf("rank 0 sync failed: %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].Vehicles) != 0 {
		t.Errorf("rank 0 expected one empty barrier marker, got %v", msgs)
	}

	wg.Wait()
	if gotErr != nil {
		t.Fatalf("rank 1 sync failed: %v", gotErr)
	}
	if len(got) != 1 || len(got[0].Vehicles) != 1 || got[0].Vehicles[0] != veh {
		t.Errorf("rank 1 expected the vehicle payload, got %v", got)
	}
	if got[0].From != 0 || got[0].To != 1 || got[0].Time != 0 {
		t.Errorf("message header: got %+v", got[0])
	}
}

func TestNetMessageBroker_FourRanksOverSeveralTicks(t *testing.T) {
	const ranks, ticks = 4, 5
	comms := NewChannelCommunicators(ranks)

	allOthers := func(rank int) []int {
		var out []int
		for i := 0; i < ranks; i++ {
			if i != rank {
				out = append(out, i)
			}
		}
		return out
	}

	errs := make(chan error, ranks)
	var wg sync.WaitGroup
	for rank := 0; rank < ranks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			b := NewNetMessageBroker(comms[rank], allOthers(rank))
			for tick := 0; tick < ticks; tick++ {
				b.AddStorageUpdate((rank+1)%ranks, sim.StorageUpdate{Link: sim.LinkID(rank), Released: 1})
				msgs, err := b.SendRecv(tick)
				if err != nil {
					errs <- err
					return
				}
				if len(msgs) != ranks-1 {
					t.Errorf("rank %d tick %d: got %d messages, want %d", rank, tick, len(msgs), ranks-1)
				}
				for i, msg := range msgs {
					if msg.Time != tick {
						t.Errorf("rank %d tick %d: message %d stamped %d", rank, tick, i, msg.Time)
					}
					if i > 0 && msgs[i-1].From > msg.From {
						t.Errorf("rank %d tick %d: messages not sorted by sender", rank, tick)
					}
				}
			}
		}(rank)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("sync failed: %v", err)
	}
}

func TestNetMessageBroker_BuffersFutureTickMessages(t *testing.T) {
	comms := NewChannelCommunicators(2)
	b0 := NewNetMessageBroker(comms[0], []int{1})

	// GIVEN rank 1 ran ahead and its tick-1 message arrives first
	if err := comms[1].Send(sim.SyncMessage{Time: 1, From: 1, To: 0}); err != nil {
		t.Fatal(err)
	}
	if err := comms[1].Send(sim.SyncMessage{Time: 0, From: 1, To: 0}); err != nil {
		t.Fatal(err)
	}

	// WHEN rank 0 synchronizes tick 0
	msgs, err := b0.SendRecv(0)
	if err != nil {
		t.Fatalf("tick 0 sync failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Time != 0 {
		t.Errorf("tick 0 messages: got %v", msgs)
	}

	// THEN tick 1 is served from the buffer without another receive
	msgs, err = b0.SendRecv(1)
	if err != nil {
		t.Fatalf("tick 1 sync failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Time != 1 {
		t.Errorf("tick 1 messages: got %v", msgs)
	}
}

func TestNetMessageBroker_PastTickMessageIsFatal(t *testing.T) {
	comms := NewChannelCommunicators(2)
	b0 := NewNetMessageBroker(comms[0], []int{1})

	if err := comms[1].Send(sim.SyncMessage{Time: 0, From: 1, To: 0}); err != nil {
		t.Fatal(err)
	}

	if _, err := b0.SendRecv(5); err == nil || !strings.Contains(err.Error(), "past tick") {
		t.Errorf("expected a past-tick protocol error, got %v", err)
	}
}

func TestNetMessageBroker_MessageFromNonNeighborIsFatal(t *testing.T) {
	comms := NewChannelCommunicators(3)
	b0 := NewNetMessageBroker(comms[0], []int{1})

	if err := comms[2].Send(sim.SyncMessage{Time: 0, From: 2, To: 0}); err != nil {
		t.Fatal(err)
	}

	if _, err := b0.SendRecv(0); err == nil || !strings.Contains(err.Error(), "unexpected") {
		t.Errorf("expected an unexpected-sender error, got %v", err)
	}
}

func TestNetMessageBroker_PayloadForNonNeighborIsFatal(t *testing.T) {
	comms := NewChannelCommunicators(3)
	b0 := NewNetMessageBroker(comms[0], []int{1})

	b0.AddVehicle(2, &sim.Vehicle{ID: 1})

	if _, err := b0.SendRecv(0); err == nil || !strings.Contains(err.Error(), "not a neighbor") {
		t.Errorf("expected a non-neighbor payload error, got %v", err)
	}
}

func TestChannelCommunicator_RecvTimesOutOnSilentPeer(t *testing.T) {
	comms := NewChannelCommunicators(2)
	comms[0].SetRecvTimeout(10 * time.Millisecond)
	b0 := NewNetMessageBroker(comms[0], []int{1})

	_, err := b0.SendRecv(0)
	if err == nil || !strings.Contains(err.Error(), "presumed failed") {
		t.Errorf("expected a peer timeout, got %v", err)
	}
}

func TestChannelCommunicator_RejectsUnknownRank(t *testing.T) {
	comms := NewChannelCommunicators(2)

	if err := comms[0].Send(sim.SyncMessage{To: 5}); err == nil {
		t.Error("expected error sending to unknown rank")
	}
}

func TestTravelTimesAggregator_LaterObservationsWin(t *testing.T) {
	agg := NewTravelTimesAggregator()

	agg.PublishTravelTimes(sim.TravelTimesMessage{From: 0, TravelTimes: map[sim.LinkID]int{1: 10, 2: 20}})
	agg.PublishTravelTimes(sim.TravelTimesMessage{From: 1, TravelTimes: map[sim.LinkID]int{2: 25}})

	merged := agg.Merged()
	if merged[1] != 10 || merged[2] != 25 {
		t.Errorf("merged travel times: got %v", merged)
	}
}
