package sim

import "sort"

// SyncMessage carries one tick's boundary data from one partition to a
// neighbor: vehicles that crossed onto links the neighbor owns, and storage
// capacity released on links the neighbor mirrors. A message with empty
// payloads still counts for the barrier.
type SyncMessage struct {
	Time        int
	From        int
	To          int
	Vehicles    []*Vehicle
	StorageCaps []StorageUpdate
}

func (m SyncMessage) Empty() bool {
	return len(m.Vehicles) == 0 && len(m.StorageCaps) == 0
}

// TravelTimesMessage broadcasts one partition's aggregated link travel times
// on the coarser replanning cadence.
type TravelTimesMessage struct {
	From        int
	TravelTimes map[LinkID]int
}

// SyncBroker is the per-partition handle onto the synchronization channel.
// Implementations must guarantee that SendRecv(now) returns only after a
// tick-now message from every neighbor has arrived, and must hold back
// messages stamped with a later tick until that tick's SendRecv.
type SyncBroker interface {
	Rank() int

	// AddVehicle queues a vehicle for the partition owning its current link.
	AddVehicle(target int, veh *Vehicle)

	// AddStorageUpdate queues released-storage bookkeeping for the upstream
	// partition mirroring the link.
	AddStorageUpdate(target int, update StorageUpdate)

	// SendRecv flushes queued payloads to all neighbors and blocks until every
	// neighbor's tick-now message arrived. Messages are returned sorted by
	// sending partition.
	SendRecv(now int) ([]SyncMessage, error)
}

// SortSyncMessages puts messages into the canonical application order.
func SortSyncMessages(msgs []SyncMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Time != msgs[j].Time {
			return msgs[i].Time < msgs[j].Time
		}
		return msgs[i].From < msgs[j].From
	})
}
