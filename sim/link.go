package sim

// StuckTimer force-releases a vehicle that has waited at the head of an
// outflow buffer longer than the configured threshold, regardless of
// downstream storage. It starts when a vehicle is first offered and resets
// when one leaves.
type StuckTimer struct {
	threshold int
	start     int
	running   bool
}

func NewStuckTimer(threshold int) StuckTimer {
	return StuckTimer{threshold: threshold}
}

func (t *StuckTimer) Start(now int) {
	if !t.running {
		t.running = true
		t.start = now
	}
}

func (t *StuckTimer) Reset() { t.running = false }

func (t *StuckTimer) IsStuck(now int) bool {
	return t.running && now-t.start >= t.threshold
}

// SimLink is the closed variant set of links a partition holds: a LocalLink
// owned entirely by the partition, a SplitInLink whose upstream half lives in
// a neighbor partition, or a SplitOutLink mirroring a link owned downstream
// by a neighbor. Callers dispatch by type switch.
type SimLink interface {
	LinkID() LinkID
}

type queueEntry struct {
	veh          *Vehicle
	earliestExit int
}

// LocalLink implements the queue model: vehicles travel the link at free-flow
// speed (moving queue), then wait in the outflow buffer, gated by flow
// capacity, until the downstream node moves them on. Vehicles departing an
// activity enter via the waiting list and are drained into the buffer ahead
// of the queue.
type LocalLink struct {
	id        LinkID
	from, to  NodeID
	length    float64
	freeSpeed float64

	q       []queueEntry
	buffer  []*Vehicle
	waiting []*Vehicle

	storage StorageCap
	flow    FlowCap
	stuck   StuckTimer
}

// LinkParams collects the scenario-level knobs of the queue model.
type LinkParams struct {
	SampleSize        float64
	EffectiveCellSize float64
	StuckThreshold    int
}

func NewLocalLink(link *Link, p LinkParams) *LocalLink {
	return &LocalLink{
		id:        link.ID,
		from:      link.From,
		to:        link.To,
		length:    link.Length,
		freeSpeed: link.FreeSpeed,
		storage:   NewStorageCap(link.Length, link.PermLanes, link.Capacity, p.SampleSize, p.EffectiveCellSize),
		flow:      NewFlowCap(link.Capacity, p.SampleSize),
		stuck:     NewStuckTimer(p.StuckThreshold),
	}
}

func (l *LocalLink) LinkID() LinkID { return l.id }
func (l *LocalLink) From() NodeID   { return l.from }
func (l *LocalLink) To() NodeID     { return l.to }

// PushVehicle places a vehicle at the start of the moving queue. Storage is
// consumed immediately.
func (l *LocalLink) PushVehicle(veh *Vehicle, now int) {
	speed := min(l.freeSpeed, veh.MaxV())
	duration := max(1, int(l.length/speed)) // at least one second per link
	l.storage.Consume(veh.PCE())
	l.q = append(l.q, queueEntry{veh: veh, earliestExit: now + duration})
}

// PushWaiting places a vehicle that just departed an activity into the
// waiting list.
func (l *LocalLink) PushWaiting(veh *Vehicle) {
	l.waiting = append(l.waiting, veh)
}

// DoSimStep updates flow capacity and fills the outflow buffer, waiting list
// first, then the moving queue in FIFO order. It returns the vehicles that
// end their leg on this link.
func (l *LocalLink) DoSimStep(now int, events *EventsManager) []*Vehicle {
	l.flow.Update(now)
	ending := l.drainWaiting(now, events)
	ending = append(ending, l.drainQueue(now)...)

	for _, veh := range ending {
		events.Publish(Event{
			Time:    now,
			Kind:    EventVehicleLeavesTraffic,
			Link:    l.id,
			Vehicle: veh.ID,
			Person:  veh.Driver.ID,
			Mode:    veh.Driver.CurrLeg().Mode,
		})
	}
	return ending
}

func (l *LocalLink) drainQueue(now int) []*Vehicle {
	var released []*Vehicle
	for len(l.q) > 0 {
		entry := l.q[0]
		if entry.earliestExit > now {
			break
		}
		if entry.veh.WantsToArrive() {
			l.q = l.q[1:]
			l.storage.Release(entry.veh.PCE())
			released = append(released, entry.veh)
			continue
		}
		if !l.hasFlowCapacityLeft() {
			break
		}
		l.q = l.q[1:]
		l.storage.Release(entry.veh.PCE())
		l.buffer = append(l.buffer, entry.veh)
	}
	return released
}

func (l *LocalLink) drainWaiting(now int, events *EventsManager) []*Vehicle {
	var released []*Vehicle
	for len(l.waiting) > 0 {
		veh := l.waiting[0]
		if veh.WantsToArrive() {
			l.waiting = l.waiting[1:]
			l.publishEnters(veh, now, events)
			released = append(released, veh)
			continue
		}
		if !l.hasFlowCapacityLeft() {
			break
		}
		l.waiting = l.waiting[1:]
		l.publishEnters(veh, now, events)
		l.buffer = append(l.buffer, veh)
	}
	return released
}

func (l *LocalLink) publishEnters(veh *Vehicle, now int, events *EventsManager) {
	events.Publish(Event{
		Time:    now,
		Kind:    EventVehicleEntersTraffic,
		Link:    l.id,
		Vehicle: veh.ID,
		Person:  veh.Driver.ID,
		Mode:    veh.Driver.CurrLeg().Mode,
	})
}

func (l *LocalLink) hasFlowCapacityLeft() bool {
	bufferCap := 0.0
	for _, v := range l.buffer {
		bufferCap += v.PCE()
	}
	return l.flow.Value()-bufferCap > 0.0
}

// OffersVeh returns the buffer head if flow capacity allows a release this
// step, arming the stuck timer as a side effect.
func (l *LocalLink) OffersVeh(now int) *Vehicle {
	if len(l.buffer) > 0 && l.flow.HasCapacityLeft() {
		l.stuck.Start(now)
		return l.buffer[0]
	}
	return nil
}

// PopVeh removes and returns the buffer head, consuming flow capacity.
func (l *LocalLink) PopVeh() *Vehicle {
	if len(l.buffer) == 0 {
		return nil
	}
	veh := l.buffer[0]
	l.buffer = l.buffer[1:]
	l.flow.Consume(veh.PCE())
	l.stuck.Reset()
	return veh
}

func (l *LocalLink) IsVehStuck(now int) bool { return l.stuck.IsStuck(now) }

func (l *LocalLink) IsAvailable() bool { return l.storage.IsAvailable() }

// IsActive reports whether any vehicle occupies the link.
func (l *LocalLink) IsActive() bool {
	return len(l.q) > 0 || len(l.waiting) > 0 || len(l.buffer) > 0
}

// ToNodeActive reports whether the downstream node has work next step.
func (l *LocalLink) ToNodeActive(now int) bool {
	return l.OffersVeh(now+1) != nil
}

func (l *LocalLink) UsedStorage() float64 { return l.storage.Used() }

func (l *LocalLink) vehCount() int {
	return len(l.q) + len(l.waiting) + len(l.buffer)
}

// SplitInLink is the receiving half of a boundary link: the link itself runs
// locally, but its upstream node lives in another partition. Storage released
// here must be reported back upstream so the mirror can admit more vehicles.
type SplitInLink struct {
	FromPart int
	Local    *LocalLink
}

func (l *SplitInLink) LinkID() LinkID { return l.Local.id }

func (l *SplitInLink) OccupiedStorage() float64 { return l.Local.storage.Used() }

// SplitOutLink mirrors a boundary link owned by a downstream partition. It
// buffers vehicles that crossed this tick and tracks the downstream storage
// snapshot so local nodes gate their outflow correctly.
type SplitOutLink struct {
	id      LinkID
	ToPart  int
	q       []*Vehicle
	storage StorageCap
}

func NewSplitOutLink(link *Link, p LinkParams, toPart int) *SplitOutLink {
	return &SplitOutLink{
		id:      link.ID,
		ToPart:  toPart,
		storage: NewStorageCap(link.Length, link.PermLanes, link.Capacity, p.SampleSize, p.EffectiveCellSize),
	}
}

func (l *SplitOutLink) LinkID() LinkID { return l.id }

func (l *SplitOutLink) PushVehicle(veh *Vehicle) {
	l.storage.Consume(veh.PCE())
	l.q = append(l.q, veh)
}

// TakeVehicles drains the crossing buffer, preserving order. Storage stays
// consumed until the downstream partition reports it released.
func (l *SplitOutLink) TakeVehicles() []*Vehicle {
	q := l.q
	l.q = nil
	return q
}

// ApplyStorageUpdate books storage the downstream partition reported as
// released.
func (l *SplitOutLink) ApplyStorageUpdate(released float64) {
	l.storage.Consume(-released)
}

func (l *SplitOutLink) IsAvailable() bool { return l.storage.IsAvailable() }

func (l *SplitOutLink) UsedStorage() float64 { return l.storage.Used() }
