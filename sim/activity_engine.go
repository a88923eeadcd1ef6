package sim

// ActivityEngine holds agents while they perform activities and wakes them
// when their departure time arrives.
type ActivityEngine struct {
	q      *TimeQueue[*Agent]
	events *EventsManager
}

func NewActivityEngine(events *EventsManager) *ActivityEngine {
	return &ActivityEngine{q: NewTimeQueue[*Agent](), events: events}
}

// AddAgent inserts an agent that just started its current activity.
// publishStart is false for the initial seeding at simulation start, where no
// activity transition happened.
func (e *ActivityEngine) AddAgent(agent *Agent, now int, publishStart bool) {
	act := agent.CurrAct()
	if publishStart {
		e.events.Publish(Event{
			Time:    now,
			Kind:    EventActStart,
			Person:  agent.ID,
			Link:    act.Link,
			ActType: act.Type,
		})
	}
	e.q.Add(agent, agent.WakeupTime(now))
}

// Postpone re-queues an agent whose departure is held back, without treating
// it as a new activity.
func (e *ActivityEngine) Postpone(agent *Agent, until int) {
	e.q.Add(agent, until)
}

// Wakeups removes and returns all agents due to depart at or before now, in
// wakeup order.
func (e *ActivityEngine) Wakeups(now int) []*Agent {
	return e.q.PopDue(now)
}

// AgentCount reports how many agents currently perform activities.
func (e *ActivityEngine) AgentCount() int { return e.q.Len() }
