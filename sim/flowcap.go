package sim

// FlowCap gates how many vehicles may leave a link per time step. Capacity
// accumulates fractional credit across steps so that low-capacity links still
// release at their long-run average rate instead of truncating to zero.
type FlowCap struct {
	lastUpdate int
	value      float64
	capPerStep float64
}

// NewFlowCap builds a flow capacity from an hourly capacity and the scenario
// sample size.
func NewFlowCap(capacityPerHour, sampleSize float64) FlowCap {
	capPerSecond := capacityPerHour * sampleSize / 3600.0
	return FlowCap{value: capPerSecond, capPerStep: capPerSecond}
}

// Update accumulates capacity for the time steps elapsed since the last
// update, capped at one step's worth of credit.
func (f *FlowCap) Update(now int) {
	if f.lastUpdate < now {
		steps := float64(now - f.lastUpdate)
		acc := steps*f.capPerStep + f.value
		f.value = min(acc, f.capPerStep)
		f.lastUpdate = now
	}
}

func (f *FlowCap) HasCapacityLeft() bool {
	return f.value > 1e-10
}

func (f *FlowCap) Value() float64 { return f.value }

func (f *FlowCap) Consume(by float64) { f.value -= by }

func (f *FlowCap) PerStep() float64 { return f.capPerStep }
