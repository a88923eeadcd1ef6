package sim

// StorageCap tracks how much of a link's storage is occupied. Vehicles
// entering a link consume capacity immediately; capacity freed by leaving
// vehicles takes effect when the caller releases it. The invariant
// used <= max is what produces spillback: a link without free storage
// accepts no further vehicles.
type StorageCap struct {
	max  float64
	used float64
}

// NewStorageCap derives the maximum storage from link geometry. Storage is at
// least one time step's flow capacity, so a link can always hold what it may
// release in a single step.
func NewStorageCap(length, permLanes, capacityPerHour, sampleSize, effectiveCellSize float64) StorageCap {
	flowCapPerSecond := capacityPerHour * sampleSize / 3600.0
	cap := length * permLanes * sampleSize / effectiveCellSize
	return StorageCap{max: max(flowCapPerSecond, cap)}
}

func (s *StorageCap) Used() float64 { return s.used }

func (s *StorageCap) Max() float64 { return s.max }

// Consume books storage for a vehicle entering the link.
func (s *StorageCap) Consume(value float64) { s.used += value }

// Release frees storage for a vehicle leaving the link.
func (s *StorageCap) Release(value float64) { s.used -= value }

// IsAvailable reports whether another vehicle may enter.
func (s *StorageCap) IsAvailable() bool {
	return s.max-s.used > 0.0
}
