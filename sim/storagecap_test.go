package sim

import (
	"math"
	"testing"
)

func TestStorageCap_DerivedFromGeometry(t *testing.T) {
	// GIVEN a 100m single-lane link with 7.5m cells
	sc := NewStorageCap(100, 1, 360, 1.0, 7.5)

	// THEN it holds 100/7.5 car equivalents
	if math.Abs(sc.Max()-100.0/7.5) > 1e-9 {
		t.Errorf("max storage: got %f, want %f", sc.Max(), 100.0/7.5)
	}
}

func TestStorageCap_NeverBelowOneStepOfFlow(t *testing.T) {
	// GIVEN a very short link with huge flow capacity
	sc := NewStorageCap(5, 1, 36000, 1.0, 7.5)

	// THEN storage is floored at one second's flow so the link can always
	// hold what it may release in a single step
	if sc.Max() != 10.0 {
		t.Errorf("max storage: got %f, want 10.0", sc.Max())
	}
}

func TestStorageCap_ConsumeReleaseRoundTrip(t *testing.T) {
	sc := NewStorageCap(15, 1, 360, 1.0, 7.5)

	// two cells of storage
	sc.Consume(1.0)
	if !sc.IsAvailable() {
		t.Error("one of two cells used, expected availability")
	}
	sc.Consume(1.0)
	if sc.IsAvailable() {
		t.Error("all storage used, expected no availability")
	}
	sc.Release(1.0)
	if !sc.IsAvailable() {
		t.Error("released one cell, expected availability again")
	}
}

func TestStorageCap_SampleSizeScalesStorage(t *testing.T) {
	full := NewStorageCap(750, 2, 360, 1.0, 7.5)
	sampled := NewStorageCap(750, 2, 360, 0.1, 7.5)

	if math.Abs(sampled.Max()-full.Max()*0.1) > 1e-9 {
		t.Errorf("sampled storage: got %f, want %f", sampled.Max(), full.Max()*0.1)
	}
}
