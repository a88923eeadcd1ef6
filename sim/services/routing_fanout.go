package services

import (
	"context"
	"sync/atomic"

	"github.com/queuesim/queuesim/sim"
)

// FanOutBackend spreads requests round-robin over several backends, e.g. a
// pool of remote endpoints. Each request is answered by exactly one backend.
type FanOutBackend struct {
	backends []RouteBackend
	next     atomic.Uint64
}

func NewFanOutBackend(backends ...RouteBackend) *FanOutBackend {
	return &FanOutBackend{backends: backends}
}

func (b *FanOutBackend) Route(ctx context.Context, req sim.RoutingRequest) (sim.RoutingResponse, error) {
	i := b.next.Add(1) % uint64(len(b.backends))
	return b.backends[i].Route(ctx, req)
}

func (b *FanOutBackend) Close() error {
	var firstErr error
	for _, backend := range b.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
