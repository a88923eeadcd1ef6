// Package services implements the external service adapter: a bounded worker
// pool that answers routing requests from all partition runtimes without ever
// blocking a tick loop, with pluggable local, remote and fan-out backends.
package services

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/queuesim/queuesim/sim"
)

// ErrQueueFull is returned by Submit when the bounded request queue cannot
// accept another request. Callers treat it as backpressure.
var ErrQueueFull = errors.New("adapter request queue is full")

// ErrShutDown is returned by Submit after the adapter stopped accepting work.
var ErrShutDown = errors.New("adapter is shut down")

// RouteBackend answers one routing request. Implementations may block on
// network I/O; they run on adapter workers, never on partition goroutines.
type RouteBackend interface {
	Route(ctx context.Context, req sim.RoutingRequest) (sim.RoutingResponse, error)
	Close() error
}

// Adapter owns the bounded request queue, the worker pool and the pending
// table that routes each response back to exactly the partition that asked.
type Adapter struct {
	backend  RouteBackend
	requests chan sim.RoutingRequest

	// responses holds one buffered channel per partition, drained by that
	// partition's Poll at tick start.
	responses []chan sim.RoutingResponse

	// pending maps request id to originating partition. Together with the
	// delete-before-deliver claim below it makes delivery exactly-once.
	mu      sync.Mutex
	pending map[string]int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewAdapter creates an adapter serving numPartitions runtimes.
func NewAdapter(backend RouteBackend, numPartitions, queueSize int) *Adapter {
	responses := make([]chan sim.RoutingResponse, numPartitions)
	for i := range responses {
		responses[i] = make(chan sim.RoutingResponse, queueSize)
	}
	return &Adapter{
		backend:   backend,
		requests:  make(chan sim.RoutingRequest, queueSize),
		responses: responses,
		pending:   make(map[string]int),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or Stop
// is called; requests in flight complete or time out first.
func (a *Adapter) Start(ctx context.Context, workers int) {
	ctx, a.cancel = context.WithCancel(ctx)
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}
}

func (a *Adapter) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-a.requests:
			if !ok {
				return
			}
			resp, err := a.backend.Route(ctx, req)
			if err != nil {
				resp = sim.RoutingResponse{ID: req.ID, Person: req.Person, Failed: true, Error: err.Error()}
			}
			a.deliver(ctx, resp)
		}
	}
}

// deliver hands a response to the partition recorded in the pending table.
// The table entry is claimed before sending, so a duplicate response from a
// misbehaving backend is dropped rather than delivered twice. A partition that
// stopped polling must not pin the worker: the send aborts on shutdown.
func (a *Adapter) deliver(ctx context.Context, resp sim.RoutingResponse) {
	a.mu.Lock()
	partition, ok := a.pending[resp.ID]
	if ok {
		delete(a.pending, resp.ID)
	}
	a.mu.Unlock()
	if !ok {
		logrus.Warnf("adapter: dropping duplicate or unknown response %s", resp.ID)
		return
	}
	select {
	case a.responses[partition] <- resp:
	case <-ctx.Done():
		logrus.Warnf("adapter: discarding response %s for partition %d during shutdown", resp.ID, partition)
	}
}

// Submit hands a request to the worker pool without blocking. It implements
// sim.RoutingClient.
func (a *Adapter) Submit(req sim.RoutingRequest) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrShutDown
	}
	a.pending[req.ID] = req.Partition
	a.mu.Unlock()

	select {
	case a.requests <- req:
		return nil
	default:
		a.mu.Lock()
		delete(a.pending, req.ID)
		a.mu.Unlock()
		return ErrQueueFull
	}
}

// Poll drains all responses for a partition without blocking.
func (a *Adapter) Poll(partition int) []sim.RoutingResponse {
	var out []sim.RoutingResponse
	for {
		select {
		case resp := <-a.responses[partition]:
			out = append(out, resp)
		default:
			return out
		}
	}
}

// Stop shuts the adapter down: no new submissions, workers drain and exit,
// the backend is closed.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return a.backend.Close()
}
