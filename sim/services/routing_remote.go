package services

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/queuesim/queuesim/sim"
)

// RequestTimeout bounds one remote round trip. A timed-out request surfaces
// as a failed response; it is never silently dropped.
const RequestTimeout = 10 * time.Second

type remoteRequest struct {
	ID            string
	Person        string
	FromLink      string
	ToLink        string
	Mode          string
	DepartureTime int
}

type remoteResponse struct {
	ID         string
	Person     string
	Legs       []*sim.WireLeg
	Activities []*sim.WireActivity
	Error      string
}

// RemoteBackend forwards routing requests to a remote service over a single
// websocket connection. Concurrent workers share the connection: writes are
// serialized, a reader goroutine demultiplexes responses by request id.
type RemoteBackend struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	waiters map[string]chan remoteResponse
	closed  bool
}

// DialRemoteBackend connects to a routing service endpoint (ws:// or wss://).
func DialRemoteBackend(endpoint string) (*RemoteBackend, error) {
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing routing service %s", endpoint)
	}
	b := &RemoteBackend{
		conn:    conn,
		waiters: make(map[string]chan remoteResponse),
	}
	go b.readLoop()
	return b, nil
}

func (b *RemoteBackend) readLoop() {
	for {
		var resp remoteResponse
		if err := b.conn.ReadJSON(&resp); err != nil {
			b.failAll(err)
			return
		}
		b.mu.Lock()
		waiter, ok := b.waiters[resp.ID]
		if ok {
			delete(b.waiters, resp.ID)
		}
		b.mu.Unlock()
		if !ok {
			logrus.Warnf("routing service answered unknown request %s", resp.ID)
			continue
		}
		waiter <- resp
	}
}

// failAll unblocks every in-flight request after the connection died.
func (b *RemoteBackend) failAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, waiter := range b.waiters {
		waiter <- remoteResponse{ID: id, Error: err.Error()}
		delete(b.waiters, id)
	}
}

func (b *RemoteBackend) Route(ctx context.Context, req sim.RoutingRequest) (sim.RoutingResponse, error) {
	waiter := make(chan remoteResponse, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return sim.RoutingResponse{}, errors.New("routing service connection is closed")
	}
	b.waiters[req.ID] = waiter
	b.mu.Unlock()

	wireReq := remoteRequest{
		ID:            req.ID,
		Person:        sim.IDs().PersonName(req.Person),
		FromLink:      sim.IDs().LinkName(req.FromLink),
		ToLink:        sim.IDs().LinkName(req.ToLink),
		Mode:          sim.IDs().ModeName(req.Mode),
		DepartureTime: req.DepartureTime,
	}
	b.writeMu.Lock()
	err := b.conn.WriteJSON(wireReq)
	b.writeMu.Unlock()
	if err != nil {
		b.forget(req.ID)
		return sim.RoutingResponse{}, errors.Wrap(err, "sending routing request")
	}

	select {
	case <-ctx.Done():
		b.forget(req.ID)
		return sim.RoutingResponse{}, ctx.Err()
	case <-time.After(RequestTimeout):
		b.forget(req.ID)
		return sim.RoutingResponse{}, errors.Errorf("routing request %s timed out after %s", req.ID, RequestTimeout)
	case resp := <-waiter:
		return b.toResponse(req, resp)
	}
}

func (b *RemoteBackend) forget(id string) {
	b.mu.Lock()
	delete(b.waiters, id)
	b.mu.Unlock()
}

func (b *RemoteBackend) toResponse(req sim.RoutingRequest, resp remoteResponse) (sim.RoutingResponse, error) {
	if resp.Error != "" {
		return sim.RoutingResponse{}, errors.Errorf("routing service: %s", resp.Error)
	}
	out := sim.RoutingResponse{ID: req.ID, Person: req.Person}
	for _, wl := range resp.Legs {
		out.Legs = append(out.Legs, sim.LegFromWire(wl))
	}
	for _, wa := range resp.Activities {
		out.Activities = append(out.Activities, sim.ActivityFromWire(wa))
	}
	return out, nil
}

func (b *RemoteBackend) Close() error {
	b.failAll(errors.New("backend closed"))
	return b.conn.Close()
}
