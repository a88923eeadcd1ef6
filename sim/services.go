package sim

// RoutingRequest asks an external service for a fresh route. Partition tags
// the originating runtime so the response finds its way back.
type RoutingRequest struct {
	ID            string
	Partition     int
	Person        PersonID
	FromLink      LinkID
	ToLink        LinkID
	Mode          ModeID
	DepartureTime int
}

// RoutingResponse answers one request. Failed marks backend errors and
// timeouts; the caller decides the fallback, the adapter never drops a
// request silently.
type RoutingResponse struct {
	ID         string
	Person     PersonID
	Legs       []*Leg
	Activities []*Activity
	Failed     bool
	Error      string
}

// RoutingClient is the partition-side handle onto the external service
// adapter. Submit never blocks on network I/O; responses are picked up with
// Poll at the start of a later tick.
type RoutingClient interface {
	// Submit hands a request to the adapter. It fails when the adapter's
	// bounded queue is full or the adapter is shut down.
	Submit(req RoutingRequest) error

	// Poll drains all responses addressed to the partition that have arrived
	// so far. It never blocks.
	Poll(partition int) []RoutingResponse
}
