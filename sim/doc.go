// Package sim implements a partitioned, discrete-time queue simulation of
// traffic on large networks.
//
// The network is split into partitions, each owned by exactly one goroutine
// running a Simulation. Links follow the queue model: vehicles traverse a
// link at free-flow speed, wait in an outflow buffer gated by flow capacity,
// and may only enter the next link while storage capacity is available, which
// produces spillback. Partitions exchange boundary vehicles and released
// storage through a SyncBroker once per tick under a full barrier, so no
// partition ever computes with stale neighbor state.
//
// Agents execute alternating activity/leg plans. Network legs ride vehicles
// over links; other modes teleport between activity locations. Slow work such
// as re-routing is pushed through a RoutingClient to the external service
// adapter and consumed asynchronously at tick starts.
package sim
