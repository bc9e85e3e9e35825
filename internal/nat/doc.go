// Package nat implements the floating IP allocation engine on top of a shared
// edge gateway.
//
//   - query.go: read-only view of assigned address pairs and the free pool
//   - allocator.go: paired SNAT/DNAT rule creation and removal
//   - persist.go: committing the gateway services configuration
//   - metrics.go: Prometheus instrumentation for the above
//
// Nothing here caches gateway state. Every call reads the gateway again
// because other tenants may change the NAT table at any time. This is a best
// effort guard: reads and writes are not atomic on the remote side.
package nat
