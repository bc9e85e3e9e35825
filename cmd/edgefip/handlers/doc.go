// Package handlers implements the edgefip commands.
//
// Handlers load the configuration, wire the gateway provider, workload
// lookup and state store it selects, and run one floating IP operation.
// Constructors are package variables so tests can substitute fakes.
package handlers
