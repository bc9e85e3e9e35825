// Package gateway defines the edge gateway domain model shared by the NAT
// engine, the floating IP controller and the provider backends.
//
// # Contract
//
// A [Client] resolves a [Gateway] by name. A Gateway exposes its NAT rules and
// public address pool, and accepts asynchronous rule mutations. Every mutation
// returns a [Task] that must be polled to a terminal [TaskStatus]; see
// internal/task for the waiter.
//
// # Errors
//
// errors.go holds the error taxonomy. Each kind has a sentinel usable with
// errors.Is and a struct carrying the offending address, gateway or direction
// for errors.As. None of them are retried internally: "gateway busy" is the only
// retryable outcome and it is reported as a value, never as an error.
package gateway
