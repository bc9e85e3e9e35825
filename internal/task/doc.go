// Package task turns an accepted remote operation into a synchronous result.
//
// [Waiter.Wait] polls a gateway.Task at a fixed interval until it reaches a
// terminal status or the configured maximum wait elapses. There is no
// internal retry: a failed or timed out task is reported once as a
// gateway.RemoteOperationFailedError and the handle is not touched again.
package task
