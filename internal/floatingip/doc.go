// Package floatingip associates a public address with a workload's internal
// address through an SNAT/DNAT pair on an edge gateway.
//
// [Controller.Connect] and [Controller.Disconnect] are the two operations an
// orchestration engine calls per network interface. Both are idempotent and
// return a [Result]: either done, or a retry-after delay when the gateway was
// busy committing another configuration change. Sleeping and resubmitting is
// left to the caller's scheduler.
package floatingip
