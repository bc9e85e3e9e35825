// Package vcd talks to the vCloud Director REST API (XML, API version 5.x and
// later) to read and change edge gateway NAT configuration and to read vApp
// network connections.
//
// Every rule change posts the complete edge gateway service configuration to
// the gateway's configureServices action and returns the resulting task.
// A gateway that is still applying another change answers with a
// BUSY_ENTITY error, which is reported as busy rather than as a failure.
package vcd
