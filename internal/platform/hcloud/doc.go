// Package hcloud resolves workload network connections from Hetzner Cloud.
//
// A workload identifier is a server name or numeric ID. Each private network
// attachment of the server becomes one connection; the server must be
// running for its attachments to count as connected. Transient API errors
// (locked resources, conflicts, rate limits) are retried with backoff.
package hcloud
