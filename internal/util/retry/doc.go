// Package retry retries transient failures of remote API calls with
// exponential backoff.
//
// [Do] runs an operation until it succeeds, returns an error marked with
// [Fatal], or the attempt budget is spent. The vCloud Director, Hetzner Cloud
// and object storage clients use it around single HTTP requests.
package retry
