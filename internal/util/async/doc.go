// Package async runs independent remote reads concurrently.
package async
