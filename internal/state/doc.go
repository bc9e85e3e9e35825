// Package state persists the runtime state of network interfaces between
// CLI invocations: the associated public address and any deferred commit.
//
// [FileStore] keeps every interface in one YAML file. [S3Store] keeps one
// YAML object per interface in an S3-compatible bucket.
package state
