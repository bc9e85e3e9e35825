// Package s3 is a small object storage client for S3-compatible endpoints
// such as Hetzner Object Storage or MinIO.
//
// It backs the object storage state store: one small object per interface.
package s3
