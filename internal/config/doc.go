// Package config loads the edgefip configuration file and the timeout
// settings taken from the environment.
//
// [LoadFile] reads YAML, fills secrets from environment variables and
// validates the result. [LoadTimeouts] reads polling, retry and HTTP timeouts.
package config
