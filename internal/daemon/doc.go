// Package daemon hosts the orchestration services behind a single-instance
// lock and exposes them over a bearer-authenticated HTTP API.
package daemon
