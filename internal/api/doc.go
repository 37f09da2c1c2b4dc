// Package api exposes external interfaces for submitting swaps, inspecting
// job state, and retrieving settlement history. It hosts the REST server used
// by the command line tools and the Go SDK.
package api
