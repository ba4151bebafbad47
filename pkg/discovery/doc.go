// Package discovery determines which backends are reachable and what tools
// they expose.
//
// An HTTPProber checks a single backend: a bounded GET on its discovery path
// decides liveness, then a best-effort fetch of its tool list (REST or MCP)
// fills in the tools. The Engine fans probes out concurrently over the
// registry's active backends, reassembles the results in configuration order
// and atomically publishes the resulting Snapshot. Readers always see one
// complete Snapshot; a new cycle replaces it rather than patching it.
package discovery
