// Package mcpgateway exposes the hub over HTTP. Downstream clients talk to a
// single host: JSON-RPC calls on the MCP path are answered by the hub itself
// when they concern the aggregated catalog, and are otherwise routed by
// capability to one backend; backend-prefixed paths are proxied verbatim.
//
// The Gateway never probes backends on its own. It reads the snapshot owned
// by a discovery.Engine, asks the router for a decision and hands the request
// to the proxy.
package mcpgateway
