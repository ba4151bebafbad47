// Package catalog merges the tool lists of healthy backends into the single
// collection the hub advertises.
package catalog

import (
	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
)

// Summary holds the aggregate numbers reported by the status endpoints.
type Summary struct {
	TotalServers  int `json:"total_servers"`
	OnlineServers int `json:"online_servers"`
	TotalTools    int `json:"total_tools"`
}

// Aggregate returns the tools of every healthy backend in snapshot order,
// each stamped with the backend it came from. Unhealthy backends contribute
// nothing, and tools sharing a name across backends are all kept.
func Aggregate(snap *discovery.Snapshot) []discovery.ToolDescriptor {
	tools := []discovery.ToolDescriptor{}
	snap.ForEach(func(e discovery.Entry) bool {
		if !e.Status.Healthy {
			return true
		}
		for _, t := range e.Status.Tools {
			t.OriginBackendID = e.Backend.ID
			t.OriginBackendName = e.Backend.DisplayName
			tools = append(tools, t)
		}
		return true
	})
	return tools
}

// Summarize counts backends and tools in snap. TotalTools sums the observed
// tool counts, so an always-included backend that is down still contributes
// its declared count.
func Summarize(snap *discovery.Snapshot) Summary {
	var s Summary
	snap.ForEach(func(e discovery.Entry) bool {
		s.TotalServers++
		if e.Status.Healthy {
			s.OnlineServers++
		}
		s.TotalTools += e.Status.ObservedToolCount
		return true
	})
	return s
}
