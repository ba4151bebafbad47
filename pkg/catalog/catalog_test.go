package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

func entry(id string, healthy, always bool, observed int, tools ...string) discovery.Entry {
	e := discovery.Entry{
		Backend: registry.BackendDescriptor{ID: id, DisplayName: id + " server", AlwaysIncluded: always},
		Status:  discovery.BackendStatus{ID: id, Healthy: healthy, ObservedToolCount: observed, Tools: []discovery.ToolDescriptor{}},
	}
	for _, name := range tools {
		e.Status.Tools = append(e.Status.Tools, discovery.ToolDescriptor{
			Name:        name,
			InputSchema: json.RawMessage(`{"type":"object"}`),
		})
	}
	return e
}

func TestAggregateHealthyOnlyWithOrigins(t *testing.T) {
	snap := discovery.NewSnapshot(time.Now(), []discovery.Entry{
		entry("db", true, false, 2, "execute_sql", "check_health"),
		entry("anchor", false, true, 47),
		entry("files", true, false, 2, "read_file", "check_health"),
	})

	tools := Aggregate(snap)

	require.Len(t, tools, 4)
	assert.Equal(t, "execute_sql", tools[0].Name)
	assert.Equal(t, "db", tools[0].OriginBackendID)
	assert.Equal(t, "db server", tools[0].OriginBackendName)
	assert.Equal(t, "check_health", tools[1].Name)
	assert.Equal(t, "check_health", tools[3].Name)
	assert.Equal(t, "files", tools[3].OriginBackendID)
	assert.JSONEq(t, `{"type":"object"}`, string(tools[2].InputSchema))

	raw, _ := snap.Lookup("db")
	assert.Empty(t, raw.Status.Tools[0].OriginBackendID, "snapshot must not be modified")
}

func TestAggregateEmpty(t *testing.T) {
	snap := discovery.NewSnapshot(time.Now(), []discovery.Entry{entry("db", false, false, 0)})
	tools := Aggregate(snap)
	assert.NotNil(t, tools)
	assert.Empty(t, tools)
	assert.Empty(t, Aggregate(nil))
}

func TestSummarize(t *testing.T) {
	snap := discovery.NewSnapshot(time.Now(), []discovery.Entry{
		entry("db", true, false, 2, "a", "b"),
		entry("anchor", false, true, 47),
		entry("down", false, false, 0),
	})
	assert.Equal(t, Summary{TotalServers: 3, OnlineServers: 1, TotalTools: 49}, Summarize(snap))
	assert.Equal(t, Summary{}, Summarize(nil))
}
