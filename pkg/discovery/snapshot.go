package discovery

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

// ToolDescriptor is one tool exposed by a backend. InputSchema is passed
// through exactly as the backend reported it.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`

	// OriginBackendID and OriginBackendName are stamped by the catalog
	// aggregator; raw backend tool lists leave them empty.
	OriginBackendID   string `json:"server,omitempty"`
	OriginBackendName string `json:"server_name,omitempty"`
}

// BackendStatus is the per-cycle liveness view of one backend.
type BackendStatus struct {
	ID                string           `json:"id"`
	Healthy           bool             `json:"healthy"`
	LastCheckedAt     time.Time        `json:"last_checked_at"`
	Latency           time.Duration    `json:"latency"`
	Error             string           `json:"error,omitempty"`
	ErrorKind         ErrorKind        `json:"error_kind,omitempty"`
	ObservedToolCount int              `json:"observed_tool_count"`
	Tools             []ToolDescriptor `json:"tools"`
}

// Entry joins a static descriptor with its status for one cycle.
type Entry struct {
	Backend registry.BackendDescriptor
	Status  BackendStatus
}

// Snapshot is the result of one discovery cycle. A published Snapshot is
// never modified; accessors hand out copies.
type Snapshot struct {
	takenAt time.Time
	entries []Entry
	index   map[string]int
}

// NewSnapshot assembles a snapshot from entries in the given order.
func NewSnapshot(takenAt time.Time, entries []Entry) *Snapshot {
	s := &Snapshot{
		takenAt: takenAt,
		entries: make([]Entry, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		s.entries[i] = copyEntry(e)
		s.index[e.Backend.ID] = i
	}
	return s
}

// TakenAt is when the cycle that produced the snapshot started.
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Entries returns every backend in configuration order.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Lookup returns the entry for a backend ID.
func (s *Snapshot) Lookup(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	idx, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(s.entries[idx]), true
}

// Len is the number of backends in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// HealthyCount is the number of backends whose probe succeeded.
func (s *Snapshot) HealthyCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, e := range s.entries {
		if e.Status.Healthy {
			n++
		}
	}
	return n
}

// ForEach visits entries in order without copying. fn must not retain or
// modify the tool slice.
func (s *Snapshot) ForEach(fn func(Entry) bool) {
	if s == nil {
		return
	}
	for _, e := range s.entries {
		if !fn(e) {
			return
		}
	}
}

func copyEntry(e Entry) Entry {
	out := e
	out.Backend = e.Backend.Clone()
	out.Status.Tools = slices.Clone(e.Status.Tools)
	return out
}
