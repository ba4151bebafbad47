package registry

import (
	"slices"
)

// HubInfo carries the gateway's own identity as echoed by the catalog
// endpoints.
type HubInfo struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description"`
	Domain      string `json:"domain,omitempty" yaml:"domain"`
}

// Registry is the immutable, ordered set of backend descriptors.
type Registry struct {
	backends []BackendDescriptor
	byID     map[string]int
}

// New validates descriptors and builds a Registry preserving their order.
// All validation problems are reported together as ConfigurationErrors.
func New(descriptors []BackendDescriptor) (*Registry, error) {
	r := &Registry{
		backends: make([]BackendDescriptor, 0, len(descriptors)),
		byID:     make(map[string]int, len(descriptors)),
	}
	var errs ConfigurationErrors
	prefixes := make(map[string]string)
	for i, raw := range descriptors {
		d := raw.withDefaults()
		id := d.ID
		if id == "" {
			errs.add("", "id", "backend #%d has no id", i)
			continue
		}
		if _, dup := r.byID[id]; dup {
			errs.add(id, "id", "duplicate backend id")
			continue
		}
		validateDescriptor(d, &errs)
		if d.RoutePrefix != "" {
			if owner, taken := prefixes[d.RoutePrefix]; taken {
				errs.add(id, "path", "route prefix %q already owned by %q", d.RoutePrefix, owner)
			} else {
				prefixes[d.RoutePrefix] = id
			}
		}
		r.byID[id] = len(r.backends)
		r.backends = append(r.backends, d)
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return r, nil
}

func validateDescriptor(d BackendDescriptor, errs *ConfigurationErrors) {
	switch d.Address.Scheme {
	case "http", "https":
	default:
		errs.add(d.ID, "protocol", "unsupported scheme %q", d.Address.Scheme)
	}
	if d.Address.Host == "" {
		errs.add(d.ID, "host", "host is required")
	}
	if d.Address.Port < 0 || d.Address.Port > 65535 {
		errs.add(d.ID, "port", "port %d out of range", d.Address.Port)
	}
	if d.RoutePrefix == "/" {
		errs.add(d.ID, "path", "route prefix %q would shadow every path", d.RoutePrefix)
	}
	if d.DeclaredToolCount < 0 {
		errs.add(d.ID, "tools_count", "must be >= 0, got %d", d.DeclaredToolCount)
	}
	switch d.ToolsSource {
	case ToolsSourceREST, ToolsSourceMCP:
	default:
		errs.add(d.ID, "tools_source", "unknown tools source %q", d.ToolsSource)
	}
}

// ListActive returns the active descriptors in configuration order.
func (r *Registry) ListActive() []BackendDescriptor {
	out := make([]BackendDescriptor, 0, len(r.backends))
	for _, d := range r.backends {
		if d.Active {
			out = append(out, d.Clone())
		}
	}
	return out
}

// All returns every descriptor, active or not, in configuration order.
func (r *Registry) All() []BackendDescriptor {
	out := make([]BackendDescriptor, len(r.backends))
	for i, d := range r.backends {
		out[i] = d.Clone()
	}
	return out
}

// Get looks up a descriptor by ID.
func (r *Registry) Get(id string) (BackendDescriptor, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return BackendDescriptor{}, false
	}
	return r.backends[idx].Clone(), true
}

// IDs returns the backend identifiers in configuration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.backends))
	for i, d := range r.backends {
		ids[i] = d.ID
	}
	return slices.Clip(ids)
}

// Len reports how many descriptors are registered.
func (r *Registry) Len() int { return len(r.backends) }
