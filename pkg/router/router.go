// Package router picks the backend that should serve an inbound request.
//
// A request is resolved against one discovery Snapshot in a fixed order: the
// capability implied by its decoded method, then the route prefix owning its
// path, then the configured default capability. The first rule that yields
// a backend wins.
package router

import (
	"slices"
	"strings"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

// Reason records which rule produced a Decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCapabilityMatch
	ReasonPathMatch
	ReasonDefaultFallback
)

func (r Reason) String() string {
	switch r {
	case ReasonCapabilityMatch:
		return "capability_match"
	case ReasonPathMatch:
		return "path_match"
	case ReasonDefaultFallback:
		return "default_fallback"
	default:
		return "none"
	}
}

// MarshalText renders the reason in JSON documents and log attributes.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Decision is the outcome of Route. A Decision with ReasonNone carries no
// backend.
type Decision struct {
	BackendID string
	Backend   registry.BackendDescriptor
	Reason    Reason
	// Capability is set for capability and default-fallback matches.
	Capability string
	// MatchedPrefix is set for path matches; the proxy strips it.
	MatchedPrefix string
}

// Found reports whether a backend was selected.
func (d Decision) Found() bool {
	return d.Reason != ReasonNone && d.BackendID != ""
}

// Router resolves requests using a method-to-capability table.
type Router struct {
	capabilities      map[string]string
	defaultCapability string
}

// New builds a Router from the routing configuration. When a method is listed
// under several capabilities the alphabetically first capability wins.
func New(cfg registry.RoutingConfig) *Router {
	r := &Router{
		capabilities:      make(map[string]string),
		defaultCapability: cfg.DefaultCapability,
	}
	tags := make([]string, 0, len(cfg.Methods))
	for tag := range cfg.Methods {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	for _, tag := range tags {
		for _, method := range cfg.Methods[tag] {
			if method == "" {
				continue
			}
			if _, taken := r.capabilities[method]; !taken {
				r.capabilities[method] = tag
			}
		}
	}
	return r
}

// CapabilityFor returns the capability tag a method requires.
func (r *Router) CapabilityFor(method string) (string, bool) {
	tag, ok := r.capabilities[method]
	return tag, ok
}

// DefaultCapability is the capability used by the fallback rule.
func (r *Router) DefaultCapability() string {
	return r.defaultCapability
}

// Route selects at most one backend from snap for a request with the given
// path and decoded method. method may be empty when the body was not a
// structured call.
func (r *Router) Route(snap *discovery.Snapshot, path, method string) Decision {
	if method != "" {
		if tag, ok := r.capabilities[method]; ok {
			if e, found := firstHealthyWith(snap, tag); found {
				return Decision{BackendID: e.Backend.ID, Backend: e.Backend, Reason: ReasonCapabilityMatch, Capability: tag}
			}
		}
	}
	if e, prefix, ok := MatchPath(snap, path); ok {
		return Decision{BackendID: e.Backend.ID, Backend: e.Backend, Reason: ReasonPathMatch, MatchedPrefix: prefix}
	}
	if d, ok := r.fallback(snap); ok {
		return d
	}
	return Decision{Reason: ReasonNone}
}

func (r *Router) fallback(snap *discovery.Snapshot) (Decision, bool) {
	if r.defaultCapability != "" {
		if e, ok := firstHealthyWith(snap, r.defaultCapability); ok {
			return Decision{BackendID: e.Backend.ID, Backend: e.Backend, Reason: ReasonDefaultFallback, Capability: r.defaultCapability}, true
		}
	}
	var out Decision
	found := false
	snap.ForEach(func(e discovery.Entry) bool {
		if !e.Backend.AlwaysIncluded {
			return true
		}
		out = Decision{BackendID: e.Backend.ID, Backend: e.Backend.Clone(), Reason: ReasonDefaultFallback, Capability: r.defaultCapability}
		found = true
		return false
	})
	return out, found
}

// MatchPath finds the backend whose route prefix owns path, regardless of its
// health. Prefixes match whole path segments and the longest one wins.
func MatchPath(snap *discovery.Snapshot, path string) (discovery.Entry, string, bool) {
	var (
		best  discovery.Entry
		found bool
	)
	snap.ForEach(func(e discovery.Entry) bool {
		prefix := e.Backend.RoutePrefix
		if !HasPrefix(path, prefix) {
			return true
		}
		if !found || len(prefix) > len(best.Backend.RoutePrefix) {
			best = e
			found = true
		}
		return true
	})
	if !found {
		return discovery.Entry{}, "", false
	}
	best.Backend = best.Backend.Clone()
	best.Status.Tools = slices.Clone(best.Status.Tools)
	return best, best.Backend.RoutePrefix, true
}

// HasPrefix reports whether prefix owns path: path equals prefix or continues
// it with a "/" segment separator.
func HasPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return false
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// StripPrefix removes a matched prefix from path, keeping a leading slash.
func StripPrefix(path, prefix string) string {
	if !HasPrefix(path, prefix) {
		return path
	}
	rest := path[len(prefix):]
	if rest == "" {
		return "/"
	}
	return rest
}

func firstHealthyWith(snap *discovery.Snapshot, tag string) (discovery.Entry, bool) {
	var (
		out   discovery.Entry
		found bool
	)
	snap.ForEach(func(e discovery.Entry) bool {
		if e.Status.Healthy && e.Backend.HasCapability(tag) {
			out = e
			out.Backend = e.Backend.Clone()
			found = true
			return false
		}
		return true
	})
	return out, found
}
