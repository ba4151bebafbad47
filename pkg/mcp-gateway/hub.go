package mcpgateway

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/catalog"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

// Endpoint paths served by the hub itself.
const (
	HealthPath    = "/health"
	DiscoveryPath = "/api/discovery"
	ServersPath   = "/api/servers"
	ToolsPath     = "/api/tools"
	MCPConfigPath = "/.well-known/mcp-config"
)

// ServerView is one backend as reported by the discovery and servers
// endpoints.
type ServerView struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Version        string              `json:"version,omitempty"`
	Description    string              `json:"description,omitempty"`
	URL            string              `json:"url"`
	Path           string              `json:"path"`
	Categories     []string            `json:"categories"`
	ToolsCount     int                 `json:"tools_count"`
	AlwaysWorks    bool                `json:"always_works"`
	HealthStatus   string              `json:"health_status"`
	AvailableTools int                 `json:"available_tools"`
	Error          string              `json:"error,omitempty"`
	ErrorKind      discovery.ErrorKind `json:"error_kind,omitempty"`
	LastChecked    time.Time           `json:"last_checked"`
	LatencyMS      float64             `json:"latency_ms"`
	Endpoints      map[string]string   `json:"endpoints,omitempty"`
}

// DiscoveryDocument is the body of GET /api/discovery.
type DiscoveryDocument struct {
	Hub           registry.HubInfo `json:"hub"`
	Servers       []ServerView     `json:"servers"`
	TotalServers  int              `json:"total_servers"`
	OnlineServers int              `json:"online_servers"`
	TotalTools    int              `json:"total_tools"`
	LastDiscovery time.Time        `json:"last_discovery"`
}

// ToolView is one aggregated tool as listed by GET /api/tools.
type ToolView struct {
	discovery.ToolDescriptor
	Category string `json:"category,omitempty"`
}

type healthDocument struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	Servers       int       `json:"servers"`
	OnlineServers int       `json:"online_servers"`
	Tools         int       `json:"tools"`
	Uptime        float64   `json:"uptime"`
	Healthcheck   string    `json:"healthcheck"`
}

type capabilityFlags struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
}

type infoDocument struct {
	Name            string            `json:"name"`
	Title           string            `json:"title,omitempty"`
	Version         string            `json:"version"`
	Description     string            `json:"description,omitempty"`
	ProtocolVersion string            `json:"protocolVersion"`
	Capabilities    capabilityFlags   `json:"capabilities"`
	Endpoints       map[string]string `json:"endpoints"`
	catalog.Summary
}

type mcpConfigDocument struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    capabilityFlags `json:"capabilities"`
	Server          struct {
		Name        string            `json:"name"`
		Version     string            `json:"version"`
		Description string            `json:"description,omitempty"`
		URL         string            `json:"url"`
		Endpoints   map[string]string `json:"endpoints"`
	} `json:"server"`
}

type errorDocument struct {
	Error     string    `json:"error"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := g.opts.Now()
	summary := catalog.Summarize(g.snapshot(r))
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, healthDocument{
		Status:        "UP",
		Timestamp:     now,
		Service:       g.opts.Hub.Name,
		Version:       g.opts.Hub.Version,
		Servers:       summary.TotalServers,
		OnlineServers: summary.OnlineServers,
		Tools:         summary.TotalTools,
		Uptime:        now.Sub(g.started).Seconds(),
		Healthcheck:   "OK",
	})
}

func (g *Gateway) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	snap := g.snapshot(r)
	summary := catalog.Summarize(snap)
	writeJSON(w, http.StatusOK, DiscoveryDocument{
		Hub:           g.opts.Hub,
		Servers:       serverViews(snap, false),
		TotalServers:  summary.TotalServers,
		OnlineServers: summary.OnlineServers,
		TotalTools:    summary.TotalTools,
		LastDiscovery: snap.TakenAt(),
	})
}

func (g *Gateway) handleServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, serverViews(g.snapshot(r), true))
}

func (g *Gateway) handleTools(w http.ResponseWriter, r *http.Request) {
	tools := catalog.Aggregate(g.snapshot(r))
	out := make([]ToolView, 0, len(tools))
	for _, t := range tools {
		view := ToolView{ToolDescriptor: t}
		if tag, ok := g.router.CapabilityFor(t.Name); ok {
			view.Category = tag
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleMCPConfig(w http.ResponseWriter, r *http.Request) {
	var doc mcpConfigDocument
	doc.ProtocolVersion = ProtocolVersion
	doc.Capabilities = capabilityFlags{Tools: true}
	doc.Server.Name = g.opts.Hub.Name
	doc.Server.Version = g.opts.Hub.Version
	doc.Server.Description = g.opts.Hub.Description
	doc.Server.URL = requestBaseURL(r) + g.opts.Path
	doc.Server.Endpoints = g.endpoints()
	writeJSON(w, http.StatusOK, doc)
}

func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	impl := g.opts.Implementation
	writeJSON(w, http.StatusOK, infoDocument{
		Name:            impl.Name,
		Title:           impl.Title,
		Version:         impl.Version,
		Description:     g.opts.Hub.Description,
		ProtocolVersion: ProtocolVersion,
		Capabilities:    capabilityFlags{Tools: true},
		Endpoints:       g.endpoints(),
		Summary:         catalog.Summarize(g.snapshot(r)),
	})
}

// handleOptions answers a bare OPTIONS on the hub's own endpoints. CORS
// preflights are answered earlier by the cors handler.
func (g *Gateway) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, POST, OPTIONS")
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, g.opts.Now(), http.StatusNotFound, "Path not found: "+r.URL.Path)
}

func (g *Gateway) endpoints() map[string]string {
	return map[string]string{
		"mcp":       g.opts.Path,
		"health":    HealthPath,
		"config":    MCPConfigPath,
		"discovery": DiscoveryPath,
		"servers":   ServersPath,
		"tools":     ToolsPath,
	}
}

func serverViews(snap *discovery.Snapshot, withEndpoints bool) []ServerView {
	views := make([]ServerView, 0, snap.Len())
	snap.ForEach(func(e discovery.Entry) bool {
		b, s := e.Backend, e.Status
		view := ServerView{
			ID:             b.ID,
			Name:           b.DisplayName,
			Version:        b.Version,
			Description:    b.Description,
			URL:            b.Address.BaseURL(),
			Path:           b.RoutePrefix,
			Categories:     slices.Clone(b.Capabilities),
			ToolsCount:     b.DeclaredToolCount,
			AlwaysWorks:    b.AlwaysIncluded,
			HealthStatus:   "offline",
			AvailableTools: s.ObservedToolCount,
			Error:          s.Error,
			ErrorKind:      s.ErrorKind,
			LastChecked:    s.LastCheckedAt,
			LatencyMS:      float64(s.Latency.Microseconds()) / 1000,
		}
		if view.Categories == nil {
			view.Categories = []string{}
		}
		if s.Healthy {
			view.HealthStatus = "online"
		}
		if withEndpoints && b.RoutePrefix != "" {
			view.Endpoints = map[string]string{
				"proxy":  b.RoutePrefix,
				"health": b.RoutePrefix + b.DiscoveryPath,
				"tools":  b.RoutePrefix + b.ToolsPath,
			}
		}
		views = append(views, view)
		return true
	})
	return views
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, now time.Time, status int, msg string) {
	writeJSON(w, status, errorDocument{Error: msg, Status: "ERROR", Timestamp: now})
}
