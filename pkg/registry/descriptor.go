package registry

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDiscoveryPath    = "/health"
	DefaultDiscoveryTimeout = 5 * time.Second
	DefaultToolsPath        = "/api/tools"
	DefaultMCPPath          = "/mcp"
)

// ToolsSource selects how a backend's tool list is fetched after a successful
// liveness probe.
type ToolsSource string

const (
	// ToolsSourceREST fetches a JSON tool list with a plain GET on ToolsPath.
	ToolsSourceREST ToolsSource = "rest"
	// ToolsSourceMCP lists tools over MCP Streamable HTTP at MCPPath.
	ToolsSourceMCP ToolsSource = "mcp"
)

// Address is the network location of a backend.
type Address struct {
	Scheme string
	Host   string
	Port   int
}

// BaseURL renders the address as scheme://host:port without a trailing slash.
func (a Address) BaseURL() string {
	scheme := a.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := a.Host
	if a.Port > 0 {
		host = net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

// BackendDescriptor describes one backend service. Values are immutable once
// the Registry has been built; the slices are copied on the way in and out.
type BackendDescriptor struct {
	ID          string
	DisplayName string
	Version     string
	Description string

	Address     Address
	RoutePrefix string

	Capabilities      []string
	DeclaredToolCount int

	DiscoveryPath    string
	DiscoveryTimeout time.Duration

	ToolsSource ToolsSource
	ToolsPath   string
	MCPPath     string

	// AlwaysIncluded keeps the backend selectable as a last-resort fallback
	// while it is unreachable.
	AlwaysIncluded bool
	Active         bool
}

// HasCapability reports whether tag is among the declared capabilities.
func (d BackendDescriptor) HasCapability(tag string) bool {
	return slices.Contains(d.Capabilities, tag)
}

// URL joins the backend base URL with path.
func (d BackendDescriptor) URL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return d.Address.BaseURL() + path
}

// DiscoveryURL is the liveness probe target.
func (d BackendDescriptor) DiscoveryURL() string {
	return d.URL(d.DiscoveryPath)
}

func (d BackendDescriptor) withDefaults() BackendDescriptor {
	out := d
	out.Capabilities = slices.Clone(d.Capabilities)
	if out.DisplayName == "" {
		out.DisplayName = out.ID
	}
	if out.Address.Scheme == "" {
		out.Address.Scheme = "http"
	}
	if out.DiscoveryPath == "" {
		out.DiscoveryPath = DefaultDiscoveryPath
	}
	if out.DiscoveryTimeout <= 0 {
		out.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if out.ToolsSource == "" {
		out.ToolsSource = ToolsSourceREST
	}
	if out.ToolsPath == "" {
		out.ToolsPath = DefaultToolsPath
	}
	if out.MCPPath == "" {
		out.MCPPath = DefaultMCPPath
	}
	out.RoutePrefix = normalizePrefix(out.RoutePrefix)
	return out
}

// Clone returns a copy that shares no slices with d.
func (d BackendDescriptor) Clone() BackendDescriptor {
	out := d
	out.Capabilities = slices.Clone(d.Capabilities)
	return out
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}
	return prefix
}
