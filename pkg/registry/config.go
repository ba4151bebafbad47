package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "mcp_servers_config.json"

// Config is the parsed configuration document.
type Config struct {
	Hub      HubInfo
	Backends []BackendDescriptor
	Routing  RoutingConfig
}

// RoutingConfig is the method-to-capability table handed to the router.
type RoutingConfig struct {
	// DefaultCapability is the capability used for fallback routing.
	DefaultCapability string `yaml:"default_capability"`
	// Methods maps a capability tag to the JSON-RPC method or tool names that
	// require it.
	Methods map[string][]string `yaml:"methods"`
}

// Registry builds the Registry from the configured backends.
func (c Config) Registry() (*Registry, error) {
	return New(c.Backends)
}

type fileConfig struct {
	Hub     HubInfo        `yaml:"hub"`
	Servers yaml.Node      `yaml:"servers"`
	Routing *RoutingConfig `yaml:"routing"`
}

type fileBackend struct {
	Name             string   `yaml:"name"`
	Version          string   `yaml:"version"`
	Description      string   `yaml:"description"`
	Path             string   `yaml:"path"`
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	Protocol         string   `yaml:"protocol"`
	Status           string   `yaml:"status"`
	ToolsCount       int      `yaml:"tools_count"`
	Categories       []string `yaml:"categories"`
	AlwaysWorks      bool     `yaml:"always_works"`
	DiscoveryPath    string   `yaml:"discovery_path"`
	DiscoveryTimeout seconds  `yaml:"discovery_timeout"`
	ToolsSource      string   `yaml:"tools_source"`
	ToolsPath        string   `yaml:"tools_path"`
	MCPPath          string   `yaml:"mcp_path"`
}

// seconds accepts either a number of seconds or a Go duration string.
type seconds time.Duration

func (s *seconds) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", value.Line)
	}
	if f, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*s = seconds(time.Duration(f * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*s = seconds(d)
	return nil
}

func (b fileBackend) descriptor(id string) BackendDescriptor {
	return BackendDescriptor{
		ID:          id,
		DisplayName: b.Name,
		Version:     b.Version,
		Description: b.Description,
		Address: Address{
			Scheme: b.Protocol,
			Host:   b.Host,
			Port:   b.Port,
		},
		RoutePrefix:       b.Path,
		Capabilities:      b.Categories,
		DeclaredToolCount: b.ToolsCount,
		DiscoveryPath:     b.DiscoveryPath,
		DiscoveryTimeout:  time.Duration(b.DiscoveryTimeout),
		ToolsSource:       ToolsSource(b.ToolsSource),
		ToolsPath:         b.ToolsPath,
		MCPPath:           b.MCPPath,
		AlwaysIncluded:    b.AlwaysWorks,
		Active:            b.Status == "" || b.Status == "active",
	}
}

// LoadConfig reads the configuration document at path. A missing file yields
// DefaultConfig; a malformed one is an error.
func LoadConfig(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no configuration file found, using defaults", "path", path)
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	logger.Info("loaded configuration", "path", path, "backends", len(cfg.Backends))
	return cfg, nil
}

// ParseConfig decodes a YAML or JSON configuration document. Backend order is
// the order in which the servers appear in the document.
func ParseConfig(data []byte) (Config, error) {
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, err
	}
	cfg := Config{Hub: raw.Hub, Routing: DefaultRouting()}
	if raw.Routing != nil {
		if raw.Routing.DefaultCapability != "" {
			cfg.Routing.DefaultCapability = raw.Routing.DefaultCapability
		}
		if raw.Routing.Methods != nil {
			cfg.Routing.Methods = raw.Routing.Methods
		}
	}
	if cfg.Hub.Name == "" {
		cfg.Hub = DefaultHub()
	}

	servers := &raw.Servers
	if servers.Kind == 0 {
		return cfg, nil
	}
	if servers.Kind != yaml.MappingNode {
		return Config{}, ConfigurationError{Field: "servers", Message: "must be a mapping of backend id to settings"}
	}
	for i := 0; i+1 < len(servers.Content); i += 2 {
		key, value := servers.Content[i], servers.Content[i+1]
		var b fileBackend
		if err := value.Decode(&b); err != nil {
			return Config{}, ConfigurationError{BackendID: key.Value, Field: "servers", Message: err.Error()}
		}
		cfg.Backends = append(cfg.Backends, b.descriptor(key.Value))
	}
	return cfg, nil
}
