package registry

// DefaultHub is the hub identity used when the configuration omits one.
func DefaultHub() HubInfo {
	return HubInfo{
		Name:        "MCP Hub",
		Version:     "1.0.0",
		Description: "Multi-server MCP hub for centralized management",
	}
}

// DefaultRouting is the built-in method table. Operators override it with the
// routing block of the configuration file.
func DefaultRouting() RoutingConfig {
	return RoutingConfig{
		DefaultCapability: "database",
		Methods: map[string][]string{
			"database":        {"execute_sql", "check_health", "list_tables"},
			"file_operations": {"read_file", "write_file", "list_files"},
			"repository":      {"git_clone", "git_commit", "git_push"},
			"scraping":        {"scrape_website", "extract_data"},
		},
	}
}

// DefaultConfig is used when no configuration file exists.
func DefaultConfig() Config {
	return Config{
		Hub:     DefaultHub(),
		Routing: DefaultRouting(),
		Backends: []BackendDescriptor{
			{
				ID:          "supabase",
				DisplayName: "Supabase MCP Server",
				Version:     "3.1.0",
				Description: "Self-hosted Supabase management tools",
				Address:     Address{Scheme: "http", Host: "localhost", Port: 8001},
				RoutePrefix: "/supabase",
				Capabilities: []string{
					"database", "auth", "storage", "realtime",
					"security", "migration", "monitoring", "performance",
				},
				DeclaredToolCount: 47,
				AlwaysIncluded:    true,
				Active:            true,
			},
			{
				ID:                "minecraft",
				DisplayName:       "Minecraft MCP Server",
				Version:           "1.0.0",
				Description:       "Minecraft server management and automation",
				Address:           Address{Scheme: "http", Host: "localhost", Port: 3000},
				RoutePrefix:       "/minecraft",
				Capabilities:      []string{"gaming", "server_management", "automation", "world_management"},
				DeclaredToolCount: 12,
				Active:            true,
			},
		},
	}
}
