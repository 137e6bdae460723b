// Package config loads the YAML configuration for voyage.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Tools     ToolsConfig     `yaml:"tools"`
	Travel    TravelConfig    `yaml:"travel"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ToolServerPort int    `yaml:"toolserver_port"`
}

type DatabaseConfig struct {
	// Driver selects the session store backend: "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file (sqlite driver).
	Path string `yaml:"path"`
	// DSN is the connection string (postgres driver).
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LLMConfig struct {
	// Provider selects the chat backend: "openai" or "anthropic".
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type AgentConfig struct {
	SystemPrompt  string        `yaml:"system_prompt"`
	ContextWindow int           `yaml:"context_window"`
	HistoryLimit  int           `yaml:"history_limit"`
	MaxRounds     int           `yaml:"max_rounds"`
	DefaultOwner  string        `yaml:"default_owner"`
	TurnTimeout   time.Duration `yaml:"turn_timeout"`
}

type ToolsConfig struct {
	// Mode selects where tools come from: "builtin", "catalog", or "mcp".
	Mode string `yaml:"mode"`
	// CatalogURL is the base URL of the tool microservice (catalog mode).
	CatalogURL string        `yaml:"catalog_url"`
	Timeout    time.Duration `yaml:"timeout"`
	// MCP configures the stdio tool-server subprocess (mcp mode).
	MCP MCPConfig `yaml:"mcp"`
}

type MCPConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

type TravelConfig struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
	OpenRouteAPIKey   string `yaml:"openroute_api_key"`
	AmadeusAPIKey     string `yaml:"amadeus_api_key"`
	AmadeusAPISecret  string `yaml:"amadeus_api_secret"`
	UserAgent         string `yaml:"user_agent"`
}

type RetentionConfig struct {
	// MaxAge is how long inactive sessions are kept; zero disables the sweep.
	MaxAge time.Duration `yaml:"max_age"`
	// Schedule is a cron expression for the periodic sweep.
	Schedule string `yaml:"schedule"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with sensible defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8001,
			ToolServerPort: 8000,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/conversations.db",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			MaxTokens: 2000,
		},
		Agent: AgentConfig{
			ContextWindow: 10,
			HistoryLimit:  50,
			MaxRounds:     8,
			DefaultOwner:  "default",
			TurnTimeout:   2 * time.Minute,
		},
		Tools: ToolsConfig{
			Mode:    "builtin",
			Timeout: 30 * time.Second,
		},
		Travel: TravelConfig{
			UserAgent: "voyage/1.0",
		},
		Retention: RetentionConfig{
			Schedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment. A missing file returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills credentials from well-known environment variables when the
// file leaves them empty.
func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Travel.OpenWeatherAPIKey == "" {
		c.Travel.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	}
	if c.Travel.OpenRouteAPIKey == "" {
		c.Travel.OpenRouteAPIKey = os.Getenv("OPENROUTE_API_KEY")
	}
	if c.Travel.AmadeusAPIKey == "" {
		c.Travel.AmadeusAPIKey = os.Getenv("AMADEUS_API_KEY")
	}
	if c.Travel.AmadeusAPISecret == "" {
		c.Travel.AmadeusAPISecret = os.Getenv("AMADEUS_API_SECRET")
	}
}

// Validate checks for configuration mistakes that would surface later as
// confusing runtime errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q (want sqlite or postgres)", c.Database.Driver)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm.provider %q (want openai or anthropic)", c.LLM.Provider)
	}

	switch c.Tools.Mode {
	case "builtin", "catalog", "mcp":
	default:
		return fmt.Errorf("unknown tools.mode %q (want builtin, catalog, or mcp)", c.Tools.Mode)
	}
	if c.Tools.Mode == "catalog" && strings.TrimSpace(c.Tools.CatalogURL) == "" {
		return fmt.Errorf("tools.catalog_url is required in catalog mode")
	}
	if c.Tools.Mode == "mcp" && strings.TrimSpace(c.Tools.MCP.Command) == "" {
		return fmt.Errorf("tools.mcp.command is required in mcp mode")
	}

	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be positive")
	}
	if c.Agent.ContextWindow <= 0 {
		return fmt.Errorf("agent.context_window must be positive")
	}
	return nil
}
