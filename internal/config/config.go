// Package config loads server settings from defaults, an optional YAML file,
// .env files and the environment, and command-line flags, in that order of
// increasing precedence.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"azdo-mcp/server/internal/filecontent"
	"azdo-mcp/server/internal/modules"
	"azdo-mcp/server/internal/observability"
	"azdo-mcp/server/pkg/azuredevopsapi"
)

// Config is the complete server configuration.
type Config struct {
	AzureDevOps AzureDevOps              `yaml:"azure_devops"`
	Server      Server                   `yaml:"server"`
	Files       Files                    `yaml:"files"`
	Log         Log                      `yaml:"log"`
	Loki        observability.LokiConfig `yaml:"loki"`
}

// AzureDevOps holds the organization connection.
type AzureDevOps struct {
	OrganizationURL string `yaml:"organization_url"`
	Token           string `yaml:"token"`
	DefaultProject  string `yaml:"default_project"`
	APIVersion      string `yaml:"api_version"`
}

// Server holds transport and dispatch settings.
type Server struct {
	Port        int           `yaml:"port"`
	AuthSecret  string        `yaml:"auth_secret"`
	RateLimit   int           `yaml:"rate_limit"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// Files configures chunked file reads.
type Files struct {
	ChunkSize    int64         `yaml:"chunk_size"`
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`
}

type Log struct {
	Level string `yaml:"level"`
}

const (
	DefaultPort      = 3000
	DefaultRateLimit = 20
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AzureDevOps: AzureDevOps{APIVersion: azuredevopsapi.DefaultAPIVersion},
		Server: Server{
			Port:        DefaultPort,
			RateLimit:   DefaultRateLimit,
			ToolTimeout: modules.DefaultToolTimeout,
		},
		Files: Files{
			ChunkSize:    filecontent.DefaultChunkSize,
			ChunkTimeout: filecontent.DefaultChunkTimeout,
		},
		Log: Log{Level: "info"},
	}
}

// LoadFile overlays the YAML file at path onto cfg. ${VAR} references in the
// file are expanded from the environment.
func (cfg *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("config file not found: %s", path)
		}
		return errors.Wrapf(err, "read config file %q", path)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return errors.Wrapf(err, "invalid YAML in %s", path)
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

type envVar struct {
	name  string
	apply func(cfg *Config, v string) error
}

var envVars = []envVar{
	{"AZURE_DEVOPS_ORG_URL", func(c *Config, v string) error { c.AzureDevOps.OrganizationURL = v; return nil }},
	{"AZURE_DEVOPS_TOKEN", func(c *Config, v string) error { c.AzureDevOps.Token = v; return nil }},
	{"AZURE_DEVOPS_DEFAULT_PROJECT", func(c *Config, v string) error { c.AzureDevOps.DefaultProject = v; return nil }},
	{"AZURE_DEVOPS_API_VERSION", func(c *Config, v string) error { c.AzureDevOps.APIVersion = v; return nil }},
	{"PORT", intVar(func(c *Config) *int { return &c.Server.Port })},
	{"MCP_AUTH_SECRET", func(c *Config, v string) error { c.Server.AuthSecret = v; return nil }},
	{"RATE_LIMIT", intVar(func(c *Config) *int { return &c.Server.RateLimit })},
	{"TOOL_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.ToolTimeout })},
	{"CHUNK_SIZE", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.Files.ChunkSize = n
		return nil
	}},
	{"CHUNK_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Files.ChunkTimeout })},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOKI_URL", func(c *Config, v string) error { c.Loki.URL = v; return nil }},
	{"LOKI_USER", func(c *Config, v string) error { c.Loki.User = v; return nil }},
	{"LOKI_API_KEY", func(c *Config, v string) error { c.Loki.APIKey = v; return nil }},
	{"LOKI_APP", func(c *Config, v string) error { c.Loki.App = v; return nil }},
	{"INSTANCE_ID", func(c *Config, v string) error { c.Loki.Instance = v; return nil }},
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// ApplyEnv overlays variables found by lookup, typically os.LookupEnv.
// Empty values are ignored.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		if err := ev.apply(cfg, v); err != nil {
			return errors.Wrapf(err, "invalid %s", ev.name)
		}
	}
	return nil
}

// Validate reports the first setting that prevents the server from starting.
func (cfg *Config) Validate() error {
	if cfg.AzureDevOps.OrganizationURL == "" {
		return errors.New("azure devops organization url is required (AZURE_DEVOPS_ORG_URL or --org-url)")
	}
	u, err := url.Parse(cfg.AzureDevOps.OrganizationURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("azure devops organization url %q must be an absolute URL", cfg.AzureDevOps.OrganizationURL)
	}
	if cfg.AzureDevOps.Token == "" {
		return errors.New("azure devops personal access token is required (AZURE_DEVOPS_TOKEN or --token)")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.Errorf("port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.RateLimit < 0 {
		return errors.Errorf("rate limit %d must not be negative", cfg.Server.RateLimit)
	}
	if cfg.Files.ChunkSize <= 0 {
		return errors.Errorf("chunk size %d must be positive", cfg.Files.ChunkSize)
	}
	if cfg.Files.ChunkTimeout <= 0 {
		return errors.Errorf("chunk timeout %s must be positive", cfg.Files.ChunkTimeout)
	}
	if cfg.Server.ToolTimeout <= 0 {
		return errors.Errorf("tool timeout %s must be positive", cfg.Server.ToolTimeout)
	}
	return nil
}

const redactedValue = "[redacted]"

// Redacted renders cfg as YAML with secrets masked.
func (cfg *Config) Redacted() string {
	c := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}
	mask(&c.AzureDevOps.Token)
	mask(&c.Server.AuthSecret)
	mask(&c.Loki.APIKey)

	out, err := yaml.Marshal(&c)
	if err != nil {
		return "<unprintable config: " + err.Error() + ">"
	}
	return string(out)
}
