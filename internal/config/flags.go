package config

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/urfave/cli/v2"
)

// Flags returns the command-line flags understood by FromCLI. Flags carry no
// defaults of their own so unset flags never mask file or environment values.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to YAML config file"},
		&cli.StringSliceFlag{Name: "env-file", Usage: "Path to .env file (default .env)"},
		&cli.StringFlag{Name: "org-url", Usage: "Azure DevOps organization URL, e.g. https://dev.azure.com/contoso"},
		&cli.StringFlag{Name: "token", Usage: "Azure DevOps personal access token"},
		&cli.StringFlag{Name: "project", Usage: "Default project for tools called without one"},
		&cli.StringFlag{Name: "api-version", Usage: "Azure DevOps REST api-version"},
		&cli.IntFlag{Name: "port", Usage: "SSE listen port"},
		&cli.StringFlag{Name: "auth-secret", Usage: "HS256 secret for bearer tokens (empty disables auth)"},
		&cli.IntFlag{Name: "rate-limit", Usage: "Requests per second per client (0 disables)"},
		&cli.DurationFlag{Name: "tool-timeout", Usage: "Deadline for a single tool call"},
		&cli.Int64Flag{Name: "chunk-size", Usage: "Bytes per ranged file read"},
		&cli.DurationFlag{Name: "chunk-timeout", Usage: "Deadline for a single ranged file read"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}
}

// FromCLI builds the configuration for a command invocation.
func FromCLI(c *cli.Context) (*Config, error) {
	cfg := Default()

	if err := LoadDotEnv(c.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	if path := c.String("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, errors.Wrap(err, "environment")
	}
	cfg.applyFlags(c)
	return cfg, nil
}

func (cfg *Config) applyFlags(c *cli.Context) {
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setString("org-url", &cfg.AzureDevOps.OrganizationURL)
	setString("token", &cfg.AzureDevOps.Token)
	setString("project", &cfg.AzureDevOps.DefaultProject)
	setString("api-version", &cfg.AzureDevOps.APIVersion)
	setString("auth-secret", &cfg.Server.AuthSecret)
	setString("log-level", &cfg.Log.Level)

	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("rate-limit") {
		cfg.Server.RateLimit = c.Int("rate-limit")
	}
	if c.IsSet("tool-timeout") {
		cfg.Server.ToolTimeout = c.Duration("tool-timeout")
	}
	if c.IsSet("chunk-size") {
		cfg.Files.ChunkSize = c.Int64("chunk-size")
	}
	if c.IsSet("chunk-timeout") {
		cfg.Files.ChunkTimeout = c.Duration("chunk-timeout")
	}
}
