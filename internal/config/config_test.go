package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func valid() *Config {
	cfg := Default()
	cfg.AzureDevOps.OrganizationURL = "https://dev.azure.com/contoso"
	cfg.AzureDevOps.Token = "pat"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "7.0", cfg.AzureDevOps.APIVersion)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, int64(100000), cfg.Files.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Server.ToolTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_AZDO_PAT", "from-env")
	path := writeTemp(t, "config.yaml", `azure_devops:
  organization_url: https://dev.azure.com/contoso
  token: ${TEST_AZDO_PAT}
  default_project: Fabrikam
server:
  port: 8080
  tool_timeout: 45s
files:
  chunk_timeout: 1m
loki:
  url: https://logs.example.com
`)

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "https://dev.azure.com/contoso", cfg.AzureDevOps.OrganizationURL)
	assert.Equal(t, "from-env", cfg.AzureDevOps.Token)
	assert.Equal(t, "Fabrikam", cfg.AzureDevOps.DefaultProject)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ToolTimeout)
	assert.Equal(t, time.Minute, cfg.Files.ChunkTimeout)
	assert.Equal(t, "https://logs.example.com", cfg.Loki.URL)
	// Untouched keys keep their defaults.
	assert.Equal(t, "7.0", cfg.AzureDevOps.APIVersion)
	assert.Equal(t, int64(100000), cfg.Files.ChunkSize)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")

	err = cfg.LoadFile(writeTemp(t, "bad.yaml", "server: [1, 2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"AZURE_DEVOPS_ORG_URL":         "https://dev.azure.com/contoso",
		"AZURE_DEVOPS_TOKEN":           "pat",
		"AZURE_DEVOPS_DEFAULT_PROJECT": "  Fabrikam  ",
		"PORT":                         "9000",
		"CHUNK_SIZE":                   "4096",
		"CHUNK_TIMEOUT":                "10s",
		"LOG_LEVEL":                    "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "Fabrikam", cfg.AzureDevOps.DefaultProject)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(4096), cfg.Files.ChunkSize)
	assert.Equal(t, 10*time.Second, cfg.Files.ChunkTimeout)
	assert.Equal(t, "info", cfg.Log.Level, "empty values are ignored")

	t.Run("invalid number", func(t *testing.T) {
		bad := func(k string) (string, bool) {
			if k == "RATE_LIMIT" {
				return "lots", true
			}
			return "", false
		}
		err := Default().ApplyEnv(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid RATE_LIMIT")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing org", func(c *Config) { c.AzureDevOps.OrganizationURL = "" }, "organization url is required"},
		{"relative org", func(c *Config) { c.AzureDevOps.OrganizationURL = "contoso" }, "must be an absolute URL"},
		{"missing token", func(c *Config) { c.AzureDevOps.Token = "" }, "personal access token is required"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "must not be negative"},
		{"zero chunk", func(c *Config) { c.Files.ChunkSize = 0 }, "chunk size"},
		{"zero chunk timeout", func(c *Config) { c.Files.ChunkTimeout = 0 }, "chunk timeout"},
		{"zero tool timeout", func(c *Config) { c.Server.ToolTimeout = 0 }, "tool timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := valid()
	cfg.AzureDevOps.Token = "super-secret-pat"
	cfg.Server.AuthSecret = "jwt-secret"
	cfg.Loki.APIKey = "loki-key"

	out := cfg.Redacted()
	for _, secret := range []string{"super-secret-pat", "jwt-secret", "loki-key"} {
		assert.NotContains(t, out, secret)
	}
	assert.Contains(t, out, "https://dev.azure.com/contoso")
	assert.Equal(t, 3, strings.Count(out, redactedValue))
	assert.Equal(t, "super-secret-pat", cfg.AzureDevOps.Token, "original is not modified")
}

func runCLI(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg *Config
		err error
	)
	app := &cli.App{
		Name:  "test",
		Flags: Flags(),
		Action: func(c *cli.Context) error {
			cfg, err = FromCLI(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	return cfg, err
}

func TestFromCLIPrecedence(t *testing.T) {
	file := writeTemp(t, "config.yaml", `azure_devops:
  organization_url: https://dev.azure.com/from-file
  token: file-token
server:
  port: 4000
  rate_limit: 5
`)
	dotenv := writeTemp(t, ".env", "AZURE_DEVOPS_TOKEN=dotenv-token\nAZURE_DEVOPS_DEFAULT_PROJECT=FromDotEnv\n")
	t.Setenv("PORT", "5000")
	t.Setenv("AZURE_DEVOPS_DEFAULT_PROJECT", "FromEnv")
	require.NoError(t, os.Unsetenv("AZURE_DEVOPS_TOKEN"))
	t.Cleanup(func() { os.Unsetenv("AZURE_DEVOPS_TOKEN") })

	cfg, err := runCLI(t, "--config", file, "--env-file", dotenv, "--port", "6000", "--chunk-timeout", "2s")
	require.NoError(t, err)

	assert.Equal(t, "https://dev.azure.com/from-file", cfg.AzureDevOps.OrganizationURL, "file")
	assert.Equal(t, "dotenv-token", cfg.AzureDevOps.Token, ".env overrides file")
	assert.Equal(t, "FromEnv", cfg.AzureDevOps.DefaultProject, "environment wins over .env")
	assert.Equal(t, 5, cfg.Server.RateLimit, "file")
	assert.Equal(t, 6000, cfg.Server.Port, "flag wins over environment")
	assert.Equal(t, 2*time.Second, cfg.Files.ChunkTimeout, "flag")
	assert.Equal(t, "7.0", cfg.AzureDevOps.APIVersion, "default")
}

func TestFromCLIMissingConfigFile(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
