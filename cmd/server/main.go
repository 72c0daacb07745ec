// Command server exposes an Azure DevOps organization as MCP tools over stdio
// or HTTP server-sent events.
//
// Usage:
//
//	server [flags]            serve on stdin/stdout
//	server sse [flags]        serve on http://:PORT/sse
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"azdo-mcp/server/internal/config"
)

const serverName = "azure-devops-mcp"

// version is set via ldflags at build time.
var version = "dev"

func main() {
	app := &cli.App{
		Name:    serverName,
		Usage:   "Azure DevOps tools over the Model Context Protocol",
		Version: version,
		Flags:   config.Flags(),
		Action:  stdioAction,
		Commands: []*cli.Command{
			{
				Name:   "stdio",
				Usage:  "Serve MCP on stdin/stdout (default)",
				Flags:  config.Flags(),
				Action: stdioAction,
			},
			{
				Name:   "sse",
				Usage:  "Serve MCP over HTTP server-sent events",
				Flags:  config.Flags(),
				Action: sseAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
