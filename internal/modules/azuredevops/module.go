package azuredevops

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"azdo-mcp/server/internal/filecontent"
	"azdo-mcp/server/internal/modules"
	"azdo-mcp/server/internal/sanitize"
	"azdo-mcp/server/pkg/azuredevopsapi"
)

const moduleName = "azure_devops"

// Options configures the module.
type Options struct {
	// DefaultProject is used when a tool call names no project.
	DefaultProject string
	// Files configures the chunked file fetcher.
	Files  filecontent.Options
	Logger *zap.Logger
}

// Module exposes the Azure DevOps REST API as MCP tools.
type Module struct {
	client         *azuredevopsapi.Client
	files          *filecontent.Fetcher
	defaultProject string
	lg             *zap.Logger
}

// New creates the module over client.
func New(client *azuredevopsapi.Client, opts Options) (*Module, error) {
	if client == nil {
		return nil, errors.New("azure devops client is nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	lg := opts.Logger.Named(moduleName)
	if opts.Files.Logger == nil {
		opts.Files.Logger = lg
	}
	files, err := filecontent.NewFetcher(contentSource{client: client}, opts.Files)
	if err != nil {
		return nil, errors.Wrap(err, "file fetcher")
	}
	return &Module{
		client:         client,
		files:          files,
		defaultProject: opts.DefaultProject,
		lg:             lg,
	}, nil
}

func (m *Module) Name() string { return moduleName }
func (m *Module) Description() string {
	return "Azure DevOps API - Projects, work items, Git repositories, pull requests and test plans"
}
func (m *Module) APIVersion() string { return azuredevopsapi.DefaultAPIVersion }

func (m *Module) Tools() []modules.Tool {
	return toolDefinitions
}

// ExecuteTool runs a tool and renders its result with the sanitizing
// serializer.
func (m *Module) ExecuteTool(ctx context.Context, name string, params map[string]any) (string, error) {
	handler, ok := toolHandlers[name]
	if !ok {
		return "", errors.Errorf("unknown tool: %s", name)
	}
	result, err := handler(m, ctx, params)
	if err != nil {
		return "", err
	}
	return sanitize.Sanitize(result), nil
}

// ToolTimeout lifts the overall deadline for the file content tools. Each of
// their chunk requests carries its own ceiling.
func (m *Module) ToolTimeout(name string) (time.Duration, bool) {
	switch name {
	case toolPullRequestFileContent, toolBranchFileContent:
		return 0, true
	}
	return 0, false
}

func (m *Module) project(params map[string]any) string {
	if p := modules.StringParam(params, "project"); p != "" {
		return p
	}
	return m.defaultProject
}
