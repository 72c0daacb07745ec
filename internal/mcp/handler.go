package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"azdo-mcp/server/internal/jsonrpc"
	"azdo-mcp/server/internal/modules"
)

type Handler struct {
	registry *modules.Registry
	info     ServerInfo
	lg       *zap.Logger
}

func NewHandler(registry *modules.Registry, info ServerInfo, lg *zap.Logger) *Handler {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		info:     info,
		lg:       lg,
	}
}

// ProcessRequest routes a JSON-RPC request to the appropriate handler.
// Called by the transports. Notifications yield (nil, nil).
func (h *Handler) ProcessRequest(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	switch req.Method {
	case "initialize":
		return h.handleInitialize(req), nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return h.handleToolsList(), nil
	case "tools/call":
		return h.handleToolCall(ctx, req)
	}
	if req.Method == "initialized" || strings.HasPrefix(req.Method, "notifications/") {
		return nil, nil
	}
	return nil, &jsonrpc.Error{Code: MethodNotFound, Message: "Method not found"}
}

func (h *Handler) handleInitialize(req *jsonrpc.Request) *InitializeResult {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.lg.Debug("Ignoring malformed initialize params", zap.Error(err))
		}
	}
	h.lg.Info("Client initialized",
		zap.String("client", params.ClientInfo.Name),
		zap.String("client_version", params.ClientInfo.Version),
		zap.String("protocol", params.ProtocolVersion),
	)
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo:   h.info,
		Instructions: h.instructions(),
	}
}

// instructions joins the descriptions of the registered modules.
func (h *Handler) instructions() string {
	var parts []string
	for _, name := range h.registry.ListModules() {
		if m, ok := h.registry.GetModule(name); ok {
			parts = append(parts, m.Description())
		}
	}
	return strings.Join(parts, "\n\n")
}

func (h *Handler) handleToolsList() *ToolsListResult {
	return &ToolsListResult{Tools: h.registry.Tools()}
}

func (h *Handler) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*ToolCallResult, *jsonrpc.Error) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &jsonrpc.Error{Code: InvalidParams, Message: "Invalid params structure"}
	}
	if params.Name == "" {
		return nil, &jsonrpc.Error{Code: InvalidParams, Message: "name is required"}
	}
	if !h.registry.HasTool(params.Name) {
		return nil, &jsonrpc.Error{Code: InvalidParams, Message: fmt.Sprintf("Unknown tool: %s", params.Name)}
	}
	if params.Arguments == nil {
		params.Arguments = make(map[string]any)
	}
	return h.registry.Run(ctx, params.Name, params.Arguments), nil
}
