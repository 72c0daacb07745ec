package modules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"azdo-mcp/server/internal/observability"
)

// DefaultToolTimeout is the deadline applied to a tool call unless its module
// overrides it.
const DefaultToolTimeout = 30 * time.Second

const instrumentationName = "azdo-mcp/server/internal/modules"

// =============================================================================
// Registry
// =============================================================================

// Registry maps tool names to the modules that serve them.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	tools   map[string]Module
	order   []Tool

	timeout time.Duration
	lg      *zap.Logger
	tracer  trace.Tracer
	calls   metric.Int64Counter
}

// RegistryOptions configures a Registry. Zero fields take defaults.
type RegistryOptions struct {
	ToolTimeout    time.Duration
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	calls, err := opts.MeterProvider.Meter(instrumentationName).Int64Counter("tool.calls",
		metric.WithDescription("Tool invocations by tool and status"),
	)
	if err != nil {
		opts.Logger.Warn("Tool call counter unavailable", zap.Error(err))
	}
	return &Registry{
		modules: make(map[string]Module),
		tools:   make(map[string]Module),
		timeout: opts.ToolTimeout,
		lg:      opts.Logger,
		tracer:  opts.TracerProvider.Tracer(instrumentationName),
		calls:   calls,
	}
}

// Register adds a module. Tool names must be unique across modules.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[m.Name()]; exists {
		return errors.Errorf("module %q already registered", m.Name())
	}
	for _, t := range m.Tools() {
		if owner, exists := r.tools[t.Name]; exists {
			return errors.Errorf("tool %q of module %q already registered by %q", t.Name, m.Name(), owner.Name())
		}
	}
	r.modules[m.Name()] = m
	for _, t := range m.Tools() {
		r.tools[t.Name] = m
		r.order = append(r.order, t)
	}
	return nil
}

// GetModule returns a module by name
func (r *Registry) GetModule(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// ListModules returns all registered module names, sorted.
func (r *Registry) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTool reports whether a module serves toolName.
func (r *Registry) HasTool(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[toolName]
	return ok
}

// Tools returns every registered tool in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.order...)
}

// =============================================================================
// Tool Execution
// =============================================================================

// Run executes a tool by name. Tool failures are reported as error results,
// never as a Go error.
func (r *Registry) Run(ctx context.Context, toolName string, params map[string]any) *ToolCallResult {
	start := time.Now()

	r.mu.RLock()
	m, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		return ErrorResult(errors.Errorf("unknown tool: %s", toolName))
	}

	ctx, span := r.tracer.Start(ctx, "tool.call", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool.module", m.Name()),
	))
	defer span.End()

	// Validate params against tool's InputSchema
	if tool, found := findTool(m.Tools(), toolName); found {
		validated, err := ValidateParams(tool.InputSchema, params)
		if err != nil {
			r.record(ctx, span, m.Name(), toolName, start, err)
			return ErrorResult(err)
		}
		params = validated
	}

	timeout := r.timeout
	if o, ok := m.(TimeoutOverrider); ok {
		if d, set := o.ToolTimeout(toolName); set {
			timeout = d
		}
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := m.ExecuteTool(runCtx, toolName, params)
	if err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = errors.Errorf("%s timed out after %s. Azure DevOps did not respond in time.", toolName, timeout)
		}
		r.record(ctx, span, m.Name(), toolName, start, err)
		return ErrorResult(err)
	}

	r.record(ctx, span, m.Name(), toolName, start, nil)
	return TextResult(result)
}

func (r *Registry) record(ctx context.Context, span trace.Span, module, tool string, start time.Time, err error) {
	duration := time.Since(start)
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, errMsg)
		r.lg.Warn("Tool call failed",
			zap.String("tool", tool),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		r.lg.Info("Tool call",
			zap.String("tool", tool),
			zap.Duration("duration", duration),
		)
	}
	if r.calls != nil {
		r.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		))
	}
	observability.LogToolCall(observability.RequestID(ctx), observability.Subject(ctx), module, tool, duration.Milliseconds(), status, errMsg)
}

// ErrorResult renders err as an error result with a {"error": "..."} body.
func ErrorResult(err error) *ToolCallResult {
	var e jx.Encoder
	e.SetIdent(2)
	e.ObjStart()
	e.FieldStart("error")
	e.Str(err.Error())
	e.ObjEnd()
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: e.String()}},
		IsError: true,
	}
}
