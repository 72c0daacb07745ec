package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"azdo-mcp/server/internal/jsonrpc"
	"azdo-mcp/server/internal/observability"
)

// RequestProcessor processes JSON-RPC requests.
// Implemented by the MCP handler.
type RequestProcessor interface {
	ProcessRequest(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error)
}

const cancelledMethod = "notifications/cancelled"

// errRequestCancelled is the cause attached to requests the client or the
// transport abandoned. Such requests get no response.
var errRequestCancelled = errors.New("request cancelled")

// inflight tracks cancel functions of running requests by JSON-RPC id.
type inflight struct {
	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
}

func newInflight() *inflight {
	return &inflight{cancels: make(map[string]context.CancelCauseFunc)}
}

// idKey distinguishes 1 from "1".
func idKey(id any) string {
	return fmt.Sprintf("%T:%v", id, id)
}

func (f *inflight) add(id any, cancel context.CancelCauseFunc) {
	f.mu.Lock()
	f.cancels[idKey(id)] = cancel
	f.mu.Unlock()
}

func (f *inflight) done(id any) {
	f.mu.Lock()
	delete(f.cancels, idKey(id))
	f.mu.Unlock()
}

func (f *inflight) cancel(id any) bool {
	f.mu.Lock()
	cancel, ok := f.cancels[idKey(id)]
	delete(f.cancels, idKey(id))
	f.mu.Unlock()
	if ok {
		cancel(errRequestCancelled)
	}
	return ok
}

func (f *inflight) cancelAll() {
	f.mu.Lock()
	for k, cancel := range f.cancels {
		cancel(errRequestCancelled)
		delete(f.cancels, k)
	}
	f.mu.Unlock()
}

// serve decodes one raw message and runs it through p. A nil response means
// nothing is written back: notifications and cancelled requests.
func serve(ctx context.Context, p RequestProcessor, flight *inflight, raw []byte, lg *zap.Logger) (resp *jsonrpc.Response) {
	var req jsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return jsonrpc.NewError(nil, &jsonrpc.Error{Code: jsonrpc.ParseError, Message: "Parse error"})
	}
	if req.JSONRPC != jsonrpc.Version || req.Method == "" {
		return jsonrpc.NewError(req.ID, &jsonrpc.Error{Code: jsonrpc.InvalidRequest, Message: "Invalid Request"})
	}

	if req.Method == cancelledMethod {
		var params struct {
			RequestID any    `json:"requestId"`
			Reason    string `json:"reason"`
		}
		if err := json.Unmarshal(req.Params, &params); err == nil && params.RequestID != nil {
			if flight.cancel(params.RequestID) {
				lg.Info("Request cancelled by client",
					zap.Any("id", params.RequestID),
					zap.String("reason", params.Reason),
				)
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if !req.IsNotification() {
		flight.add(req.ID, cancel)
		defer flight.done(req.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			lg.Error("Panic while processing request",
				zap.String("method", req.Method),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			observability.LogSecurityEvent(observability.RequestID(ctx), observability.Subject(ctx), "panic_recovered", map[string]any{
				"method": req.Method,
				"error":  fmt.Sprintf("%v", r),
			})
			if req.IsNotification() {
				resp = nil
				return
			}
			resp = jsonrpc.NewError(req.ID, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal error"})
		}
	}()

	lg.Debug("Received request", zap.String("method", req.Method), zap.Any("id", req.ID))
	result, rpcErr := p.ProcessRequest(ctx, &req)

	if req.IsNotification() {
		return nil
	}
	if errors.Is(context.Cause(ctx), errRequestCancelled) {
		lg.Debug("Dropping response of cancelled request", zap.Any("id", req.ID))
		return nil
	}
	if rpcErr != nil {
		return jsonrpc.NewError(req.ID, rpcErr)
	}
	return jsonrpc.NewResult(req.ID, result)
}
