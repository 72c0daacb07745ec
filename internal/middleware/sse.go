package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"azdo-mcp/server/internal/jsonrpc"
)

const (
	// DefaultKeepAlive is the interval of SSE comment pings.
	DefaultKeepAlive = 30 * time.Second
	// MessagePath is where clients POST requests for an SSE session.
	MessagePath = "/message"

	maxMessageBytes = 4 << 20
	sessionBuffer   = 100
)

// SSEOptions configures the SSE transport. Zero fields take defaults.
type SSEOptions struct {
	KeepAlive time.Duration
	Logger    *zap.Logger
}

// session represents an SSE connection session.
type session struct {
	id       string
	messages chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	flight   *inflight
}

func (s *session) send(data []byte) bool {
	select {
	case s.messages <- data:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// SSE manages MCP sessions over server-sent events.
type SSE struct {
	processor RequestProcessor
	keepAlive time.Duration
	lg        *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// NewSSE creates an SSE transport delegating to processor.
func NewSSE(processor RequestProcessor, opts SSEOptions) *SSE {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &SSE{
		processor: processor,
		keepAlive: opts.KeepAlive,
		lg:        opts.Logger.Named("sse"),
		sessions:  make(map[string]*session),
	}
}

// ActiveSessions reports the number of open SSE streams.
func (t *SSE) ActiveSessions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// HandleSSE opens a session stream (GET /sse).
func (t *SSE) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.NewString(),
		messages: make(chan []byte, sessionBuffer),
		ctx:      ctx,
		cancel:   cancel,
		flight:   newInflight(),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	t.sessions[s.id] = s
	t.mu.Unlock()

	lg := t.lg.With(zap.String("session", s.id))
	defer func() {
		t.mu.Lock()
		delete(t.sessions, s.id)
		t.mu.Unlock()
		s.flight.cancelAll()
		cancel()
		lg.Info("SSE connection closed")
	}()

	fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", MessagePath, s.id)
	flusher.Flush()
	lg.Info("SSE connection established", zap.String("remote_addr", r.RemoteAddr))

	ticker := time.NewTicker(t.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.messages:
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg); err != nil {
				lg.Warn("Failed to write SSE message", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// HandleMessage routes a POSTed request to its session (POST /message).
// The response is delivered on the session stream.
func (t *SSE) HandleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	t.mu.RLock()
	s, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if !t.track() {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	// The request outlives the POST but not the session. Values such as the
	// request id and subject carry over.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	stop := context.AfterFunc(s.ctx, cancel)

	go func() {
		defer t.wg.Done()
		defer stop()
		defer cancel()
		resp := serve(ctx, t.processor, s.flight, body, t.lg.With(zap.String("session", s.id)))
		if resp == nil {
			return
		}
		if !s.send(t.encode(resp)) {
			t.lg.Debug("Session closed before response was sent", zap.String("session", s.id), zap.Any("id", resp.ID))
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	io.WriteString(w, "Accepted")
}

// HandleInline answers a POSTed request in the HTTP response body. Used by
// clients that do not keep an SSE stream open.
func (t *SSE) HandleInline(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sessionId") != "" {
		t.HandleMessage(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	resp := serve(r.Context(), t.processor, newInflight(), body, t.lg)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(t.encode(resp))
}

// track registers one session request with t.wg unless Close has started.
func (t *SSE) track() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

// Close ends every session and waits for their requests to finish. Streams
// and messages arriving afterwards are refused.
func (t *SSE) Close() {
	t.mu.Lock()
	t.closed = true
	for _, s := range t.sessions {
		s.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *SSE) encode(resp *jsonrpc.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		t.lg.Error("Failed to encode response", zap.Any("id", resp.ID), zap.Error(err))
		data, _ = json.Marshal(jsonrpc.NewError(resp.ID, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal error"}))
	}
	return data
}
