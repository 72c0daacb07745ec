package middleware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"azdo-mcp/server/internal/jsonrpc"
)

// Stdio serves newline-delimited JSON-RPC over a reader/writer pair.
type Stdio struct {
	processor RequestProcessor
	in        io.Reader
	out       io.Writer
	lg        *zap.Logger

	writeMu sync.Mutex
	flight  *inflight
}

// NewStdio creates a stdio transport reading requests from in and writing
// responses to out.
func NewStdio(processor RequestProcessor, in io.Reader, out io.Writer, lg *zap.Logger) *Stdio {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Stdio{
		processor: processor,
		in:        in,
		out:       out,
		lg:        lg.Named("stdio"),
		flight:    newInflight(),
	}
}

// Serve handles requests until ctx is done or the input reaches EOF, then
// cancels every in-flight request and waits for them to return.
func (s *Stdio) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()
	defer s.flight.cancelAll()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		r := bufio.NewReader(s.in)
		for {
			line, err := r.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	s.lg.Info("Serving MCP over stdio")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				s.lg.Info("Input closed, shutting down")
				return nil
			}
			return errors.Wrap(err, "read request")
		case line := <-lines:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := serve(ctx, s.processor, s.flight, line, s.lg); resp != nil {
					s.write(resp)
				}
			}()
		}
	}
}

func (s *Stdio) write(resp *jsonrpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.lg.Error("Failed to encode response", zap.Any("id", resp.ID), zap.Error(err))
		data, _ = json.Marshal(jsonrpc.NewError(resp.ID, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal error"}))
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		s.lg.Warn("Failed to write response", zap.Any("id", resp.ID), zap.Error(err))
	}
}
