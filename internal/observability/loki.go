package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// LokiConfig holds Grafana Loki push settings. Shipping is disabled unless
// URL, User and APIKey are all set.
type LokiConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	APIKey   string `yaml:"api_key"`
	App      string `yaml:"app"`
	Instance string `yaml:"instance"`
}

// Enabled reports whether the configuration is complete.
func (c LokiConfig) Enabled() bool {
	return c.URL != "" && c.User != "" && c.APIKey != ""
}

type LokiClient struct {
	url        string
	username   string
	apiKey     string
	httpClient *http.Client
	enabled    bool
	appName    string
	instanceID string
	lg         *zap.Logger
	wg         sync.WaitGroup
}

// Loki Push API format
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

var (
	clientMu      sync.RWMutex
	defaultClient *LokiClient
)

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewLokiClient creates a client. A disabled client drops every entry.
func NewLokiClient(cfg LokiConfig, lg *zap.Logger) *LokiClient {
	if lg == nil {
		lg = zap.NewNop()
	}
	c := &LokiClient{
		appName:    firstNonEmpty(cfg.App, "azdo-mcp"),
		instanceID: firstNonEmpty(cfg.Instance, "local"),
		lg:         lg.Named("loki"),
	}
	if !cfg.Enabled() {
		return c
	}
	c.url = strings.TrimSuffix(cfg.URL, "/") + "/loki/api/v1/push"
	c.username = cfg.User
	c.apiKey = cfg.APIKey
	c.httpClient = &http.Client{Timeout: 5 * time.Second}
	c.enabled = true
	return c
}

// Init installs the process-wide Loki client used by the Log* helpers.
func Init(cfg LokiConfig, lg *zap.Logger) {
	c := NewLokiClient(cfg, lg)
	if c.enabled {
		c.lg.Info("Loki client initialized", zap.String("url", c.url))
	} else {
		c.lg.Debug("Loki not configured, shipping disabled")
	}
	clientMu.Lock()
	defaultClient = c
	clientMu.Unlock()
}

// Shutdown waits for in-flight pushes of the process-wide client.
func Shutdown(ctx context.Context) error {
	clientMu.RLock()
	c := defaultClient
	clientMu.RUnlock()
	if c == nil {
		return nil
	}
	return c.Wait(ctx)
}

// Push ships one entry asynchronously through the process-wide client.
func Push(labels map[string]string, data map[string]any) {
	clientMu.RLock()
	c := defaultClient
	clientMu.RUnlock()
	if c == nil {
		return
	}
	c.Push(labels, data)
}

// Push ships one entry asynchronously.
func (c *LokiClient) Push(labels map[string]string, data map[string]any) {
	if !c.enabled {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.push(labels, data); err != nil {
			c.lg.Warn("Push failed", zap.Error(err))
		}
	}()
}

// Wait blocks until pending pushes finish or ctx is done.
func (c *LokiClient) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *LokiClient) push(labels map[string]string, data map[string]any) error {
	stream := make(map[string]string, len(labels)+2)
	for k, v := range labels {
		stream[k] = v
	}
	stream["app"] = c.appName
	stream["instance"] = c.instanceID

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal data")
	}

	timestamp := strconv.FormatInt(time.Now().UnixNano(), 10)

	req := lokiPushRequest{
		Streams: []lokiStream{
			{
				Stream: stream,
				Values: [][]string{
					{timestamp, string(dataJSON)},
				},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	httpReq.SetBasicAuth(c.username, c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "send")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// LogToolCall logs a tool call to Loki
func LogToolCall(requestID, subject, module, tool string, durationMs int64, status string, errMsg string) {
	level := "info"
	if status == "error" {
		level = "error"
	}
	labels := map[string]string{
		"type":   "tool_call",
		"module": module,
		"status": status,
		"level":  level,
	}

	data := map[string]any{
		"request_id":  requestID,
		"subject":     subject,
		"module":      module,
		"tool":        tool,
		"duration_ms": durationMs,
		"status":      status,
	}

	if errMsg != "" {
		data["error"] = errMsg
	}

	Push(labels, data)
}

// LogRequest logs an incoming HTTP request to Loki
func LogRequest(method, path string, statusCode int, durationMs int64) {
	labels := map[string]string{
		"type":   "request",
		"method": method,
		"level":  "info",
	}

	data := map[string]any{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	Push(labels, data)
}

// LogError logs an error to Loki
func LogError(where string, err error) {
	labels := map[string]string{
		"type":  "error",
		"level": "error",
	}

	data := map[string]any{
		"context": where,
		"error":   err.Error(),
	}

	Push(labels, data)
}

// LogSecurityEvent logs a security-related event to Loki
func LogSecurityEvent(requestID, subject, event string, details map[string]any) {
	labels := map[string]string{
		"type":  "security",
		"level": "warn",
	}

	data := map[string]any{
		"request_id": requestID,
		"subject":    subject,
		"event":      event,
	}
	for k, v := range details {
		data[k] = v
	}

	Push(labels, data)
}
