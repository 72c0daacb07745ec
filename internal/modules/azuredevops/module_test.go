package azuredevops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azdo-mcp/server/internal/filecontent"
	"azdo-mcp/server/internal/modules"
	"azdo-mcp/server/pkg/azuredevopsapi"
)

const workItemJSON = `{
  "id": 7,
  "fields": {"System.TeamProject": "Fabrikam", "System.Title": "Crash on save"},
  "relations": [
    {"rel": "AttachedFile", "url": "https://dev.azure.com/contoso/_apis/wit/attachments/0a1b-2c3d?fileName=log.txt",
     "attributes": {"name": "log.txt", "resourceSize": 120, "comment": "crash log"}},
    {"rel": "System.LinkTypes.Related", "url": "https://dev.azure.com/contoso/_apis/wit/workItems/9"},
    {"rel": "System.LinkTypes.Hierarchy-Reverse", "url": "https://dev.azure.com/contoso/_apis/wit/workItems/3"},
    {"rel": "Hyperlink", "url": "https://example.com/design", "attributes": {"name": "Design"}}
  ]
}`

type fakeService struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
	files    map[string][]byte
}

func (s *fakeService) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		if len(b) > 0 {
			s.bodies[r.Method+" "+r.URL.Path] = b
		}
	}
}

func (s *fakeService) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *fakeService) body(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[key]
}

func (s *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	jsonResponse := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.record(r)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		}
	}
	serveFile := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.record(r)
			data, ok := s.files[name]
			if !ok {
				http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
		}
	}

	mux.HandleFunc("GET /contoso/_apis/projects", jsonResponse(`{"count":1,"value":[{"id":"p1","name":"Fabrikam"}]}`))
	mux.HandleFunc("GET /contoso/_apis/wit/workitems/7", jsonResponse(workItemJSON))
	mux.HandleFunc("GET /contoso/_apis/wit/workitems", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		var items []string
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			items = append(items, fmt.Sprintf(`{"id":%s,"fields":{"System.Title":"Item %s"}}`, id, id))
		}
		fmt.Fprintf(w, `{"count":%d,"value":[%s]}`, len(items), strings.Join(items, ","))
	})
	mux.HandleFunc("GET /contoso/Fabrikam/_apis/wit/workItems/7/comments", jsonResponse(`{"totalCount":1,"comments":[{"id":1,"text":"Looking into it"}]}`))
	mux.HandleFunc("GET /contoso/Fabrikam/_apis/git/repositories/repo/pullRequests/5/iterations",
		jsonResponse(`{"count":2,"value":[{"id":1},{"id":2}]}`))
	mux.HandleFunc("GET /contoso/Fabrikam/_apis/git/repositories/repo/pullRequests/5/iterations/2/changes",
		jsonResponse(`{"changeEntries":[{"changeType":"edit","item":{"path":"/main.go","objectId":"abc123"}}]}`))
	mux.HandleFunc("POST /contoso/Fabrikam/_apis/git/repositories/repo/pullRequests/5/threads", jsonResponse(`{"id":40,"status":"active"}`))
	mux.HandleFunc("POST /contoso/Fabrikam/_apis/git/repositories/repo/pullRequests/5/threads/40/comments", jsonResponse(`{"id":2,"content":"done"}`))
	mux.HandleFunc("PATCH /contoso/Fabrikam/_apis/git/repositories/repo/pullRequests/5/threads/40", jsonResponse(`{"id":40,"status":"fixed"}`))
	mux.HandleFunc("GET /contoso/Fabrikam/_apis/testplan/plans", jsonResponse(`{"count":1,"value":[{"id":11,"name":"Release"}]}`))
	mux.HandleFunc("GET /contoso/Fabrikam/_apis/git/repositories/repo/blobs/{objectID}", func(w http.ResponseWriter, r *http.Request) {
		serveFile("blob:"+r.PathValue("objectID"))(w, r)
	})
	mux.HandleFunc("GET /contoso/Fabrikam/_apis/git/repositories/repo/items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		serveFile("item:"+q.Get("versionDescriptor.version")+":"+q.Get("path"))(w, r)
	})
	return mux
}

func newTestModule(t *testing.T, chunkSize int64) (*Module, *fakeService) {
	t.Helper()
	svc := &fakeService{bodies: map[string][]byte{}, files: map[string][]byte{}}
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	client, err := azuredevopsapi.NewClient(srv.URL+"/contoso", "pat", azuredevopsapi.Options{})
	require.NoError(t, err)
	m, err := New(client, Options{
		DefaultProject: "Fabrikam",
		Files:          filecontent.Options{ChunkSize: chunkSize},
	})
	require.NoError(t, err)
	return m, svc
}

func run(t *testing.T, m *Module, tool string, params map[string]any) string {
	t.Helper()
	r := modules.NewRegistry(modules.RegistryOptions{})
	require.NoError(t, r.Register(m))
	res := r.Run(context.Background(), tool, params)
	require.False(t, res.IsError, "tool error: %s", res.Content[0].Text)
	require.Len(t, res.Content, 1)
	return res.Content[0].Text
}

func TestToolDefinitionsHaveHandlers(t *testing.T) {
	assert.Len(t, toolDefinitions, 20)
	seen := map[string]bool{}
	for _, tool := range toolDefinitions {
		assert.False(t, seen[tool.Name], "duplicate tool %s", tool.Name)
		seen[tool.Name] = true
		_, ok := toolHandlers[tool.Name]
		assert.True(t, ok, "no handler for %s", tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
		for _, req := range tool.InputSchema.Required {
			assert.Contains(t, tool.InputSchema.Properties, req, "%s requires undeclared %s", tool.Name, req)
		}
	}
	assert.Len(t, toolHandlers, len(toolDefinitions))
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestToolTimeout(t *testing.T) {
	m, _ := newTestModule(t, 0)
	for _, name := range []string{toolPullRequestFileContent, toolBranchFileContent} {
		d, ok := m.ToolTimeout(name)
		assert.True(t, ok)
		assert.Zero(t, d)
	}
	_, ok := m.ToolTimeout(toolProjects)
	assert.False(t, ok)
}

func TestProjects(t *testing.T) {
	m, _ := newTestModule(t, 0)
	text := run(t, m, toolProjects, nil)
	assert.True(t, strings.HasPrefix(text, "[\n  {"), "expected indented JSON, got %q", text)

	var projects []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "Fabrikam", projects[0]["name"])
}

func TestWorkItemAttachments(t *testing.T) {
	m, _ := newTestModule(t, 0)
	var got []Attachment
	require.NoError(t, json.Unmarshal([]byte(run(t, m, toolWorkItemAttachments, map[string]any{"id": float64(7)})), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "0a1b-2c3d", got[0].ID)
	assert.Equal(t, "log.txt", got[0].Name)
	assert.Equal(t, "crash log", got[0].Comment)
	assert.EqualValues(t, 120, got[0].Size)
}

func TestWorkItemLinks(t *testing.T) {
	m, _ := newTestModule(t, 0)
	var got []Link
	require.NoError(t, json.Unmarshal([]byte(run(t, m, toolWorkItemLinks, map[string]any{"id": float64(7)})), &got))
	require.Len(t, got, 3)
	assert.Equal(t, 9, got[0].LinkedWorkItemID)
	assert.Equal(t, 3, got[1].LinkedWorkItemID)
	assert.Equal(t, "Hyperlink", got[2].Rel)
	assert.Equal(t, "Design", got[2].Name)
	assert.Zero(t, got[2].LinkedWorkItemID)
}

func TestLinkedWorkItems(t *testing.T) {
	m, svc := newTestModule(t, 0)
	var got []LinkedWorkItem
	require.NoError(t, json.Unmarshal([]byte(run(t, m, toolLinkedWorkItems, map[string]any{"id": float64(7)})), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "System.LinkTypes.Related", got[0].RelationType)
	assert.Equal(t, "System.LinkTypes.Hierarchy-Reverse", got[1].RelationType)
	assert.EqualValues(t, 3, got[1].WorkItem["id"])
	assert.Contains(t, svc.calls(), "GET /contoso/_apis/wit/workitems")
}

func TestWorkItemCommentsUsesWorkItemProject(t *testing.T) {
	m, svc := newTestModule(t, 0)
	m.defaultProject = ""
	text := run(t, m, toolWorkItemComments, map[string]any{"id": float64(7)})
	assert.Contains(t, text, "Looking into it")
	assert.Equal(t, []string{
		"GET /contoso/_apis/wit/workitems/7",
		"GET /contoso/Fabrikam/_apis/wit/workItems/7/comments",
	}, svc.calls())
}

func TestPullRequestChangesUsesLatestIteration(t *testing.T) {
	m, _ := newTestModule(t, 0)
	var got PullRequestChanges
	require.NoError(t, json.Unmarshal([]byte(run(t, m, toolPullRequestChanges, map[string]any{
		"repositoryId":  "repo",
		"pullRequestId": float64(5),
	})), &got))
	assert.Equal(t, 5, got.PullRequestID)
	assert.Equal(t, 2, got.IterationID)
	require.Len(t, got.Changes, 1)
}

func TestBranchFileContentPlainText(t *testing.T) {
	m, svc := newTestModule(t, 4)
	svc.files["item:main:/cmd/main.go"] = []byte("package main\n")

	text := run(t, m, toolBranchFileContent, map[string]any{
		"repositoryId": "repo",
		"branchName":   "main",
		"filePath":     "/cmd/main.go",
	})
	assert.Equal(t, "package main\n", text)
	assert.Len(t, svc.calls(), 4)
}

func TestPullRequestFileContentChunk(t *testing.T) {
	m, svc := newTestModule(t, 0)
	svc.files["blob:abc123"] = []byte("0123456789")

	var got filecontent.FileChunk
	require.NoError(t, json.Unmarshal([]byte(run(t, m, toolPullRequestFileContent, map[string]any{
		"repositoryId":    "repo",
		"pullRequestId":   float64(5),
		"filePath":        "/src/app.ts",
		"objectId":        "abc123",
		"startPosition":   float64(2),
		"length":          float64(5),
		"returnPlainText": false,
	})), &got))

	assert.Equal(t, "23456", got.Content)
	assert.Nil(t, got.HexContent)
	assert.EqualValues(t, 2, got.StartPosition)
	assert.EqualValues(t, 5, got.Length)
	assert.EqualValues(t, 10, got.Size)
	assert.False(t, got.IsLastChunk)
	assert.False(t, got.IsBinary)
	assert.Equal(t, "application/typescript", got.ContentType)
}

func TestPullRequestFileContentBinaryChunk(t *testing.T) {
	m, svc := newTestModule(t, 0)
	svc.files["blob:img"] = []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}

	var got filecontent.FileChunk
	require.NoError(t, json.Unmarshal([]byte(run(t, m, toolPullRequestFileContent, map[string]any{
		"repositoryId":    "repo",
		"pullRequestId":   float64(5),
		"filePath":        "/logo.png",
		"objectId":        "img",
		"returnPlainText": false,
	})), &got))

	assert.True(t, got.IsBinary)
	assert.True(t, got.IsLastChunk)
	require.NotNil(t, got.HexContent)
	assert.Equal(t, "89504e470001", *got.HexContent)
	assert.EqualValues(t, 6, got.Size)
}

func TestFileContentMissingFile(t *testing.T) {
	m, _ := newTestModule(t, 0)
	r := modules.NewRegistry(modules.RegistryOptions{})
	require.NoError(t, r.Register(m))

	res := r.Run(context.Background(), toolPullRequestFileContent, map[string]any{
		"repositoryId":  "repo",
		"pullRequestId": float64(5),
		"filePath":      "/gone.go",
		"objectId":      "missing",
	})
	require.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "404")
}

func TestCreatePRCommentNewThread(t *testing.T) {
	m, svc := newTestModule(t, 0)
	run(t, m, toolCreatePRComment, map[string]any{
		"repositoryId":  "repo",
		"pullRequestId": float64(5),
		"content":       "Consider a timeout here",
		"filePath":      "cmd/main.go",
		"lineNumber":    float64(12),
	})

	var body azuredevopsapi.NewThread
	require.NoError(t, json.Unmarshal(svc.body("POST /contoso/Fabrikam/_apis/git/repositories/repo/pullRequests/5/threads"), &body))
	assert.Equal(t, "active", body.Status)
	require.Len(t, body.Comments, 1)
	assert.Equal(t, "Consider a timeout here", body.Comments[0].Content)
	require.NotNil(t, body.ThreadContext)
	assert.Equal(t, "/cmd/main.go", body.ThreadContext.FilePath)
	require.NotNil(t, body.ThreadContext.RightFileStart)
	assert.Equal(t, 12, body.ThreadContext.RightFileStart.Line)
}

func TestCreatePRCommentReplyWithStatus(t *testing.T) {
	m, svc := newTestModule(t, 0)
	text := run(t, m, toolCreatePRComment, map[string]any{
		"repositoryId":    "repo",
		"pullRequestId":   float64(5),
		"content":         "done",
		"threadId":        float64(40),
		"parentCommentId": float64(1),
		"status":          "fixed",
	})

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, "fixed", got["thread"]["status"])
	assert.Equal(t, "done", got["comment"]["content"])

	var comment azuredevopsapi.NewComment
	require.NoError(t, json.Unmarshal(svc.body("POST /contoso/Fabrikam/_apis/git/repositories/repo/pullRequests/5/threads/40/comments"), &comment))
	assert.Equal(t, 1, comment.ParentCommentID)
}

func TestProjectRequired(t *testing.T) {
	m, svc := newTestModule(t, 0)
	m.defaultProject = ""
	r := modules.NewRegistry(modules.RegistryOptions{})
	require.NoError(t, r.Register(m))

	res := r.Run(context.Background(), toolTestPlans, nil)
	require.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "project is required")
	assert.Empty(t, svc.calls())

	m.defaultProject = "Fabrikam"
	assert.Contains(t, run(t, m, toolTestPlans, nil), "Release")
}
