package azuredevops

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"

	"azdo-mcp/server/internal/filecontent"
	"azdo-mcp/server/internal/modules"
	"azdo-mcp/server/pkg/azuredevopsapi"
)

func (m *Module) requireProject(params map[string]any) (string, error) {
	p := m.project(params)
	if p == "" {
		return "", errors.New("project is required: pass project or configure a default project")
	}
	return p, nil
}

// jsonInt reads an integer from a decoded REST response.
func jsonInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}

// =============================================================================
// Core
// =============================================================================

func (m *Module) projects(ctx context.Context, _ map[string]any) (any, error) {
	return m.client.GetProjects(ctx)
}

func (m *Module) repositories(ctx context.Context, params map[string]any) (any, error) {
	return m.client.GetRepositories(ctx, m.project(params))
}

// =============================================================================
// Work Items
// =============================================================================

func (m *Module) workItem(ctx context.Context, params map[string]any) (any, error) {
	id, err := modules.RequireInt(params, "id")
	if err != nil {
		return nil, err
	}
	return m.client.GetWorkItem(ctx, id)
}

func (m *Module) workItems(ctx context.Context, params map[string]any) (any, error) {
	ids, err := modules.IntSliceParam(params, "ids")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []azuredevopsapi.Object{}, nil
	}
	return m.client.GetWorkItems(ctx, ids)
}

// Attachment is a file attached to a work item.
type Attachment struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Size    any    `json:"size,omitempty"`
	Comment string `json:"comment,omitempty"`
}

func (m *Module) workItemAttachments(ctx context.Context, params map[string]any) (any, error) {
	id, err := modules.RequireInt(params, "id")
	if err != nil {
		return nil, err
	}
	wi, err := m.client.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	out := []Attachment{}
	for _, rel := range azuredevopsapi.Relations(wi) {
		if rel.Rel != azuredevopsapi.RelAttachedFile {
			continue
		}
		a := Attachment{ID: rel.AttachmentID(), URL: rel.URL}
		a.Name, _ = rel.Attributes["name"].(string)
		a.Comment, _ = rel.Attributes["comment"].(string)
		a.Size = rel.Attributes["resourceSize"]
		out = append(out, a)
	}
	return out, nil
}

// Link is a non-attachment relation of a work item.
type Link struct {
	Rel              string         `json:"rel"`
	URL              string         `json:"url"`
	Name             string         `json:"name,omitempty"`
	LinkedWorkItemID int            `json:"linkedWorkItemId,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty"`
}

func (m *Module) workItemLinks(ctx context.Context, params map[string]any) (any, error) {
	id, err := modules.RequireInt(params, "id")
	if err != nil {
		return nil, err
	}
	wi, err := m.client.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	out := []Link{}
	for _, rel := range azuredevopsapi.Relations(wi) {
		if rel.Rel == azuredevopsapi.RelAttachedFile {
			continue
		}
		l := Link{Rel: rel.Rel, URL: rel.URL, Attributes: rel.Attributes}
		l.Name, _ = rel.Attributes["name"].(string)
		l.LinkedWorkItemID, _ = rel.LinkedWorkItemID()
		out = append(out, l)
	}
	return out, nil
}

// LinkedWorkItem is a related work item with its full details.
type LinkedWorkItem struct {
	RelationType string                `json:"relationType"`
	WorkItem     azuredevopsapi.Object `json:"workItem"`
}

func (m *Module) linkedWorkItems(ctx context.Context, params map[string]any) (any, error) {
	id, err := modules.RequireInt(params, "id")
	if err != nil {
		return nil, err
	}
	wi, err := m.client.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}

	relType := map[int]string{}
	var ids []int
	for _, rel := range azuredevopsapi.Relations(wi) {
		linked, ok := rel.LinkedWorkItemID()
		if !ok {
			continue
		}
		if _, seen := relType[linked]; seen {
			continue
		}
		relType[linked] = rel.Rel
		ids = append(ids, linked)
	}
	out := []LinkedWorkItem{}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := m.client.GetWorkItems(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get linked work items")
	}
	for _, item := range items {
		linked, _ := jsonInt(item["id"])
		out = append(out, LinkedWorkItem{RelationType: relType[linked], WorkItem: item})
	}
	return out, nil
}

func (m *Module) workItemComments(ctx context.Context, params map[string]any) (any, error) {
	id, err := modules.RequireInt(params, "id")
	if err != nil {
		return nil, err
	}
	project := modules.StringParam(params, "project")
	if project == "" {
		wi, err := m.client.GetWorkItem(ctx, id)
		if err != nil {
			return nil, err
		}
		project = azuredevopsapi.ProjectOf(wi)
	}
	if project == "" {
		project = m.defaultProject
	}
	return m.client.GetWorkItemComments(ctx, project, id)
}

// =============================================================================
// Pull Requests
// =============================================================================

func (m *Module) pullRequests(ctx context.Context, params map[string]any) (any, error) {
	return m.client.GetPullRequests(ctx, m.project(params), modules.StringParam(params, "repositoryId"))
}

func (m *Module) pullRequestByID(ctx context.Context, params map[string]any) (any, error) {
	pr, err := modules.RequireInt(params, "pullRequestId")
	if err != nil {
		return nil, err
	}
	return m.client.GetPullRequest(ctx, m.project(params), modules.StringParam(params, "repositoryId"), pr)
}

func (m *Module) pullRequestThreads(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	pr, err := modules.RequireInt(params, "pullRequestId")
	if err != nil {
		return nil, err
	}
	return m.client.GetPullRequestThreads(ctx, project, modules.StringParam(params, "repositoryId"), pr)
}

// PullRequestChanges is the change list of a pull request's latest iteration.
type PullRequestChanges struct {
	PullRequestID int   `json:"pullRequestId"`
	IterationID   int   `json:"iterationId"`
	Changes       []any `json:"changes"`
}

func (m *Module) pullRequestChanges(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	pr, err := modules.RequireInt(params, "pullRequestId")
	if err != nil {
		return nil, err
	}
	repo := modules.StringParam(params, "repositoryId")

	iterations, err := m.client.GetPullRequestIterations(ctx, project, repo, pr)
	if err != nil {
		return nil, errors.Wrap(err, "get iterations")
	}
	out := &PullRequestChanges{PullRequestID: pr, Changes: []any{}}
	for _, it := range iterations {
		if n, ok := jsonInt(it["id"]); ok && n > out.IterationID {
			out.IterationID = n
		}
	}
	if out.IterationID == 0 {
		return out, nil
	}

	changes, err := m.client.GetPullRequestIterationChanges(ctx, project, repo, pr, out.IterationID)
	if err != nil {
		return nil, errors.Wrapf(err, "get changes of iteration %d", out.IterationID)
	}
	if entries, ok := changes["changeEntries"].([]any); ok {
		out.Changes = entries
	}
	return out, nil
}

func (m *Module) pullRequestFileContent(ctx context.Context, params map[string]any) (any, error) {
	pr, err := modules.RequireInt(params, "pullRequestId")
	if err != nil {
		return nil, err
	}
	ref := filecontent.FileRef{
		Project:       m.project(params),
		RepositoryID:  modules.StringParam(params, "repositoryId"),
		Path:          modules.StringParam(params, "filePath"),
		Revision:      filecontent.Object(modules.StringParam(params, "objectId")),
		PullRequestID: pr,
	}
	return m.fileContent(ctx, ref, params)
}

func (m *Module) branchFileContent(ctx context.Context, params map[string]any) (any, error) {
	ref := filecontent.FileRef{
		Project:      m.project(params),
		RepositoryID: modules.StringParam(params, "repositoryId"),
		Path:         modules.StringParam(params, "filePath"),
		Revision:     filecontent.Branch(modules.StringParam(params, "branchName")),
	}
	return m.fileContent(ctx, ref, params)
}

// fileContent returns the whole file as text in plain-text mode, otherwise
// the requested chunk with its metadata.
func (m *Module) fileContent(ctx context.Context, ref filecontent.FileRef, params map[string]any) (any, error) {
	if modules.BoolParam(params, "returnPlainText", true) {
		return m.files.FetchComplete(ctx, ref)
	}
	start, err := modules.Int64Param(params, "startPosition", 0)
	if err != nil {
		return nil, err
	}
	length, err := modules.Int64Param(params, "length", m.files.ChunkSize())
	if err != nil {
		return nil, err
	}
	return m.files.FetchChunk(ctx, ref, start, length)
}

// createPRComment replies in an existing thread when threadId is given and
// starts a new thread otherwise. A new thread is anchored to filePath and
// lineNumber when they are set.
func (m *Module) createPRComment(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	pr, err := modules.RequireInt(params, "pullRequestId")
	if err != nil {
		return nil, err
	}
	repo := modules.StringParam(params, "repositoryId")
	status := modules.StringParam(params, "status")
	comment := azuredevopsapi.NewComment{
		Content:     modules.StringParam(params, "content"),
		CommentType: azuredevopsapi.CommentTypeText,
	}

	if threadID, ok := modules.IntParam(params, "threadId"); ok {
		comment.ParentCommentID, _ = modules.IntParam(params, "parentCommentId")
		created, err := m.client.CreatePullRequestComment(ctx, project, repo, pr, threadID, comment)
		if err != nil {
			return nil, errors.Wrapf(err, "comment on thread %d", threadID)
		}
		if status == "" {
			return created, nil
		}
		thread, err := m.client.UpdatePullRequestThreadStatus(ctx, project, repo, pr, threadID, status)
		if err != nil {
			return nil, errors.Wrapf(err, "set status of thread %d", threadID)
		}
		return map[string]any{"comment": created, "thread": thread}, nil
	}

	thread := azuredevopsapi.NewThread{
		Comments: []azuredevopsapi.NewComment{comment},
		Status:   status,
	}
	if thread.Status == "" {
		thread.Status = "active"
	}
	if filePath := modules.StringParam(params, "filePath"); filePath != "" {
		if !strings.HasPrefix(filePath, "/") {
			filePath = "/" + filePath
		}
		thread.ThreadContext = &azuredevopsapi.ThreadContext{FilePath: filePath}
		if line, ok := modules.IntParam(params, "lineNumber"); ok && line > 0 {
			thread.ThreadContext.RightFileStart = &azuredevopsapi.FilePosition{Line: line, Offset: 1}
			thread.ThreadContext.RightFileEnd = &azuredevopsapi.FilePosition{Line: line, Offset: 1}
		}
	}
	return m.client.CreatePullRequestThread(ctx, project, repo, pr, thread)
}

// =============================================================================
// Test Plans
// =============================================================================

func (m *Module) testPlans(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	return m.client.GetTestPlans(ctx, project)
}

func (m *Module) testPlan(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	plan, err := modules.RequireInt(params, "testPlanId")
	if err != nil {
		return nil, err
	}
	return m.client.GetTestPlan(ctx, project, plan)
}

func (m *Module) testSuites(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	plan, err := modules.RequireInt(params, "testPlanId")
	if err != nil {
		return nil, err
	}
	return m.client.GetTestSuites(ctx, project, plan)
}

func (m *Module) testSuite(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	plan, err := modules.RequireInt(params, "testPlanId")
	if err != nil {
		return nil, err
	}
	suite, err := modules.RequireInt(params, "testSuiteId")
	if err != nil {
		return nil, err
	}
	return m.client.GetTestSuite(ctx, project, plan, suite)
}

func (m *Module) testCases(ctx context.Context, params map[string]any) (any, error) {
	project, err := m.requireProject(params)
	if err != nil {
		return nil, err
	}
	plan, err := modules.RequireInt(params, "testPlanId")
	if err != nil {
		return nil, err
	}
	suite, err := modules.RequireInt(params, "testSuiteId")
	if err != nil {
		return nil, err
	}
	return m.client.GetTestCases(ctx, project, plan, suite)
}
