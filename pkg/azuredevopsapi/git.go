package azuredevopsapi

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
)

// GetRepositories lists Git repositories, optionally scoped to a project.
func (c *Client) GetRepositories(ctx context.Context, project string) ([]Object, error) {
	return c.list(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    "_apis/git/repositories",
	})
}

// GetPullRequests lists active pull requests of a repository.
func (c *Client) GetPullRequests(ctx context.Context, project, repositoryID string) ([]Object, error) {
	return c.list(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/git/repositories/%s/pullrequests", repositoryID),
	})
}

// GetPullRequest returns one pull request.
func (c *Client) GetPullRequest(ctx context.Context, project, repositoryID string, pullRequestID int) (Object, error) {
	return c.object(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/git/repositories/%s/pullrequests/%d", repositoryID, pullRequestID),
	})
}

// GetPullRequestThreads lists the comment threads of a pull request.
func (c *Client) GetPullRequestThreads(ctx context.Context, project, repositoryID string, pullRequestID int) ([]Object, error) {
	return c.list(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/git/repositories/%s/pullRequests/%d/threads", repositoryID, pullRequestID),
	})
}

// GetPullRequestIterations lists the pushes that make up a pull request.
func (c *Client) GetPullRequestIterations(ctx context.Context, project, repositoryID string, pullRequestID int) ([]Object, error) {
	return c.list(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/git/repositories/%s/pullRequests/%d/iterations", repositoryID, pullRequestID),
	})
}

// GetPullRequestIterationChanges returns the changes of one iteration.
func (c *Client) GetPullRequestIterationChanges(ctx context.Context, project, repositoryID string, pullRequestID, iterationID int) (Object, error) {
	return c.object(ctx, request{
		method:  http.MethodGet,
		project: project,
		path: pathf("_apis/git/repositories/%s/pullRequests/%d/iterations/%d/changes",
			repositoryID, pullRequestID, iterationID),
	})
}

// Comment types accepted by the threads API.
const (
	CommentTypeText = 1
)

// NewComment is a comment in a create request.
type NewComment struct {
	ParentCommentID int    `json:"parentCommentId"`
	Content         string `json:"content"`
	CommentType     int    `json:"commentType"`
}

// FilePosition is a 1-based line/offset position in a file.
type FilePosition struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

// ThreadContext anchors a thread to a file and, optionally, a line range.
type ThreadContext struct {
	FilePath       string        `json:"filePath"`
	RightFileStart *FilePosition `json:"rightFileStart,omitempty"`
	RightFileEnd   *FilePosition `json:"rightFileEnd,omitempty"`
}

// NewThread is the body of a create thread request.
type NewThread struct {
	Comments      []NewComment   `json:"comments"`
	Status        string         `json:"status,omitempty"`
	ThreadContext *ThreadContext `json:"threadContext,omitempty"`
}

// CreatePullRequestThread starts a new comment thread.
func (c *Client) CreatePullRequestThread(ctx context.Context, project, repositoryID string, pullRequestID int, thread NewThread) (Object, error) {
	if len(thread.Comments) == 0 {
		return nil, errors.New("thread needs at least one comment")
	}
	return c.object(ctx, request{
		method:  http.MethodPost,
		project: project,
		path:    pathf("_apis/git/repositories/%s/pullRequests/%d/threads", repositoryID, pullRequestID),
		body:    thread,
	})
}

// CreatePullRequestComment adds a comment to an existing thread.
func (c *Client) CreatePullRequestComment(ctx context.Context, project, repositoryID string, pullRequestID, threadID int, comment NewComment) (Object, error) {
	return c.object(ctx, request{
		method:  http.MethodPost,
		project: project,
		path: pathf("_apis/git/repositories/%s/pullRequests/%d/threads/%d/comments",
			repositoryID, pullRequestID, threadID),
		body: comment,
	})
}

// UpdatePullRequestThreadStatus sets a thread's status, e.g. "fixed".
func (c *Client) UpdatePullRequestThreadStatus(ctx context.Context, project, repositoryID string, pullRequestID, threadID int, status string) (Object, error) {
	return c.object(ctx, request{
		method:  http.MethodPatch,
		project: project,
		path: pathf("_apis/git/repositories/%s/pullRequests/%d/threads/%d",
			repositoryID, pullRequestID, threadID),
		body: map[string]string{"status": status},
	})
}
