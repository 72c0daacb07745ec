package azuredevopsapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// workItemCommentsVersion is the only version that serves work item comments.
const workItemCommentsVersion = "7.0-preview.3"

// maxWorkItemBatch is the service limit for ids in one batch request.
const maxWorkItemBatch = 200

// GetWorkItem returns a work item with fields, relations and links expanded.
func (c *Client) GetWorkItem(ctx context.Context, id int) (Object, error) {
	return c.object(ctx, request{
		method: http.MethodGet,
		path:   pathf("_apis/wit/workitems/%d", id),
		query:  url.Values{"$expand": {"all"}},
	})
}

// GetWorkItems returns the given work items in request order. Ids are sent in
// batches the service accepts.
func (c *Client) GetWorkItems(ctx context.Context, ids []int) ([]Object, error) {
	out := make([]Object, 0, len(ids))
	for start := 0; start < len(ids); start += maxWorkItemBatch {
		end := start + maxWorkItemBatch
		if end > len(ids) {
			end = len(ids)
		}
		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.Itoa(id))
		}
		items, err := c.list(ctx, request{
			method: http.MethodGet,
			path:   "_apis/wit/workitems",
			query: url.Values{
				"ids":     {strings.Join(parts, ",")},
				"$expand": {"all"},
			},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// GetWorkItemComments lists the discussion comments of a work item.
func (c *Client) GetWorkItemComments(ctx context.Context, project string, id int) (Object, error) {
	if project == "" {
		return nil, errors.New("project is required for work item comments")
	}
	return c.object(ctx, request{
		method:     http.MethodGet,
		project:    project,
		path:       pathf("_apis/wit/workItems/%d/comments", id),
		apiVersion: workItemCommentsVersion,
	})
}

// Relation is one entry of a work item's relations list.
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Relation types.
const (
	RelAttachedFile = "AttachedFile"
	RelHyperlink    = "Hyperlink"
	RelArtifactLink = "ArtifactLink"
)

// Relations extracts the relations list from a decoded work item.
func Relations(workItem Object) []Relation {
	raw, _ := workItem["relations"].([]any)
	out := make([]Relation, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		rel := Relation{}
		rel.Rel, _ = m["rel"].(string)
		rel.URL, _ = m["url"].(string)
		rel.Attributes, _ = m["attributes"].(map[string]any)
		out = append(out, rel)
	}
	return out
}

// LinkedWorkItemID returns the id of the work item a relation points at.
func (r Relation) LinkedWorkItemID() (int, bool) {
	const marker = "/workItems/"
	i := strings.LastIndex(strings.ToLower(r.URL), strings.ToLower(marker))
	if i < 0 {
		return 0, false
	}
	id, err := strconv.Atoi(strings.Trim(r.URL[i+len(marker):], "/"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// AttachmentID returns the attachment GUID from an AttachedFile url.
func (r Relation) AttachmentID() string {
	u := strings.TrimRight(r.URL, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	return u
}

// ProjectOf returns the System.TeamProject field of a work item.
func ProjectOf(workItem Object) string {
	fields, _ := workItem["fields"].(map[string]any)
	p, _ := fields["System.TeamProject"].(string)
	return p
}
