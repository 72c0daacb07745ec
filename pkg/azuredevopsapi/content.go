package azuredevopsapi

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

const octetStream = "application/octet-stream"

// ContentRange is one byte range of a repository file.
type ContentRange struct {
	Data        []byte
	ContentType string
	// TotalSize is the full file size, zero when the service did not say.
	TotalSize int64
	// Partial is set when the service honoured the Range header.
	Partial bool
}

// GetBlobRange reads length bytes at start of a blob by Git object id.
// filePath only refines the content type.
func (c *Client) GetBlobRange(ctx context.Context, project, repositoryID, objectID, filePath string, start, length int64) (*ContentRange, error) {
	return c.contentRange(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/git/repositories/%s/blobs/%s", repositoryID, objectID),
		query:   url.Values{"$format": {"octetstream"}},
	}, filePath, start, length)
}

// GetItemRange reads length bytes at start of filePath on branch.
func (c *Client) GetItemRange(ctx context.Context, project, repositoryID, filePath, branch string, start, length int64) (*ContentRange, error) {
	return c.contentRange(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/git/repositories/%s/items", repositoryID),
		query: url.Values{
			"path":                          {filePath},
			"versionDescriptor.version":     {branch},
			"versionDescriptor.versionType": {"branch"},
			"$format":                       {"octetStream"},
			"download":                      {"false"},
		},
	}, filePath, start, length)
}

func (c *Client) contentRange(ctx context.Context, r request, filePath string, start, length int64) (*ContentRange, error) {
	if start < 0 || length <= 0 {
		return nil, errors.Errorf("invalid range start=%d length=%d", start, length)
	}
	r.header = http.Header{
		"Range":  {fmt.Sprintf("bytes=%d-%d", start, start+length-1)},
		"Accept": {octetStream + ", */*"},
	}

	resp, err := c.do(ctx, r, http.StatusRequestedRangeNotSatisfiable)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &ContentRange{}
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		// Offset at or past end of file.
		_, _, total, _ := parseContentRange(resp.Header.Get("Content-Range"))
		out.TotalSize = total
		out.Partial = true
	case http.StatusPartialContent:
		data, err := io.ReadAll(io.LimitReader(resp.Body, length))
		if err != nil {
			return nil, errors.Wrap(err, "read range")
		}
		out.Data = data
		out.Partial = true
		if _, _, total, ok := parseContentRange(resp.Header.Get("Content-Range")); ok {
			out.TotalSize = total
		}
	default:
		// Range ignored: the whole file came back.
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "read content")
		}
		out.TotalSize = int64(len(data))
		if start < int64(len(data)) {
			end := start + length
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			out.Data = data[start:end]
		}
	}
	out.ContentType = contentTypeOf(resp.Header.Get("Content-Type"), filePath, out.Data)
	return out, nil
}

// parseContentRange parses "bytes 0-99/250" and "bytes */250". total is zero
// when the header gives "*".
func parseContentRange(h string) (first, last, total int64, ok bool) {
	h = strings.TrimSpace(h)
	unit, rest, found := strings.Cut(h, " ")
	if !found || unit != "bytes" {
		return 0, 0, 0, false
	}
	rng, size, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, 0, false
	}
	if size != "*" {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}
		total = n
	}
	if rng == "*" {
		return 0, 0, total, true
	}
	a, b, found := strings.Cut(rng, "-")
	if !found {
		return 0, 0, 0, false
	}
	first, err1 := strconv.ParseInt(a, 10, 64)
	last, err2 := strconv.ParseInt(b, 10, 64)
	if err1 != nil || err2 != nil || last < first {
		return 0, 0, 0, false
	}
	return first, last, total, true
}

// sourceTypes covers extensions that mime tables either lack or map to
// something misleading (".ts" is video/mp2t on many systems).
var sourceTypes = map[string]string{
	".ts":   "application/typescript",
	".tsx":  "application/typescript",
	".js":   "application/javascript",
	".jsx":  "application/javascript",
	".mjs":  "application/javascript",
	".json": "application/json",
	".md":   "text/markdown",
	".go":   "text/x-go",
	".cs":   "text/x-csharp",
	".py":   "text/x-python",
	".java": "text/x-java",
	".sh":   "text/x-shellscript",
	".ps1":  "text/x-powershell",
	".yml":  "text/yaml",
	".yaml": "text/yaml",
	".xml":  "application/xml",
	".sql":  "text/x-sql",
	".txt":  "text/plain",
}

// contentTypeOf takes the response type unless it is the generic octet
// stream, then tries the file extension, then sniffs the bytes.
func contentTypeOf(header, filePath string, data []byte) string {
	if header != "" {
		mt, _, err := mime.ParseMediaType(header)
		if err == nil && mt != octetStream {
			return header
		}
	}
	ext := strings.ToLower(path.Ext(filePath))
	if ct, ok := sourceTypes[ext]; ok {
		return ct
	}
	if ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	if len(data) == 0 {
		if header != "" {
			return header
		}
		return octetStream
	}
	return http.DetectContentType(data)
}
