// Package filecontent retrieves remote repository files in bounded slices.
package filecontent

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// RevisionKind selects how Revision.Value is interpreted.
type RevisionKind int

const (
	// RevisionBranch resolves Value as a branch name.
	RevisionBranch RevisionKind = iota + 1
	// RevisionObject resolves Value as a Git object id.
	RevisionObject
)

func (k RevisionKind) String() string {
	switch k {
	case RevisionBranch:
		return "branch"
	case RevisionObject:
		return "object"
	default:
		return fmt.Sprintf("RevisionKind(%d)", int(k))
	}
}

// Revision pins the version of a file.
type Revision struct {
	Kind  RevisionKind
	Value string
}

// Branch returns a branch revision.
func Branch(name string) Revision { return Revision{Kind: RevisionBranch, Value: name} }

// Object returns a Git object revision.
func Object(id string) Revision { return Revision{Kind: RevisionObject, Value: id} }

// FileRef identifies one file at one revision.
type FileRef struct {
	Project      string
	RepositoryID string
	Path         string
	Revision     Revision

	// PullRequestID is set for files reached through a pull request. It is
	// carried for tracing only.
	PullRequestID int
}

// ErrInvalidArgument is returned for malformed refs and ranges.
var ErrInvalidArgument = errors.New("invalid argument")

// Validate reports whether the ref names a file precisely enough to fetch.
func (r FileRef) Validate() error {
	switch {
	case r.RepositoryID == "":
		return errors.Wrap(ErrInvalidArgument, "repository id is required")
	case r.Path == "":
		return errors.Wrap(ErrInvalidArgument, "file path is required")
	case r.Revision.Kind != RevisionBranch && r.Revision.Kind != RevisionObject:
		return errors.Wrapf(ErrInvalidArgument, "unsupported revision kind %s", r.Revision.Kind)
	case r.Revision.Value == "":
		return errors.Wrapf(ErrInvalidArgument, "%s revision is required", r.Revision.Kind)
	}
	return nil
}

// RawChunk is what a Source returns for one range request.
type RawChunk struct {
	Bytes       []byte
	ContentType string
	// IsBinary is the backend's own classification, if it made one.
	IsBinary *bool
	// TotalSize is the full file size, zero when unknown.
	TotalSize   int64
	IsLastChunk *bool
}

// Source fetches at most length bytes of ref starting at start. It returns
// fewer bytes only at end of file.
type Source interface {
	GetFileContent(ctx context.Context, ref FileRef, start, length int64) (*RawChunk, error)
}

// FileChunk is the chunk-mode result handed to callers.
type FileChunk struct {
	Content       string  `json:"content"`
	HexContent    *string `json:"hexContent,omitempty"`
	StartPosition int64   `json:"startPosition"`
	Length        int64   `json:"length"`
	IsBinary      bool    `json:"isBinary"`
	ContentType   string  `json:"contentType"`
	Size          int64   `json:"size"`
	Position      int64   `json:"position"`
	IsLastChunk   bool    `json:"isLastChunk"`
}
