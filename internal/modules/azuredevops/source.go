package azuredevops

import (
	"context"

	"github.com/go-faster/errors"

	"azdo-mcp/server/internal/filecontent"
	"azdo-mcp/server/pkg/azuredevopsapi"
)

// contentSource reads repository files through the REST client. Pull request
// files are addressed by blob object id, branch files by path and branch.
type contentSource struct {
	client *azuredevopsapi.Client
}

func (s contentSource) GetFileContent(ctx context.Context, ref filecontent.FileRef, start, length int64) (*filecontent.RawChunk, error) {
	var (
		cr  *azuredevopsapi.ContentRange
		err error
	)
	switch ref.Revision.Kind {
	case filecontent.RevisionObject:
		cr, err = s.client.GetBlobRange(ctx, ref.Project, ref.RepositoryID, ref.Revision.Value, ref.Path, start, length)
	case filecontent.RevisionBranch:
		cr, err = s.client.GetItemRange(ctx, ref.Project, ref.RepositoryID, ref.Path, ref.Revision.Value, start, length)
	default:
		return nil, errors.Wrapf(filecontent.ErrInvalidArgument, "unsupported revision kind %s", ref.Revision.Kind)
	}
	if err != nil {
		return nil, err
	}
	return &filecontent.RawChunk{
		Bytes:       cr.Data,
		ContentType: cr.ContentType,
		TotalSize:   cr.TotalSize,
	}, nil
}
