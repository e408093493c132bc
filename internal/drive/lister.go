package drive

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// remoteListPageSize covers the destination folder in a single query.
const remoteListPageSize = 1000

// Lister reads the names already present in the destination folder so the
// bulk reconciliation can skip them. It authenticates with the same bearer
// token the rest of the run uses.
type Lister struct {
	folderID string
	opts     []option.ClientOption
}

// NewLister creates a lister for one destination folder. Extra options are
// for tests pointing the API client at a local server.
func NewLister(folderID string, opts ...option.ClientOption) *Lister {
	return &Lister{folderID: folderID, opts: opts}
}

// ListNames returns the set of filenames in the destination folder.
func (l *Lister) ListNames(ctx context.Context, token string) (map[string]struct{}, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(src)}, l.opts...)
	svc, err := driveapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive: create list service: %w", err)
	}

	query := fmt.Sprintf("'%s' in parents and trashed=false", l.folderID)
	resp, err := svc.Files.List().
		Q(query).
		PageSize(remoteListPageSize).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive: list folder %s: %w", l.folderID, err)
	}

	names := make(map[string]struct{}, len(resp.Files))
	for _, f := range resp.Files {
		names[f.Name] = struct{}{}
	}
	slog.DebugContext(ctx, "Listed remote folder", "folder_id", l.folderID, "files", len(names))
	return names, nil
}
