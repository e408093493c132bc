// Package services holds the two sync orchestrators of the relay: the
// per-submission single-file sync and the on-demand bulk reconciliation.
package services

import (
	"context"

	"ricevute/internal/core"
)

// Ports for the collaborators the orchestrators drive. The drive and
// bucket packages provide the real implementations; tests use fakes.
type (
	// TokenSource mints a bearer access token for one sync operation.
	TokenSource interface {
		AccessToken(ctx context.Context) (string, error)
	}

	// Uploader sends one file to the remote drive.
	Uploader interface {
		Upload(ctx context.Context, token string, data []byte, fileName, folderID string) (fileID, webViewLink string, err error)
	}

	// RemoteIndexer lists the filenames already in the destination folder.
	RemoteIndexer interface {
		ListNames(ctx context.Context, token string) (map[string]struct{}, error)
	}

	// StorageLister enumerates the stored receipt files.
	StorageLister interface {
		List(ctx context.Context, prefix string) ([]core.Entry, error)
		PublicURL(path string) string
	}
)
