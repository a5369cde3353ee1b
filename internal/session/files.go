package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dshills/diffchat/internal/providers"
)

// ClearResult reports what ClearFiles removed.
type ClearResult struct {
	Deleted []providers.File `json:"deleted"`
	// CacheEntries is how many upload cache entries were dropped.
	CacheEntries int `json:"cacheEntries"`
}

// Files lists every document stored with the provider.
func (m *Manager) Files(ctx context.Context) ([]providers.File, error) {
	files, err := m.index.ListFiles(ctx)
	if err != nil {
		return nil, collaborator("listing files", err)
	}
	return files, nil
}

// ClearFiles deletes every stored document and then empties the upload
// cache, whose entries would otherwise point at deleted files. It stops at
// the first failed deletion and returns what was removed so far. The cached
// collection id is kept; the collection simply becomes empty.
func (m *Manager) ClearFiles(ctx context.Context) (ClearResult, error) {
	var res ClearResult
	files, err := m.Files(ctx)
	if err != nil {
		return res, err
	}
	for _, f := range files {
		if err := m.index.DeleteFile(ctx, f.ID); err != nil {
			return res, collaborator("deleting file "+f.ID, err)
		}
		log.Info().Str("file_id", f.ID).Str("filename", f.Filename).Msg("Deleted file")
		res.Deleted = append(res.Deleted, f)
	}
	if m.uploads != nil {
		n, err := m.uploads.Clear()
		if err != nil {
			return res, errors.Wrap(err, "clearing upload cache")
		}
		res.CacheEntries = n
	}
	return res, nil
}
