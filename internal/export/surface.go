package export

import (
	"context"

	"github.com/resumely/cvsync/internal/render"
	"github.com/resumely/cvsync/internal/types"
)

// SnapshotSource provides the current document state. *store.Store implements it.
type SnapshotSource interface {
	Snapshot() types.Snapshot
}

// ArtifactSource looks up a rendered artifact. *render.Previewer implements it.
type ArtifactSource interface {
	Lookup(snap types.Snapshot) (string, bool)
}

// PreviewSurface captures the preview artifact for the current store state.
// It is painted only when the artifact for the current fingerprint exists;
// an older artifact for a previous state is never exported.
type PreviewSurface struct {
	source    SnapshotSource
	artifacts ArtifactSource
	baseURL   string
}

// NewPreviewSurface creates a surface. baseURL resolves relative stylesheet links.
func NewPreviewSurface(source SnapshotSource, artifacts ArtifactSource, baseURL string) *PreviewSurface {
	return &PreviewSurface{source: source, artifacts: artifacts, baseURL: baseURL}
}

// Capture implements Surface.
func (s *PreviewSurface) Capture(ctx context.Context) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.source.Snapshot()
	markup, ok := s.artifacts.Lookup(snap)
	if !ok || markup == "" {
		return nil, ErrSurfaceNotReady
	}
	return &Capture{
		Markup:      markup,
		Fingerprint: render.Fingerprint(snap),
		Document:    snap.Document,
		BaseURL:     s.baseURL,
	}, nil
}
