// Package export turns the currently rendered preview into a downloadable file.
//
// The pipeline:
//  1. capture the painted preview from a Surface (fail fast if nothing is painted)
//  2. snapshot the style context: inline <style> blocks and linked
//     stylesheets, the latter by URL when they cannot be read
//  3. send markup, styles and document to the remote converter
//  4. write the returned bytes atomically under a name derived from the
//     person's name (First_Last_CV.pdf, or resume.pdf)
//
// Every failure is reported as one *ExportError carrying a user-facing message.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/remote"
	"github.com/resumely/cvsync/internal/types"
)

// ErrSurfaceNotReady is returned when there is no painted preview to capture.
var ErrSurfaceNotReady = errors.New("preview is not rendered yet")

// ExportError is the single error type returned by Export.
type ExportError struct {
	Op      string // capture, styles, convert, write
	Message string // actionable message for the user
	Err     error
}

func (e *ExportError) Error() string {
	if e.Err == nil {
		return "export failed: " + e.Message
	}
	return fmt.Sprintf("export failed: %s: %v", e.Message, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Capture is a painted preview.
type Capture struct {
	Markup      string
	Fingerprint string
	Document    types.Document
	// BaseURL resolves relative stylesheet links. May be empty.
	BaseURL string
}

// Surface provides the currently painted preview.
type Surface interface {
	Capture(ctx context.Context) (*Capture, error)
}

// Result describes a finished export.
type Result struct {
	Path   string
	Size   int
	Styles remote.StyleSnapshot
}

// Exporter runs the export pipeline.
type Exporter struct {
	surface   Surface
	converter remote.Converter
	fetcher   StyleFetcher
	logger    *zap.Logger
}

// New creates an exporter. A nil fetcher means every linked stylesheet is
// passed by reference. A nil logger discards output.
func New(surface Surface, converter remote.Converter, fetcher StyleFetcher, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		surface:   surface,
		converter: converter,
		fetcher:   fetcher,
		logger:    logger.Named("export"),
	}
}

// Export writes the converted preview into dir and returns where it went.
func (e *Exporter) Export(ctx context.Context, dir string) (*Result, error) {
	capture, err := e.surface.Capture(ctx)
	if err != nil {
		msg := "could not capture the preview"
		if errors.Is(err, ErrSurfaceNotReady) {
			msg = "the preview has not been rendered yet; open the preview and wait for it to finish"
		}
		return nil, &ExportError{Op: "capture", Message: msg, Err: err}
	}
	if capture == nil || capture.Markup == "" {
		return nil, &ExportError{Op: "capture", Message: "the preview is empty", Err: ErrSurfaceNotReady}
	}

	styles, err := SnapshotStyles(ctx, capture.Markup, capture.BaseURL, e.fetcher)
	if err != nil {
		return nil, &ExportError{Op: "styles", Message: "could not read the preview styles", Err: err}
	}
	for _, ext := range styles.External {
		if ext.ByReference() {
			e.logger.Debug("stylesheet passed by reference", zap.String("url", ext.URL))
		}
	}

	start := time.Now()
	data, err := e.converter.Convert(ctx, remote.ConvertRequest{
		Markup:   capture.Markup,
		Styles:   styles,
		Document: capture.Document,
	})
	if err != nil {
		msg := "the converter could not produce a file; try again"
		if remote.IsRateLimited(err) {
			msg = "the converter is busy; wait a moment and try again"
		}
		return nil, &ExportError{Op: "convert", Message: msg, Err: err}
	}
	if len(data) == 0 {
		return nil, &ExportError{Op: "convert", Message: "the converter returned an empty file"}
	}

	path := filepath.Join(dir, FileName(capture.Document.Profile))
	if err := writeAtomic(path, data); err != nil {
		return nil, &ExportError{Op: "write", Message: "could not save " + path, Err: err}
	}

	e.logger.Info("exported document",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
		zap.Duration("convert", time.Since(start)))
	return &Result{Path: path, Size: len(data), Styles: styles}, nil
}

// writeAtomic writes data via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
