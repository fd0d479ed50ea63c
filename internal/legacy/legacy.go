// Package legacy reads the pre-remote, local-only CV blob.
//
// Before documents were stored remotely, the whole editor state was kept as a
// single versioned JSON blob. Two layouts exist:
//
//	v0.x: {"version": "v0.3.0", "document": {...}, "templateId": "classic"}
//	v1.x: {"version": "v1.2.0", "savedAt": "...", "state": {"document": {...}, "visibility": {...}, "templateId": "..."}}
//
// A blob without a version is treated as v0.0.0. Majors above v1 are rejected.
package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/mod/semver"

	"github.com/resumely/cvsync/internal/types"
)

// CurrentVersion is the version written by WriteFile.
const CurrentVersion = "v1.2.0"

// ErrUnsupportedVersion is returned for blobs written by a newer, unknown format.
var ErrUnsupportedVersion = errors.New("unsupported legacy blob version")

// Blob is a decoded legacy blob.
type Blob struct {
	Version  string
	SavedAt  time.Time
	Snapshot types.Snapshot
}

// Reader reads the single legacy blob.
type Reader interface {
	// Read returns the blob, or nil when no legacy data exists.
	Read() (*Blob, error)
}

type envelope struct {
	Version    string           `json:"version"`
	SavedAt    time.Time        `json:"savedAt"`
	State      *types.Snapshot  `json:"state,omitempty"`
	Document   *types.Document  `json:"document,omitempty"`
	Visibility types.Visibility `json:"visibility,omitempty"`
	TemplateID string           `json:"templateId,omitempty"`
}

// Decode parses raw blob bytes.
func Decode(data []byte) (*Blob, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse legacy blob: %w", err)
	}

	version := env.Version
	if version == "" {
		version = "v0.0.0"
	}
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, env.Version)
	}
	if semver.Compare(semver.Major(version), "v1") > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}

	blob := &Blob{Version: version, SavedAt: env.SavedAt, Snapshot: types.EmptySnapshot()}

	if semver.Compare(version, "v1.0.0") < 0 {
		// v0 blobs carry the document at the top level and no visibility map.
		if env.Document != nil {
			blob.Snapshot.Document = *env.Document
		}
		if env.TemplateID != "" {
			blob.Snapshot.TemplateID = env.TemplateID
		}
		return blob, nil
	}

	if env.State != nil {
		blob.Snapshot.Document = env.State.Document
		blob.Snapshot.Visibility = env.State.Visibility.Normalize()
		if env.State.TemplateID != "" {
			blob.Snapshot.TemplateID = env.State.TemplateID
		}
	}
	return blob, nil
}

// FileReader reads the legacy blob from a file on disk.
type FileReader struct {
	Path string
}

// NewFileReader returns a reader for the blob at path.
func NewFileReader(path string) *FileReader {
	return &FileReader{Path: path}
}

// Read implements Reader. A missing file or an empty path means no legacy data.
func (r *FileReader) Read() (*Blob, error) {
	if r.Path == "" {
		return nil, nil
	}
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(r.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy blob: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return Decode(data)
}

// Backup copies the blob next to itself with a timestamp suffix and returns
// the backup path. It returns "" when there is nothing to back up.
func (r *FileReader) Backup(now time.Time) (string, error) {
	if r.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(r.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read legacy blob for backup: %w", err)
	}
	backupPath := r.Path + ".backup." + now.Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// WriteFile writes snap as a current-version blob.
func WriteFile(path string, snap types.Snapshot, savedAt time.Time) error {
	data, err := json.MarshalIndent(envelope{
		Version: CurrentVersion,
		SavedAt: savedAt,
		State:   &snap,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal legacy blob: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write legacy blob: %w", err)
	}
	return nil
}
