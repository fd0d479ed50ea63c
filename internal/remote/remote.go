// Package remote defines the contracts cvsync consumes from remote services
// and provides adapters for them.
//
// Three collaborators live behind these interfaces:
//   - DocumentStore: durable per-identity document storage (SQL or memory)
//   - Renderer: the expensive, rate-limited HTML preview renderer (HTTP)
//   - Converter: the markup-to-binary (PDF) converter (HTTP)
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/resumely/cvsync/internal/types"
)

var (
	// ErrRateLimited matches a StatusError carrying HTTP 429.
	ErrRateLimited = errors.New("rate limited by remote service")

	// ErrIdentityRequired is returned when a store call has no identity.
	ErrIdentityRequired = errors.New("identity is required")
)

// Record is a document as stored remotely.
type Record struct {
	Snapshot  types.Snapshot
	UpdatedAt time.Time
}

// DocumentStore is the remote document storage contract.
type DocumentStore interface {
	// Load returns the stored record for identity, or nil when there is none.
	Load(ctx context.Context, identity string) (*Record, error)
	// Save overwrites the stored record for identity.
	Save(ctx context.Context, identity string, snap types.Snapshot) error
}

// Renderer produces preview HTML for a snapshot.
type Renderer interface {
	Render(ctx context.Context, snap types.Snapshot) (string, error)
}

// ExternalStyle is a linked stylesheet. CSS is empty when the stylesheet
// could not be read and the converter must fetch it by URL itself.
type ExternalStyle struct {
	URL string `json:"url"`
	CSS string `json:"css,omitempty"`
}

// ByReference reports whether the converter has to fetch the stylesheet.
func (e ExternalStyle) ByReference() bool {
	return e.CSS == ""
}

// StyleSnapshot is the style context needed to reproduce a page layout.
type StyleSnapshot struct {
	Inline   []string        `json:"inline"`
	External []ExternalStyle `json:"external"`
}

// ConvertRequest is the payload of a render-to-binary call.
type ConvertRequest struct {
	Markup   string         `json:"markup"`
	Styles   StyleSnapshot  `json:"styles"`
	Document types.Document `json:"document"`
}

// Converter turns captured markup into a binary document.
type Converter interface {
	Convert(ctx context.Context, req ConvertRequest) ([]byte, error)
}

// StatusError is a non-success response from a remote service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrRateLimited) match a 429 response.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == http.StatusTooManyRequests
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
