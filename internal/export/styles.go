package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/resumely/cvsync/internal/remote"
)

// DefaultMaxStyleSize bounds a fetched stylesheet.
const DefaultMaxStyleSize = 2 << 20

// ErrStyleTooLarge is returned by HTTPStyleFetcher for a stylesheet larger
// than its MaxSize. SnapshotStyles then keeps the sheet by reference.
var ErrStyleTooLarge = errors.New("stylesheet too large")

// StyleFetcher reads a linked stylesheet.
type StyleFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// SnapshotStyles collects the style context of markup: the text of every
// <style> element and every <link rel="stylesheet">. Linked sheets are read
// through fetcher; when that fails, or fetcher is nil, they are kept as a
// by-URL reference for the converter to load itself.
func SnapshotStyles(ctx context.Context, markup, baseURL string, fetcher StyleFetcher) (remote.StyleSnapshot, error) {
	snap := remote.StyleSnapshot{Inline: []string{}, External: []remote.ExternalStyle{}}

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return snap, fmt.Errorf("failed to parse markup: %w", err)
	}

	var base *url.URL
	if baseURL != "" {
		if base, err = url.Parse(baseURL); err != nil {
			return snap, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Style:
				if css := textContent(n); strings.TrimSpace(css) != "" {
					snap.Inline = append(snap.Inline, css)
				}
			case atom.Link:
				if isStylesheet(n) {
					if href := attr(n, "href"); href != "" {
						snap.External = append(snap.External, fetchStyle(ctx, resolve(base, href), fetcher))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return snap, nil
}

func fetchStyle(ctx context.Context, href string, fetcher StyleFetcher) remote.ExternalStyle {
	ext := remote.ExternalStyle{URL: href}
	if fetcher == nil {
		return ext
	}
	css, err := fetcher.Fetch(ctx, href)
	if err != nil {
		return ext
	}
	ext.CSS = css
	return ext
}

func isStylesheet(n *html.Node) bool {
	for _, rel := range strings.Fields(attr(n, "rel")) {
		if strings.EqualFold(rel, "stylesheet") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// HTTPStyleFetcher fetches http(s) stylesheets.
type HTTPStyleFetcher struct {
	Client  *http.Client
	MaxSize int64
}

// NewHTTPStyleFetcher returns a fetcher with a short timeout.
func NewHTTPStyleFetcher() *HTTPStyleFetcher {
	return &HTTPStyleFetcher{
		Client:  &http.Client{Timeout: 10 * time.Second},
		MaxSize: DefaultMaxStyleSize,
	}
}

// Fetch implements StyleFetcher. Non-http(s) URLs are refused, and so are
// sheets larger than MaxSize.
func (f *HTTPStyleFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid stylesheet URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("refusing to fetch stylesheet with scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch stylesheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &remote.StatusError{Status: resp.StatusCode}
	}
	limit := f.MaxSize
	if limit <= 0 {
		limit = DefaultMaxStyleSize
	}
	if resp.ContentLength > limit {
		return "", fmt.Errorf("%w: %d bytes", ErrStyleTooLarge, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read stylesheet: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: more than %d bytes", ErrStyleTooLarge, limit)
	}
	return string(data), nil
}
