package export

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumely/cvsync/internal/remote"
	"github.com/resumely/cvsync/internal/render"
	"github.com/resumely/cvsync/internal/types"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		name    string
		profile types.Profile
		want    string
	}{
		{"first and last", types.Profile{FirstName: "Ada", LastName: "Lovelace"}, "Ada_Lovelace_CV.pdf"},
		{"first only", types.Profile{FirstName: "Ada"}, "Ada_CV.pdf"},
		{"inner spaces", types.Profile{FirstName: "Mary Ann", LastName: "O'Neil"}, "Mary_Ann_ONeil_CV.pdf"},
		{"unicode kept", types.Profile{FirstName: "José", LastName: "Núñez-Pérez"}, "José_Núñez-Pérez_CV.pdf"},
		{"path characters dropped", types.Profile{FirstName: "../..", LastName: "/etc"}, "etc_CV.pdf"},
		{"empty", types.Profile{}, FallbackFileName},
		{"only symbols", types.Profile{FirstName: "!!", LastName: "  "}, FallbackFileName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.profile))
		})
	}
}

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	if css, ok := m[url]; ok {
		return css, nil
	}
	return "", errors.New("blocked")
}

func TestSnapshotStyles(t *testing.T) {
	markup := `<!doctype html><html><head>
		<style>body { font-family: serif; }</style>
		<link rel="stylesheet" href="/static/cv.css">
		<link rel="preload stylesheet" href="https://cdn.example.com/fonts.css">
		<link rel="icon" href="/favicon.ico">
	</head><body><style>.x{}</style><h1>CV</h1></body></html>`

	fetcher := mapFetcher{"https://app.example.com/static/cv.css": "h1{color:red}"}
	styles, err := SnapshotStyles(context.Background(), markup, "https://app.example.com/preview", fetcher)
	require.NoError(t, err)

	assert.Equal(t, []string{"body { font-family: serif; }", ".x{}"}, styles.Inline)
	require.Len(t, styles.External, 2)
	assert.Equal(t, "https://app.example.com/static/cv.css", styles.External[0].URL)
	assert.Equal(t, "h1{color:red}", styles.External[0].CSS)
	assert.True(t, styles.External[1].ByReference(), "blocked stylesheet falls back to its URL")

	noFetch, err := SnapshotStyles(context.Background(), markup, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/static/cv.css", noFetch.External[0].URL)
	assert.True(t, noFetch.External[0].ByReference())
}

func TestHTTPStyleFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cv.css" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("p{margin:0}"))
	}))
	defer srv.Close()

	f := NewHTTPStyleFetcher()
	css, err := f.Fetch(context.Background(), srv.URL+"/cv.css")
	require.NoError(t, err)
	assert.Equal(t, "p{margin:0}", css)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.css")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestHTTPStyleFetcher_OversizedSheetKeptByReference(t *testing.T) {
	const limit = 64
	sheets := map[string]string{
		"/exact.css": strings.Repeat("a", limit),
		"/big.css":   strings.Repeat("b", limit+1),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		css, ok := sheets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Has("chunked") {
			// Flushing before the body is complete omits Content-Length.
			_, _ = w.Write([]byte(css[:1]))
			w.(http.Flusher).Flush()
			css = css[1:]
		}
		_, _ = w.Write([]byte(css))
	}))
	defer srv.Close()

	f := NewHTTPStyleFetcher()
	f.MaxSize = limit

	for _, query := range []string{"", "?chunked=1"} {
		css, err := f.Fetch(context.Background(), srv.URL+"/exact.css"+query)
		require.NoError(t, err, query)
		assert.Len(t, css, limit)

		_, err = f.Fetch(context.Background(), srv.URL+"/big.css"+query)
		assert.ErrorIs(t, err, ErrStyleTooLarge, query)
	}

	markup := `<html><head><link rel="stylesheet" href="/big.css?chunked=1"><link rel="stylesheet" href="/exact.css"></head></html>`
	styles, err := SnapshotStyles(context.Background(), markup, srv.URL, f)
	require.NoError(t, err)
	require.Len(t, styles.External, 2)
	assert.True(t, styles.External[0].ByReference(), "oversized sheet is not truncated")
	assert.Equal(t, srv.URL+"/big.css?chunked=1", styles.External[0].URL)
	assert.Equal(t, sheets["/exact.css"], styles.External[1].CSS)
}

type staticSource struct{ snap types.Snapshot }

func (s staticSource) Snapshot() types.Snapshot { return s.snap }

type recordingConverter struct {
	req  remote.ConvertRequest
	out  []byte
	err  error
	hits int
}

func (c *recordingConverter) Convert(_ context.Context, req remote.ConvertRequest) ([]byte, error) {
	c.hits++
	c.req = req
	return c.out, c.err
}

func paintedSurface(t *testing.T, snap types.Snapshot, markup string) *PreviewSurface {
	t.Helper()
	cache := render.NewCache(render.DefaultCapacity)
	cache.Put(render.Fingerprint(snap), markup)
	return NewPreviewSurface(staticSource{snap}, cacheLookup{cache}, "")
}

type cacheLookup struct{ c *render.Cache }

func (l cacheLookup) Lookup(snap types.Snapshot) (string, bool) {
	return l.c.Get(render.Fingerprint(snap))
}

func TestExport_WritesNamedFile(t *testing.T) {
	snap := types.EmptySnapshot()
	snap.Document.Profile = types.Profile{FirstName: "Ada", LastName: "Lovelace"}
	surface := paintedSurface(t, snap, `<html><head><style>h1{}</style></head><body>Ada</body></html>`)
	conv := &recordingConverter{out: []byte("%PDF-1.7 ...")}

	dir := t.TempDir()
	res, err := New(surface, conv, nil, nil).Export(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Ada_Lovelace_CV.pdf"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 ...", string(data))

	assert.Contains(t, conv.req.Markup, "<body>Ada</body>")
	assert.Equal(t, []string{"h1{}"}, conv.req.Styles.Inline)
	assert.Equal(t, "Ada", conv.req.Document.Profile.FirstName)

	_, err = os.Stat(res.Path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file cleaned up")
}

func TestExport_FailsFastWhenNotPainted(t *testing.T) {
	snap := types.EmptySnapshot()
	painted := snap.Clone()
	painted.Document.Summary = "older state"

	// The cache holds an artifact for an older state only.
	cache := render.NewCache(render.DefaultCapacity)
	cache.Put(render.Fingerprint(painted), "<p>old</p>")
	surface := NewPreviewSurface(staticSource{snap}, cacheLookup{cache}, "")
	conv := &recordingConverter{out: []byte("x")}

	_, err := New(surface, conv, nil, nil).Export(context.Background(), t.TempDir())
	require.Error(t, err)

	var exportErr *ExportError
	require.True(t, errors.As(err, &exportErr))
	assert.Equal(t, "capture", exportErr.Op)
	assert.ErrorIs(t, err, ErrSurfaceNotReady)
	assert.Equal(t, 0, conv.hits, "converter never called")
}

func TestExport_ConverterFailure(t *testing.T) {
	snap := types.EmptySnapshot()
	surface := paintedSurface(t, snap, "<p>cv</p>")
	dir := t.TempDir()

	tests := []struct {
		name string
		conv *recordingConverter
	}{
		{"rate limited", &recordingConverter{err: &remote.StatusError{Status: http.StatusTooManyRequests}}},
		{"server error", &recordingConverter{err: errors.New("502")}},
		{"empty body", &recordingConverter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(surface, tt.conv, nil, nil).Export(context.Background(), dir)
			var exportErr *ExportError
			require.True(t, errors.As(err, &exportErr))
			assert.Equal(t, "convert", exportErr.Op)
			assert.NotEmpty(t, exportErr.Message)
		})
	}

	_, err := os.Stat(filepath.Join(dir, FallbackFileName))
	assert.True(t, os.IsNotExist(err), "nothing written on failure")
}
