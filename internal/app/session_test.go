package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumely/cvsync/internal/config"
	"github.com/resumely/cvsync/internal/legacy"
	"github.com/resumely/cvsync/internal/remote"
	"github.com/resumely/cvsync/internal/templates"
	"github.com/resumely/cvsync/internal/types"
)

type htmlRenderer struct{ calls atomic.Int32 }

func (r *htmlRenderer) Render(_ context.Context, snap types.Snapshot) (string, error) {
	r.calls.Add(1)
	return "<html><head><style>h1{}</style></head><body><h1>" +
		snap.Document.Profile.FirstName + "</h1></body></html>", nil
}

type pdfConverter struct{}

func (pdfConverter) Convert(_ context.Context, req remote.ConvertRequest) ([]byte, error) {
	return []byte("%PDF " + req.Document.Profile.FirstName), nil
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Identity = "alice"
	cfg.Local.Path = filepath.Join(dir, "state.db")
	cfg.Legacy.Path = filepath.Join(dir, "legacy.json")
	cfg.Templates.Path = ""
	cfg.Sync.Debounce = 20 * time.Millisecond
	cfg.Render.Debounce = 10 * time.Millisecond
	cfg.Render.Cooldown = 0
	return cfg
}

func openSession(t *testing.T, cfg *config.Config, docs remote.DocumentStore, opts Options) *Session {
	t.Helper()
	opts.Config = cfg
	opts.Remote = docs
	s, err := Open(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestSession_CloseFlushesEdits(t *testing.T) {
	dir := t.TempDir()
	docs := remote.NewMemoryStore()
	cfg := testConfig(t, dir)
	cfg.Sync.Debounce = time.Hour

	s := openSession(t, cfg, docs, Options{})
	s.Store.SetSummary("Builds things.")
	assert.True(t, s.Store.IsDirty())
	require.NoError(t, s.Close(5*time.Second))

	rec, err := docs.Load(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Builds things.", rec.Snapshot.Document.Summary)

	// A new session for the same identity sees the synced state.
	s2 := openSession(t, cfg, docs, Options{})
	defer s2.Close(time.Second)
	assert.Equal(t, "Builds things.", s2.Store.Document().Summary)
	assert.False(t, s2.Store.IsDirty())
}

func TestSession_DebouncedPush(t *testing.T) {
	docs := remote.NewMemoryStore()
	s := openSession(t, testConfig(t, t.TempDir()), docs, Options{})
	defer s.Close(time.Second)

	s.Store.AddSkill(types.SkillEntry{Name: "Go"})
	require.Eventually(t, func() bool { return !s.Store.IsDirty() }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, docs.Saves(), 1)
}

func TestSession_MigratesLegacyBlob(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	snap := types.EmptySnapshot()
	snap.Document.Profile.FirstName = "Ada"
	require.NoError(t, legacy.WriteFile(cfg.Legacy.Path, snap, time.Now()))

	docs := remote.NewMemoryStore()
	s := openSession(t, cfg, docs, Options{})
	defer s.Close(time.Second)

	assert.Equal(t, "Ada", s.Store.Document().Profile.FirstName)
	assert.False(t, s.Store.IsDirty())
	assert.Equal(t, 1, docs.Len())
}

func TestSession_Export(t *testing.T) {
	dir := t.TempDir()
	renderer := &htmlRenderer{}
	s := openSession(t, testConfig(t, dir), remote.NewMemoryStore(), Options{
		Renderer:  renderer,
		Converter: pdfConverter{},
	})
	defer s.Close(time.Second)

	s.Store.UpdateProfile(func(p *types.Profile) {
		p.FirstName = "Ada"
		p.LastName = "Lovelace"
	})

	out := filepath.Join(dir, "out")
	res, err := s.Export(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "Ada_Lovelace_CV.pdf"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF Ada", string(data))
	assert.Equal(t, []string{"h1{}"}, res.Styles.Inline)
}

func TestSession_ExportDisabled(t *testing.T) {
	s := openSession(t, testConfig(t, t.TempDir()), remote.NewMemoryStore(), Options{})
	defer s.Close(time.Second)

	_, err := s.Export(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrPreviewDisabled)

	s2 := openSession(t, testConfig(t, t.TempDir()), remote.NewMemoryStore(), Options{Renderer: &htmlRenderer{}})
	defer s2.Close(time.Second)
	_, err = s2.Export(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrExportDisabled)
}

func TestSession_PreviewFollowsStore(t *testing.T) {
	renderer := &htmlRenderer{}
	s := openSession(t, testConfig(t, t.TempDir()), remote.NewMemoryStore(), Options{Renderer: renderer})
	defer s.Close(time.Second)

	s.Store.UpdateProfile(func(p *types.Profile) { p.FirstName = "Grace" })
	require.Eventually(t, func() bool {
		art, ok := s.Previewer.Lookup(s.Store.Snapshot())
		return ok && art != ""
	}, 5*time.Second, 10*time.Millisecond)

	art, _, ok := s.Previewer.Current()
	require.True(t, ok)
	assert.Contains(t, art, "Grace")
}

func TestSession_TemplatesAndStatus(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Sync.Debounce = time.Hour
	s := openSession(t, cfg, remote.NewMemoryStore(), Options{})
	defer s.Close(time.Second)

	assert.ErrorIs(t, s.SetTemplate("fancy"), templates.ErrUnknownTemplate)
	require.NoError(t, s.SetTemplate("modern"))
	s.Store.AddWork(types.WorkEntry{Company: "Acme"})
	s.Store.SetVisibility(types.SectionInterests, false)

	st := s.Status()
	assert.Equal(t, "alice", st.Identity)
	assert.Equal(t, "modern", st.Template)
	assert.True(t, st.Dirty)
	for _, sec := range st.Sections {
		switch sec.Name {
		case "work":
			assert.Equal(t, 1, sec.Count)
		case "interests":
			assert.False(t, sec.Visible)
		}
	}
}

func TestOpen_RequiresIdentity(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Identity = ""
	_, err := Open(context.Background(), Options{Config: cfg, Remote: remote.NewMemoryStore()})
	assert.Error(t, err)
}

func TestOpen_SQLiteRemote(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Remote.Driver = "sqlite"
	cfg.Remote.DSN = "file:" + filepath.Join(dir, "remote.db")
	cfg.Sync.Debounce = time.Hour

	s, err := Open(context.Background(), Options{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	s.Store.SetSummary("stored in sqlite")
	require.NoError(t, s.Close(5*time.Second))

	docs, err := remote.OpenSQL(context.Background(), remote.DialectSQLite, cfg.Remote.DSN)
	require.NoError(t, err)
	defer docs.Close()
	rec, err := docs.Load(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "stored in sqlite", rec.Snapshot.Document.Summary)
}

func TestSession_DiscardReloadsRemote(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Sync.Debounce = time.Hour
	docs := remote.NewMemoryStore()
	s := openSession(t, cfg, docs, Options{})
	defer s.Close(time.Second)

	snap := types.EmptySnapshot()
	snap.Document.Summary = "from remote"
	docs.Put("alice", snap, time.Now())

	s.Store.SetSummary("local draft")
	require.True(t, s.Store.IsDirty())

	require.NoError(t, s.Discard(context.Background()))
	assert.Equal(t, "from remote", s.Store.Document().Summary)
	assert.False(t, s.Store.IsDirty())
	assert.Empty(t, docs.Saves())
}

func TestSession_PendingElsewhere(t *testing.T) {
	dir := t.TempDir()
	docs := remote.NewMemoryStore()

	bobCfg := testConfig(t, dir)
	bobCfg.Identity = "bob"
	bobCfg.Sync.Debounce = time.Hour
	bob := openSession(t, bobCfg, docs, Options{})
	bob.Store.SetSummary("unsent")
	docs.SetError(errors.New("offline"))
	require.Error(t, bob.Close(time.Second))
	docs.SetError(nil)

	alice := openSession(t, testConfig(t, dir), docs, Options{})
	defer alice.Close(time.Second)

	others, err := alice.PendingElsewhere(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, others)
}

func TestSession_RemoteDownKeepsEditingLocally(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Sync.Debounce = time.Hour
	docs := remote.NewMemoryStore()
	docs.SetError(errors.New("network unreachable"))

	s := openSession(t, cfg, docs, Options{})
	s.Store.SetSummary("written offline")
	require.Error(t, s.Close(time.Second), "flush reports the outage")

	// The next session restores the edit and pushes it once the remote is back.
	docs.SetError(nil)
	s2 := openSession(t, cfg, docs, Options{})
	assert.Equal(t, "written offline", s2.Store.Document().Summary)
	assert.True(t, s2.Store.IsDirty())
	require.NoError(t, s2.Close(5*time.Second))

	rec, err := docs.Load(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "written offline", rec.Snapshot.Document.Summary)
}
