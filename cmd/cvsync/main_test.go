package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumely/cvsync/internal/app"
	"github.com/resumely/cvsync/internal/remote"
	"github.com/resumely/cvsync/internal/types"
)

// setup points the CLI at a temporary home and a shared in-memory remote.
func setup(t *testing.T) *remote.MemoryStore {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CVSYNC_SYNC_DEBOUNCE", "10ms")
	t.Chdir(t.TempDir())

	docs := remote.NewMemoryStore()
	prev := sessionOptions
	sessionOptions = app.Options{Remote: docs}
	t.Cleanup(func() { sessionOptions = prev })
	return docs
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--identity", "alice"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "cvsync %s", strings.Join(args, " "))
	return out
}

func showDocument(t *testing.T) types.Document {
	t.Helper()
	var doc types.Document
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "show", "--format", "json")), &doc))
	return doc
}

func TestCLI_EditsArePushed(t *testing.T) {
	docs := setup(t)

	out := mustRun(t, "set", "firstName", "Ada")
	assert.Contains(t, out, "firstName updated")
	mustRun(t, "set", "lastName", "Lovelace")
	mustRun(t, "summary", "Wrote", "the", "first", "program")

	rec, err := docs.Load(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Ada", rec.Snapshot.Document.Profile.FirstName)
	assert.Equal(t, "Lovelace", rec.Snapshot.Document.Profile.LastName)
	assert.Equal(t, "Wrote the first program", rec.Snapshot.Document.Summary)
}

func TestCLI_SetUnknownField(t *testing.T) {
	setup(t)

	_, err := run(t, "set", "nickname", "Ada")
	require.Error(t, err)
}

func TestCLI_AddWorkNormalizesDates(t *testing.T) {
	setup(t)

	out := mustRun(t, "add", "work",
		"--company", "Analytical Engines",
		"--position", "Programmer",
		"--start", "Jan 2021",
		"--end", "present",
		"--highlight", "Bernoulli numbers",
		"--highlight", "Loops")
	assert.Contains(t, out, "added work entry")

	doc := showDocument(t)
	require.Len(t, doc.Work, 1)
	w := doc.Work[0]
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "Analytical Engines", w.Company)
	assert.Equal(t, "2021-01", w.StartDate)
	assert.Empty(t, w.EndDate)
	assert.True(t, w.Current)
	assert.Equal(t, []string{"Bernoulli numbers", "Loops"}, w.Highlights)
}

func TestCLI_AddRequiresName(t *testing.T) {
	setup(t)

	_, err := run(t, "add", "skill", "--level", "expert")
	require.Error(t, err)
}

func TestCLI_RemoveAndMove(t *testing.T) {
	setup(t)

	mustRun(t, "add", "skill", "--name", "Go")
	mustRun(t, "add", "skill", "--name", "SQL")
	mustRun(t, "add", "skill", "--name", "CSS")

	doc := showDocument(t)
	require.Len(t, doc.Skills, 3)
	css := doc.Skills[2].ID

	mustRun(t, "move", "skill", css, "0")
	doc = showDocument(t)
	assert.Equal(t, "CSS", doc.Skills[0].Name)

	mustRun(t, "remove", "skills", css)
	doc = showDocument(t)
	require.Len(t, doc.Skills, 2)
	assert.Equal(t, "Go", doc.Skills[0].Name)

	_, err := run(t, "remove", "skills", css)
	require.Error(t, err)

	_, err = run(t, "remove", "summary", "x")
	require.ErrorContains(t, err, "not a list section")
}

func TestCLI_ToggleAndStatus(t *testing.T) {
	setup(t)

	out := mustRun(t, "toggle", "references")
	assert.Contains(t, out, "references is now hidden")

	out = mustRun(t, "status")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "in sync")
	assert.Regexp(t, `references\s+0\s+hidden`, out)
	assert.Regexp(t, `work\s+0\s+shown`, out)
}

func TestCLI_Templates(t *testing.T) {
	setup(t)

	out := mustRun(t, "template", "list")
	assert.Contains(t, out, "classic")
	assert.Contains(t, out, "modern")

	mustRun(t, "template", "set", "modern")
	out = mustRun(t, "status")
	assert.Contains(t, out, "modern")

	_, err := run(t, "template", "set", "nope")
	require.Error(t, err)
}

func TestCLI_ImportAndShowYAML(t *testing.T) {
	setup(t)

	path := filepath.Join(t.TempDir(), "cv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profile:
  firstName: Grace
  lastName: Hopper
skills:
  - name: COBOL
`), 0600))

	mustRun(t, "import", path)
	out := mustRun(t, "show")
	assert.Contains(t, out, "firstName: Grace")
	assert.Contains(t, out, "name: COBOL")

	_, err := run(t, "show", "--format", "xml")
	require.Error(t, err)
}

func TestCLI_ExportDisabledWithoutServices(t *testing.T) {
	setup(t)

	_, err := run(t, "export")
	require.ErrorIs(t, err, app.ErrPreviewDisabled)
}

func TestCLI_MigrateWithoutLegacyFile(t *testing.T) {
	setup(t)

	out := mustRun(t, "migrate", "--dry-run")
	assert.Contains(t, out, "no legacy CV content")
}

func TestCLI_RequiresIdentity(t *testing.T) {
	setup(t)
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"status"})
	require.Error(t, rootCmd.ExecuteContext(context.Background()))
}

// flakySaves fails every Save while offline is set.
type flakySaves struct {
	*remote.MemoryStore
	offline atomic.Bool
}

func (f *flakySaves) Save(ctx context.Context, identity string, snap types.Snapshot) error {
	if f.offline.Load() {
		return errors.New("offline")
	}
	return f.MemoryStore.Save(ctx, identity, snap)
}

func TestCLI_DiscardDropsUnsyncedEdits(t *testing.T) {
	setup(t)
	docs := &flakySaves{MemoryStore: remote.NewMemoryStore()}
	sessionOptions = app.Options{Remote: docs}

	mustRun(t, "set", "firstName", "Ada")

	docs.offline.Store(true)
	mustRun(t, "set", "firstName", "Bob")
	docs.offline.Store(false)

	out, err := run(t, "discard")
	require.ErrorContains(t, err, "--force")
	assert.NotContains(t, out, "discarded")

	out = mustRun(t, "discard", "--force")
	assert.Contains(t, out, "local edits discarded")
	assert.Equal(t, "Ada", showDocument(t).Profile.FirstName)

	out = mustRun(t, "discard", "--force")
	assert.Contains(t, out, "nothing to discard")
}

func TestCLI_EditsWorkWhileRemoteIsDown(t *testing.T) {
	docs := setup(t)
	docs.SetError(errors.New("network unreachable"))

	out := mustRun(t, "set", "firstName", "Ada")
	assert.Contains(t, out, "firstName updated")

	docs.SetError(nil)
	mustRun(t, "status")

	rec, err := docs.Load(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Ada", rec.Snapshot.Document.Profile.FirstName)
}
