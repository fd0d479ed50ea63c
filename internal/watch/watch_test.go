package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumely/cvsync/internal/store"
	"github.com/resumely/cvsync/internal/types"
)

type recordingTarget struct {
	mu   sync.Mutex
	docs []types.Document
}

func (r *recordingTarget) ReplaceDocument(doc types.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
}

func (r *recordingTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func (r *recordingTarget) last() types.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[len(r.docs)-1]
}

func TestFileWatcher_StartStop(t *testing.T) {
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	assert.False(t, fw.IsRunning())

	require.NoError(t, fw.Start(filepath.Join(t.TempDir(), "cv.yaml")))
	assert.True(t, fw.IsRunning())
	assert.Error(t, fw.Start("other.yaml"), "double start")

	require.NoError(t, fw.Stop())
	assert.False(t, fw.IsRunning())
}

func TestFileWatcher_FiltersSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cv.yaml")

	fw, err := NewFileWatcher()
	require.NoError(t, err)
	require.NoError(t, fw.Start(path))
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(path, []byte("summary: hi\n"), 0600))

	select {
	case ev := <-fw.Events():
		assert.Equal(t, path, ev.Path)
		assert.Equal(t, OpWrite, ev.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for watched file")
	}
}

func newMirror(t *testing.T, target Target, initial bool) *Mirror {
	t.Helper()
	m, err := NewMirror(target, &Config{Debounce: 20 * time.Millisecond, LoadInitial: initial})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestMirror_AppliesInitialAndChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summary: first\n"), 0600))

	target := &recordingTarget{}
	m := newMirror(t, target, true)
	require.NoError(t, m.Start(path))
	require.Equal(t, 1, target.count())
	assert.Equal(t, "first", target.last().Summary)

	require.NoError(t, os.WriteFile(path, []byte("summary: second\n"), 0600))
	require.Eventually(t, func() bool { return target.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "second", target.last().Summary)
}

func TestMirror_SkipsUnparseableAndUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"summary":"ok"}`), 0600))

	target := &recordingTarget{}
	m := newMirror(t, target, true)
	require.NoError(t, m.Start(path))
	require.Equal(t, 1, target.count())

	require.NoError(t, os.WriteFile(path, []byte(`{"summary":`), 0600))
	require.Eventually(t, func() bool {
		_, err := m.Applied()
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, target.count(), "broken save not applied")

	// Same content as the last applied version.
	require.NoError(t, os.WriteFile(path, []byte(`{"summary":"ok"}`), 0600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, target.count())

	require.NoError(t, os.WriteFile(path, []byte(`{"summary":"fixed"}`), 0600))
	require.Eventually(t, func() bool { return target.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	applied, err := m.Applied()
	assert.Equal(t, 2, applied)
	assert.NoError(t, err)
}

func TestMirror_RejectsUnsupportedExtension(t *testing.T) {
	m := newMirror(t, &recordingTarget{}, false)
	assert.Error(t, m.Start(filepath.Join(t.TempDir(), "cv.txt")))
}

func TestMirror_EntryIDsSurviveSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skills:\n  - name: Go\n  - name: SQL\n"), 0600))

	st := store.New(nil, nil)
	m := newMirror(t, st, true)
	require.NoError(t, m.Start(path))

	before := st.Document().Skills
	require.Len(t, before, 2)

	require.NoError(t, os.WriteFile(path, []byte("skills:\n  - name: Go\n    level: expert\n  - name: SQL\n  - name: CSS\n"), 0600))
	require.Eventually(t, func() bool { return len(st.Document().Skills) == 3 }, 5*time.Second, 10*time.Millisecond)

	after := st.Document().Skills
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, "expert", after[0].Level)
	assert.Equal(t, before[1].ID, after[1].ID)
	assert.NotContains(t, []string{before[0].ID, before[1].ID}, after[2].ID)
}
