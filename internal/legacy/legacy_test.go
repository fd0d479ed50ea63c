package legacy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumely/cvsync/internal/types"
)

func TestDecode_V0(t *testing.T) {
	data := []byte(`{"version":"v0.3.0","document":{"profile":{"firstName":"Ada"}},"templateId":"modern"}`)

	blob, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "v0.3.0", blob.Version)
	assert.Equal(t, "Ada", blob.Snapshot.Document.Profile.FirstName)
	assert.Equal(t, "modern", blob.Snapshot.TemplateID)
	assert.True(t, blob.Snapshot.Visibility.IsVisible(types.SectionWork))
}

func TestDecode_Unversioned(t *testing.T) {
	blob, err := Decode([]byte(`{"document":{"summary":"hello"}}`))
	require.NoError(t, err)
	assert.Equal(t, "v0.0.0", blob.Version)
	assert.Equal(t, "hello", blob.Snapshot.Document.Summary)
	assert.Equal(t, types.DefaultTemplateID, blob.Snapshot.TemplateID)
}

func TestDecode_V1(t *testing.T) {
	data := []byte(`{
		"version": "v1.1.0",
		"state": {
			"document": {"work": [{"id": "w1", "company": "Acme"}]},
			"visibility": {"work": false},
			"templateId": "compact"
		}
	}`)

	blob, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, blob.Snapshot.Document.Work, 1)
	assert.Equal(t, "Acme", blob.Snapshot.Document.Work[0].Company)
	assert.False(t, blob.Snapshot.Visibility.IsVisible(types.SectionWork))
	assert.True(t, blob.Snapshot.Visibility.IsVisible(types.SectionSkills))
	assert.Equal(t, "compact", blob.Snapshot.TemplateID)
}

func TestDecode_RejectsUnknownVersions(t *testing.T) {
	for _, v := range []string{"v2.0.0", "banana"} {
		_, err := Decode([]byte(`{"version":"` + v + `"}`))
		require.Error(t, err, v)
		assert.True(t, errors.Is(err, ErrUnsupportedVersion), v)
	}

	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestFileReader(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		blob, err := NewFileReader(filepath.Join(dir, "missing.json")).Read()
		require.NoError(t, err)
		assert.Nil(t, blob)
	})

	t.Run("empty path", func(t *testing.T) {
		blob, err := NewFileReader("").Read()
		require.NoError(t, err)
		assert.Nil(t, blob)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(path, nil, 0600))
		blob, err := NewFileReader(path).Read()
		require.NoError(t, err)
		assert.Nil(t, blob)
	})

	t.Run("round trip and backup", func(t *testing.T) {
		path := filepath.Join(dir, "cv.json")
		snap := types.EmptySnapshot()
		snap.Document.Summary = "legacy summary"
		require.NoError(t, WriteFile(path, snap, time.Now()))

		r := NewFileReader(path)
		blob, err := r.Read()
		require.NoError(t, err)
		require.NotNil(t, blob)
		assert.Equal(t, CurrentVersion, blob.Version)
		assert.Equal(t, "legacy summary", blob.Snapshot.Document.Summary)

		backup, err := r.Backup(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, path+".backup.20260102-030405", backup)
		_, err = os.Stat(backup)
		assert.NoError(t, err)
	})
}
