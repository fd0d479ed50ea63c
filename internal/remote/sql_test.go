package remote

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumely/cvsync/internal/types"
)

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, DialectSQLite, "file:"+filepath.Join(t.TempDir(), "remote.db"))
	if err != nil {
		t.Fatalf("OpenSQL() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	rec, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, rec)

	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	snap := types.EmptySnapshot()
	snap.Document.Profile.FirstName = "Alice"
	snap.Document.Skills = []types.SkillEntry{{ID: "s1", Name: "Go"}}
	snap.Visibility[types.SectionInterests] = false
	snap.TemplateID = "modern"
	require.NoError(t, s.Save(ctx, "alice", snap))

	rec, err = s.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Alice", rec.Snapshot.Document.Profile.FirstName)
	assert.Equal(t, "Go", rec.Snapshot.Document.Skills[0].Name)
	assert.False(t, rec.Snapshot.Visibility.IsVisible(types.SectionInterests))
	assert.Equal(t, "modern", rec.Snapshot.TemplateID)
	assert.True(t, fixed.Equal(rec.UpdatedAt))

	// Overwrite keeps one row per identity.
	snap.Document.Profile.FirstName = "Alicia"
	require.NoError(t, s.Save(ctx, "alice", snap))
	rec, err = s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", rec.Snapshot.Document.Profile.FirstName)

	other, err := s.Load(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db, DialectPostgres)

	mock.ExpectExec(`INSERT INTO cv_documents .* VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs("alice", sqlmock.AnyArg(), sqlmock.AnyArg(), "classic", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT document, visibility, template_id, updated_at\s+FROM cv_documents WHERE identity = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"document", "visibility", "template_id", "updated_at"}).
			AddRow(`{"summary":"hi"}`, `{"work":false}`, "classic", "2026-05-01T12:00:00Z"))

	require.NoError(t, s.Save(context.Background(), "alice", types.EmptySnapshot()))

	rec, err := s.Load(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hi", rec.Snapshot.Document.Summary)
	assert.False(t, rec.Snapshot.Visibility.IsVisible(types.SectionWork))
	assert.True(t, rec.Snapshot.Visibility.IsVisible(types.SectionSkills))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RequiresIdentity(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db, DialectSQLite)
	_, err = s.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrIdentityRequired)
	assert.ErrorIs(t, s.Save(context.Background(), "", types.EmptySnapshot()), ErrIdentityRequired)
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in   string
		want Dialect
	}{
		{"sqlite3", DialectSQLite},
		{"SQLite", DialectSQLite},
		{"postgres", DialectPostgres},
		{"pg", DialectPostgres},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseDialect("mongo")
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}
