package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
}

func TestCloseNilDB(t *testing.T) {
	s := &SQLite{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestMigrationsRecorded(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	v, err := SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)

	// Re-running is a no-op.
	require.NoError(t, MigrateDB(s.db))
	v, err = SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)
}

func TestSetAndGet(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("shareInternal")
	require.NoError(t, err)
	assert.False(t, ok, "missing key should report ok=false")

	require.NoError(t, s.Set("shareInternal", "true"))
	v, ok, err := s.Get("shareInternal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	require.NoError(t, s.Set("shareInternal", "false"))
	v, _, err = s.Get("shareInternal")
	require.NoError(t, err)
	assert.Equal(t, "false", v)
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("shareThirdParty", "true"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get("shareThirdParty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestDeleteAndList(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Set("a", "1"))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Key)
	assert.Equal(t, "b", all[1].Key)
	assert.False(t, all[0].UpdatedAt.IsZero())

	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("missing"))

	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetWrapsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM settings WHERE key = ?")).
		WithArgs("shareInternal").
		WillReturnError(errors.New("database is locked"))

	_, ok, err := NewWithDB(db).Get("shareInternal")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "get setting shareInternal")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM settings")).
		WithArgs("shareThirdParty").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := NewWithDB(db).Get("shareThirdParty")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWrapsExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settings")).
		WithArgs("shareInternal", "true", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	err = NewWithDB(db).Set("shareInternal", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set setting shareInternal")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("database is closed"))

	err = NewWithDB(db).Ping(context.Background())
	assert.EqualError(t, err, "database is closed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()

	_, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set("k", "v"))
	v, ok, _ := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Delete("k"))
	_, ok, _ = m.Get("k")
	assert.False(t, ok)
}
