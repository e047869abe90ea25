package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newExternalProfile builds a Default-style profile directory with a
// modern-layout cookie store.
func newExternalProfile(t *testing.T, hosts ...string) string {
	t.Helper()
	profileDir := t.TempDir()
	createCookieDB(t, filepath.Join(profileDir, "Network", "Cookies"), hosts...)
	return profileDir
}

func newTestImporter(t *testing.T, opts ImporterOptions) *Importer {
	t.Helper()
	imp, err := NewImporter(opts)
	require.NoError(t, err)
	return imp
}

type fakeSnapshot struct {
	result bool
	called bool
	dir    string
}

func (f *fakeSnapshot) AttemptPrivilegedSnapshot(ctx context.Context, targetDir string) bool {
	f.called = true
	f.dir = targetDir
	return f.result
}

func TestImportDirectCopy(t *testing.T) {
	ext := newExternalProfile(t, ".google.com", "github.com", ".amazon.fr")
	slot := t.TempDir()
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext})

	ok := imp.ImportFromExternalProfile(context.Background(), slot)
	require.True(t, ok)

	count, err := CountCookies(context.Background(), filepath.Join(slot, "Default", "Network", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestImportCopiesJournalCompanion(t *testing.T) {
	ext := newExternalProfile(t, ".google.com")
	srcCookie := filepath.Join(ext, "Network", "Cookies")
	require.NoError(t, os.WriteFile(srcCookie+"-journal", []byte("journal"), 0644))

	slot := t.TempDir()
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext})

	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))
	assert.FileExists(t, filepath.Join(slot, "Default", "Network", "Cookies-journal"))
}

func TestImportFreshnessGateSkipsRecentSlot(t *testing.T) {
	ext := newExternalProfile(t, ".google.com", "github.com")
	srcCookie := filepath.Join(ext, "Network", "Cookies")
	slot := t.TempDir()
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext})

	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))

	// Grow the source, then age it past the slot copy. A fresh slot must
	// keep its two cookies and skip the auxiliary artifacts entirely.
	db, err := sql.Open("sqlite", srcCookie)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO cookies (creation_utc, host_key, name, value, path, expires_utc) VALUES (?, ?, ?, ?, ?, ?)`,
		99, ".notion.so", "session", "late", "/", 1893456000,
	)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(srcCookie, old, old))
	require.NoError(t, os.MkdirAll(filepath.Join(ext, "Local Storage", "leveldb"), 0750))

	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))

	count, err := CountCookies(context.Background(), filepath.Join(slot, "Default", "Network", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "a fresh slot must not be re-copied")
	assert.NoDirExists(t, filepath.Join(slot, "Default", "Local Storage"))
}

func TestImportReimportsStaleSlot(t *testing.T) {
	ext := newExternalProfile(t, ".google.com", "github.com")
	srcCookie := filepath.Join(ext, "Network", "Cookies")
	slot := t.TempDir()
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext})

	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))

	db, err := sql.Open("sqlite", srcCookie)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO cookies (creation_utc, host_key, name, value, path, expires_utc) VALUES (?, ?, ?, ?, ?, ?)`,
		99, ".notion.so", "session", "late", "/", 1893456000,
	)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	dstCookie := filepath.Join(slot, "Default", "Network", "Cookies")
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(dstCookie, old, old))

	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))

	count, err := CountCookies(context.Background(), dstCookie)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestImportNoExternalProfileConfigured(t *testing.T) {
	imp := newTestImporter(t, ImporterOptions{})
	assert.False(t, imp.ImportFromExternalProfile(context.Background(), t.TempDir()))
}

func TestImportMissingExternalCookies(t *testing.T) {
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: t.TempDir()})
	assert.False(t, imp.ImportFromExternalProfile(context.Background(), t.TempDir()))
}

func TestImportFallsBackToRebuildWhenCopyFails(t *testing.T) {
	ext := newExternalProfile(t, ".google.com", "github.com", ".amazon.fr")
	slot := t.TempDir()

	// A directory squatting on the cookie path defeats the byte copy but
	// not the lock-free rebuild, which replaces it.
	dstCookie := filepath.Join(slot, "Default", "Network", "Cookies")
	require.NoError(t, os.MkdirAll(dstCookie, 0750))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(dstCookie, old, old))

	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext})
	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))

	count, err := CountCookies(context.Background(), dstCookie)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "rebuilt store must hold exactly the source's rows")
}

func TestImportFallsBackToPrivilegedSnapshot(t *testing.T) {
	// An unreadable cookie store defeats both the byte copy and the
	// lock-free rebuild, leaving only the escalation hook.
	ext := t.TempDir()
	srcCookie := filepath.Join(ext, "Network", "Cookies")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcCookie), 0750))
	require.NoError(t, os.WriteFile(srcCookie, []byte("not a database"), 0644))

	slot := t.TempDir()
	snap := &fakeSnapshot{result: true}
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext, Snapshot: snap})

	assert.True(t, imp.ImportFromExternalProfile(context.Background(), slot))
	assert.True(t, snap.called)
	assert.Equal(t, slot, snap.dir)
}

func TestImportAllStrategiesFail(t *testing.T) {
	ext := t.TempDir()
	srcCookie := filepath.Join(ext, "Network", "Cookies")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcCookie), 0750))
	require.NoError(t, os.WriteFile(srcCookie, []byte("not a database"), 0644))

	snap := &fakeSnapshot{result: false}
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext, Snapshot: snap})

	assert.False(t, imp.ImportFromExternalProfile(context.Background(), t.TempDir()))
	assert.True(t, snap.called)
}

func TestImportSyncsLocalStorage(t *testing.T) {
	ext := newExternalProfile(t, ".google.com")
	lsFile := filepath.Join(ext, "Local Storage", "leveldb", "000001.ldb")
	require.NoError(t, os.MkdirAll(filepath.Dir(lsFile), 0750))
	require.NoError(t, os.WriteFile(lsFile, []byte("ldb"), 0644))

	slot := t.TempDir()
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext})

	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))
	assert.FileExists(t, filepath.Join(slot, "Default", "Local Storage", "leveldb", "000001.ldb"))
}

func TestImportFiltersIndexedDB(t *testing.T) {
	ext := newExternalProfile(t, ".google.com")
	wanted := filepath.Join(ext, "IndexedDB", "https_mail.google.com_0.indexeddb.leveldb")
	unwanted := filepath.Join(ext, "IndexedDB", "https_tracker.example_0.indexeddb.leveldb")
	for _, dir := range []string{wanted, unwanted} {
		require.NoError(t, os.MkdirAll(dir, 0750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000001.ldb"), []byte("ldb"), 0644))
	}

	slot := t.TempDir()
	imp := newTestImporter(t, ImporterOptions{
		ExternalProfile: ext,
		CriticalOrigins: []string{"*google.com"},
	})

	require.True(t, imp.ImportFromExternalProfile(context.Background(), slot))
	assert.DirExists(t, filepath.Join(slot, "Default", "IndexedDB", "https_mail.google.com_0.indexeddb.leveldb"))
	assert.NoDirExists(t, filepath.Join(slot, "Default", "IndexedDB", "https_tracker.example_0.indexeddb.leveldb"))
}

func TestImportCancelledContext(t *testing.T) {
	ext := newExternalProfile(t, ".google.com")
	imp := newTestImporter(t, ImporterOptions{ExternalProfile: ext})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, imp.ImportFromExternalProfile(ctx, t.TempDir()))
}

func TestNewImporterInvalidOriginPattern(t *testing.T) {
	_, err := NewImporter(ImporterOptions{CriticalOrigins: []string{"[bad"}})
	assert.Error(t, err)
}
