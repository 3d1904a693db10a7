package remover

import (
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/world-shiny-star/pngfier/internal/entities"
)

func seed(t *testing.T, fsys billy.Filesystem, path string, data []byte) *entities.FileRecord {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, path, data, 0o644))
	return &entities.FileRecord{Path: path, Size: int64(len(data))}
}

func fixedNow() time.Time {
	return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
}

func TestRunDeletesDuplicatesKeepsOriginal(t *testing.T) {
	fsys := memfs.New()
	content := []byte("same bytes")

	orig := seed(t, fsys, "/data/orig.txt", content)
	dup1 := seed(t, fsys, "/data/copy1.txt", content)
	dup2 := seed(t, fsys, "/data/sub/copy2.txt", content)

	sets := []*entities.DuplicateSet{{
		Original:   orig,
		Duplicates: []*entities.FileRecord{dup1, dup2},
		Wasted:     int64(2 * len(content)),
	}}

	res := Run(fsys, sets, Options{ScanRoot: "/data", Now: fixedNow})

	assert.Equal(t, int64(2), res.Deleted)
	assert.Zero(t, res.Failed)
	assert.Equal(t, int64(2*len(content)), res.BytesFreed)

	// Exactly the original survives.
	_, err := fsys.Stat("/data/orig.txt")
	assert.NoError(t, err)
	_, err = fsys.Stat("/data/copy1.txt")
	assert.True(t, os.IsNotExist(err))
	_, err = fsys.Stat("/data/sub/copy2.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestRunBackupPreservesRelativePathAndBytes(t *testing.T) {
	fsys := memfs.New()
	content := []byte("precious bytes")

	orig := seed(t, fsys, "/data/orig.txt", content)
	dup := seed(t, fsys, "/data/sub/copy.txt", content)

	sets := []*entities.DuplicateSet{{
		Original:   orig,
		Duplicates: []*entities.FileRecord{dup},
	}}

	res := Run(fsys, sets, Options{
		ScanRoot:   "/data",
		Backup:     true,
		BackupRoot: "/backups",
		Now:        fixedNow,
	})

	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, "/backups/pngfier-backup-20260401-090000", res.BackupDir)

	// The deleted file has a byte-identical copy under the backup root.
	copied, err := util.ReadFile(fsys, "/backups/pngfier-backup-20260401-090000/sub/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, content, copied)

	_, err = fsys.Stat("/data/sub/copy.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestRunCountsFailuresAndContinues(t *testing.T) {
	fsys := memfs.New()
	content := []byte("x")

	orig := seed(t, fsys, "/data/orig.txt", content)
	missing := &entities.FileRecord{Path: "/data/ghost.txt", Size: 1}
	dup := seed(t, fsys, "/data/copy.txt", content)

	sets := []*entities.DuplicateSet{{
		Original:   orig,
		Duplicates: []*entities.FileRecord{missing, dup},
	}}

	res := Run(fsys, sets, Options{ScanRoot: "/data", Now: fixedNow})

	// The missing file failed; the real duplicate was still processed.
	assert.Equal(t, int64(1), res.Failed)
	assert.Equal(t, int64(1), res.Deleted)
	_, err := fsys.Stat("/data/copy.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestRunBackupFailureKeepsFile(t *testing.T) {
	fsys := memfs.New()
	// Record points at a path that does not exist, so the backup copy fails
	// before any delete is attempted.
	ghost := &entities.FileRecord{Path: "/data/ghost.txt", Size: 1}
	orig := seed(t, fsys, "/data/orig.txt", []byte("x"))

	sets := []*entities.DuplicateSet{{
		Original:   orig,
		Duplicates: []*entities.FileRecord{ghost},
	}}

	res := Run(fsys, sets, Options{
		ScanRoot:   "/data",
		Backup:     true,
		BackupRoot: "/backups",
		Now:        fixedNow,
	})

	assert.Equal(t, int64(1), res.Failed)
	assert.Zero(t, res.Deleted)
}

func TestRunNoBackupDirWithoutBackup(t *testing.T) {
	fsys := memfs.New()
	res := Run(fsys, nil, Options{ScanRoot: "/data", Now: fixedNow})
	assert.Empty(t, res.BackupDir)
	assert.Zero(t, res.Deleted)
}
