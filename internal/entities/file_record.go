package entities

import (
	"path/filepath"
	"time"
)

// FileRecord holds the metadata collected for one file on disk.
// Records are created during the scan phase and never mutated afterwards,
// except for Hash which is filled in by the hashing phase.
type FileRecord struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Size     int64     `json:"size_bytes"`
	Hash     uint64    `json:"hash"`
	ModTime  time.Time `json:"mod_time"`
	DeviceID uint64    `json:"device_id"`
	Inode    uint64    `json:"inode"`

	// ScanIndex is the position in walk order, used as the mod-time
	// tie-breaker so results do not depend on hashing order.
	ScanIndex int64 `json:"-"`
}

// Dir returns the directory containing the file.
func (f *FileRecord) Dir() string {
	return filepath.Dir(f.Path)
}

// FileGroup is a bucket of records sharing some criterion (size during the
// scan phase, content hash after the hashing phase).
type FileGroup struct {
	Count int64         `json:"count"`
	Files []*FileRecord `json:"files"`
}

// Add appends a record to the group.
func (fg *FileGroup) Add(f *FileRecord) {
	fg.Files = append(fg.Files, f)
	fg.Count++
}

// DuplicateSet is a group of files with identical content. Original is the
// earliest-modified member; Duplicates are the remaining members in
// mod-time order. Hardlinks lists paths that share an inode with an
// already-counted member, so deleting them would free nothing.
type DuplicateSet struct {
	Original   *FileRecord   `json:"original"`
	Duplicates []*FileRecord `json:"duplicates"`
	Hardlinks  []string      `json:"hardlinks,omitempty"`
	Wasted     int64         `json:"wasted_bytes"`
}

// Hash returns the content hash shared by every member of the set.
func (ds *DuplicateSet) Hash() uint64 {
	return ds.Original.Hash
}
