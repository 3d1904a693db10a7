package hasher

import (
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/cespare/xxhash/v2"
)

// BlockSize is the read buffer size for full-file hashing.
const BlockSize = 32 * 1024

// PreHashSize is how much of the file the quick first-block check reads.
const PreHashSize = 4 * 1024

// bufferPool serves the full-file hashing path only; first-block reads are
// small enough that a plain allocation beats pool contention.
var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, BlockSize)
		return &b
	},
}

var hashPool = sync.Pool{
	New: func() any {
		return xxhash.New()
	},
}

// FileStats carries the stat fields the pipeline needs alongside a hash.
type FileStats struct {
	Size     int64
	DeviceID uint64
	Inode    uint64
}

// HashFile computes the xxhash64 of the whole file.
func HashFile(path string) (uint64, FileStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, FileStats{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, FileStats{}, err
	}

	stats := FileStats{Size: info.Size()}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		stats.DeviceID = uint64(sys.Dev)
		stats.Inode = uint64(sys.Ino)
	}

	h := hashPool.Get().(*xxhash.Digest)
	h.Reset()
	defer hashPool.Put(h)

	bufPtr := bufferPool.Get().(*[]byte)
	buf := *bufPtr
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return 0, stats, err
	}

	return h.Sum64(), stats, nil
}

// HashFirstBlock hashes the first PreHashSize bytes of the file. Files whose
// first blocks differ cannot be duplicates, so this cheap pass prunes most
// candidates before the full read.
func HashFirstBlock(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	h := hashPool.Get().(*xxhash.Digest)
	h.Reset()
	defer hashPool.Put(h)

	buf := make([]byte, PreHashSize)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, err
	}

	_, _ = h.Write(buf[:n])

	return h.Sum64(), nil
}

// HashBytes hashes an in-memory payload with the same function used for
// files, so extracted payloads can be checked for identity cheaply.
func HashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}
