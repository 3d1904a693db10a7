package extract

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngPayload returns bytes carrying the PNG signature, padded so the base64
// form clears the bare-block minimum length.
func pngPayload(seed byte) []byte {
	sig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	pad := make([]byte, 300)
	for i := range pad {
		pad[i] = seed
	}
	return append(sig, pad...)
}

func gifPayload() []byte {
	return append([]byte("GIF89a"), make([]byte, 64)...)
}

func writeInput(t *testing.T, fsys billy.Filesystem, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, path, []byte(content), 0o644))
}

func TestFromFileExtractsDataURIs(t *testing.T) {
	fsys := memfs.New()
	png := pngPayload(1)
	gif := gifPayload()

	html := fmt.Sprintf(
		`<img src="data:image/png;base64,%s"><div style="background:url(data:image/gif;base64,%s)"></div>`,
		base64.StdEncoding.EncodeToString(png),
		base64.StdEncoding.EncodeToString(gif),
	)
	writeInput(t, fsys, "/downloads/page.html", html)

	res, err := FromFile(fsys, "/downloads/page.html", Options{})
	require.NoError(t, err)

	assert.Equal(t, "/downloads/page_images", res.OutputDir)
	require.Len(t, res.Written, 2)
	assert.Equal(t, "/downloads/page_images/image-001.png", res.Written[0])
	assert.Equal(t, "/downloads/page_images/image-002.gif", res.Written[1])

	// Round-trip: the written file is byte-identical to the embedded payload.
	got, err := util.ReadFile(fsys, res.Written[0])
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.Equal(t, int64(len(png)+len(gif)), res.BytesWritten)
}

func TestFromFileDeduplicatesPayloads(t *testing.T) {
	fsys := memfs.New()
	enc := base64.StdEncoding.EncodeToString(pngPayload(2))

	html := fmt.Sprintf(
		`<img src="data:image/png;base64,%s"><img src="data:image/png;base64,%s">`,
		enc, enc,
	)
	writeInput(t, fsys, "/in/page.html", html)

	res, err := FromFile(fsys, "/in/page.html", Options{})
	require.NoError(t, err)

	assert.Len(t, res.Written, 1)
	assert.Equal(t, int64(1), res.Duplicates)
}

func TestFromFileExtractsBareBase64Blocks(t *testing.T) {
	fsys := memfs.New()
	enc := base64.StdEncoding.EncodeToString(pngPayload(3))

	writeInput(t, fsys, "/in/dump.txt", "header line\n"+enc+"\ntrailer\n")

	res, err := FromFile(fsys, "/in/dump.txt", Options{})
	require.NoError(t, err)

	require.Len(t, res.Written, 1)
	assert.Equal(t, "/in/dump_images/image-001.png", res.Written[0])
}

// wrap splits s into newline-separated lines of the given width, the way
// base64 dumps are usually formatted.
func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteByte('\n')
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}

func TestFromFileExtractsLineWrappedBase64(t *testing.T) {
	fsys := memfs.New()
	payload := pngPayload(5)
	enc := wrap(base64.StdEncoding.EncodeToString(payload), 76)

	writeInput(t, fsys, "/in/wrapped.txt", "dump follows\n"+enc+"\ntrailer\n")

	res, err := FromFile(fsys, "/in/wrapped.txt", Options{})
	require.NoError(t, err)
	require.Len(t, res.Written, 1)

	// The wrapped payload decodes whole, byte-identical to the original.
	got, err := util.ReadFile(fsys, res.Written[0])
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFromFileWrappedBase64IgnoresFollowingText(t *testing.T) {
	fsys := memfs.New()
	// Padding ends the payload on its own line; the alphabetic line after
	// it must not be absorbed into the candidate.
	payload := pngPayload(6)
	enc := base64.StdEncoding.EncodeToString(payload)

	writeInput(t, fsys, "/in/dump.txt", enc+"\nnotes\n")

	res, err := FromFile(fsys, "/in/dump.txt", Options{})
	require.NoError(t, err)
	require.Len(t, res.Written, 1)

	got, err := util.ReadFile(fsys, res.Written[0])
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFromFileBareBlocksIgnoreNonImages(t *testing.T) {
	fsys := memfs.New()
	// A long base64 run that decodes fine but is not an image.
	enc := base64.StdEncoding.EncodeToString(make([]byte, 400))

	writeInput(t, fsys, "/in/code.js", "var blob = \""+enc+"\";\n")

	res, err := FromFile(fsys, "/in/code.js", Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Written)
}

func TestFromFileDataURIOnlySkipsBareBlocks(t *testing.T) {
	fsys := memfs.New()
	enc := base64.StdEncoding.EncodeToString(pngPayload(4))
	writeInput(t, fsys, "/in/dump.txt", enc)

	res, err := FromFile(fsys, "/in/dump.txt", Options{DataURIOnly: true})
	require.NoError(t, err)
	assert.Empty(t, res.Written)
}

func TestFromFileCountsInvalidPayloads(t *testing.T) {
	fsys := memfs.New()
	// Payload length is not a multiple of 4, so decoding fails.
	writeInput(t, fsys, "/in/bad.html", `<img src="data:image/png;base64,ABCDE">`)

	res, err := FromFile(fsys, "/in/bad.html", Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Equal(t, int64(1), res.Invalid)
}

func TestFromFileCustomOutputDir(t *testing.T) {
	fsys := memfs.New()
	enc := base64.StdEncoding.EncodeToString(gifPayload())
	writeInput(t, fsys, "/in/page.css", "body{background:url(data:image/gif;base64,"+enc+")}")

	res, err := FromFile(fsys, "/in/page.css", Options{OutDir: "/out/assets"})
	require.NoError(t, err)
	require.Len(t, res.Written, 1)
	assert.Equal(t, "/out/assets/image-001.gif", res.Written[0])
}

func TestFromFileMissingInput(t *testing.T) {
	_, err := FromFile(memfs.New(), "/absent.html", Options{})
	assert.Error(t, err)
}

// failWriteFS rejects every write while reads pass through.
type failWriteFS struct {
	billy.Filesystem
}

func (failWriteFS) OpenFile(string, int, os.FileMode) (billy.File, error) {
	return nil, errors.New("read-only filesystem")
}

func TestFromFileCountsWriteFailuresSeparately(t *testing.T) {
	base := memfs.New()
	enc := base64.StdEncoding.EncodeToString(pngPayload(8))
	writeInput(t, base, "/in/page.html", `<img src="data:image/png;base64,`+enc+`">`)

	res, err := FromFile(failWriteFS{base}, "/in/page.html", Options{})
	require.NoError(t, err)

	assert.Empty(t, res.Written)
	assert.Equal(t, int64(1), res.WriteFailed)
	// The payload itself decoded fine; it must not be counted as invalid.
	assert.Zero(t, res.Invalid)
}
