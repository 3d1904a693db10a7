package extract

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"

	"github.com/world-shiny-star/pngfier/internal/hasher"
)

// DefaultMinPayload is the smallest bare base64 run considered a candidate
// payload. Short runs are almost always identifiers, not images.
const DefaultMinPayload = 256

var (
	// dataURIRe matches base64 data URIs as they appear in HTML/CSS/JS.
	dataURIRe = regexp.MustCompile(`data:image/([a-zA-Z0-9.+-]+);base64,([A-Za-z0-9+/]+={0,2})`)
	// bareRe matches long standalone base64 runs. Runs on consecutive lines
	// are joined afterwards, so dumps wrapped at fixed columns decode whole.
	bareRe = regexp.MustCompile(`[A-Za-z0-9+/]{64,}={0,2}`)
	// bareTailRe matches the short final line of a wrapped dump.
	bareTailRe = regexp.MustCompile(`^\r?\n([A-Za-z0-9+/]{1,63}={0,2})(?:\r?\n|$)`)
)

// Options configures an extraction run.
type Options struct {
	// OutDir overrides the default `<input-stem>_images` output directory.
	OutDir string
	// MinPayload is the minimum length for bare base64 candidates;
	// 0 means DefaultMinPayload.
	MinPayload int
	// DataURIOnly disables bare-block scanning.
	DataURIOnly bool
}

// Result summarizes one extraction run.
type Result struct {
	OutputDir    string   `json:"output_dir"`
	Written      []string `json:"written"`
	Duplicates   int64    `json:"duplicates_skipped"`
	Invalid      int64    `json:"invalid_payloads"`
	WriteFailed  int64    `json:"write_failures"`
	BytesWritten int64    `json:"bytes_written"`
}

// FromFile scans a text file for embedded base64 image payloads and writes
// each distinct one into the output directory as image-NNN.<ext>. Payloads
// that fail to decode are logged and skipped; identical payloads are
// written once.
func FromFile(fsys billy.Filesystem, path string, opts Options) (*Result, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	outDir := opts.OutDir
	if outDir == "" {
		stem := strings.TrimSuffix(path, filepath.Ext(path))
		outDir = stem + "_images"
	}

	minPayload := opts.MinPayload
	if minPayload <= 0 {
		minPayload = DefaultMinPayload
	}

	if err := fsys.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	res := &Result{OutputDir: outDir}
	seen := make(map[uint64]bool)
	text := string(data)

	// Pass 1: data URIs. Their spans are masked out so the bare-block pass
	// does not see the same payload twice.
	type span struct{ start, end int }
	var covered []span
	for _, m := range dataURIRe.FindAllStringSubmatchIndex(text, -1) {
		covered = append(covered, span{m[0], m[1]})
		subtype := text[m[2]:m[3]]
		payload := text[m[4]:m[5]]

		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			logrus.WithError(err).WithField("input", path).Warn("undecodable data URI payload, skipping")
			res.Invalid++
			continue
		}
		writePayload(fsys, raw, subtype, seen, res)
	}

	if !opts.DataURIOnly {
		for _, cand := range bareCandidates(text) {
			if len(cand.payload) < minPayload {
				continue
			}
			overlaps := false
			for _, s := range covered {
				if cand.start < s.end && cand.end > s.start {
					overlaps = true
					break
				}
			}
			if overlaps {
				continue
			}

			raw, err := base64.StdEncoding.DecodeString(cand.payload)
			if err != nil {
				// Long runs of base64 alphabet occur in minified JS; only
				// count real decode failures of plausible payloads.
				continue
			}
			// Keep only payloads that actually sniff as images.
			if !strings.HasPrefix(mimetype.Detect(raw).String(), "image/") {
				continue
			}
			writePayload(fsys, raw, "", seen, res)
		}
	}

	return res, nil
}

type bareCandidate struct {
	start, end int
	payload    string // newlines stripped, ready to decode
}

// bareCandidates finds standalone base64 runs, joining runs separated by a
// single newline so payloads wrapped at fixed columns (as base64 dumps
// usually are) decode as one piece.
func bareCandidates(text string) []bareCandidate {
	matches := bareRe.FindAllStringIndex(text, -1)

	var out []bareCandidate
	for i := 0; i < len(matches); i++ {
		start, end := matches[i][0], matches[i][1]
		for i+1 < len(matches) && isNewlineGap(text[end:matches[i+1][0]]) {
			end = matches[i+1][1]
			i++
		}
		payload := stripNewlines(text[start:end])

		// A wrapped dump often ends with a line too short to match on its
		// own. Absorb it only when no padding has been seen yet and it
		// completes a valid base64 length, so an unrelated following line
		// cannot corrupt the payload.
		if !strings.Contains(payload, "=") {
			if loc := bareTailRe.FindStringSubmatchIndex(text[end:]); loc != nil {
				tail := text[end+loc[2] : end+loc[3]]
				if (len(payload)+len(tail))%4 == 0 {
					payload += tail
					end += loc[3]
				}
			}
		}

		out = append(out, bareCandidate{start: start, end: end, payload: payload})
	}
	return out
}

func isNewlineGap(gap string) bool {
	return gap == "\n" || gap == "\r\n"
}

func stripNewlines(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, s)
}

// writePayload stores one decoded payload, skipping duplicates within the run.
func writePayload(fsys billy.Filesystem, raw []byte, uriSubtype string, seen map[uint64]bool, res *Result) {
	sum := hasher.HashBytes(raw)
	if seen[sum] {
		res.Duplicates++
		return
	}

	name := fmt.Sprintf("image-%03d%s", len(res.Written)+1, extensionFor(raw, uriSubtype))
	dst := fsys.Join(res.OutputDir, name)
	if err := util.WriteFile(fsys, dst, raw, 0o644); err != nil {
		logrus.WithError(err).WithField("path", dst).Error("write extracted image failed")
		res.WriteFailed++
		return
	}

	seen[sum] = true
	res.Written = append(res.Written, dst)
	res.BytesWritten += int64(len(raw))
}

// extensionFor picks a file extension, preferring content sniffing over the
// data URI's declared subtype.
func extensionFor(raw []byte, uriSubtype string) string {
	mtype := mimetype.Detect(raw)
	if strings.HasPrefix(mtype.String(), "image/") && mtype.Extension() != "" {
		return mtype.Extension()
	}
	if uriSubtype != "" {
		// Declared type wins when sniffing fails, e.g. truncated payloads.
		subtype := strings.TrimPrefix(uriSubtype, "x-")
		if subtype == "svg+xml" {
			subtype = "svg"
		}
		return "." + subtype
	}
	return ".bin"
}
