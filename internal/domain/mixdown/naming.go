package mixdown

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/okian/chorus/internal/domain/model"
)

// DefaultLegacyOffsetMs is applied to artifacts named before offsets were
// recorded in the file name.
const DefaultLegacyOffsetMs = 1500

var (
	artifactName = regexp.MustCompile(`^(.+?)_(\d+)(?:_offset_(-?\d+))?\.(\w+)$`)
	backingName  = regexp.MustCompile(`^(\d+)_(.+)$`)
	unsafeChars  = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// ArtifactName formats {owner}_{capturedAtMs}_offset_{offsetMs}.{ext}. The
// owner is key-encoded so part names may contain any character.
func ArtifactName(owner string, capturedAtMs, offsetMs int64, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "wav"
	}
	return fmt.Sprintf("%s_%d_offset_%d.%s", model.EncodeKey(owner), capturedAtMs, offsetMs, ext)
}

// ParseArtifactName recovers owner, capture time and offset from an
// artifact file name. A name without an offset segment gets legacyOffsetMs.
func ParseArtifactName(name string, legacyOffsetMs int64) (model.CapturedArtifact, error) {
	base := path.Base(name)
	m := artifactName.FindStringSubmatch(base)
	if m == nil {
		return model.CapturedArtifact{}, fmt.Errorf("%w: %q", ErrBadName, base)
	}
	captured, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return model.CapturedArtifact{}, fmt.Errorf("%w: %q: %w", ErrBadName, base, err)
	}
	offset := legacyOffsetMs
	if m[3] != "" {
		if offset, err = strconv.ParseInt(m[3], 10, 64); err != nil {
			return model.CapturedArtifact{}, fmt.Errorf("%w: %q: %w", ErrBadName, base, err)
		}
	}
	return model.CapturedArtifact{
		Name:         base,
		OwnerPartID:  decodeOwner(m[1]),
		CapturedAtMs: captured,
		OffsetMs:     offset,
		MimeType:     mimeFor(m[4]),
	}, nil
}

// decodeOwner undoes the key encoding of an owner segment. Segments that do
// not decode to a printable name were written raw and are kept as is.
func decodeOwner(seg string) string {
	owner, err := model.DecodeKey(seg)
	if err != nil || owner == "" || strings.IndexFunc(owner, unicode.IsControl) >= 0 || !utf8.ValidString(owner) {
		return seg
	}
	return owner
}

// BackingName formats {uploadedAtMs}_{safeName}.
func BackingName(uploadedAtMs int64, name string) string {
	return fmt.Sprintf("%d_%s", uploadedAtMs, SafeName(name))
}

// ParseBackingName returns the upload time and display name embedded in a
// backing track file name. ok is false when the name carries no timestamp.
func ParseBackingName(name string) (uploadedAtMs int64, display string, ok bool) {
	base := path.Base(name)
	m := backingName.FindStringSubmatch(base)
	if m == nil {
		return 0, base, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, base, false
	}
	return ts, m[2], true
}

// SafeName replaces every character outside [a-zA-Z0-9.-] with '_'.
func SafeName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return "track"
	}
	return unsafeChars.ReplaceAllString(name, "_")
}

func mimeFor(ext string) string {
	switch strings.ToLower(ext) {
	case "wav":
		return "audio/wav"
	case "webm":
		return "audio/webm"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "m4a", "mp4":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
