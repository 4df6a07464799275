// Package pathutil implements the canonical path form used as the catalog's
// unique key: lowercase, forward-slash, absolute, no trailing or repeated
// separators. Any two platform spellings of the same filesystem object
// collapse to the same canonical string.
package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	// ErrInvalidFormat is returned for empty or control-character-only input,
	// and for relative paths, which carry no root context.
	ErrInvalidFormat = errors.New("invalid path format")

	// ErrCanonicalizationFailed is returned when filesystem resolution was
	// requested and failed.
	ErrCanonicalizationFailed = errors.New("path canonicalization failed")
)

// Canonicalize normalizes an arbitrary absolute platform path into canonical
// form. It is purely lexical; no filesystem access occurs. The result is
// idempotent: Canonicalize(Canonicalize(p)) == Canonicalize(p).
func Canonicalize(path string) (string, error) {
	if !hasVisibleRune(path) {
		return "", ErrInvalidFormat
	}

	s := strings.ReplaceAll(path, `\`, "/")

	// Extended-length prefix (\\?\C:\... or \\?\UNC\server\share) collapses
	// to the plain form before normalization.
	if strings.HasPrefix(s, "//?/") {
		s = s[4:]
		if len(s) >= 4 && strings.EqualFold(s[:4], "unc/") {
			s = "//" + s[4:]
		}
	}

	s = strings.ToLower(s)

	drive := ""
	switch {
	case len(s) >= 2 && s[1] == ':' && s[0] >= 'a' && s[0] <= 'z':
		drive = s[:2]
		s = s[2:]
	case strings.HasPrefix(s, "/"):
		// rooted; nothing to strip
	default:
		return "", ErrInvalidFormat
	}

	segments := make([]string, 0, strings.Count(s, "/"))
	for _, seg := range strings.Split(s, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, seg)
		}
	}

	if drive != "" {
		if len(segments) == 0 {
			return drive, nil
		}
		return drive + "/" + strings.Join(segments, "/"), nil
	}
	if len(segments) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(segments, "/"), nil
}

// CanonicalizeFile resolves path against the real filesystem (absolute form
// plus symlink resolution) and then canonicalizes it. Scanner code uses this
// variant; lexical callers use Canonicalize.
func CanonicalizeFile(path string) (string, error) {
	if !hasVisibleRune(path) {
		return "", ErrInvalidFormat
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrCanonicalizationFailed
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return Canonicalize(abs)
}

// Parent returns the canonical parent directory of a canonical path:
// everything up to (but excluding) the final "/" component. Root-level
// entries yield "/"; roots themselves ("/", "c:") yield "".
func Parent(canonical string) string {
	if canonical == "" || canonical == "/" || IsDriveRoot(canonical) {
		return ""
	}
	i := strings.LastIndexByte(canonical, '/')
	if i < 0 {
		return ""
	}
	if i == 0 {
		return "/"
	}
	return canonical[:i]
}

// Filename returns the final component of a canonical path.
func Filename(canonical string) string {
	i := strings.LastIndexByte(canonical, '/')
	if i < 0 {
		return canonical
	}
	return canonical[i+1:]
}

// Join appends a child name to a canonical directory.
func Join(parent, name string) string {
	switch {
	case parent == "":
		return name
	case parent == "/":
		return "/" + name
	default:
		return parent + "/" + name
	}
}

// IsDriveRoot reports whether canonical is a bare drive root like "c:".
func IsDriveRoot(canonical string) bool {
	return len(canonical) == 2 && canonical[1] == ':' && canonical[0] >= 'a' && canonical[0] <= 'z'
}

// hasVisibleRune reports whether path contains at least one rune that is not
// a control character or whitespace.
func hasVisibleRune(path string) bool {
	for _, r := range path {
		if !unicode.IsControl(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
