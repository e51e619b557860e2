package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const fallbackBaseName = "document"

// SanitizeBaseName derives a safe artifact base name from a client
// supplied filename: the extension is dropped and path separators,
// control characters and other filesystem-hostile runes are stripped.
func SanitizeBaseName(filename string) string {
	base := filepath.Base(filepath.ToSlash(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = norm.NFKC.String(base)

	var b strings.Builder
	for _, r := range base {
		switch {
		case r == '/' || r == '\\' || r == filepath.Separator:
			// dropped
		case unicode.IsControl(r):
			// dropped
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return fallbackBaseName
	}
	return out
}

// RequestBaseName makes the base name unique across requests that upload
// the same source filename, by appending a random suffix. Collision
// avoidance lives here in the naming scheme, not in store locking.
func RequestBaseName(filename string) string {
	return SanitizeBaseName(filename) + "_" + uuid.NewString()
}

// PageArtifactName names the artifact for a zero-based page index.
// Page numbering in artifact names is 1-based.
func PageArtifactName(base string, index int) string {
	return fmt.Sprintf("%s_page_%d.png", base, index+1)
}

// StitchedArtifactName names the stitched composite artifact.
func StitchedArtifactName(base string) string {
	return base + "_stitched.png"
}
