package bbfs

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ToDeviceName converts a host file name to an upper-case 8.3 device name.
// This is a pure function: host path → device name
//
// Character handling:
// - Directory components are dropped
// - Non-ASCII → normalized to ASCII equivalents (é→E)
// - Anything outside A-Z, 0-9, '-' and '_' → underscore
// - Name truncated to 8 characters, extension (after the last dot) to 3
func ToDeviceName(host string) (string, error) {
	base := filepath.Base(host)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	ext = strings.TrimPrefix(ext, ".")

	stem = truncate(sanitize(stem), 8)
	ext = truncate(sanitize(ext), 3)
	if stem == "" {
		return "", fmt.Errorf("%w: %q", ErrName, host)
	}
	if ext == "" {
		return stem, nil
	}
	return stem + "." + ext, nil
}

func sanitize(s string) string {
	s = strings.ToUpper(normalizeToASCII(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// normalizeToASCII decomposes characters with NFKD, drops combining marks
// and strips whatever non-ASCII remains.
func normalizeToASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, _ := transform.String(t, s)

	var b strings.Builder
	for _, r := range result {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
