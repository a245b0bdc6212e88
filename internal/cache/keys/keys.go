// Package keys builds deterministic cache keys from a layer id and the
// active filter set.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/avelezdev/geolayers/internal/model"
)

// Key is layer:<id>:filters=<readable>:f=<hex64>. The readable segment is
// truncated and sanitized for operator eyes; the xxhash suffix carries the
// full discriminating power.
func Key(layerID string, f model.FilterSet) string {
	layerNorm := sanitize(strings.TrimSpace(layerID))
	canonical := f.CanonicalString()
	safe := sanitize(canonical)

	const maxFilterTextLen = 160
	if len(safe) > maxFilterTextLen {
		safe = safe[:maxFilterTextLen]
	}

	sum := xxhash.Sum64String(canonical)

	return fmt.Sprintf("layer:%s:filters=%s:f=%016x", layerNorm, safe, sum)
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
