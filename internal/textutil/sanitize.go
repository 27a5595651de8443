package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const defaultSlug = "clip"

// Slug reduces text to a lowercase ASCII file-name stem: accents are
// stripped, runs of anything else collapse to a single hyphen, and the
// result is cut to maxLen bytes on a word boundary when possible. Empty
// results become "clip".
func Slug(text string, maxLen int) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFKD.String(text) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
	}
	slug := b.String()
	if maxLen > 0 && len(slug) > maxLen {
		wordEnd := slug[maxLen] == '-'
		slug = slug[:maxLen]
		if cut := strings.LastIndexByte(slug, '-'); !wordEnd && cut > maxLen/2 {
			slug = slug[:cut]
		}
		slug = strings.TrimRight(slug, "-")
	}
	if slug == "" {
		return defaultSlug
	}
	return slug
}
