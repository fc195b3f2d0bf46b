package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letras sin descomposicion NFD.
var slugFold = map[rune]string{
	'ß': "ss",
	'æ': "ae",
	'ø': "o",
	'ł': "l",
	'đ': "d",
	'ð': "d",
	'þ': "th",
	'œ': "oe",
	'ı': "i",
}

// Slugify normaliza un username: quita los espacios, translitera a ASCII, pasa a minusculas
// y reemplaza cada tramo no alfanumerico por un guion.
func Slugify(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	hyphen := false
	emit := func(r rune) {
		if hyphen && b.Len() > 0 {
			b.WriteByte('-')
		}
		hyphen = false
		b.WriteRune(r)
	}
	for _, r := range strings.ToLower(s) {
		if folded, ok := slugFold[r]; ok {
			for _, f := range folded {
				emit(f)
			}
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			emit(r)
			continue
		}
		hyphen = true
	}
	return b.String()
}
