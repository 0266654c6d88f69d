package importer

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

// Normalizer repairs free text read from a workbook. Implementations must be
// idempotent.
type Normalizer interface {
	Repair(text string) string
}

// TextRepairer detects mis-decoded text (raw Latin-1, UTF-16, UTF-8 read as
// Windows-1252), composes diacritics, maps typographic punctuation to ASCII,
// collapses whitespace and drops leading enumeration markers.
type TextRepairer struct{}

var _ Normalizer = TextRepairer{}

const maxRepairPasses = 8

var punctuationReplacer = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201a", "'",
	"\u201b", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u00ab", `"`,
	"\u00bb", `"`,
	"\u2013", "-",
	"\u2014", "-",
	"\u2212", "-",
	"\u2026", "...",
	"\u00a0", " ",
	"\u200b", "",
	"\ufeff", "",
)

var (
	whitespaceRun     = regexp.MustCompile(`\s+`)
	enumerationMarker = regexp.MustCompile(`^(?:[A-Ha-h]|[0-9]{1,2})[.)]\s+`)
)

func (TextRepairer) Repair(text string) string {
	out := text
	for i := 0; i < maxRepairPasses; i++ {
		next := repairPass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func repairPass(s string) string {
	s = fixEncoding(s)
	s = norm.NFC.String(s)
	s = punctuationReplacer.Replace(s)
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	for {
		loc := enumerationMarker.FindStringIndex(s)
		if loc == nil || loc[1] >= len(s) {
			break
		}
		s = s[loc[1]:]
	}
	return s
}

// fixEncoding decodes raw bytes that are not UTF-8 and undoes one level of
// UTF-8-read-as-Windows-1252 mojibake.
func fixEncoding(s string) string {
	if s == "" {
		return s
	}
	if looksUTF16(s) {
		if out, ok := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), []byte(s)); ok && utf8.ValidString(out) {
			return out
		}
	}
	if !utf8.ValidString(s) {
		if out, ok := decodeWith(charmap.ISO8859_1, []byte(s)); ok {
			return out
		}
		return strings.ToValidUTF8(s, "")
	}
	return undoMojibake(s)
}

func looksUTF16(s string) bool {
	b := []byte(s)
	if len(b) >= 2 && ((b[0] == 0xff && b[1] == 0xfe) || (b[0] == 0xfe && b[1] == 0xff)) {
		return true
	}
	return len(b) >= 4 && len(b)%2 == 0 && bytes.Count(b, []byte{0}) >= len(b)/2
}

// undoMojibake re-encodes s as Windows-1252 and keeps the result only when
// the bytes form valid UTF-8 that round-trips back to the same bytes.
func undoMojibake(s string) string {
	if !hasHighRune(s) {
		return s
	}
	raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s))
	if err != nil || !utf8.Valid(raw) {
		return s
	}
	candidate := string(raw)
	if candidate == s {
		return s
	}
	back, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil || string(back) != s {
		return s
	}
	return candidate
}

func hasHighRune(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

func decodeWith(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}
