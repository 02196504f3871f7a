package normalize

import (
	"strings"
)

// PhoneticEncoder produces a consonant skeleton for a word so that spelling
// variants of the same firm token ("Philips"/"Phillips", "Kaye"/"Kay")
// share a code.
type PhoneticEncoder struct {
	substitutions map[string]string
	maxLength     int
}

// NewPhoneticEncoder creates a new phonetic encoder
func NewPhoneticEncoder() *PhoneticEncoder {
	return &PhoneticEncoder{
		substitutions: map[string]string{
			"PH":  "F",
			"GH":  "F",
			"CK":  "K",
			"QU":  "KW",
			"SCH": "SK",
			"KN":  "N",
			"WR":  "R",
			"PS":  "S",
			"X":   "KS",
			"C":   "K",
			"Q":   "K",
			"Z":   "S",
		},
		maxLength: 6,
	}
}

// Encode returns a phonetic code for the given word
func (pe *PhoneticEncoder) Encode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		if w, rep := pe.match(s[i:]); w > 0 {
			b.WriteString(rep)
			i += w
			continue
		}

		ch := s[i]
		switch {
		case i == 0 && isVowel(ch):
			b.WriteByte(ch)
		case isConsonant(ch) && ch != 'H' && ch != 'W' && ch != 'Y':
			b.WriteByte(ch)
		}
		i++
	}

	code := removeDuplicateChars(b.String())
	if len(code) > pe.maxLength {
		code = code[:pe.maxLength]
	}
	return code
}

// match returns the width and replacement of the longest substitution that
// prefixes s.
func (pe *PhoneticEncoder) match(s string) (int, string) {
	for w := 3; w >= 1; w-- {
		if len(s) < w {
			continue
		}
		if rep, ok := pe.substitutions[s[:w]]; ok {
			return w, rep
		}
	}
	return 0, ""
}

// PhoneticMatch checks if two words are phonetically similar
func (pe *PhoneticEncoder) PhoneticMatch(s1, s2 string) bool {
	if s1 == "" || s2 == "" {
		return false
	}
	return pe.Encode(s1) == pe.Encode(s2)
}

var defaultEncoder = NewPhoneticEncoder()

// PhoneticTokens returns phonetic codes for the significant tokens of a
// normalized name. Short tokens, numbers and legal suffixes are skipped.
func PhoneticTokens(normalized string) []string {
	var codes []string
	for _, token := range SignificantTokens(normalized) {
		if len(token) <= 2 || isNumeric(token) || legalSuffixes[token] {
			continue
		}
		if code := defaultEncoder.Encode(token); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// PhoneticTokenOverlap counts tokens of a whose phonetic code also appears
// in b.
func PhoneticTokenOverlap(a, b string) int {
	codesB := make(map[string]bool)
	for _, c := range PhoneticTokens(b) {
		codesB[c] = true
	}

	matches := 0
	for _, c := range PhoneticTokens(a) {
		if codesB[c] {
			matches++
			delete(codesB, c)
		}
	}
	return matches
}

func isConsonant(ch byte) bool {
	return ch >= 'A' && ch <= 'Z' && !isVowel(ch)
}

func isVowel(ch byte) bool {
	return strings.IndexByte("AEIOU", ch) >= 0
}

func isNumeric(s string) bool {
	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}
	return len(s) > 0
}

func removeDuplicateChars(s string) string {
	if len(s) <= 1 {
		return s
	}

	var b strings.Builder
	b.WriteByte(s[0])
	for i := 1; i < len(s); i++ {
		if s[i] != s[i-1] {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
