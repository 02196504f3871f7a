package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/firm-crd-matching/internal/debug"
)

// legalSuffixes are entity-form tokens stripped from the end of a name.
var legalSuffixes = map[string]bool{
	"llc": true, "inc": true, "incorporated": true, "corp": true,
	"corporation": true, "co": true, "company": true, "ltd": true,
	"limited": true, "lp": true, "llp": true, "lllp": true, "pc": true,
	"pa": true, "plc": true, "na": true, "pllc": true, "sa": true,
	"ag": true, "gmbh": true,
}

// descriptivePhrases are removed from the end of a normalized name to expose
// the brand kernel. Longer phrases come first so "financial services" wins
// over "services".
var descriptivePhrases = [][]string{
	{"wealth", "management"},
	{"investment", "management"},
	{"asset", "management"},
	{"capital", "management"},
	{"financial", "services"},
	{"financial", "advisors"},
	{"financial", "group"},
	{"and", "associates"},
	{"financial"},
	{"advisors"},
	{"advisers"},
	{"advisory"},
	{"associates"},
	{"group"},
	{"partners"},
	{"services"},
	{"securities"},
}

var stopWords = map[string]bool{
	"the": true, "and": true, "of": true, "a": true, "an": true, "for": true,
}

var (
	reFootnotePrefix = regexp.MustCompile(`^(?:[\s*†‡§]+|\(?\d{1,2}\)\s+)+`)
	reSeeNote        = regexp.MustCompile(`(?i)\s*\(\s*see\b[^)]*\)\s*$`)
)

// foldChain decomposes, drops combining marks, case folds and recomposes
// under compatibility rules so ligatures and full-width forms collapse.
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFKC)
}

// CleanupName removes list decoration that is not part of a firm's name:
// leading footnote markers and a trailing "(See ...)" note.
func CleanupName(raw string) string {
	s := strings.TrimSpace(raw)
	s = reFootnotePrefix.ReplaceAllString(s, "")
	s = reSeeNote.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Normalize canonicalizes a raw firm name. Two spellings of the same firm
// ("Acme Inc." and "ACME INC") produce the same result. The function is
// total: characters that cannot be transliterated are dropped and the
// result may be empty.
func Normalize(raw string) string {
	return NormalizeDebug(false, raw)
}

// NormalizeDebug normalizes a firm name with optional debug output
func NormalizeDebug(localDebug bool, raw string) string {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	primary := ParseFirmName(raw).Primary
	debug.DebugOutput(localDebug, "Primary name: %q", primary)

	tokens := stripLegalSuffixes(basicTokens(primary))
	s := strings.Join(tokens, " ")
	debug.DebugOutput(localDebug, "Normalized: %q", s)
	return s
}

// BaseName normalizes raw and then strips trailing descriptive phrases such
// as "Wealth Management" or "& Associates". It never strips to empty.
func BaseName(raw string) string {
	return BaseOfNormalized(Normalize(raw))
}

// BaseOfNormalized computes the base name of an already normalized name.
func BaseOfNormalized(normalized string) string {
	tokens := strings.Fields(normalized)
	for changed := true; changed; {
		changed = false
		for _, phrase := range descriptivePhrases {
			if len(tokens) > len(phrase) && hasSuffix(tokens, phrase) {
				tokens = tokens[:len(tokens)-len(phrase)]
				changed = true
				break
			}
		}
		if trimmed := stripLegalSuffixes(tokens); len(trimmed) != len(tokens) {
			tokens = trimmed
			changed = true
		}
	}
	return strings.Join(tokens, " ")
}

// Tokens splits a normalized name into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// SignificantTokens returns the words of a normalized name that carry
// identity, dropping stop words. If every word is a stop word the full
// token list is returned.
func SignificantTokens(normalized string) []string {
	all := strings.Fields(normalized)
	out := make([]string, 0, len(all))
	for _, t := range all {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// IsStopWord reports whether token is ignored by similarity scoring.
func IsStopWord(token string) bool {
	return stopWords[token]
}

// basicTokens folds, transliterates and splits s into lower-case ASCII words.
func basicTokens(s string) []string {
	if s == "" {
		return nil
	}

	folded, _, err := transform.String(foldChain(), s)
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '&' || r == '+':
			b.WriteString(" and ")
		case r == '.' || r == '\'' || r == '’' || r == '‘':
			// joined: "N.A." -> "na", "Morgan's" -> "morgans"
		case r < unicode.MaxASCII:
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteByte(' ')
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteString(strings.ToLower(asciiOnly(unidecode.Unidecode(string(r)))))
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) > 1 && tokens[0] == "the" {
		tokens = tokens[1:]
	}
	return tokens
}

// asciiOnly keeps the letters and digits of a transliteration.
func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ') {
			return r
		}
		return -1
	}, s)
}

// stripLegalSuffixes removes trailing entity-form tokens and a dangling
// "and" left behind by "& Co.". At least one token always survives.
func stripLegalSuffixes(tokens []string) []string {
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if !legalSuffixes[last] && last != "and" {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func hasSuffix(tokens, phrase []string) bool {
	offset := len(tokens) - len(phrase)
	for i, p := range phrase {
		if tokens[offset+i] != p {
			return false
		}
	}
	return true
}
