package normalize

import (
	"regexp"
	"strings"
)

// ParsedName splits a listed firm name into the name it trades under now and
// any former or trading names carried alongside it.
type ParsedName struct {
	Primary     string
	FormerNames []string
	DBAs        []string
}

const (
	formerKeywords = `f/k/a|f\.k\.a\.?|fka|a/k/a|formerly known as|formerly`
	dbaKeywords    = `d/b/a|d\.b\.a\.?|dba|doing business as`
)

var (
	reQualifiedParen = regexp.MustCompile(`(?i)\(\s*(` + formerKeywords + `|` + dbaKeywords + `)\s+([^)]*)\)`)
	reQualifier      = regexp.MustCompile(`(?i)(?:^|[\s,;])(` + formerKeywords + `|` + dbaKeywords + `)\s+`)
	reDBAKeyword     = regexp.MustCompile(`(?i)^(?:` + dbaKeywords + `)$`)
)

// ParseFirmName extracts f/k/a and d/b/a qualifiers from a raw name, both
// inline ("Acme LLC f/k/a Apex LLC") and parenthesised
// ("Acme LLC (d/b/a Acme Wealth)"). A qualifier at the very start of the
// name is treated as part of the name.
func ParseFirmName(raw string) ParsedName {
	s := CleanupName(raw)
	var parsed ParsedName

	s = reQualifiedParen.ReplaceAllStringFunc(s, func(m string) string {
		sub := reQualifiedParen.FindStringSubmatch(m)
		parsed.add(sub[1], sub[2])
		return " "
	})

	locs := reQualifier.FindAllStringSubmatchIndex(s, -1)
	start := 0
	for start < len(locs) && strings.TrimSpace(s[:locs[start][0]]) == "" {
		start++
	}
	if start == len(locs) {
		parsed.Primary = collapse(s)
		return parsed
	}

	locs = locs[start:]
	parsed.Primary = trimName(s[:locs[0][0]])
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		parsed.add(s[loc[2]:loc[3]], s[loc[1]:end])
	}
	return parsed
}

// Variants lists every name a record may be known by, primary first, with
// duplicates removed.
func (p ParsedName) Variants() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range append(append([]string{p.Primary}, p.FormerNames...), p.DBAs...) {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func (p *ParsedName) add(keyword, name string) {
	name = trimName(name)
	if name == "" {
		return
	}
	if reDBAKeyword.MatchString(strings.TrimSpace(keyword)) {
		p.DBAs = append(p.DBAs, name)
		return
	}
	p.FormerNames = append(p.FormerNames, name)
}

func trimName(s string) string {
	return collapse(strings.Trim(s, " \t,;()"))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
