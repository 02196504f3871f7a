package symspell

import (
	"sort"
	"strings"
)

// SymSpell implements the Symmetric Delete spelling correction algorithm.
// Every dictionary term is indexed under all of its deletions within the
// maximum edit distance, so a lookup only has to generate deletions of the
// input.
type SymSpell struct {
	dictionary map[string]int64
	deletes    map[string][]string
	config     *Config
}

// New creates a new SymSpell instance with the given configuration.
func New(config *Config) *SymSpell {
	if config == nil {
		config = DefaultConfig()
	}
	return &SymSpell{
		dictionary: make(map[string]int64),
		deletes:    make(map[string][]string),
		config:     config,
	}
}

// AddTerm adds a term, or raises its frequency if already present.
func (s *SymSpell) AddTerm(term string, frequency int64) {
	term = strings.ToLower(strings.TrimSpace(term))
	if len(term) < s.config.MinTermLength || frequency < s.config.MinFrequency {
		return
	}

	if _, exists := s.dictionary[term]; exists {
		s.dictionary[term] += frequency
		return
	}
	s.dictionary[term] = frequency

	for _, del := range deletesOf(term, s.config.MaxEditDistance) {
		s.deletes[del] = append(s.deletes[del], term)
	}
}

// AddTerms adds multiple terms to the dictionary.
func (s *SymSpell) AddTerms(entries []DictionaryEntry) {
	for _, entry := range entries {
		s.AddTerm(entry.Term, entry.Frequency)
	}
}

// Contains checks if a term exists exactly in the dictionary.
func (s *SymSpell) Contains(term string) bool {
	_, ok := s.dictionary[strings.ToLower(strings.TrimSpace(term))]
	return ok
}

// Lookup finds spelling suggestions for the input term, ordered by edit
// distance, then frequency descending, then term.
func (s *SymSpell) Lookup(input string, maxDistance int) []Suggestion {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil
	}
	if maxDistance > s.config.MaxEditDistance {
		maxDistance = s.config.MaxEditDistance
	}

	if freq, ok := s.dictionary[input]; ok {
		return []Suggestion{{Term: input, Distance: 0, Frequency: freq}}
	}

	seen := make(map[string]bool)
	var candidates []Suggestion
	consider := func(term string) {
		if seen[term] {
			return
		}
		seen[term] = true
		if dist := editDistance(input, term, maxDistance); dist >= 0 {
			candidates = append(candidates, Suggestion{Term: term, Distance: dist, Frequency: s.dictionary[term]})
		}
	}

	probes := append(deletesOf(input, maxDistance), input)
	for _, probe := range probes {
		for _, term := range s.deletes[probe] {
			consider(term)
		}
		if _, ok := s.dictionary[probe]; ok {
			consider(probe)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Term < b.Term
	})
	return candidates
}

// LookupBest returns the single best suggestion, or nil if none found.
func (s *SymSpell) LookupBest(input string, maxDistance int) *Suggestion {
	suggestions := s.Lookup(input, maxDistance)
	if len(suggestions) == 0 {
		return nil
	}
	return &suggestions[0]
}

// Stats returns statistics about the dictionary.
func (s *SymSpell) Stats() DictionaryStats {
	stats := DictionaryStats{
		TermCount:   len(s.dictionary),
		DeleteCount: len(s.deletes),
	}
	for _, freq := range s.dictionary {
		stats.TotalFrequency += freq
		if freq > stats.MaxFrequency {
			stats.MaxFrequency = freq
		}
	}
	return stats
}

// deletesOf returns every distinct string reachable from term by deleting
// between 1 and maxDistance characters, in sorted order.
func deletesOf(term string, maxDistance int) []string {
	if maxDistance <= 0 || term == "" {
		return nil
	}

	found := make(map[string]bool)
	frontier := []string{term}
	for d := 0; d < maxDistance; d++ {
		var next []string
		for _, word := range frontier {
			if len(word) <= 1 {
				continue
			}
			for i := 0; i < len(word); i++ {
				del := word[:i] + word[i+1:]
				if !found[del] {
					found[del] = true
					next = append(next, del)
				}
			}
		}
		frontier = next
	}

	out := make([]string, 0, len(found))
	for del := range found {
		out = append(out, del)
	}
	sort.Strings(out)
	return out
}

// editDistance calculates the optimal string alignment (restricted
// Damerau-Levenshtein) distance between a and b. It returns -1 as soon as
// the distance is known to exceed maxDistance.
func editDistance(a, b string, maxDistance int) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(b)-len(a) > maxDistance {
		return -1
	}
	if a == "" {
		return len(b)
	}

	prevPrev := make([]int, len(a)+1)
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(b); j++ {
		curr[0] = j
		rowMin := j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				curr[i] = min(curr[i], prevPrev[i-2]+1)
			}
			rowMin = min(rowMin, curr[i])
		}
		if rowMin > maxDistance {
			return -1
		}
		prevPrev, prev, curr = prev, curr, prevPrev
	}

	if prev[len(a)] > maxDistance {
		return -1
	}
	return prev[len(a)]
}
