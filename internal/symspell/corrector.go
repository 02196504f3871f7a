package symspell

import (
	"strings"
	"sync"

	"github.com/firm-crd-matching/internal/normalize"
)

// Corrector rewrites the words of a normalized firm name to the closest
// registry vocabulary term.
type Corrector struct {
	symspell *SymSpell
	config   *Config
	mu       sync.RWMutex
}

// NewCorrector wraps a built dictionary.
func NewCorrector(s *SymSpell, config *Config) *Corrector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Corrector{symspell: s, config: config}
}

// InitWithEntries initializes a corrector with pre-built entries.
func InitWithEntries(entries []DictionaryEntry, config *Config) *Corrector {
	if config == nil {
		config = DefaultConfig()
	}
	return NewCorrector(BuildFromEntries(entries, config), config)
}

// CorrectName corrects each word of a normalized name. It returns the
// corrected name and the corrections applied; the input is returned
// unchanged when nothing was corrected.
func (c *Corrector) CorrectName(normalized string) (string, []CorrectionResult) {
	if c == nil || c.symspell == nil {
		return normalized, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens := strings.Fields(normalized)
	var corrections []CorrectionResult
	for i, token := range tokens {
		result := c.correctToken(token)
		if result.WasCorrected {
			tokens[i] = result.Corrected
			corrections = append(corrections, result)
		}
	}

	if len(corrections) == 0 {
		return normalized, nil
	}
	return strings.Join(tokens, " "), corrections
}

// CorrectToken corrects a single token and returns the correction result.
func (c *Corrector) CorrectToken(token string) CorrectionResult {
	if c == nil || c.symspell == nil {
		return CorrectionResult{Original: token, Corrected: token}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.correctToken(token)
}

func (c *Corrector) correctToken(token string) CorrectionResult {
	token = strings.ToLower(strings.TrimSpace(token))
	unchanged := CorrectionResult{Original: token, Corrected: token}

	if len(token) < c.config.MinTermLength || hasDigit(token) || normalize.IsStopWord(token) {
		return unchanged
	}

	suggestion := c.symspell.LookupBest(token, c.config.MaxEditDistance)
	if suggestion == nil || suggestion.Distance == 0 {
		return unchanged
	}

	return CorrectionResult{
		Original:     token,
		Corrected:    suggestion.Term,
		Distance:     suggestion.Distance,
		WasCorrected: true,
		Confidence:   1.0 - float64(suggestion.Distance)/float64(c.config.MaxEditDistance+1),
	}
}

// LookupSuggestions returns up to maxResults suggestions for a token.
func (c *Corrector) LookupSuggestions(token string, maxResults int) []Suggestion {
	if c == nil || c.symspell == nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	suggestions := c.symspell.Lookup(token, c.config.MaxEditDistance)
	if maxResults > 0 && len(suggestions) > maxResults {
		return suggestions[:maxResults]
	}
	return suggestions
}

// Stats returns dictionary statistics.
func (c *Corrector) Stats() DictionaryStats {
	if c == nil || c.symspell == nil {
		return DictionaryStats{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symspell.Stats()
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
