// Package symspell implements Symmetric Delete spelling correction for the
// words of firm names. The dictionary is built from the reference registry
// vocabulary so misspelt input tokens ("Stanely", "Finacial") can be
// corrected before fuzzy scoring.
package symspell

import (
	"github.com/firm-crd-matching/internal/config"
)

// Config holds SymSpell configuration parameters.
type Config struct {
	// MaxEditDistance is the maximum Damerau-Levenshtein distance for corrections.
	MaxEditDistance int

	// Enabled controls whether spelling correction is active. Off by default.
	Enabled bool

	// MinTermLength is the minimum token length to attempt correction.
	// Short tokens are mostly initials ("jp", "ubs") and are left alone.
	MinTermLength int

	// MinFrequency is the minimum frequency for a term to be included in dictionary.
	MinFrequency int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxEditDistance: 2,
		Enabled:         false,
		MinTermLength:   4,
		MinFrequency:    1,
	}
}

// LoadConfigFromEnv loads configuration from SYMSPELL_* environment variables.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.Enabled = config.GetEnvBool("SYMSPELL_ENABLED", cfg.Enabled)

	if n := config.GetEnvInt("SYMSPELL_MAX_EDIT_DISTANCE", cfg.MaxEditDistance); n > 0 && n <= 3 {
		cfg.MaxEditDistance = n
	}
	if n := config.GetEnvInt("SYMSPELL_MIN_TERM_LENGTH", cfg.MinTermLength); n > 0 {
		cfg.MinTermLength = n
	}
	if n := config.GetEnvInt("SYMSPELL_MIN_FREQUENCY", int(cfg.MinFrequency)); n > 0 {
		cfg.MinFrequency = int64(n)
	}
	return cfg
}

// Suggestion represents a spelling correction suggestion.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int64
}

// CorrectionResult tracks what was corrected for audit and explainability.
type CorrectionResult struct {
	Original     string  `json:"original"`
	Corrected    string  `json:"corrected"`
	Distance     int     `json:"distance"`
	WasCorrected bool    `json:"was_corrected"`
	Confidence   float64 `json:"confidence"`
}

// DictionaryEntry represents a term with its frequency for dictionary building.
type DictionaryEntry struct {
	Term      string
	Frequency int64
}

// DictionaryStats holds statistics about the built dictionary.
type DictionaryStats struct {
	TermCount      int   `json:"term_count"`
	DeleteCount    int   `json:"delete_count"`
	TotalFrequency int64 `json:"total_frequency"`
	MaxFrequency   int64 `json:"max_frequency"`
	BuildTimeMs    int64 `json:"build_time_ms"`
}
