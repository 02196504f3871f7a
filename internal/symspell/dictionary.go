package symspell

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/normalize"
)

// TokenSource supplies vocabulary with frequencies. The reference index
// satisfies it.
type TokenSource interface {
	Tokens() map[string]int64
}

// BuildFromIndex builds a dictionary from the words of every registry name.
func BuildFromIndex(localDebug bool, src TokenSource, config *Config) *SymSpell {
	if config == nil {
		config = DefaultConfig()
	}
	start := time.Now()

	counts := src.Tokens()
	entries := make([]DictionaryEntry, 0, len(counts))
	for term, freq := range counts {
		entries = append(entries, DictionaryEntry{Term: term, Frequency: freq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Term < entries[j].Term })

	s := BuildFromEntries(entries, config)
	debug.DebugOutput(localDebug, "symspell dictionary: %d terms in %v", s.Stats().TermCount, time.Since(start))
	return s
}

// DictionaryBuilder builds a dictionary straight from the reference_firm
// table, for callers that do not hold an index.
type DictionaryBuilder struct {
	db     *sql.DB
	config *Config
}

// NewDictionaryBuilder creates a new dictionary builder.
func NewDictionaryBuilder(db *sql.DB, config *Config) *DictionaryBuilder {
	if config == nil {
		config = DefaultConfig()
	}
	return &DictionaryBuilder{db: db, config: config}
}

// BuildFromRegistry reads every firm and alias name and indexes their words.
func (b *DictionaryBuilder) BuildFromRegistry(ctx context.Context, localDebug bool) (*SymSpell, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT firm_name FROM reference_firm
		UNION ALL
		SELECT alias_name FROM reference_alias
	`)
	if err != nil {
		return nil, fmt.Errorf("querying registry names: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning registry name: %w", err)
		}
		for _, t := range normalize.Tokens(normalize.Normalize(name)) {
			counts[t]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return BuildFromIndex(localDebug, tokenCounts(counts), b.config), nil
}

type tokenCounts map[string]int64

func (t tokenCounts) Tokens() map[string]int64 { return t }

// BuildFromEntries builds a dictionary from pre-provided entries.
func BuildFromEntries(entries []DictionaryEntry, config *Config) *SymSpell {
	if config == nil {
		config = DefaultConfig()
	}
	s := New(config)
	s.AddTerms(entries)
	return s
}
