// Package registry builds the read-only reference index of known firms that
// every matcher tier consults. An Index is built once per run and never
// mutated afterwards, so it is safe for concurrent readers.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/normalize"
)

var (
	// ErrEmptyIdentifier is returned when a registry row has no identifier.
	ErrEmptyIdentifier = errors.New("registry: empty identifier")
	// ErrDuplicateIdentifier is returned when two registry rows share an identifier.
	ErrDuplicateIdentifier = errors.New("registry: duplicate identifier")
	// ErrEmptyName is returned when a registry row has no canonical name.
	ErrEmptyName = errors.New("registry: empty canonical name")
	// ErrUnknownAliasTarget is returned when an alias names an identifier
	// that is not in the registry.
	ErrUnknownAliasTarget = errors.New("registry: alias references unknown identifier")
	// ErrAmbiguousName is returned by MustUnique for normalized names held
	// by more than one firm.
	ErrAmbiguousName = errors.New("registry: ambiguous normalized name")
)

// FirmRecord is a registry row as supplied by a data source.
type FirmRecord struct {
	Identifier string
	Name       string
}

// Alias is a former or trading name known to belong to a registry firm.
type Alias struct {
	Identifier string
	Name       string
	Kind       string // "former", "dba" or ""
}

// ReferenceFirm is a registry firm with its derived lookup keys.
type ReferenceFirm struct {
	Identifier     string `json:"identifier"`
	CanonicalName  string `json:"canonical_name"`
	NormalizedName string `json:"normalized_name"`
	BaseName       string `json:"base_name"`
	BucketKey      string `json:"bucket_key"`
}

// LookupStatus classifies how many firms a lookup found.
type LookupStatus int

const (
	LookupNone LookupStatus = iota
	LookupUnique
	LookupAmbiguous
)

func (s LookupStatus) String() string {
	switch s {
	case LookupUnique:
		return "unique"
	case LookupAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// LookupResult is the outcome of a keyed lookup. Firms are ordered by
// identifier.
type LookupResult struct {
	Status LookupStatus
	Firms  []*ReferenceFirm
}

// Firm returns the single firm of a unique result, or nil.
func (r LookupResult) Firm() *ReferenceFirm {
	if r.Status != LookupUnique {
		return nil
	}
	return r.Firms[0]
}

// Collision describes a normalized name shared by several firms.
type Collision struct {
	NormalizedName string   `json:"normalized_name"`
	Identifiers    []string `json:"identifiers"`
}

// Stats summarises an index.
type Stats struct {
	Firms      int `json:"firms"`
	Aliases    int `json:"aliases"`
	Buckets    int `json:"buckets"`
	Collisions int `json:"collisions"`
}

// Options controls index construction.
type Options struct {
	BucketStrategy BucketStrategy
}

// Index is the reference lookup structure.
type Index struct {
	firms        []*ReferenceFirm
	byIdentifier map[string]*ReferenceFirm
	byCanonical  map[string][]*ReferenceFirm
	byNormalized map[string][]*ReferenceFirm
	byBase       map[string][]*ReferenceFirm
	byAlias      map[string][]*ReferenceFirm
	byAliasBase  map[string][]*ReferenceFirm
	buckets      map[string][]*ReferenceFirm
	strategy     BucketStrategy
	aliasCount   int
	collisions   []Collision
}

// Build constructs an index from registry rows and an optional alias table.
// Data errors in the registry are fatal; normalized-name collisions are not
// errors and are reported through Collisions.
func Build(localDebug bool, records []FirmRecord, aliases []Alias, opts Options) (*Index, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)
	defer debug.DebugTiming(localDebug, "registry build")()

	strategy := opts.BucketStrategy
	if strategy == "" {
		strategy = BucketFirstChar
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("registry: unknown bucket strategy %q", strategy)
	}

	idx := &Index{
		firms:        make([]*ReferenceFirm, 0, len(records)),
		byIdentifier: make(map[string]*ReferenceFirm, len(records)),
		byCanonical:  make(map[string][]*ReferenceFirm, len(records)),
		byNormalized: make(map[string][]*ReferenceFirm, len(records)),
		byBase:       make(map[string][]*ReferenceFirm, len(records)),
		byAlias:      make(map[string][]*ReferenceFirm),
		byAliasBase:  make(map[string][]*ReferenceFirm),
		buckets:      make(map[string][]*ReferenceFirm),
		strategy:     strategy,
	}

	for i, rec := range records {
		id := strings.TrimSpace(rec.Identifier)
		if id == "" {
			return nil, fmt.Errorf("row %d: %w", i+1, ErrEmptyIdentifier)
		}
		if _, dup := idx.byIdentifier[id]; dup {
			return nil, fmt.Errorf("row %d identifier %s: %w", i+1, id, ErrDuplicateIdentifier)
		}
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			return nil, fmt.Errorf("row %d identifier %s: %w", i+1, id, ErrEmptyName)
		}

		normalized := normalize.Normalize(name)
		firm := &ReferenceFirm{
			Identifier:     id,
			CanonicalName:  name,
			NormalizedName: normalized,
			BaseName:       normalize.BaseOfNormalized(normalized),
			BucketKey:      strategy.Key(normalized),
		}

		idx.firms = append(idx.firms, firm)
		idx.byIdentifier[id] = firm
		idx.byCanonical[name] = append(idx.byCanonical[name], firm)
		idx.byNormalized[normalized] = append(idx.byNormalized[normalized], firm)
		idx.byBase[firm.BaseName] = append(idx.byBase[firm.BaseName], firm)
		idx.buckets[firm.BucketKey] = append(idx.buckets[firm.BucketKey], firm)
	}

	for i, alias := range aliases {
		firm, ok := idx.byIdentifier[strings.TrimSpace(alias.Identifier)]
		if !ok {
			return nil, fmt.Errorf("alias row %d identifier %s: %w", i+1, alias.Identifier, ErrUnknownAliasTarget)
		}
		key := normalize.Normalize(alias.Name)
		if key == "" || containsFirm(idx.byAlias[key], firm) {
			continue
		}
		idx.byAlias[key] = append(idx.byAlias[key], firm)
		idx.aliasCount++

		if base := normalize.BaseOfNormalized(key); !containsFirm(idx.byAliasBase[base], firm) {
			idx.byAliasBase[base] = append(idx.byAliasBase[base], firm)
		}
	}

	idx.sortKeyed()
	idx.collisions = idx.findCollisions()

	for _, c := range idx.collisions {
		debug.Logger().Warn("registry normalized name collision",
			zap.String("normalized_name", c.NormalizedName),
			zap.Strings("identifiers", c.Identifiers))
	}

	debug.DebugOutput(localDebug, "Indexed %d firms in %d buckets (%d aliases, %d collisions)",
		len(idx.firms), len(idx.buckets), idx.aliasCount, len(idx.collisions))

	return idx, nil
}

// sortKeyed orders every keyed list by identifier and every bucket by
// normalized name then identifier so iteration is deterministic.
func (idx *Index) sortKeyed() {
	for _, m := range []map[string][]*ReferenceFirm{idx.byCanonical, idx.byNormalized, idx.byBase, idx.byAlias, idx.byAliasBase} {
		for _, firms := range m {
			sort.Slice(firms, func(i, j int) bool { return firms[i].Identifier < firms[j].Identifier })
		}
	}
	for _, firms := range idx.buckets {
		sort.Slice(firms, func(i, j int) bool {
			if firms[i].NormalizedName != firms[j].NormalizedName {
				return firms[i].NormalizedName < firms[j].NormalizedName
			}
			return firms[i].Identifier < firms[j].Identifier
		})
	}
}

func (idx *Index) findCollisions() []Collision {
	var out []Collision
	for name, firms := range idx.byNormalized {
		if len(firms) < 2 {
			continue
		}
		ids := make([]string, len(firms))
		for i, f := range firms {
			ids[i] = f.Identifier
		}
		out = append(out, Collision{NormalizedName: name, Identifiers: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out
}

func containsFirm(firms []*ReferenceFirm, f *ReferenceFirm) bool {
	for _, x := range firms {
		if x == f {
			return true
		}
	}
	return false
}

func result(firms []*ReferenceFirm) LookupResult {
	switch len(firms) {
	case 0:
		return LookupResult{Status: LookupNone}
	case 1:
		return LookupResult{Status: LookupUnique, Firms: firms}
	default:
		return LookupResult{Status: LookupAmbiguous, Firms: firms}
	}
}

// ExactLookup finds firms whose canonical name equals raw verbatim.
func (idx *Index) ExactLookup(raw string) LookupResult {
	return result(idx.byCanonical[strings.TrimSpace(raw)])
}

// NormalizedLookup finds firms by normalized name.
func (idx *Index) NormalizedLookup(normalized string) LookupResult {
	if normalized == "" {
		return LookupResult{Status: LookupNone}
	}
	return result(idx.byNormalized[normalized])
}

// BaseLookup finds firms by base name.
func (idx *Index) BaseLookup(base string) LookupResult {
	if base == "" {
		return LookupResult{Status: LookupNone}
	}
	return result(idx.byBase[base])
}

// AliasLookup finds firms that carry normalized as a former or trading name.
func (idx *Index) AliasLookup(normalized string) LookupResult {
	if normalized == "" {
		return LookupResult{Status: LookupNone}
	}
	return result(idx.byAlias[normalized])
}

// AliasBaseLookup finds firms carrying a former or trading name whose base
// name is base.
func (idx *Index) AliasBaseLookup(base string) LookupResult {
	if base == "" {
		return LookupResult{Status: LookupNone}
	}
	return result(idx.byAliasBase[base])
}

// Union merges lookups, counting each firm once. The merged firms are
// ordered by identifier.
func Union(results ...LookupResult) LookupResult {
	var firms []*ReferenceFirm
	for _, r := range results {
		for _, f := range r.Firms {
			if !containsFirm(firms, f) {
				firms = append(firms, f)
			}
		}
	}
	sort.Slice(firms, func(i, j int) bool { return firms[i].Identifier < firms[j].Identifier })
	return result(firms)
}

// MustUnique returns the single firm holding normalized, ErrAmbiguousName
// when several do, and nil when none does.
func (idx *Index) MustUnique(normalized string) (*ReferenceFirm, error) {
	res := idx.NormalizedLookup(normalized)
	switch res.Status {
	case LookupUnique:
		return res.Firms[0], nil
	case LookupAmbiguous:
		ids := make([]string, len(res.Firms))
		for i, f := range res.Firms {
			ids[i] = f.Identifier
		}
		return nil, fmt.Errorf("%q held by %s: %w", normalized, strings.Join(ids, ", "), ErrAmbiguousName)
	default:
		return nil, nil
	}
}

// Firm returns the firm with the given identifier.
func (idx *Index) Firm(identifier string) (*ReferenceFirm, bool) {
	f, ok := idx.byIdentifier[identifier]
	return f, ok
}

// BucketKey computes the bucket a normalized name falls into under the
// index's strategy.
func (idx *Index) BucketKey(normalized string) string {
	return idx.strategy.Key(normalized)
}

// CandidatesForBucket returns the firms sharing a bucket key. The slice is
// shared and must not be modified.
func (idx *Index) CandidatesForBucket(key string) []*ReferenceFirm {
	return idx.buckets[key]
}

// Collisions lists normalized names held by more than one firm.
func (idx *Index) Collisions() []Collision {
	return idx.collisions
}

// Firms returns every firm in load order.
func (idx *Index) Firms() []*ReferenceFirm {
	return idx.firms
}

// Len returns the number of firms.
func (idx *Index) Len() int {
	return len(idx.firms)
}

// Tokens returns every word used in normalized firm and alias names with
// the number of times it occurs.
func (idx *Index) Tokens() map[string]int64 {
	counts := make(map[string]int64)
	for _, f := range idx.firms {
		for _, t := range normalize.Tokens(f.NormalizedName) {
			counts[t]++
		}
	}
	for name := range idx.byAlias {
		for _, t := range normalize.Tokens(name) {
			counts[t]++
		}
	}
	return counts
}

// Stats returns index counts.
func (idx *Index) Stats() Stats {
	return Stats{
		Firms:      len(idx.firms),
		Aliases:    idx.aliasCount,
		Buckets:    len(idx.buckets),
		Collisions: len(idx.collisions),
	}
}
