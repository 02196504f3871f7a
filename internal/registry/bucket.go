package registry

import "strings"

// BucketStrategy decides how the registry is partitioned for fuzzy search.
type BucketStrategy string

const (
	// BucketFirstChar groups firms by the first character of the normalized name.
	BucketFirstChar BucketStrategy = "first_char"
	// BucketFirstTwo groups firms by the first two characters.
	BucketFirstTwo BucketStrategy = "first2"
	// BucketFirstToken groups firms by the first word.
	BucketFirstToken BucketStrategy = "first_token"
)

// Valid reports whether s is a known strategy.
func (s BucketStrategy) Valid() bool {
	switch s {
	case BucketFirstChar, BucketFirstTwo, BucketFirstToken:
		return true
	}
	return false
}

// Key derives the bucket key for a normalized name. The empty name maps to
// the empty key, which is still a bucket.
func (s BucketStrategy) Key(normalized string) string {
	if normalized == "" {
		return ""
	}

	switch s {
	case BucketFirstTwo:
		compact := strings.ReplaceAll(normalized, " ", "")
		if len(compact) < 2 {
			return compact
		}
		return compact[:2]
	case BucketFirstToken:
		if i := strings.IndexByte(normalized, ' '); i > 0 {
			return normalized[:i]
		}
		return normalized
	default:
		return normalized[:1]
	}
}
