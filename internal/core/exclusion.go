package core

import (
	"strings"

	"github.com/bookshelf-ai/server/internal/store"
)

// NormalizeKey builds the identity used for deduplication and exclusion
// membership: lowercase "title|author". Returns "" when either part is
// blank; such records cannot be excluded by key.
//
// Profile rendering and the post-generation filter both go through this
// function. If they ever normalized differently the exclusion list would be
// silently ineffective.
func NormalizeKey(title, author string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	a := strings.ToLower(strings.TrimSpace(author))
	if t == "" || a == "" {
		return ""
	}
	return t + "|" + a
}

// BuildExclusionSet unions the normalized keys of every owned book with the
// keys of every previously recommended item in history. The set steers
// generation (rendered into the prompt) and backs the strict post-filter.
func BuildExclusionSet(books []store.Book, history []store.RecommendationBatch) map[string]struct{} {
	excluded := make(map[string]struct{})
	for _, b := range books {
		if key := NormalizeKey(b.Title, b.Author); key != "" {
			excluded[key] = struct{}{}
		}
	}
	for _, batch := range history {
		for _, rec := range batch.Recs {
			if key := NormalizeKey(rec.Title, rec.Author); key != "" {
				excluded[key] = struct{}{}
			}
		}
	}
	return excluded
}

// FilterExcluded drops recommendations whose normalized key is in the
// exclusion set. The model is instructed not to return them, but this is
// the enforcement: fewer than five survivors is a valid outcome, not an
// error.
func FilterExcluded(recs []store.Recommendation, excluded map[string]struct{}) []store.Recommendation {
	kept := make([]store.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if _, banned := excluded[NormalizeKey(rec.Title, rec.Author)]; banned {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}
