package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bookshelf-ai/server/internal/store"
)

// Rating thresholds for taste signals. Values strictly between the two are a
// deliberate dead zone: mediocre ratings contribute to no signal.
const (
	likeThreshold    = 8.0
	dislikeThreshold = 4.0
)

// Profile list bounds. Every list in the rendered profile is capped so the
// prompt stays the same size whether the library holds ten books or ten
// thousand.
const (
	maxLikedBooks    = 7
	maxDislikedBooks = 5
	maxCriteriaNames = 8
	maxGenreNames    = 5
	maxExcludedKeys  = 120
)

type normBook struct {
	title    string
	author   string
	genre    string
	rating   store.Number
	criteria []store.Criterion
}

// BuildProfile renders a compact natural-language taste profile from the
// user's library. It is the sole input surface handed to the model: liked
// and disliked exemplars, aggregated criterion and genre signals, then the
// do-not-recommend list. Output is deterministic for identical input.
func BuildProfile(books []store.Book, excluded map[string]struct{}) string {
	norm := make([]normBook, 0, len(books))
	for _, b := range books {
		norm = append(norm, normBook{
			title:    strings.TrimSpace(b.Title),
			author:   strings.TrimSpace(b.Author),
			genre:    strings.TrimSpace(string(b.Genre)),
			rating:   b.Rating,
			criteria: b.Criteria.Items(),
		})
	}

	var rated []normBook
	for _, b := range norm {
		if b.rating.Valid {
			rated = append(rated, b)
		}
	}

	var liked, disliked []normBook
	for _, b := range rated {
		if b.rating.Value >= likeThreshold {
			liked = append(liked, b)
		}
		if b.rating.Value <= dislikeThreshold {
			disliked = append(disliked, b)
		}
	}
	sort.SliceStable(liked, func(i, j int) bool { return liked[i].rating.Value > liked[j].rating.Value })
	sort.SliceStable(disliked, func(i, j int) bool { return disliked[i].rating.Value < disliked[j].rating.Value })
	if len(liked) > maxLikedBooks {
		liked = liked[:maxLikedBooks]
	}
	if len(disliked) > maxDislikedBooks {
		disliked = disliked[:maxDislikedBooks]
	}

	critLike := newOrderedCounter()
	critDislike := newOrderedCounter()
	for _, b := range rated {
		for _, c := range b.criteria {
			if c.Value >= likeThreshold {
				critLike.Inc(c.Name)
			}
			if c.Value <= dislikeThreshold {
				critDislike.Inc(c.Name)
			}
		}
	}

	// Genre counts cover only the exemplar subsets, not the full rated
	// population. A book over the threshold that missed the top cut
	// contributes nothing here.
	likeGenres := newOrderedCounter()
	dislikeGenres := newOrderedCounter()
	for _, b := range liked {
		if b.genre != "" {
			likeGenres.Inc(b.genre)
		}
	}
	for _, b := range disliked {
		if b.genre != "" {
			dislikeGenres.Inc(b.genre)
		}
	}

	var lines []string

	lines = append(lines, "ЛЮБЛЮ (высокие оценки, примеры):")
	lines = append(lines, bookLines(liked)...)

	lines = append(lines, "", "НЕ ЛЮБЛЮ (низкие оценки, примеры):")
	lines = append(lines, bookLines(disliked)...)

	lines = append(lines, "", "СИГНАЛЫ ПО КРИТЕРИЯМ:")
	lines = append(lines, "Что обычно важно (часто 8–10): "+joinOrNone(critLike.Top(maxCriteriaNames)))
	lines = append(lines, "Что обычно раздражает (часто 0–4): "+joinOrNone(critDislike.Top(maxCriteriaNames)))

	lines = append(lines, "", "СИГНАЛЫ ПО ЖАНРАМ:")
	lines = append(lines, "Чаще нравится: "+joinOrNone(likeGenres.Top(maxGenreNames)))
	lines = append(lines, "Чаще не нравится: "+joinOrNone(dislikeGenres.Top(maxGenreNames)))

	lines = append(lines, "", "ЗАПРЕЩЕНО РЕКОМЕНДОВАТЬ (уже есть или уже рекомендовалось):")
	lines = append(lines, exclusionLines(excluded)...)

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func bookLines(books []normBook) []string {
	if len(books) == 0 {
		return []string{"- нет данных"}
	}
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, formatBook(b))
	}
	return out
}

func formatBook(b normBook) string {
	top := append([]store.Criterion(nil), b.criteria...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Value > top[j].Value })
	if len(top) > 2 {
		top = top[:2]
	}
	strengths := "—"
	if len(top) > 0 {
		parts := make([]string, 0, len(top))
		for _, c := range top {
			parts = append(parts, c.Name+":"+formatNumber(c.Value))
		}
		strengths = strings.Join(parts, ", ")
	}

	genre := b.genre
	if genre == "" {
		genre = "—"
	}
	rating := "—"
	if b.rating.Valid {
		rating = formatNumber(b.rating.Value)
	}
	return fmt.Sprintf("- %s — %s (жанр: %s, рейтинг: %s, сильные стороны: %s)", b.title, b.author, genre, rating, strengths)
}

// exclusionLines renders the forbidden list: well-formed keys only, sorted,
// capped at maxExcludedKeys so a huge history cannot blow up the prompt.
func exclusionLines(excluded map[string]struct{}) []string {
	keys := make([]string, 0, len(excluded))
	for k := range excluded {
		if k != "" && strings.Contains(k, "|") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > maxExcludedKeys {
		keys = keys[:maxExcludedKeys]
	}
	if len(keys) == 0 {
		return []string{"- нет"}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		title, author, _ := strings.Cut(k, "|")
		out = append(out, fmt.Sprintf("- %s — %s", title, author))
	}
	return out
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "нет данных"
	}
	return strings.Join(names, ", ")
}

// formatNumber renders without a trailing ".0" for integral values: 9 not 9.0.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// orderedCounter counts string keys while remembering first-seen order, so
// ties in Top are broken the same way on every run. A plain map would make
// the tie-break depend on iteration order.
type orderedCounter struct {
	keys   []string
	counts map[string]int
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{counts: make(map[string]int)}
}

func (c *orderedCounter) Inc(key string) {
	if _, seen := c.counts[key]; !seen {
		c.keys = append(c.keys, key)
	}
	c.counts[key]++
}

// Top returns up to n keys ordered by count descending, first-seen first on
// equal counts.
func (c *orderedCounter) Top(n int) []string {
	out := append([]string(nil), c.keys...)
	sort.SliceStable(out, func(i, j int) bool { return c.counts[out[i]] > c.counts[out[j]] })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
