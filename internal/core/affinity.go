package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bookshelf-ai/server/internal/store"
)

const (
	authorBonus       = 1.2
	strongGenreCutoff = 8.0
	maxReasonGenres   = 2
	DefaultLocalLimit = 9
)

// LocalRecommendation is a planned book scored against the user's rated
// history. No model involved; this ranking is cheap and deterministic.
type LocalRecommendation struct {
	Book   store.Book `json:"book"`
	Score  float64    `json:"score"`
	Reason string     `json:"reason"`
}

// RecommendPlanned ranks planned books by genre affinity: each genre's
// affinity is the average rating of completed books in that genre, a book's
// score is the sum over its genres, plus a bonus when a completed book by
// the same author was rated highly. Ties keep library order.
func RecommendPlanned(books []store.Book, limit int) []LocalRecommendation {
	if limit <= 0 {
		limit = DefaultLocalLimit
	}

	affinity := genreAffinity(books)

	bestByAuthor := make(map[string]float64)
	for _, b := range books {
		if b.Status != "completed" || !b.Rating.Valid || b.Author == "" {
			continue
		}
		if b.Rating.Value > bestByAuthor[b.Author] {
			bestByAuthor[b.Author] = b.Rating.Value
		}
	}

	var out []LocalRecommendation
	for _, b := range books {
		if b.Status != "planned" {
			continue
		}

		var score float64
		var strong []string
		for _, g := range splitGenres(string(b.Genre)) {
			if a, ok := affinity[g]; ok {
				score += a
				if a >= strongGenreCutoff && len(strong) < maxReasonGenres {
					strong = append(strong, g)
				}
			}
		}

		reason := ""
		if len(strong) > 0 {
			reason = fmt.Sprintf("Похоже, тебе заходят жанры: %s", strings.Join(strong, ", "))
		}
		if bestByAuthor[b.Author] >= strongGenreCutoff {
			score += authorBonus
		}

		out = append(out, LocalRecommendation{Book: b, Score: score, Reason: reason})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// genreAffinity averages completed-book ratings per genre.
func genreAffinity(books []store.Book) map[string]float64 {
	type acc struct {
		sum float64
		cnt int
	}
	byGenre := make(map[string]*acc)
	for _, b := range books {
		if b.Status != "completed" || !b.Rating.Valid {
			continue
		}
		for _, g := range splitGenres(string(b.Genre)) {
			a := byGenre[g]
			if a == nil {
				a = &acc{}
				byGenre[g] = a
			}
			a.sum += b.Rating.Value
			a.cnt++
		}
	}

	avg := make(map[string]float64, len(byGenre))
	for g, a := range byGenre {
		avg[g] = a.sum / float64(a.cnt)
	}
	return avg
}

func splitGenres(genre string) []string {
	var out []string
	for _, g := range strings.Split(genre, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
