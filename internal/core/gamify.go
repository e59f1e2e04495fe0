package core

import (
	"sort"
	"time"

	"github.com/bookshelf-ai/server/internal/store"
)

const completedBookXP = 50

// Stats are the gamification signals derived from the library and the
// progress log. Plain date arithmetic, recomputed on every sync.
type Stats struct {
	XP             int `json:"xp"`
	PagesRead      int `json:"pagesRead"`
	BooksCompleted int `json:"booksCompleted"`
	CurrentStreak  int `json:"currentStreak"`
	BestStreak     int `json:"bestStreak"`
}

// Timestamp layouts seen in the progress sheet: RFC 3339 from the API,
// datetime-local strings from older rows, bare dates from manual edits.
var progressLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ComputeStats derives XP and reading streaks. XP is one point per page
// read plus a bonus per completed book. A streak is a run of consecutive
// calendar days with at least one reading session; the current streak must
// reach today or yesterday, so it survives until a full day is missed.
func ComputeStats(books []store.Book, progress []store.Progress, now time.Time) Stats {
	var st Stats

	for _, p := range progress {
		if d := p.EndPage - p.StartPage; d > 0 {
			st.PagesRead += d
		}
	}
	for _, b := range books {
		if b.Status == "completed" {
			st.BooksCompleted++
		}
	}
	st.XP = st.PagesRead + completedBookXP*st.BooksCompleted

	days := make(map[string]struct{})
	for _, p := range progress {
		if day, ok := progressDay(p.StartAt); ok {
			days[day] = struct{}{}
		}
	}
	st.CurrentStreak, st.BestStreak = streaks(days, now)
	return st
}

func progressDay(s string) (string, bool) {
	for _, layout := range progressLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func streaks(days map[string]struct{}, now time.Time) (current, best int) {
	if len(days) == 0 {
		return 0, 0
	}

	sorted := make([]string, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	run := 1
	best = 1
	for i := 1; i < len(sorted); i++ {
		prev, _ := time.Parse("2006-01-02", sorted[i-1])
		cur, _ := time.Parse("2006-01-02", sorted[i])
		if cur.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}

	day := now
	if _, ok := days[day.Format("2006-01-02")]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	for {
		if _, ok := days[day.Format("2006-01-02")]; !ok {
			break
		}
		current++
		day = day.AddDate(0, 0, -1)
	}
	return current, best
}
