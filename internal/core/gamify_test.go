package core

import (
	"testing"
	"time"

	"github.com/bookshelf-ai/server/internal/store"
)

func TestComputeStats_XP(t *testing.T) {
	books := []store.Book{
		{Title: "Done", Status: "completed"},
		{Title: "Also done", Status: "completed"},
		{Title: "Planned", Status: "planned"},
	}
	progress := []store.Progress{
		{Book: "Done", StartPage: 0, EndPage: 120},
		{Book: "Done", StartPage: 120, EndPage: 200},
		{Book: "Broken row", StartPage: 50, EndPage: 30}, // negative delta ignored
	}

	st := ComputeStats(books, progress, time.Now())

	if st.PagesRead != 200 {
		t.Errorf("PagesRead = %d, want 200", st.PagesRead)
	}
	if st.BooksCompleted != 2 {
		t.Errorf("BooksCompleted = %d, want 2", st.BooksCompleted)
	}
	if want := 200 + 2*completedBookXP; st.XP != want {
		t.Errorf("XP = %d, want %d", st.XP, want)
	}
}

func TestComputeStats_Streaks(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format("2006-01-02T15:04:05Z07:00")
	}

	tests := []struct {
		name        string
		days        []string
		wantCurrent int
		wantBest    int
	}{
		{"empty", nil, 0, 0},
		{"single today", []string{day(0)}, 1, 1},
		{"three through today", []string{day(-2), day(-1), day(0)}, 3, 3},
		{"ends yesterday", []string{day(-2), day(-1)}, 2, 2},
		{"broken two days ago", []string{day(-3), day(-2)}, 0, 2},
		{"best run in the past", []string{day(-9), day(-8), day(-7), day(-6), day(0)}, 1, 4},
		{"duplicate sessions one day", []string{day(0), day(0), day(0)}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var progress []store.Progress
			for _, d := range tt.days {
				progress = append(progress, store.Progress{Book: "B", StartAt: d, StartPage: 1, EndPage: 2})
			}

			st := ComputeStats(nil, progress, now)
			if st.CurrentStreak != tt.wantCurrent {
				t.Errorf("CurrentStreak = %d, want %d", st.CurrentStreak, tt.wantCurrent)
			}
			if st.BestStreak != tt.wantBest {
				t.Errorf("BestStreak = %d, want %d", st.BestStreak, tt.wantBest)
			}
		})
	}
}

func TestProgressDay_Layouts(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-06-10T09:30:00Z", "2025-06-10", true},
		{"2025-06-10T09:30", "2025-06-10", true},
		{"2025-06-10 09:30:00", "2025-06-10", true},
		{"2025-06-10", "2025-06-10", true},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := progressDay(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("progressDay(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
