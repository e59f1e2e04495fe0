package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names match the original spreadsheet so an existing workbook keeps
// working when pointed at by WORKBOOK_PATH.
const (
	booksSheet    = "Все книги"
	progressSheet = "Прогресс"
	aiRecsSheet   = "AI рекомендации"
)

var booksHeaders = []string{
	"Название",
	"Автор",
	"Статус",
	"Жанр",
	"Количество страниц",
	"Рейтинг",
	"Закончено",
	"Год",
	"Image",
	"Полезность",
	"Увлекательность",
	"Понятность",
	"Стиль и язык",
	"Эмоции",
	"Актуальность",
	"Глубина",
	"Практичность",
	"Оригинальность",
	"Рекомендация",
}

var progressHeaders = []string{
	"Книга",
	"Страница старта",
	"Страница завершения",
	"Дата и время начала чтения",
	"Дата и время окончания чтения",
}

var aiRecsHeaders = []string{
	"created_at",
	"result_json",
}

// WorkbookStore persists all application state in a single xlsx workbook.
// Every operation opens the file, applies its change and saves: the dataset
// is a personal library of at most a few thousand rows, and reopening keeps
// the store safe against partial writes from a crashed process.
type WorkbookStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewWorkbookStore(path string, logger *zap.Logger) (*WorkbookStore, error) {
	s := &WorkbookStore{path: path, logger: logger}
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	return s, f.Close()
}

// open loads the workbook, creating it with the expected sheets and headers
// when missing.
func (s *WorkbookStore) open() (*excelize.File, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		for _, sheet := range []struct {
			name    string
			headers []string
		}{
			{booksSheet, booksHeaders},
			{progressSheet, progressHeaders},
			{aiRecsSheet, aiRecsHeaders},
		} {
			if _, err := f.NewSheet(sheet.name); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", sheet.name, err)
			}
			if err := f.SetSheetRow(sheet.name, "A1", &sheet.headers); err != nil {
				return nil, fmt.Errorf("write headers for %q: %w", sheet.name, err)
			}
		}
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
		if err := f.SaveAs(s.path); err != nil {
			return nil, fmt.Errorf("create workbook %q: %w", s.path, err)
		}
		s.logger.Info("created new workbook", zap.String("path", s.path))
		return f, nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", s.path, err)
	}
	for _, sheet := range []struct {
		name    string
		headers []string
	}{
		{booksSheet, booksHeaders},
		{progressSheet, progressHeaders},
		{aiRecsSheet, aiRecsHeaders},
	} {
		if err := s.ensureSheet(f, sheet.name, sheet.headers); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (s *WorkbookStore) ensureSheet(f *excelize.File, name string, headers []string) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("look up sheet %q: %w", name, err)
	}
	if idx == -1 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 || !headersMatch(rows[0], headers) {
		if err := f.SetSheetRow(name, "A1", &headers); err != nil {
			return fmt.Errorf("write headers for %q: %w", name, err)
		}
	}
	return nil
}

func headersMatch(got, want []string) bool {
	if len(got) < len(want) {
		return false
	}
	for i, h := range want {
		if strings.TrimSpace(got[i]) != h {
			return false
		}
	}
	return true
}

// ReadAll loads every book and progress row. Progress is also aggregated
// per title into the book's CurrentPage (highest end page seen) and StartAt
// (earliest session start).
func (s *WorkbookStore) ReadAll() ([]Book, []Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	progRows, err := f.GetRows(progressSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read progress sheet: %w", err)
	}
	progress := make([]Progress, 0, len(progRows))
	for _, row := range skipHeader(progRows) {
		progress = append(progress, Progress{
			Book:      cell(row, 0),
			StartPage: cellInt(row, 1),
			EndPage:   cellInt(row, 2),
			StartAt:   cell(row, 3),
			EndAt:     cell(row, 4),
		})
	}

	type agg struct {
		currentPage int
		startAt     string
	}
	byTitle := make(map[string]*agg)
	for _, p := range progress {
		if p.Book == "" {
			continue
		}
		a := byTitle[p.Book]
		if a == nil {
			a = &agg{}
			byTitle[p.Book] = a
		}
		if p.EndPage > a.currentPage {
			a.currentPage = p.EndPage
		}
		if p.StartAt != "" && (a.startAt == "" || p.StartAt < a.startAt) {
			a.startAt = p.StartAt
		}
	}

	bookRows, err := f.GetRows(booksSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read books sheet: %w", err)
	}
	books := make([]Book, 0, len(bookRows))
	for _, row := range skipHeader(bookRows) {
		title := cell(row, 0)
		author := cell(row, 1)
		if title == "" && author == "" {
			continue
		}
		b := Book{
			ID:       BookID(title, author),
			Title:    title,
			Author:   author,
			Status:   mapStatus(cell(row, 2)),
			Genre:    Genre(cell(row, 3)),
			Pages:    cellInt(row, 4),
			Rating:   cellNumber(row, 5),
			Finished: cell(row, 6),
			Year:     cellIntPtr(row, 7),
			Image:    cell(row, 8),
			Criteria: Criteria{
				Usefulness:   cellNumber(row, 9),
				Engagement:   cellNumber(row, 10),
				Clarity:      cellNumber(row, 11),
				Style:        cellNumber(row, 12),
				Emotions:     cellNumber(row, 13),
				Relevance:    cellNumber(row, 14),
				Depth:        cellNumber(row, 15),
				Practicality: cellNumber(row, 16),
				Originality:  cellNumber(row, 17),
			},
			Recommendation: cell(row, 18),
		}
		if a := byTitle[title]; a != nil {
			b.CurrentPage = a.currentPage
			b.StartAt = a.startAt
		}
		books = append(books, b)
	}

	return books, progress, nil
}

// UpsertBook writes the book to its existing row (matched case-insensitively
// by title+author) or appends a new one.
func (s *WorkbookStore) UpsertBook(b Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	row := []interface{}{
		strings.TrimSpace(b.Title),
		strings.TrimSpace(b.Author),
		statusToSheet(b.Status),
		string(b.Genre),
		intOrBlank(b.Pages),
		numOrBlank(b.Rating),
		b.Finished,
		intPtrOrBlank(b.Year),
		b.Image,
		numOrBlank(b.Criteria.Usefulness),
		numOrBlank(b.Criteria.Engagement),
		numOrBlank(b.Criteria.Clarity),
		numOrBlank(b.Criteria.Style),
		numOrBlank(b.Criteria.Emotions),
		numOrBlank(b.Criteria.Relevance),
		numOrBlank(b.Criteria.Depth),
		numOrBlank(b.Criteria.Practicality),
		numOrBlank(b.Criteria.Originality),
		b.Recommendation,
	}

	idx, total, err := s.findBookRow(f, b.Title, b.Author)
	if err != nil {
		return err
	}
	target := idx
	if target == 0 {
		target = total + 1
	}
	if err := f.SetSheetRow(booksSheet, fmt.Sprintf("A%d", target), &row); err != nil {
		return fmt.Errorf("write book row: %w", err)
	}
	return s.save(f)
}

// DeleteBook removes the row matching title+author. Deleting a book that is
// not in the sheet is not an error.
func (s *WorkbookStore) DeleteBook(title, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	idx, _, err := s.findBookRow(f, title, author)
	if err != nil {
		return err
	}
	if idx == 0 {
		return nil
	}
	if err := f.RemoveRow(booksSheet, idx); err != nil {
		return fmt.Errorf("remove book row: %w", err)
	}
	return s.save(f)
}

// AppendProgress adds one reading session to the progress log.
func (s *WorkbookStore) AppendProgress(p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(progressSheet)
	if err != nil {
		return fmt.Errorf("read progress sheet: %w", err)
	}
	row := []interface{}{
		strings.TrimSpace(p.Book),
		p.StartPage,
		p.EndPage,
		strings.TrimSpace(p.StartAt),
		strings.TrimSpace(p.EndAt),
	}
	if err := f.SetSheetRow(progressSheet, fmt.Sprintf("A%d", len(rows)+1), &row); err != nil {
		return fmt.Errorf("append progress row: %w", err)
	}
	return s.save(f)
}

// AppendRecommendations persists one batch as a (created_at, result_json) row.
// The log is append-only; batches are never rewritten.
func (s *WorkbookStore) AppendRecommendations(recs []Recommendation, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	rows, err := f.GetRows(aiRecsSheet)
	if err != nil {
		return fmt.Errorf("read recommendations sheet: %w", err)
	}
	row := []interface{}{createdAt.UTC().Format(time.RFC3339), string(data)}
	if err := f.SetSheetRow(aiRecsSheet, fmt.Sprintf("A%d", len(rows)+1), &row); err != nil {
		return fmt.Errorf("append recommendations row: %w", err)
	}
	return s.save(f)
}

// LastRecommendations returns the most recent persisted batch, or nil when
// the log is empty.
func (s *WorkbookStore) LastRecommendations() (*RecommendationBatch, error) {
	batches, err := s.RecommendationHistory(1)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	return &batches[0], nil
}

// RecommendationHistory returns up to limit batches, newest first. Rows with
// unreadable JSON are kept with empty recs so their timestamps stay visible.
func (s *WorkbookStore) RecommendationHistory(limit int) ([]RecommendationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(aiRecsSheet)
	if err != nil {
		return nil, fmt.Errorf("read recommendations sheet: %w", err)
	}
	data := skipHeader(rows)

	var batches []RecommendationBatch
	for i := len(data) - 1; i >= 0 && len(batches) < limit; i-- {
		row := data[i]
		batch := RecommendationBatch{CreatedAt: cell(row, 0)}
		if raw := cell(row, 1); raw != "" {
			if err := json.Unmarshal([]byte(raw), &batch.Recs); err != nil {
				s.logger.Warn("skipping unreadable recommendations row",
					zap.String("created_at", batch.CreatedAt), zap.Error(err))
			}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// findBookRow returns the 1-based row index of the book, or 0 when absent,
// along with the total number of rows in the sheet.
func (s *WorkbookStore) findBookRow(f *excelize.File, title, author string) (int, int, error) {
	rows, err := f.GetRows(booksSheet)
	if err != nil {
		return 0, 0, fmt.Errorf("read books sheet: %w", err)
	}
	key := strings.ToLower(strings.TrimSpace(title)) + "||" + strings.ToLower(strings.TrimSpace(author))
	for i, row := range skipHeader(rows) {
		got := strings.ToLower(cell(row, 0)) + "||" + strings.ToLower(cell(row, 1))
		if got == key {
			return i + 2, len(rows), nil
		}
	}
	return 0, len(rows), nil
}

func (s *WorkbookStore) save(f *excelize.File) error {
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook %q: %w", s.path, err)
	}
	return nil
}

func skipHeader(rows [][]string) [][]string {
	if len(rows) <= 1 {
		return nil
	}
	return rows[1:]
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func cellNumber(row []string, i int) Number {
	v, ok := ParseNumber(cell(row, i))
	return Number{Value: v, Valid: ok}
}

func cellInt(row []string, i int) int {
	if v, ok := ParseNumber(cell(row, i)); ok {
		return int(v)
	}
	return 0
}

func cellIntPtr(row []string, i int) *int {
	if v, ok := ParseNumber(cell(row, i)); ok {
		n := int(v)
		return &n
	}
	return nil
}

func intOrBlank(v int) interface{} {
	if v == 0 {
		return ""
	}
	return v
}

func intPtrOrBlank(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func numOrBlank(n Number) interface{} {
	if !n.Valid {
		return ""
	}
	return n.Value
}

// mapStatus normalizes a sheet status cell to the API value. The sheet may
// hold Russian values; unknown or blank cells count as planned.
func mapStatus(s string) string {
	switch x := strings.ToLower(strings.TrimSpace(s)); x {
	case "planned", "reading", "completed":
		return x
	case "план", "в планах", "запланировано", "планирую", "хочу прочитать":
		return "planned"
	case "читаю", "в процессе", "чтение":
		return "reading"
	case "прочитано", "завершено", "закончено", "окончил", "готово":
		return "completed"
	default:
		return "planned"
	}
}

// statusToSheet converts any status representation to one of the three
// Russian values the sheet keeps.
func statusToSheet(s string) string {
	switch mapStatus(s) {
	case "completed":
		return "прочитано"
	case "reading":
		return "читаю"
	default:
		return "хочу прочитать"
	}
}
