package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookshelf-ai/server/internal/core"
	"github.com/bookshelf-ai/server/internal/store"
)

type fakeStore struct {
	books        []store.Book
	progress     []store.Progress
	last         *store.RecommendationBatch
	readAllCalls int
	readAllErr   error
}

func (f *fakeStore) ReadAll() ([]store.Book, []store.Progress, error) {
	f.readAllCalls++
	if f.readAllErr != nil {
		return nil, nil, f.readAllErr
	}
	return f.books, f.progress, nil
}

func (f *fakeStore) UpsertBook(b store.Book) error {
	for i, cur := range f.books {
		if cur.Title == b.Title && cur.Author == b.Author {
			f.books[i] = b
			return nil
		}
	}
	f.books = append(f.books, b)
	return nil
}

func (f *fakeStore) DeleteBook(title, author string) error {
	for i, cur := range f.books {
		if cur.Title == title && cur.Author == author {
			f.books = append(f.books[:i], f.books[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) AppendProgress(p store.Progress) error {
	f.progress = append(f.progress, p)
	return nil
}

func (f *fakeStore) LastRecommendations() (*store.RecommendationBatch, error) {
	return f.last, nil
}

type fakeGenerator struct {
	recs []store.Recommendation
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context) ([]store.Recommendation, error) {
	return f.recs, f.err
}

func newTestServer(st *fakeStore, gen *fakeGenerator, login, password string, ttl time.Duration) http.Handler {
	h := NewAPIHandler(st, gen, login, password, ttl, zap.NewNop())
	return NewRouter(h)
}

func doJSON(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGenerator{}, "reader", "secret", 0)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req = httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.SetBasicAuth("reader", "wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.SetBasicAuth("reader", "secret")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBasicAuth_DisabledWithoutCredentials(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGenerator{}, "", "", 0)

	rec := doJSON(t, srv, http.MethodGet, "/api/auth/check", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGenerator{}, "reader", "secret", 0)

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncHandler(t *testing.T) {
	st := &fakeStore{
		books: []store.Book{
			{Title: "Дюна", Author: "Фрэнк Герберт", Status: "completed"},
		},
		progress: []store.Progress{
			{Book: "Дюна", StartPage: 0, EndPage: 100, StartAt: "2025-05-01T10:00:00Z"},
		},
	}
	srv := newTestServer(st, &fakeGenerator{}, "", "", 0)

	rec := doJSON(t, srv, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Books, 1)
	require.Len(t, resp.Progress, 1)
	assert.Equal(t, 100, resp.Stats.PagesRead)
	assert.Equal(t, 1, resp.Stats.BooksCompleted)
	assert.Equal(t, 150, resp.Stats.XP)
}

func TestSyncHandler_CacheServesRepeatedReads(t *testing.T) {
	st := &fakeStore{}
	srv := newTestServer(st, &fakeGenerator{}, "", "", time.Minute)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv, http.MethodGet, "/api/sync", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, st.readAllCalls, "repeated polls within the TTL hit the cache")
}

func TestUpsertBookHandler(t *testing.T) {
	st := &fakeStore{}
	srv := newTestServer(st, &fakeGenerator{}, "", "", time.Minute)

	// warm the cache so the mutation has something to invalidate
	doJSON(t, srv, http.MethodGet, "/api/sync", "")

	rec := doJSON(t, srv, http.MethodPost, "/api/books/upsert",
		`{"title":"Дюна","author":"Фрэнк Герберт","status":"planned","rating":"8,5"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Books, 1, "mutation response carries the refreshed state")
	assert.Equal(t, store.Num(8.5), resp.Books[0].Rating, "decimal comma accepted in JSON too")
}

func TestUpsertBookHandler_RequiresTitle(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGenerator{}, "", "", 0)

	rec := doJSON(t, srv, http.MethodPost, "/api/books/upsert", `{"author":"кто-то"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/books/upsert", `не json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteBookHandler(t *testing.T) {
	st := &fakeStore{books: []store.Book{{Title: "A", Author: "X"}}}
	srv := newTestServer(st, &fakeGenerator{}, "", "", 0)

	rec := doJSON(t, srv, http.MethodPost, "/api/books/delete", `{"title":"A","author":"X"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Books)
}

func TestAppendProgressHandler(t *testing.T) {
	st := &fakeStore{}
	srv := newTestServer(st, &fakeGenerator{}, "", "", 0)

	rec := doJSON(t, srv, http.MethodPost, "/api/progress/append",
		`{"book":"Дюна","startPage":10,"endPage":42,"startAt":"2025-05-01T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, st.progress, 1)
	assert.Equal(t, 42, st.progress[0].EndPage)

	rec = doJSON(t, srv, http.MethodPost, "/api/progress/append", `{"startPage":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "book name is required")
}

func TestGenerateRecommendationsHandler(t *testing.T) {
	gen := &fakeGenerator{recs: []store.Recommendation{
		{Title: "Солярис", Author: "Станислав Лем", Genre: "фантастика", Why: "похоже на любимое"},
	}}
	srv := newTestServer(&fakeStore{}, gen, "", "", 0)

	rec := doJSON(t, srv, http.MethodPost, "/api/ai/recommendations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Recs []store.Recommendation `json:"recs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Recs, 1)
	assert.Equal(t, "Солярис", resp.Recs[0].Title)
}

func TestGenerateRecommendationsHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			"generation error",
			&core.GenerationError{FirstErr: errors.New("parse"), RepairErr: errors.New("parse"), FirstRaw: "x", RepairRaw: "y"},
			http.StatusBadGateway,
		},
		{
			"provider error",
			&core.ProviderError{Op: "completion request", Err: errors.New("timeout")},
			http.StatusBadGateway,
		},
		{
			"other error",
			errors.New("disk full"),
			http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeStore{}, &fakeGenerator{err: tt.err}, "", "", 0)
			rec := doJSON(t, srv, http.MethodPost, "/api/ai/recommendations", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestLastRecommendationsHandler(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGenerator{}, "", "", 0)
	rec := doJSON(t, srv, http.MethodGet, "/api/ai/recommendations/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "empty log is 404, not an error")

	st := &fakeStore{last: &store.RecommendationBatch{
		CreatedAt: "2025-05-01T10:00:00Z",
		Recs:      []store.Recommendation{{Title: "Солярис", Author: "Станислав Лем", Why: "w"}},
	}}
	srv = newTestServer(st, &fakeGenerator{}, "", "", 0)
	rec = doJSON(t, srv, http.MethodGet, "/api/ai/recommendations/last", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var batch store.RecommendationBatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, "2025-05-01T10:00:00Z", batch.CreatedAt)
	require.Len(t, batch.Recs, 1)
}

func TestLocalRecommendationsHandler(t *testing.T) {
	st := &fakeStore{books: []store.Book{
		{Title: "Loved", Author: "A", Status: "completed", Genre: "фантастика", Rating: store.Num(9)},
		{Title: "Planned 1", Author: "B", Status: "planned", Genre: "фантастика"},
		{Title: "Planned 2", Author: "C", Status: "planned", Genre: "эссе"},
	}}
	srv := newTestServer(st, &fakeGenerator{}, "", "", 0)

	rec := doJSON(t, srv, http.MethodGet, "/api/recommendations/local?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Recs []core.LocalRecommendation `json:"recs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Recs, 1)
	assert.Equal(t, "Planned 1", resp.Recs[0].Book.Title)
}
