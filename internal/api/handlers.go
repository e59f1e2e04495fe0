package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bookshelf-ai/server/internal/core"
	"github.com/bookshelf-ai/server/internal/store"
)

// Store is the persistence surface the handlers consume.
type Store interface {
	ReadAll() ([]store.Book, []store.Progress, error)
	UpsertBook(b store.Book) error
	DeleteBook(title, author string) error
	AppendProgress(p store.Progress) error
	LastRecommendations() (*store.RecommendationBatch, error)
}

// Generator produces one AI recommendation batch.
type Generator interface {
	Generate(ctx context.Context) ([]store.Recommendation, error)
}

// SyncResponse is the full client state: the whole library, the progress
// log and the derived gamification stats.
type SyncResponse struct {
	Books    []store.Book     `json:"books"`
	Progress []store.Progress `json:"progress"`
	Stats    core.Stats       `json:"stats"`
}

type APIHandler struct {
	store     Store
	generator Generator
	logger    *zap.Logger

	authLogin    string
	authPassword string

	// sync payload cache: reading the workbook on every poll is wasteful,
	// a few seconds of staleness is fine for a personal tracker.
	cacheTTL time.Duration
	mu       sync.Mutex
	cached   *SyncResponse
	cachedAt time.Time
}

func NewAPIHandler(st Store, gen Generator, authLogin, authPassword string, cacheTTL time.Duration, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		store:        st,
		generator:    gen,
		logger:       logger,
		authLogin:    authLogin,
		authPassword: authPassword,
		cacheTTL:     cacheTTL,
	}
}

// BasicAuthMiddleware guards the API with HTTP Basic credentials from the
// environment. When no credentials are configured the check is disabled.
func (h *APIHandler) BasicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authLogin == "" && h.authPassword == "" {
			next.ServeHTTP(w, r)
			return
		}

		login, pass, ok := r.BasicAuth()
		loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(h.authLogin)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.authPassword)) == 1
		if !ok || !loginOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="bookshelf"`)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthCheckHandler is the login probe the frontend hits before unlocking
// the UI. Reaching it at all means the middleware accepted the credentials.
func (h *APIHandler) AuthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.syncPayload()
	if err != nil {
		h.logger.Error("sync read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read library")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) UpsertBookHandler(w http.ResponseWriter, r *http.Request) {
	var book store.Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if book.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := h.store.UpsertBook(book); err != nil {
		h.logger.Error("book upsert failed", zap.String("title", book.Title), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save book")
		return
	}
	h.invalidateCache()
	h.respondWithSync(w)
}

type deleteBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

func (h *APIHandler) DeleteBookHandler(w http.ResponseWriter, r *http.Request) {
	var req deleteBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.store.DeleteBook(req.Title, req.Author); err != nil {
		h.logger.Error("book delete failed", zap.String("title", req.Title), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}
	h.invalidateCache()
	h.respondWithSync(w)
}

func (h *APIHandler) AppendProgressHandler(w http.ResponseWriter, r *http.Request) {
	var p store.Progress
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if p.Book == "" {
		writeError(w, http.StatusBadRequest, "book is required")
		return
	}

	if err := h.store.AppendProgress(p); err != nil {
		h.logger.Error("progress append failed", zap.String("book", p.Book), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save progress")
		return
	}
	h.invalidateCache()
	h.respondWithSync(w)
}

func (h *APIHandler) GenerateRecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	recs, err := h.generator.Generate(r.Context())
	if err != nil {
		var genErr *core.GenerationError
		var provErr *core.ProviderError
		switch {
		case errors.As(err, &genErr):
			h.logger.Error("recommendation generation failed", zap.Error(err),
				zap.String("first_raw", genErr.FirstRaw), zap.String("repair_raw", genErr.RepairRaw))
			writeError(w, http.StatusBadGateway, "model returned unusable output")
		case errors.As(err, &provErr):
			h.logger.Error("llm provider failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "llm provider unavailable")
		default:
			h.logger.Error("recommendation pipeline failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to generate recommendations")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recs": recs})
}

func (h *APIHandler) LastRecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	batch, err := h.store.LastRecommendations()
	if err != nil {
		h.logger.Error("reading last recommendations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read recommendations")
		return
	}
	if batch == nil {
		writeError(w, http.StatusNotFound, "no recommendations yet")
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *APIHandler) LocalRecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := core.DefaultLocalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	payload, err := h.syncPayload()
	if err != nil {
		h.logger.Error("sync read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read library")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recs": core.RecommendPlanned(payload.Books, limit),
	})
}

// syncPayload reads the workbook through the TTL cache and derives stats.
func (h *APIHandler) syncPayload() (*SyncResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cached != nil && time.Since(h.cachedAt) < h.cacheTTL {
		return h.cached, nil
	}

	books, progress, err := h.store.ReadAll()
	if err != nil {
		return nil, err
	}
	resp := &SyncResponse{
		Books:    books,
		Progress: progress,
		Stats:    core.ComputeStats(books, progress, time.Now()),
	}
	h.cached = resp
	h.cachedAt = time.Now()
	return resp, nil
}

func (h *APIHandler) invalidateCache() {
	h.mu.Lock()
	h.cached = nil
	h.mu.Unlock()
}

// respondWithSync returns the fresh full state after a mutation, the way
// the sync endpoint would.
func (h *APIHandler) respondWithSync(w http.ResponseWriter) {
	resp, err := h.syncPayload()
	if err != nil {
		h.logger.Error("sync read after mutation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "saved, but failed to re-read library")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
