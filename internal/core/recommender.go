package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookshelf-ai/server/internal/store"
)

// First-pass generation is a creative task and gets a moderate temperature;
// the repair pass is a pure transformation and runs at zero. Token budgets
// fit five short JSON objects with slack for model reasoning.
const (
	generateTemperature = 0.4
	generateMaxTokens   = 1200
	repairTemperature   = 0.0
	repairMaxTokens     = 1400
)

const generateSystem = "Ты книжный рекомендательный ассистент. " +
	"Задача: предложить ровно 5 книг, которые понравятся пользователю, учитывая его вкусы. " +
	"Отвечай СТРОГО валидным JSON без markdown и без ```."

const generateUserTemplate = `Ты — книжный рекомендательный движок. Цель — максимальная релевантность вкусу пользователя.

Профиль пользователя:
%s

Алгоритм (внутренне, не показывай):
1) Подбери 15 кандидатов.
2) Исключи всё, что запрещено в профиле.
3) Отранжируй по релевантности вкусу.
4) Верни 5 лучших.

Жёсткие правила:
- Ровно 5 книг.
- Не предлагай книги из списка "Запрещено рекомендовать".
- Не повторяй автора (максимум 1 книга на автора).
- Не предлагай очевидную школьную классику, если она не похожа на любимые книги пользователя.
- Минимум 3 из 5 книг должны быть неочевидными.

Формат ответа:
СТРОГО валидный JSON без markdown и без ` + "```" + `.

[
{"title":"...","author":"...","genre":"...","why":"..."},
... (5 объектов)
]`

const repairSystem = "Ты превращаешь текст в СТРОГО валидный JSON. " +
	"Никакого markdown, никаких ``` и никаких пояснений. Только JSON."

const repairUserTemplate = `Преобразуй следующий текст в СТРОГО валидный JSON.

Требуемый формат:
[
  {"title":"...","author":"...","genre":"...","why":"..."},
  ... (всего 5 объектов)
]

Текст:
%s`

// RecommendationStore is the slice of persistence the recommender consumes.
type RecommendationStore interface {
	ReadAll() ([]store.Book, []store.Progress, error)
	RecommendationHistory(limit int) ([]store.RecommendationBatch, error)
	AppendRecommendations(recs []store.Recommendation, createdAt time.Time) error
}

// Recommender runs the full pipeline: exclusion set, profile, first
// completion pass, parse, one repair pass if needed, post-filter, persist.
type Recommender struct {
	store        RecommendationStore
	complete     CompletionFn
	historyLimit int
	logger       *zap.Logger
}

func NewRecommender(st RecommendationStore, complete CompletionFn, historyLimit int, logger *zap.Logger) *Recommender {
	return &Recommender{
		store:        st,
		complete:     complete,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Generate produces and persists one recommendation batch. The returned
// items are already filtered against the exclusion set; a batch is written
// to the store only on full success, so a failed run leaves no trace.
func (r *Recommender) Generate(ctx context.Context) ([]store.Recommendation, error) {
	genID := uuid.NewString()
	logger := r.logger.With(zap.String("generation_id", genID))

	books, _, err := r.store.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	history, err := r.store.RecommendationHistory(r.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("read recommendation history: %w", err)
	}

	excluded := BuildExclusionSet(books, history)
	profile := BuildProfile(books, excluded)
	logger.Info("built taste profile",
		zap.Int("books", len(books)),
		zap.Int("excluded_keys", len(excluded)),
		zap.Int("profile_chars", len(profile)))

	raw, err := r.complete(ctx, generateSystem, fmt.Sprintf(generateUserTemplate, profile), generateTemperature, generateMaxTokens)
	if err != nil {
		return nil, err
	}

	recs, parseErr := ParseRecommendations(raw)
	if parseErr != nil {
		logger.Warn("first pass unparseable, running repair", zap.Error(parseErr))
		recs, err = r.repair(ctx, raw, parseErr)
		if err != nil {
			return nil, err
		}
	}

	kept := FilterExcluded(recs, excluded)
	if dropped := len(recs) - len(kept); dropped > 0 {
		logger.Warn("model ignored exclusion list", zap.Int("dropped", dropped))
	}

	if err := r.store.AppendRecommendations(kept, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("persist recommendations: %w", err)
	}
	logger.Info("recommendation batch persisted", zap.Int("items", len(kept)))
	return kept, nil
}

// repair asks the model once to reshape its own malformed output into the
// strict array form, then re-validates. There is no third attempt: a second
// failure is terminal.
func (r *Recommender) repair(ctx context.Context, raw string, firstErr error) ([]store.Recommendation, error) {
	fixed, err := r.complete(ctx, repairSystem, fmt.Sprintf(repairUserTemplate, raw), repairTemperature, repairMaxTokens)
	if err != nil {
		return nil, &GenerationError{FirstErr: firstErr, RepairErr: err, FirstRaw: raw}
	}
	recs, parseErr := ParseRecommendations(fixed)
	if parseErr != nil {
		return nil, &GenerationError{FirstErr: firstErr, RepairErr: parseErr, FirstRaw: raw, RepairRaw: fixed}
	}
	return recs, nil
}
