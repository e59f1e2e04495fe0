package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bookshelf-ai/server/internal/store"
)

// BatchSize is the exact number of recommendations a valid batch holds.
const BatchSize = 5

var (
	openFenceRe  = regexp.MustCompile("^```[a-zA-Z0-9_-]*[ \t]*\r?\n?")
	closeFenceRe = regexp.MustCompile("\\s*```$")
)

// stripCodeFences removes a surrounding ``` / ```json fence pair when the
// text starts with one. Inner fences are left alone.
func stripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = openFenceRe.ReplaceAllString(t, "")
		t = closeFenceRe.ReplaceAllString(t, "")
	}
	return strings.TrimSpace(t)
}

// extractJSONArray cuts the substring from the first '[' to the last ']'.
// Models habitually wrap the array in prose; this recovers the one array we
// expect without attempting full bracket matching.
func extractJSONArray(text string) (string, error) {
	t := stripCodeFences(text)
	start := strings.Index(t, "[")
	end := strings.LastIndex(t, "]")
	if start == -1 || end == -1 || end <= start {
		return "", &FormatError{Reason: "no array delimiters"}
	}
	return strings.TrimSpace(t[start : end+1]), nil
}

// ParseRecommendations turns raw model text into exactly BatchSize validated
// items. The array order is the model's own ranking and is preserved. Any
// failure is a *FormatError naming the stage; no partial result is returned.
func ParseRecommendations(raw string) ([]store.Recommendation, error) {
	candidate, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var items []interface{}
	if err := json.Unmarshal([]byte(candidate), &items); err != nil {
		return nil, &FormatError{Reason: "invalid JSON: " + err.Error()}
	}
	if len(items) < BatchSize {
		return nil, &FormatError{Reason: fmt.Sprintf("too few items: expected %d, got %d", BatchSize, len(items))}
	}

	out := make([]store.Recommendation, 0, BatchSize)
	for i, item := range items[:BatchSize] {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, &FormatError{Reason: fmt.Sprintf("item %d is not an object", i+1)}
		}
		out = append(out, store.Recommendation{
			Title:  fieldString(obj, "title"),
			Author: fieldString(obj, "author"),
			Genre:  fieldString(obj, "genre"),
			Why:    fieldString(obj, "why"),
		})
	}

	// genre may be empty, the rest may not
	for i, rec := range out {
		if rec.Title == "" || rec.Author == "" || rec.Why == "" {
			return nil, &FormatError{Reason: fmt.Sprintf("item %d missing required field", i+1)}
		}
	}
	return out, nil
}

func fieldString(obj map[string]interface{}, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return ""
	}
}
