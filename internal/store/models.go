package store

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// Book is a single row of the books sheet, enriched with aggregated
// reading progress (CurrentPage, StartAt).
type Book struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Status         string   `json:"status"` // "planned", "reading" or "completed"
	Genre          Genre    `json:"genre"`
	Pages          int      `json:"pages"`
	CurrentPage    int      `json:"currentPage"`
	StartAt        string   `json:"startAt"`
	Rating         Number   `json:"rating"`
	Finished       string   `json:"finished"`
	Year           *int     `json:"year"`
	Image          string   `json:"image"`
	Comment        string   `json:"comment"`
	Criteria       Criteria `json:"criteria"`
	Recommendation string   `json:"recommendation"`
}

// Progress is one reading session from the progress sheet.
type Progress struct {
	Book      string `json:"book"`
	StartPage int    `json:"startPage"`
	EndPage   int    `json:"endPage"`
	StartAt   string `json:"startAt"`
	EndAt     string `json:"endAt"`
}

// Recommendation is one AI-generated book suggestion.
type Recommendation struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
	Why    string `json:"why"`
}

// RecommendationBatch is one persisted row of the AI recommendations sheet.
type RecommendationBatch struct {
	CreatedAt string           `json:"created_at"`
	Recs      []Recommendation `json:"recs"`
}

// Criteria are the per-book 0-10 scores the sheet tracks, one column each.
// Field order matches the sheet columns and is the canonical iteration order.
type Criteria struct {
	Usefulness   Number `json:"usefulness"`
	Engagement   Number `json:"engagement"`
	Clarity      Number `json:"clarity"`
	Style        Number `json:"style"`
	Emotions     Number `json:"emotions"`
	Relevance    Number `json:"relevance"`
	Depth        Number `json:"depth"`
	Practicality Number `json:"practicality"`
	Originality  Number `json:"originality"`
}

// Criterion is a named numeric score.
type Criterion struct {
	Name  string
	Value float64
}

// Items returns the criteria that hold a valid number, in column order.
func (c Criteria) Items() []Criterion {
	all := []struct {
		name string
		num  Number
	}{
		{"usefulness", c.Usefulness},
		{"engagement", c.Engagement},
		{"clarity", c.Clarity},
		{"style", c.Style},
		{"emotions", c.Emotions},
		{"relevance", c.Relevance},
		{"depth", c.Depth},
		{"practicality", c.Practicality},
		{"originality", c.Originality},
	}
	var out []Criterion
	for _, it := range all {
		if it.num.Valid {
			out = append(out, Criterion{Name: it.name, Value: it.num.Value})
		}
	}
	return out
}

// Number is an optional numeric value. It survives the loosely typed input
// this app gets from spreadsheet cells and JSON clients: numbers, numeric
// strings ("8", "8.5", "8,5"), empty strings and nulls all decode cleanly;
// anything unparseable becomes "absent" rather than an error.
type Number struct {
	Value float64
	Valid bool
}

// Num is a shorthand constructor for a valid Number.
func Num(v float64) Number {
	return Number{Value: v, Valid: true}
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'g', -1, 64)), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = Number{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, ok := ParseNumber(str)
		*n = Number{Value: v, Valid: ok}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*n = Number{}
		return nil
	}
	*n = Number{Value: f, Valid: true}
	return nil
}

// ParseNumber converts a spreadsheet cell or form value to a float.
// The single locale rule lives here: a decimal comma is treated as a
// decimal point. Blank or unparseable input reports ok=false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Genre is a display string. Clients may send it as a plain string or as a
// list of strings; lists are flattened with ", ".
type Genre string

func (g *Genre) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*g = ""
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		var kept []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				kept = append(kept, p)
			}
		}
		*g = Genre(strings.Join(kept, ", "))
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*g = Genre(strings.TrimSpace(str))
	return nil
}

// BookID derives the stable book identifier from title and author.
func BookID(title, author string) string {
	raw := strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(author))
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
