// Package query filters, searches and sorts canonical record collections
// for the table views. All predicates AND-compose; sorting is stable.
package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
)

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type (
	Direction string

	// Filter is the predicate set applied to a collection. Type is the
	// active tab and always applies; the rest are optional.
	Filter struct {
		Type  core.DocType
		From  *time.Time // inclusive lower bound
		To    *time.Time // inclusive upper bound
		Month *time.Time // reference date; match same month and year
		Query string     // free text, whitespace-tokenized
	}

	// Sort selects the sort key and direction for the result.
	Sort struct {
		Key string
		Dir Direction
	}

	// SortState tracks the current sort and implements the toggle
	// contract: requesting the active key flips the direction, a new key
	// starts ascending.
	SortState struct {
		Key string
		Dir Direction
	}
)

// operatorToken matches a comparison operator followed by a number, e.g.
// ">100" or "<=12.50". Such tokens filter on the raw amount instead of text.
var operatorToken = regexp.MustCompile(`^(>=|<=|>|<)(\d+(?:\.\d+)?)$`)

// Apply runs the filter over records and, when s is non-nil, stably sorts
// the result. The input slice is never mutated.
func Apply(records []core.Record, f Filter, s *Sort) []core.Record {
	tokens := tokenize(f.Query)

	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if matches(r, f, tokens) {
			out = append(out, r)
		}
	}
	if s != nil {
		sortRecords(out, *s)
	}
	return out
}

func matches(r core.Record, f Filter, tokens []token) bool {
	if r.Type != f.Type {
		return false
	}

	if f.From != nil || f.To != nil {
		t, ok := r.Time()
		if !ok {
			return false
		}
		if f.From != nil && t.Before(*f.From) {
			return false
		}
		if f.To != nil && t.After(*f.To) {
			return false
		}
	}

	if f.Month != nil {
		t, ok := r.Time()
		if !ok {
			return false
		}
		if t.Month() != f.Month.Month() || t.Year() != f.Month.Year() {
			return false
		}
	}

	for _, tok := range tokens {
		if !tok.matches(r) {
			return false
		}
	}
	return true
}

type token struct {
	text    string // lowercase; empty for numeric tokens
	op      string
	operand float64
}

func tokenize(query string) []token {
	fields := strings.Fields(query)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		if m := operatorToken.FindStringSubmatch(f); m != nil {
			operand, err := strconv.ParseFloat(m[2], 64)
			if err == nil {
				tokens = append(tokens, token{op: m[1], operand: operand})
				continue
			}
		}
		tokens = append(tokens, token{text: strings.ToLower(f)})
	}
	return tokens
}

func (t token) matches(r core.Record) bool {
	if t.op != "" {
		switch t.op {
		case ">":
			return r.RawAmount > t.operand
		case "<":
			return r.RawAmount < t.operand
		case ">=":
			return r.RawAmount >= t.operand
		case "<=":
			return r.RawAmount <= t.operand
		}
		return false
	}
	// Text tokens match any of the searchable fields.
	for _, field := range []string{
		r.Provider, r.ID, r.Description, string(r.Category), r.Date, r.DisplayAmount,
	} {
		if strings.Contains(strings.ToLower(field), t.text) {
			return true
		}
	}
	return false
}

func sortRecords(records []core.Record, s Sort) {
	desc := s.Dir == Desc
	sort.SliceStable(records, func(i, j int) bool {
		less, equal := compare(records[i], records[j], s.Key)
		if equal {
			return false // stability keeps prior relative order for ties
		}
		if desc {
			return !less
		}
		return less
	})
}

func compare(a, b core.Record, key string) (less, equal bool) {
	switch key {
	case "amount":
		return a.RawAmount < b.RawAmount, a.RawAmount == b.RawAmount
	case "date":
		return strCmp(a.Date, b.Date)
	case "provider":
		return strCmp(a.Provider, b.Provider)
	case "description":
		return strCmp(a.Description, b.Description)
	case "currency":
		return strCmp(a.Currency, b.Currency)
	case "status":
		return strCmp(string(a.Status), string(b.Status))
	case "category":
		return strCmp(string(a.Category), string(b.Category))
	case "id":
		return strCmp(a.ID, b.ID)
	default:
		return false, true
	}
}

func strCmp(a, b string) (less, equal bool) {
	return a < b, a == b
}

// Request applies a sort request to the state, toggling the direction when
// the key is already active.
func (s *SortState) Request(key string) {
	if s.Key == key && s.Dir == Asc {
		s.Dir = Desc
		return
	}
	s.Key = key
	s.Dir = Asc
}

// ParseDirection maps a query parameter onto a Direction, defaulting to Asc.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Desc)) {
		return Desc
	}
	return Asc
}
