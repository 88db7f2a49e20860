package core

import (
	"strings"
	"time"
)

const (
	StatusPending     Status = "pending"
	StatusCategorized Status = "categorized"
	StatusInTheBooks  Status = "in_the_books"
)

const (
	TypeInvoice DocType = "invoice"
	TypeReceipt DocType = "receipt"
)

const (
	CategoryHabitat       Category = "Habitat"
	CategoryElectronics   Category = "Electronics"
	CategoryMobility      Category = "Mobility"
	CategoryFood          Category = "Food"
	CategoryEducation     Category = "Education"
	CategoryLeisure       Category = "Leisure"
	CategoryMiscellaneous Category = "Miscellaneous"
)

// NoDate marks a record whose invoice date was absent or unparseable.
// Records carrying it are excluded from every date-windowed computation.
const NoDate = "N/A"

// ISODate is the layout used for canonical record dates.
const ISODate = "2006-01-02"

type (
	Status   string
	DocType  string
	Category string

	// Record is the canonical, strongly-shaped form every other package
	// operates on. It is produced exclusively by Normalize.
	Record struct {
		ID            string   `json:"id"`
		Provider      string   `json:"provider"`
		Date          string   `json:"date"` // ISO calendar date or NoDate
		DisplayAmount string   `json:"amount"`
		RawAmount     float64  `json:"rawAmount"`
		Status        Status   `json:"status"`
		Type          DocType  `json:"type"`
		Category      Category `json:"category"`
		Description   string   `json:"description"`
		Currency      string   `json:"currency"`
		Link          string   `json:"link,omitempty"`
	}
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryHabitat,
	CategoryElectronics,
	CategoryMobility,
	CategoryFood,
	CategoryEducation,
	CategoryLeisure,
	CategoryMiscellaneous,
}

// ParseCategory maps a free-form category value onto the fixed set.
// Anything that is not one of the named categories becomes Miscellaneous.
func ParseCategory(s string) Category {
	trimmed := strings.TrimSpace(s)
	for _, c := range Categories {
		if string(c) == trimmed {
			return c
		}
	}
	return CategoryMiscellaneous
}

// IsValid reports whether c is one of the enumerated categories.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCategorized, StatusInTheBooks:
		return true
	}
	return false
}

func (t DocType) IsValid() bool {
	return t == TypeInvoice || t == TypeReceipt
}

// HasDate reports whether the record carries a real calendar date.
func (r Record) HasDate() bool {
	return r.Date != NoDate && r.Date != ""
}

// Time parses the record date. The second return is false for sentinel or
// malformed dates, which by the normalizer's invariant only means NoDate.
func (r Record) Time() (time.Time, bool) {
	if !r.HasDate() {
		return time.Time{}, false
	}
	t, err := time.Parse(ISODate, r.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ApplyCategory sets the category and advances the status: a pending record
// becomes categorized, while in_the_books is never downgraded by an edit.
// It returns the status the record ends up with.
func (r *Record) ApplyCategory(c Category) Status {
	if !c.IsValid() {
		c = CategoryMiscellaneous
	}
	r.Category = c
	if r.Status == StatusPending {
		r.Status = StatusCategorized
	}
	return r.Status
}
