// Package core holds the canonical record model and the normalizer that
// shapes untrusted spreadsheet rows into it.
//
// The external system of record is a spreadsheet fed by a no-code workflow,
// so field names drift: the same column may arrive as "link", "url", "file"
// or "document" depending on which workflow revision wrote it. Normalize is
// total by construction; every missing or malformed field resolves to a
// documented default and no input can make it fail.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one untrusted row as decoded from the collaborator's JSON.
// Keys are not guaranteed to be present or consistently named.
type RawRecord map[string]any

// Prioritized alias lists per canonical field. First non-empty match wins.
var (
	idAliases          = []string{"invoice_nr", "invoice_number", "invoice_no"}
	providerAliases    = []string{"provider", "vendor"}
	dateAliases        = []string{"date_invoice", "invoice_date", "date"}
	amountAliases      = []string{"gross_amount", "amount", "total"}
	descriptionAliases = []string{"description", "details"}
	currencyAliases    = []string{"currency"}
	statusAliases      = []string{"status", "label"}
	typeAliases        = []string{"type", "document_type"}
	categoryAliases    = []string{"category"}
	linkAliases        = []string{"link", "url", "file", "document"}
)

// Accepted layouts for the single date interpretation attempt, most
// specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	ISODate,
	"2006/01/02",
	"02.01.2006",
}

// Substring token sets for status and type derivation. Matching is
// case-insensitive; accented variants are listed explicitly.
var (
	inTheBooksTokens  = []string{"in the books", "booked", "accounted", "processed", "paid", "payé", "ok"}
	categorizedTokens = []string{"categorized", "categorised", "classified"}
	receiptTokens     = []string{"receipt", "ticket"}
)

// Normalize converts raw rows into canonical records, one per input and in
// input order. It never fails: unknown shapes degrade to defaults.
func Normalize(raw []RawRecord) []Record {
	records := make([]Record, 0, len(raw))
	for i, row := range raw {
		records = append(records, normalizeOne(row, i))
	}
	return records
}

func normalizeOne(row RawRecord, index int) Record {
	id := firstString(row, idAliases)
	if id == "" {
		id = fmt.Sprintf("UNK-%d", index)
	}

	provider := firstString(row, providerAliases)
	if provider == "" {
		provider = "Unknown Provider"
	}

	currency := firstString(row, currencyAliases)
	if currency == "" {
		currency = "CHF"
	}

	amount, hasAmount := firstNumber(row, amountAliases)

	return Record{
		ID:            id,
		Provider:      provider,
		Date:          normalizeDate(firstString(row, dateAliases)),
		DisplayAmount: FormatAmount(amount, currency, hasAmount),
		RawAmount:     amount,
		Status:        deriveStatus(row),
		Type:          deriveType(firstString(row, typeAliases)),
		Category:      ParseCategory(firstString(row, categoryAliases)),
		Description:   firstString(row, descriptionAliases),
		Currency:      currency,
		Link:          firstString(row, linkAliases),
	}
}

// normalizeDate attempts one calendar-date interpretation of the raw value
// and yields the sentinel on any failure. Invalid dates never leak through.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NoDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(ISODate)
		}
	}
	return NoDate
}

func deriveStatus(row RawRecord) Status {
	// Explicit status field takes priority over the legacy label field.
	for _, key := range statusAliases {
		value := stringValue(row[key])
		if value == "" {
			continue
		}
		lower := strings.ToLower(value)
		if containsAny(lower, inTheBooksTokens) {
			return StatusInTheBooks
		}
		if containsAny(lower, categorizedTokens) {
			return StatusCategorized
		}
		return StatusPending
	}
	return StatusPending
}

func deriveType(raw string) DocType {
	if containsAny(strings.ToLower(raw), receiptTokens) {
		return TypeReceipt
	}
	return TypeInvoice
}

// FormatAmount renders a presentation-only amount string. It is never parsed
// back; all arithmetic runs on the raw numeric amount.
func FormatAmount(amount float64, currency string, present bool) string {
	if !present {
		return "-"
	}
	symbol := currency
	switch currency {
	case "EUR":
		symbol = "€"
	case "USD":
		symbol = "$"
	}
	return fmt.Sprintf("%s%.2f", symbol, amount)
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// firstString walks the alias list and returns the first non-empty value
// rendered as a string. Numbers are accepted so that identifiers stored as
// spreadsheet numbers still resolve.
func firstString(row RawRecord, aliases []string) string {
	for _, key := range aliases {
		if v := stringValue(row[key]); v != "" {
			return v
		}
	}
	return ""
}

// firstNumber resolves the first alias holding a finite numeric value.
// Everything else, including NaN and infinities, normalizes to 0.
func firstNumber(row RawRecord, aliases []string) (float64, bool) {
	for _, key := range aliases {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := numberValue(v); ok {
			return f, true
		}
	}
	return 0, false
}

func numberValue(v any) (float64, bool) {
	var f float64
	switch value := v.(type) {
	case float64:
		f = value
	case float32:
		f = float64(value)
	case int:
		f = float64(value)
	case int64:
		f = float64(value)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}
