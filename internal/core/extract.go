package core

// ExtractedFields is the payload the upload collaborator may return after
// parsing a document. It pre-populates the save confirmation step and is
// shaped with the same alias tolerance as RawRecord.
type ExtractedFields struct {
	Provider    string  `json:"provider"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
}

// NormalizeExtracted resolves the collaborator's loose extraction payload
// using the same prioritized alias rules as Normalize. Total, like Normalize.
func NormalizeExtracted(row RawRecord) ExtractedFields {
	currency := firstString(row, currencyAliases)
	if currency == "" {
		currency = "CHF"
	}
	amount, _ := firstNumber(row, amountAliases)
	return ExtractedFields{
		Provider:    firstString(row, providerAliases),
		Date:        normalizeDate(firstString(row, dateAliases)),
		Amount:      amount,
		Currency:    currency,
		Description: firstString(row, descriptionAliases),
	}
}
