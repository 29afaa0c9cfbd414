package ocr

// ReceiptFields are the business fields inferred from OCR text. A nil field
// means "not detected".
type ReceiptFields struct {
	Amount   *float64 `json:"amount"`
	Currency *string  `json:"currency"`
	Date     *string  `json:"date"`
	Merchant *string  `json:"merchant"`
	Category *string  `json:"category"`
}

// ExtractedReceiptData is the pipeline result for one image.
type ExtractedReceiptData struct {
	ReceiptFields
	Confidence float64 `json:"confidence"`
	RawText    string  `json:"rawText"`
	WordCount  int     `json:"wordCount"`
	LineCount  int     `json:"lineCount"`
}

// ParseReceiptText applies every field extractor to text. It never fails:
// fields without a match stay nil. Engine metadata is left zero.
func ParseReceiptText(text string) ExtractedReceiptData {
	var f ReceiptFields
	if amt, ok := ExtractAmount(text); ok {
		f.Amount = &amt
	}
	f.Currency = optional(ExtractCurrency(text))
	f.Date = optional(ExtractDate(text))
	f.Merchant = optional(ExtractMerchant(text))
	f.Category = optional(InferCategory(text))
	return ExtractedReceiptData{ReceiptFields: f, RawText: text}
}

func optional(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
