package ocr

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var currencyCodeRE = regexp.MustCompile(`(?i)\b(USD|EUR|GBP|INR|CAD|AUD|JPY|CNY)\b`)

// currencySymbols are checked in order when no explicit code is present.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
}

// ExtractCurrency returns an explicit ISO code if one appears, otherwise the
// code implied by the first known symbol found.
func ExtractCurrency(text string) (string, bool) {
	if m := currencyCodeRE.FindStringSubmatch(text); len(m) >= 2 {
		return strings.ToUpper(m[1]), true
	}
	for _, cs := range currencySymbols {
		if strings.Contains(text, cs.symbol) {
			return cs.code, true
		}
	}
	return "", false
}

const monthAlt = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*`

// datePatterns are tried in order. Matches are returned verbatim; D/M vs M/D
// ordering is left to the caller.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`),
	regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`),
	regexp.MustCompile(`(?i)\b` + monthAlt + `\s+\d{1,2},?\s+\d{4}`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+` + monthAlt + `\s+\d{4}`),
}

// ExtractDate returns the first date-looking substring.
func ExtractDate(text string) (string, bool) {
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

const merchantScanLines = 3

// ExtractMerchant returns the first of the leading non-blank lines that is
// 4..49 characters long and does not start with a digit.
func ExtractMerchant(text string) (string, bool) {
	seen := 0
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if seen == merchantScanLines {
			break
		}
		seen++
		n := utf8.RuneCountInString(line)
		if n <= 3 || n >= 50 {
			continue
		}
		if line[0] >= '0' && line[0] <= '9' {
			continue
		}
		return line, true
	}
	return "", false
}

type categoryKeywords struct {
	label    string
	keywords []string
}

// categories is ordered: the first category with any keyword hit wins.
var categories = []categoryKeywords{
	{"Travel", []string{"taxi", "uber", "lyft", "flight", "hotel", "airline", "airport", "train", "bus"}},
	{"Meals", []string{"restaurant", "cafe", "coffee", "food", "dining", "lunch", "dinner", "breakfast"}},
	{"Office Supplies", []string{"office", "supplies", "stationery", "paper", "pen", "printer"}},
	{"Transportation", []string{"gas", "fuel", "parking", "toll", "metro", "subway"}},
	{"Accommodation", []string{"hotel", "motel", "inn", "lodge", "resort", "airbnb"}},
	{"Entertainment", []string{"movie", "cinema", "theater", "concert", "event"}},
	{"Technology", []string{"electronics", "computer", "software", "hardware", "tech"}},
}

// Categories lists the closed set of category labels in match order.
func Categories() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = c.label
	}
	return out
}

// InferCategory does a case-insensitive substring match of the keyword table.
func InferCategory(text string) (string, bool) {
	low := strings.ToLower(text)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(low, kw) {
				return c.label, true
			}
		}
	}
	return "", false
}
