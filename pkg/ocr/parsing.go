package ocr

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// amountRule is one step of the amount cascade. Group 1 of re holds the
// numeric fragment.
type amountRule struct {
	name string
	re   *regexp.Regexp
}

// amountRules are tried in order; the first rule whose first match parses to
// a value > 0 wins.
var amountRules = []amountRule{
	{"dollar-prefixed", regexp.MustCompile(`\$\s*(\d+[.,]\d{1,2})`)},
	{"code-suffixed", regexp.MustCompile(`(?i)(\d+(?:[.,]\d{3})*[.,]\d{1,2})\s*(?:USD|EUR|GBP|INR|CAD|AUD|JPY|CNY)`)},
	{"labelled", regexp.MustCompile(`(?i)(?:total|amount|sum|price|cost|charge)[:\s]*\$?\s*(\d+[.,]\d{1,2})`)},
	{"rupee", regexp.MustCompile(`(?i)(?:\brs|₹)\s*(\d+[.,]?\d*)`)},
	{"currency-word", regexp.MustCompile(`(?i)(\d+[.,]\d{1,2})\s*(?:dollars?|euros?|pounds?|rupees?)`)},
	{"grouped", regexp.MustCompile(`\$?\s*(\d{1,3}(?:[.,]\d{3})*[.,]\d{2})`)},
	{"integer-code", regexp.MustCompile(`(?i)(\d+)\s*(?:USD|EUR|GBP|INR|CAD|AUD|JPY|CNY)`)},
	{"bare-decimal", regexp.MustCompile(`\b(\d+[.,]\d{1,2})\b`)},
}

// lastResortRule only runs when no rule in amountRules produced an amount.
// It happily picks up phone numbers or quantities.
var lastResortRule = amountRule{"bare-integer", regexp.MustCompile(`\b(\d+)\b`)}

var (
	amountJunkRE    = regexp.MustCompile(`[^\d.,]`)
	leadingNumberRE = regexp.MustCompile(`^(?:\d+(?:\.\d*)?|\.\d+)`)
)

// ExtractAmount runs the amount cascade over text.
func ExtractAmount(text string) (float64, bool) {
	amt, _, ok := matchAmount(text)
	return amt, ok
}

// matchAmount is ExtractAmount that also reports the winning rule.
func matchAmount(text string) (float64, string, bool) {
	for _, r := range amountRules {
		if amt, ok := r.apply(text); ok {
			return amt, r.name, true
		}
	}
	if amt, ok := lastResortRule.apply(text); ok {
		return amt, lastResortRule.name, true
	}
	return 0, "", false
}

func (r amountRule) apply(text string) (float64, bool) {
	m := r.re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	return NormalizeAmount(m[1])
}

// NormalizeAmount converts a matched fragment into a number.
//
// With both ',' and '.' present the European convention applies: dots are
// thousands separators and the comma is the decimal point. A lone comma
// followed by exactly two digits is a decimal point, otherwise commas are
// thousands separators. Only finite values > 0 are accepted.
func NormalizeAmount(fragment string) (float64, bool) {
	s := amountJunkRE.ReplaceAllString(fragment, "")
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts[1]) == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	num := leadingNumberRE.FindString(s)
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}
