package privacy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Detector matches one PII class. Detectors hold only a compiled pattern and
// are safe for concurrent use.
type Detector struct {
	Class   Class
	pattern *regexp.Regexp
}

// detectors is the mandatory application order. Classes with a non-numeric
// shape run before any purely numeric detector, and the 12-digit national ID
// runs before the 10-16 digit account number: first match wins. A national ID
// is a 4-4-4 grouping with at least one separator; a bare 12-digit run is an
// account.
var detectors = []Detector{
	{Class: ClassTaxID, pattern: regexp.MustCompile(`(?i)\b([A-Z]{5}[0-9]{4}[A-Z])\b`)},
	{Class: ClassBankRoutingCode, pattern: regexp.MustCompile(`(?i)\b([A-Z]{4}0[0-9A-Z]{6})\b`)},
	{Class: ClassNationalID, pattern: regexp.MustCompile(`\b(\d{4}[\s-]\d{4}[\s-]?\d{4}|\d{4}[\s-]?\d{4}[\s-]\d{4})\b`)},
	{Class: ClassAccountNumber, pattern: regexp.MustCompile(`\b(\d{10,16})\b`)},
	{Class: ClassEmailAddress, pattern: regexp.MustCompile(`([a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9.-]+)`)},
	{Class: ClassPhoneNumber, pattern: regexp.MustCompile(`\b(\+?91[\-\s]?[6-9]\d{9}|[6-9]\d{9})\b`)},
}

// Detectors returns the detector set in application order.
func Detectors() []Detector {
	out := make([]Detector, len(detectors))
	copy(out, detectors)
	return out
}

// Classes returns every PII class in application order.
func Classes() []Class {
	classes := make([]Class, len(detectors))
	for i, d := range detectors {
		classes[i] = d.Class
	}
	return classes
}

// Detect returns the non-overlapping matches of class in text, left to right.
// Unknown classes yield no matches. Patterns read ASCII digits only; pass text
// through Canonicalize first when it may hold other scripts.
func Detect(text string, class Class) []Match {
	for _, d := range detectors {
		if d.Class == class {
			return d.Detect(text)
		}
	}
	return nil
}

// Detect scans text for this detector's class.
func (d Detector) Detect(text string) []Match {
	if text == "" {
		return nil
	}

	locs := d.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, Match{
			Class: d.Class,
			Start: loc[0],
			End:   loc[1],
			Value: text[loc[2]:loc[3]],
		})
	}
	return matches
}

// MatchString reports whether text contains at least one match.
func (d Detector) MatchString(text string) bool {
	return d.pattern.MatchString(text)
}

// Canonicalize returns text in the form the detectors read: NFKC normalized,
// with every Unicode decimal digit folded to its ASCII counterpart. ASCII text
// is returned as is.
func Canonicalize(text string) string {
	if isASCII(text) {
		return text
	}
	return strings.Map(foldDigit, norm.NFKC.String(text))
}

// foldDigit maps a decimal digit of any script to '0'-'9'. Decimal digits
// come in contiguous runs of ten starting at zero.
func foldDigit(r rune) rune {
	if r <= unicode.MaxASCII || !unicode.IsDigit(r) {
		return r
	}
	zero := r
	for unicode.IsDigit(zero - 1) {
		zero--
	}
	return '0' + (r-zero)%10
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
