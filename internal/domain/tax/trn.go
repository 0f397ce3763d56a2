package tax

import (
	"regexp"
	"strings"
	"sync"
)

// trnPatterns maps ISO country codes to the format of their tax registration
// numbers. Pure data: jurisdictions are registered, never hard-coded into
// logic.
var (
	trnMu       sync.RWMutex
	trnPatterns = map[string]*regexp.Regexp{
		"AE": regexp.MustCompile(`^\d{15}$`),
		"SA": regexp.MustCompile(`^3\d{13}3$`),
		"BH": regexp.MustCompile(`^\d{9}$`),
		"OM": regexp.MustCompile(`^OM\d{10}$`),
		"QA": regexp.MustCompile(`^\d{10}$`),
		"GB": regexp.MustCompile(`^GB(\d{9}|\d{12})$`),
		"DE": regexp.MustCompile(`^DE\d{9}$`),
		"FR": regexp.MustCompile(`^FR[A-HJ-NP-Z0-9]{2}\d{9}$`),
		"IN": regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z]\d[A-Z]Z[A-Z0-9]$`),
	}
)

// RegisterTRNPattern adds or replaces the registration-number format for a
// jurisdiction.
func RegisterTRNPattern(country string, pattern *regexp.Regexp) {
	trnMu.Lock()
	defer trnMu.Unlock()
	trnPatterns[strings.ToUpper(country)] = pattern
}

// ValidateTRN checks a tax registration number against its jurisdiction's
// format. It is a pure function: no network, no persistence.
func ValidateTRN(country, trn string) error {
	trnMu.RLock()
	pattern, ok := trnPatterns[strings.ToUpper(country)]
	trnMu.RUnlock()
	if !ok {
		return &ValidationError{Field: "country", Reason: "no TRN format registered for " + country}
	}
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(trn), " ", ""))
	if cleaned == "" {
		return &ValidationError{Field: "trn", Reason: "required"}
	}
	if !pattern.MatchString(cleaned) {
		return &ValidationError{Field: "trn", Reason: "does not match " + strings.ToUpper(country) + " format"}
	}
	return nil
}
