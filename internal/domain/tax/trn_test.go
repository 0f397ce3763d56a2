package tax

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTRN(t *testing.T) {
	tests := []struct {
		name    string
		country string
		trn     string
		wantErr bool
	}{
		{"AE valid 15 digits", "AE", "100123456789012", false},
		{"AE with spaces normalised", "AE", "100 1234 5678 9012", false},
		{"AE too short", "AE", "12345678901234", true},
		{"AE letters rejected", "AE", "10012345678901A", true},
		{"SA must start with 3", "SA", "210123456789013", true},
		{"SA valid pattern", "SA", "300012345678903", false},
		{"GB nine digits", "GB", "GB123456789", false},
		{"GB twelve digits", "GB", "GB123456789012", false},
		{"GB lowercase normalised", "gb", "gb123456789", false},
		{"GB missing prefix", "GB", "123456789", true},
		{"DE valid", "DE", "DE123456789", false},
		{"FR valid", "FR", "FRXX123456789", false},
		{"IN valid GSTIN", "IN", "22AAAAA0000A1Z5", false},
		{"IN malformed GSTIN", "IN", "22AAAAA0000A155", true},
		{"unknown jurisdiction", "XX", "12345", true},
		{"empty trn", "AE", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTRN(tt.country, tt.trn)
			if tt.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegisterTRNPattern(t *testing.T) {
	RegisterTRNPattern("EG", regexp.MustCompile(`^\d{9}$`))
	assert.NoError(t, ValidateTRN("EG", "123456789"))
	assert.Error(t, ValidateTRN("EG", "12345"))
}
