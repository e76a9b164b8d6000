package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		wantErr    bool
	}{
		{"simple table name", "creators", false},
		{"underscore prefix", "_internal", false},
		{"mixed case with digits", "AuditLog2", false},
		{"empty", "", true},
		{"leading digit", "2creators", true},
		{"embedded space", "creators x", true},
		{"quote injection", `creators"; DROP TABLE users; --`, true},
		{"semicolon", "creators;", true},
		{"dotted path", "public.creators", true},
		{"too long", strings.Repeat("a", 64), true},
		{"max length ok", strings.Repeat("a", 63), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.identifier)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckSearchTerm(t *testing.T) {
	assert.Nil(t, CheckSearchTerm(""))
	assert.Nil(t, CheckSearchTerm("punjab"))
	assert.Nil(t, CheckSearchTerm("BULK_UPDATE"))
	assert.Nil(t, CheckSearchTerm("user@example.com"))

	result := CheckSearchTerm("' OR 1=1 --")
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Equal(t, "' OR 1=1 --", result.Value)
}
