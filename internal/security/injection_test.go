package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		hit   bool
	}{
		{"plain text", "hello world", false},
		{"email", "ann@example.com", false},
		{"number", 42, false},
		{"nil", nil, false},
		{"tautology", "1' OR '1'='1", true},
		{"stacked drop", "'; DROP TABLE users--", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := CheckValue("field", tt.value)
			if tt.hit {
				require.NotNil(t, f)
				assert.Equal(t, "field", f.Field)
				assert.NotEmpty(t, f.Fingerprint)
			} else {
				assert.Nil(t, f)
			}
		})
	}
}

func TestAuditRowPayload(t *testing.T) {
	findings := AuditRowPayload("sales", "orders", "127.0.0.1", map[string]any{
		"b_note": "1' OR '1'='1",
		"a_name": "ann",
		"total":  10.5,
	})
	require.Len(t, findings, 1)
	assert.Equal(t, "b_note", findings[0].Field)
}
