package utils

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("employee@monex.com"))
	assert.Error(t, ValidateEmail("employee@"))
	assert.Error(t, ValidateEmail(""))
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		max     float64
		wantErr bool
	}{
		{"positive", 125.5, 0, false},
		{"zero", 0, 0, true},
		{"negative", -1, 0, true},
		{"nan", math.NaN(), 0, true},
		{"infinite", math.Inf(1), 0, true},
		{"over max", 1000.01, 1000, true},
		{"at max", 1000, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.amount, tt.max)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNonNegativeAmount(t *testing.T) {
	assert.NoError(t, ValidateNonNegativeAmount(0))
	assert.NoError(t, ValidateNonNegativeAmount(499.99))
	assert.Error(t, ValidateNonNegativeAmount(-0.01))
	assert.Error(t, ValidateNonNegativeAmount(math.NaN()))
	assert.Error(t, ValidateNonNegativeAmount(math.Inf(-1)))
}

func TestValidateCurrencyCode(t *testing.T) {
	assert.NoError(t, ValidateCurrencyCode("USD"))
	assert.NoError(t, ValidateCurrencyCode("eur"))
	assert.Error(t, ValidateCurrencyCode("US"))
	assert.Error(t, ValidateCurrencyCode("U$D"))
}

func TestValidateRequired(t *testing.T) {
	fields := map[string]string{"user_id": "3", "category": "  "}
	err := ValidateRequired(fields, "user_id", "category")
	require.Error(t, err)
	assert.Equal(t, "category is required", err.Error())
	assert.NoError(t, ValidateRequired(fields, "user_id"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Team lunch\twith\nclient", SanitizeString("  Team lunch\twith\nclient\x00\x1b "))
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "router.log")
	logger, err := NewLogger(LoggerConfig{Level: "DEBUG", OutputPath: path, Format: "json"})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"hello"`)
	assert.Contains(t, string(content), `"timestamp"`)
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "chatty", OutputPath: "stderr", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(0))
}
