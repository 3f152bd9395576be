package amount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals int
		want     string
	}{
		{"WholeSUI", "1000000000", 9, "1"},
		{"FractionalSUI", "-1500000000", 9, "-1.5"},
		{"SixDecimals", "2500000", 6, "2.5"},
		{"SmallerThanOneUnit", "1", 6, "0.000001"},
		{"ZeroDecimals", "42", 0, "42"},
		{"NegativeDecimalsUseDefault", "1000000000", -1, "1"},
		{"Zero", "0", 9, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.raw, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "1.5"} {
		_, err := Format(raw, 9)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestGasUsed(t *testing.T) {
	gas, err := GasUsed("1000000", "2000000", "500000")
	require.NoError(t, err)
	assert.True(t, gas.Equal(decimal.NewFromInt(2500000)))
	assert.Equal(t, "0.0025", MistToSUI(gas))

	t.Run("RebateExceedsCost", func(t *testing.T) {
		gas, err := GasUsed("750000", "1000000", "2000000")
		require.NoError(t, err)
		assert.Equal(t, "-0.00025", MistToSUI(gas))
	})

	t.Run("MissingFieldsCountAsZero", func(t *testing.T) {
		gas, err := GasUsed("1000", "", "")
		require.NoError(t, err)
		assert.Equal(t, "1000", gas.String())
	})

	t.Run("InvalidField", func(t *testing.T) {
		_, err := GasUsed("1000", "x", "0")
		assert.Error(t, err)
	})
}
