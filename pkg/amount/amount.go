// Package amount converts raw on-chain integer amounts into display values.
package amount

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SUIDecimals is the number of decimals of the native coin (1 SUI = 1e9 MIST)
const SUIDecimals = 9

// DefaultDecimals is applied to coins whose metadata could not be resolved
const DefaultDecimals = 9

// Parse reads a raw integer amount such as "-1500000000"
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("invalid amount %q: not an integer", raw)
	}
	return d, nil
}

// Scale shifts a raw amount by decimals. Negative decimals fall back to DefaultDecimals.
func Scale(raw decimal.Decimal, decimals int) decimal.Decimal {
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	return raw.Shift(int32(-decimals))
}

// Format renders a raw integer string in whole units, trimming trailing zeros
func Format(raw string, decimals int) (string, error) {
	d, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return Scale(d, decimals).String(), nil
}

// GasUsed returns computation + storage - rebate in MIST
func GasUsed(computationCost, storageCost, storageRebate string) (decimal.Decimal, error) {
	total := decimal.Zero
	for i, raw := range []string{computationCost, storageCost, storageRebate} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := Parse(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("gas summary: %w", err)
		}
		if i == 2 {
			total = total.Sub(d)
		} else {
			total = total.Add(d)
		}
	}
	return total, nil
}

// MistToSUI renders a MIST amount as SUI
func MistToSUI(mist decimal.Decimal) string {
	return Scale(mist, SUIDecimals).String()
}
