package models

import "strings"

// MetadataSource names where a CoinMetadataEntry came from
type MetadataSource string

const (
	MetadataSourceAftermath MetadataSource = "aftermath"
	MetadataSourceSuiRPC    MetadataSource = "sui_rpc"
)

// UnregisteredAssetName labels coins no metadata source knows
const UnregisteredAssetName = "Unregistered Asset"

// DefaultCoinDecimals is used to format amounts of unresolved coins
const DefaultCoinDecimals = 9

// CoinMetadataEntry is resolved metadata for one coin type
type CoinMetadataEntry struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals int            `json:"decimals"`
	IconURL  string         `json:"iconUrl,omitempty"`
	Source   MetadataSource `json:"source"`
}

// Usable reports whether the entry carries real metadata. Negative
// decimals or a blank symbol and name count as missing.
func (e CoinMetadataEntry) Usable() bool {
	if e.Decimals < 0 {
		return false
	}
	return strings.TrimSpace(e.Symbol) != "" || strings.TrimSpace(e.Name) != ""
}

// CoinDisplay is what a renderer shows for a coin type
type CoinDisplay struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	IconURL  string `json:"iconUrl,omitempty"`
	Resolved bool   `json:"resolved"`
}

// DisplayFor derives display fields, falling back to the coin type's last
// segment when metadata is missing
func DisplayFor(coinType string, entry *CoinMetadataEntry) CoinDisplay {
	if entry != nil && entry.Usable() {
		symbol := entry.Symbol
		if symbol == "" {
			symbol = SymbolFromType(coinType)
		}
		name := entry.Name
		if name == "" {
			name = symbol
		}
		return CoinDisplay{
			Symbol:   symbol,
			Name:     name,
			Decimals: entry.Decimals,
			IconURL:  entry.IconURL,
			Resolved: true,
		}
	}
	return CoinDisplay{
		Symbol:   SymbolFromType(coinType),
		Name:     UnregisteredAssetName,
		Decimals: DefaultCoinDecimals,
	}
}

// SymbolFromType returns the last "::" segment of a coin type, or "COIN"
func SymbolFromType(coinType string) string {
	parts := strings.Split(coinType, "::")
	if last := strings.TrimSpace(parts[len(parts)-1]); last != "" && len(parts) > 1 {
		return last
	}
	return "COIN"
}
