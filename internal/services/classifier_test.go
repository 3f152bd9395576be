package services

import (
	"testing"

	"github.com/dcablorh/txsense/internal/models"

	"github.com/stretchr/testify/assert"
)

const testDigest = "3Gk5fVXKbnn8LZ6VjoBxWzTj3G6xwVZZh7wQ9C7TRsSq"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  models.InputKind
		id    string
	}{
		{"BareDigest", testDigest, models.InputKindTransaction, testDigest},
		{"DigestWithWhitespace", "  " + testDigest + "\n", models.InputKindTransaction, testDigest},
		{"BarePackage", "0x2", models.InputKindPackage, "0x2"},
		{"LongPackage", "0xdee9AbC", models.InputKindPackage, "0xdee9AbC"},
		{"SuiscanTx", "https://suiscan.xyz/mainnet/tx/" + testDigest, models.InputKindTransaction, testDigest},
		{"SuivisionTxblock", "https://suivision.xyz/txblock/" + testDigest + "?tab=Changes", models.InputKindTransaction, testDigest},
		{"ObjectURL", "https://suiscan.xyz/mainnet/object/0xdee9", models.InputKindPackage, "0xdee9"},
		{"PackageURL", "https://suivision.xyz/package/0x2/", models.InputKindPackage, "0x2"},
		{"LastSegment", "https://explorer.example/" + testDigest, models.InputKindTransaction, testDigest},
		{"Greeting", "hello", models.InputKindUnknown, ""},
		{"Empty", "", models.InputKindUnknown, ""},
		{"HexWithGarbage", "0xZZ", models.InputKindUnknown, ""},
		{"ShortDigest", "3Gk5fVXKbnn8LZ6Vjo", models.InputKindUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := Classify(tt.input)
			assert.Equal(t, tt.kind, ref.Kind)
			assert.Equal(t, tt.id, ref.ID)
		})
	}
}

func TestClassifyURLMatchesBareIdentifier(t *testing.T) {
	for _, id := range []string{testDigest, "0xdee9"} {
		bare := Classify(id)
		for _, url := range []string{
			"https://suiscan.xyz/mainnet/tx/" + id,
			"https://suiscan.xyz/mainnet/object/" + id,
			"https://explorer.example/some/path/" + id,
		} {
			assert.Equal(t, bare.ID, Classify(url).ID, url)
		}
	}
}

func TestClassifyTransactionMarkerWins(t *testing.T) {
	ref := Classify("https://explorer.example/object/0x2/tx/" + testDigest)
	assert.Equal(t, models.InputKindTransaction, ref.Kind)
	assert.Equal(t, testDigest, ref.ID)
}

func TestClassifyPackagePatternBeforeDigest(t *testing.T) {
	// long hex ids are also valid base58 runs; the anchored package pattern wins
	id := "0x1eab094c502c42b29be2535787f3b610c43666d736780829a295552345e612f0"
	ref := Classify(id)
	assert.Equal(t, models.InputKindPackage, ref.Kind)
	assert.Equal(t, id, ref.ID)
}
