package models

import (
	"encoding/json"
	"sort"
)

// KnownPackage names a well-known protocol deployment
type KnownPackage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// KnownPackages are protocols the narrative generator is told about
var KnownPackages = []KnownPackage{
	{ID: "0x1", Name: "Sui Standard Library"},
	{ID: "0x2", Name: "Sui Framework"},
	{ID: "0x3", Name: "Sui System"},
	{ID: "0x1eab094c502c42b29be2535787f3b610c43666d736780829a295552345e612f0", Name: "Cetus DEX"},
	{ID: "0xdee9", Name: "DeepBook"},
	{ID: "0xbc3af878b651fd573cf907544ef7656bd8fc910fa095886915994472f2736aba", Name: "Aftermath Finance"},
	{ID: "0x48d39f604d57c96365a6e87f7112836254130635293297a79e49a88880d97970", Name: "Scallop Lending"},
	{ID: "0x0686483134372f7af61937966f10399564f344f62f8350616b3f79020473922c", Name: "Navi Protocol"},
	{ID: "0x153920977232230e9d6b2c62c9339e875f1ec2df887e076722d7159f8c0a9697", Name: "BlueMove"},
}

// KnownPackageName returns the protocol name for a package id, if known
func KnownPackageName(id string) (string, bool) {
	for _, p := range KnownPackages {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}

// EnrichedBundle is everything gathered for one transaction before the
// narrative is generated. It belongs to a single request.
type EnrichedBundle struct {
	Transaction  *TransactionBlock            `json:"transaction"`
	CoinTypes    []string                     `json:"coinTypes"`
	Addresses    []string                     `json:"addresses"`
	CoinMetadata map[string]CoinMetadataEntry `json:"coinMetadata"`
	Names        map[string]*string           `json:"names"`
}

// ResolvedNames returns only the addresses that have a name
func (b *EnrichedBundle) ResolvedNames() map[string]string {
	out := make(map[string]string, len(b.Names))
	for address, name := range b.Names {
		if name != nil {
			out[address] = *name
		}
	}
	return out
}

// NameOf returns the resolved name for address, or nil
func (b *EnrichedBundle) NameOf(address string) *string {
	if b == nil || b.Names == nil {
		return nil
	}
	return b.Names[address]
}

// InvolvedParty is an address the narrative singles out
type InvolvedParty struct {
	Address   string  `json:"address"`
	Role      string  `json:"role"`
	Label     string  `json:"label,omitempty"`
	SuinsName *string `json:"suinsName"`
}

// TransactionNarrative is the generator's account of a transaction
type TransactionNarrative struct {
	Summary             string          `json:"summary"`
	TechnicalPlayByPlay string          `json:"technicalPlayByPlay"`
	MermaidCode         string          `json:"mermaidCode,omitempty"`
	Protocol            string          `json:"protocol,omitempty"`
	ActionType          string          `json:"actionType,omitempty"`
	InvolvedParties     []InvolvedParty `json:"involvedParties,omitempty"`
}

// PackageNarrative is the generator's account of a package
type PackageNarrative struct {
	Summary      string   `json:"summary"`
	Modules      []string `json:"modules"`
	Capabilities []string `json:"capabilities"`
}

// GasSummary is the net gas charged
type GasSummary struct {
	Mist string `json:"mist"`
	SUI  string `json:"sui"`
}

// BalanceDelta is a display-ready balance change
type BalanceDelta struct {
	Owner     string  `json:"owner"`
	OwnerName *string `json:"ownerName"`
	CoinType  string  `json:"coinType"`
	Amount    string  `json:"amount"`
	Formatted string  `json:"formatted"`
	CoinDisplay
}

// TransactionExplanation is the finished report for a transaction
type TransactionExplanation struct {
	Digest              string                       `json:"digest"`
	Raw                 json.RawMessage              `json:"raw,omitempty"`
	Summary             string                       `json:"summary"`
	TechnicalPlayByPlay string                       `json:"technicalPlayByPlay"`
	MermaidCode         string                       `json:"mermaidCode,omitempty"`
	Protocol            string                       `json:"protocol,omitempty"`
	ActionType          string                       `json:"actionType,omitempty"`
	InvolvedParties     []InvolvedParty              `json:"involvedParties,omitempty"`
	CoinMetadata        map[string]CoinMetadataEntry `json:"coinMetadata"`
	Names               map[string]*string           `json:"names"`
	Sender              string                       `json:"sender"`
	SenderSuinsName     *string                      `json:"senderSuinsName"`
	Status              string                       `json:"status"`
	Gas                 GasSummary                   `json:"gas"`
	BalanceDeltas       []BalanceDelta               `json:"balanceDeltas"`
	NarrativeFallback   bool                         `json:"narrativeFallback"`
}

// PackageExplanation is the finished report for a package
type PackageExplanation struct {
	PackageID         string   `json:"packageId"`
	KnownName         string   `json:"knownName,omitempty"`
	Summary           string   `json:"summary"`
	Modules           []string `json:"modules"`
	Capabilities      []string `json:"capabilities"`
	NarrativeFallback bool     `json:"narrativeFallback"`
}

// ExplainRequest is the body of POST /api/explain
type ExplainRequest struct {
	Input string `json:"input"`
}

// ExplainResult carries exactly one of Transaction or Package
type ExplainResult struct {
	Kind        InputKind               `json:"kind"`
	Transaction *TransactionExplanation `json:"transaction,omitempty"`
	Package     *PackageExplanation     `json:"package,omitempty"`
}

// ModuleNames returns the sorted module names of a normalized module listing
func ModuleNames(modules map[string]NormalizedModule) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
