package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dcablorh/txsense/internal/config"
	"github.com/dcablorh/txsense/internal/models"

	"google.golang.org/genai"
)

// Fallback narrative text used when the generator fails or omits fields
const (
	FallbackTransactionSummary    = "This transaction went through successfully on the Sui network."
	FallbackTransactionPlayByPlay = "The sender completed a transaction on Sui. Then, some token balances were updated based on what the app did."
	FallbackMermaidCode           = `graph LR; User["👤 Sender"]-->App["🏦 App"]; App-->Result["✨ Done!"];`
	FallbackPackageSummary        = "This is a smart contract package on the Sui network."
	FailedPackageSummary          = "Analysis failed."
	DefaultPackageCapability      = "App Logic"
)

const (
	maxPromptCommands       = 15
	maxPromptBalanceChanges = 12
	maxPromptEvents         = 10
)

const transactionSystemInstruction = "You translate Sui transactions into clear explanations. " +
	"Keep technical terms but add simple explanations in brackets. " +
	"Never use 'they/their' for individuals, use the person's name or 'The Sender'. " +
	"Use passive voice when describing system actions (e.g. 'coins were split' not 'they split coins')."

// ErrNarrativeUnavailable is returned when no generator backend is configured
var ErrNarrativeUnavailable = errors.New("narrative generator not configured")

// GenerateFunc sends one prompt to a language model and returns its raw
// JSON text
type GenerateFunc func(ctx context.Context, systemInstruction, prompt string) (string, error)

// GeminiNarrator produces transaction and package narratives with Gemini
type GeminiNarrator struct {
	generate GenerateFunc
	timeout  time.Duration
}

// NewGeminiNarrator creates a narrator backed by the Gemini API. Without an
// API key every call fails and callers fall back to canned text.
func NewGeminiNarrator(ctx context.Context, cfg *config.NarrativeConfig) (*GeminiNarrator, error) {
	if cfg.APIKey == "" {
		return NewNarrator(func(context.Context, string, string) (string, error) {
			return "", ErrNarrativeUnavailable
		}, cfg.Timeout), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	generate := func(ctx context.Context, systemInstruction, prompt string) (string, error) {
		genConfig := &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
		}
		if systemInstruction != "" {
			genConfig.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
		}
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), genConfig)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return NewNarrator(generate, cfg.Timeout), nil
}

// NewNarrator wraps an arbitrary generate function
func NewNarrator(generate GenerateFunc, timeout time.Duration) *GeminiNarrator {
	return &GeminiNarrator{generate: generate, timeout: timeout}
}

type promptCall struct {
	Package  string `json:"package"`
	Module   string `json:"module"`
	Function string `json:"function"`
}

type promptCommand struct {
	Type string      `json:"type"`
	Call *promptCall `json:"call"`
}

type promptBalanceChange struct {
	CoinType string `json:"coinType"`
	Amount   string `json:"amount"`
	Owner    string `json:"owner"`
}

type promptEvent struct {
	Type   string          `json:"type"`
	Parsed json.RawMessage `json:"parsed,omitempty"`
}

type promptTransaction struct {
	Digest         string                 `json:"digest"`
	Sender         string                 `json:"sender,omitempty"`
	GasPayer       string                 `json:"gasPayer,omitempty"`
	GasBudget      string                 `json:"gasBudget,omitempty"`
	GasUsed        *models.GasCostSummary `json:"gasUsed,omitempty"`
	Commands       interface{}            `json:"commands,omitempty"`
	BalanceChanges []promptBalanceChange  `json:"balanceChanges,omitempty"`
	Events         []promptEvent          `json:"events,omitempty"`
	Status         string                 `json:"status,omitempty"`
}

// pruneTransaction keeps the fields a narrative needs and caps list sizes
func pruneTransaction(tx *models.TransactionBlock) promptTransaction {
	pruned := promptTransaction{Digest: tx.Digest}

	if tx.Transaction != nil {
		data := tx.Transaction.Data
		pruned.Sender = data.Sender
		pruned.GasPayer = data.GasData.Owner
		pruned.GasBudget = data.GasData.Budget

		if data.Transaction.Kind == "ProgrammableTransaction" {
			commands := make([]promptCommand, 0, len(data.Transaction.Transactions))
			for i, cmd := range data.Transaction.Transactions {
				if i >= maxPromptCommands {
					break
				}
				pc := promptCommand{Type: cmd.Type}
				if cmd.MoveCall != nil {
					pc.Call = &promptCall{
						Package:  cmd.MoveCall.Package,
						Module:   cmd.MoveCall.Module,
						Function: cmd.MoveCall.Function,
					}
				}
				commands = append(commands, pc)
			}
			pruned.Commands = commands
		} else if data.Transaction.Kind != "" {
			pruned.Commands = data.Transaction.Kind
		}
	}

	if tx.Effects != nil {
		gas := tx.Effects.GasUsed
		pruned.GasUsed = &gas
		pruned.Status = tx.Effects.Status.Status
	}

	for i, bc := range tx.BalanceChanges {
		if i >= maxPromptBalanceChanges {
			break
		}
		pruned.BalanceChanges = append(pruned.BalanceChanges, promptBalanceChange{
			CoinType: bc.CoinType,
			Amount:   bc.Amount,
			Owner:    bc.Owner.String(),
		})
	}

	for i, ev := range tx.Events {
		if i >= maxPromptEvents {
			break
		}
		pruned.Events = append(pruned.Events, promptEvent{Type: ev.ShortType(), Parsed: ev.ParsedJSON})
	}

	return pruned
}

func knownPackageContext() string {
	lines := make([]string, 0, len(models.KnownPackages))
	for _, p := range models.KnownPackages {
		lines = append(lines, fmt.Sprintf("- ID %s is the %q protocol", p.ID, p.Name))
	}
	return strings.Join(lines, "\n")
}

func tokenContext(metadata map[string]models.CoinMetadataEntry) string {
	keys := make([]string, 0, len(metadata))
	for coinType := range metadata {
		keys = append(keys, coinType)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, coinType := range keys {
		m := metadata[coinType]
		lines = append(lines, fmt.Sprintf("%s: %s (decimals: %d)", coinType, m.Symbol, m.Decimals))
	}
	return strings.Join(lines, "\n")
}

func nameContext(names map[string]string) string {
	addresses := make([]string, 0, len(names))
	for address := range names {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	lines := make([]string, 0, len(addresses))
	for _, address := range addresses {
		lines = append(lines, fmt.Sprintf("- %s is %q", address, names[address]))
	}
	return strings.Join(lines, "\n")
}

// BuildTransactionPrompt renders the instruction template for a bundle
func BuildTransactionPrompt(bundle *models.EnrichedBundle) (string, error) {
	data, err := json.Marshal(pruneTransaction(bundle.Transaction))
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}

	var b strings.Builder
	b.WriteString("Analyze this Sui Transaction and explain what happened clearly:\n")
	b.Write(data)
	b.WriteString("\n\nREAL PROTOCOL BRANDS (USE THESE NAMES):\n")
	b.WriteString(knownPackageContext())
	b.WriteString("\n\nTOKEN METADATA:\n")
	b.WriteString(tokenContext(bundle.CoinMetadata))
	if names := nameContext(bundle.ResolvedNames()); names != "" {
		b.WriteString("\n\nSUINS NAMES (Use these human-readable names instead of raw addresses when available):\n")
		b.WriteString(names)
	}
	b.WriteString(transactionResponseTemplate)
	return b.String(), nil
}

const transactionResponseTemplate = `

Return a detailed JSON response:
{
  "summary": "A clear summary of what happened. Use SuiNS names like: '👤 alice.sui (0x1234...abcd) sent 0.9 USDC to 👤 bob.sui (0x5678...efgh)'. Keep technical terms but add simple explanations in brackets.",
  "technicalPlayByPlay": "A step-by-step breakdown. Refer to '👤 The Sender' or the SuiNS name, never 'they'. Use passive voice for system actions. Keep Sui terms with a layman explanation in brackets, e.g. 'SplitCoins (dividing the balance into smaller parts)'. Show addresses as (0x1234...abcd). Use 'First', 'Then', 'Next', 'Finally'. Use 👤 for wallets, 🏦 for protocols, 💼 for objects, ⛽ for gas, 🪙 for tokens. Round numbers to clean values.",
  "mermaidCode": "graph LR; User[\"👤 alice.sui (0x1234...abcd)\"] -->|Sends| App[\"🏦 Protocol\"]; App -->|Transfers| Receiver[\"👤 bob.sui\"]; (valid mermaid.js flowchart)",
  "protocol": "Protocol Name (e.g. Sui Framework, DeepBook, Cetus)",
  "actionType": "Action Type (e.g. Transfer, Swap, Deposit, Borrow)",
  "involvedParties": [
    {"address": "0x...", "role": "Role (e.g. Sender, Receiver, Protocol)", "label": "SuiNS name or Protocol name"}
  ]
}
`

// BuildPackagePrompt renders the instruction template for a package
func BuildPackagePrompt(packageID string, moduleNames []string) string {
	return fmt.Sprintf(
		"Analyze Sui Package (%s). Modules: %s.\n"+
			`JSON: { "summary": "Detailed summary in simple english", "modules": ["string"], "capabilities": ["string"] }`,
		packageID, strings.Join(moduleNames, ", "),
	)
}

// ExplainTransaction asks the model for a transaction narrative. The
// result is shape-checked only; callers substitute fallbacks for gaps.
func (n *GeminiNarrator) ExplainTransaction(ctx context.Context, bundle *models.EnrichedBundle) (*models.TransactionNarrative, error) {
	if bundle == nil || bundle.Transaction == nil {
		return nil, errors.New("empty bundle")
	}
	prompt, err := BuildTransactionPrompt(bundle)
	if err != nil {
		return nil, err
	}

	text, err := n.call(ctx, transactionSystemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	var narrative models.TransactionNarrative
	if err := decodeNarrative(text, &narrative); err != nil {
		return nil, err
	}
	return &narrative, nil
}

// ExplainPackage asks the model for a package narrative
func (n *GeminiNarrator) ExplainPackage(ctx context.Context, packageID string, moduleNames []string) (*models.PackageNarrative, error) {
	text, err := n.call(ctx, "", BuildPackagePrompt(packageID, moduleNames))
	if err != nil {
		return nil, err
	}

	var narrative models.PackageNarrative
	if err := decodeNarrative(text, &narrative); err != nil {
		return nil, err
	}
	return &narrative, nil
}

func (n *GeminiNarrator) call(ctx context.Context, systemInstruction, prompt string) (string, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return n.generate(ctx, systemInstruction, prompt)
}

// decodeNarrative parses model output, tolerating a fenced code block
func decodeNarrative(text string, out interface{}) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		text = "{}"
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("unparseable narrative: %w", err)
	}
	return nil
}

// FallbackTransactionNarrative is returned when the generator fails
func FallbackTransactionNarrative() *models.TransactionNarrative {
	return &models.TransactionNarrative{
		Summary:             FallbackTransactionSummary,
		TechnicalPlayByPlay: FallbackTransactionPlayByPlay,
		MermaidCode:         FallbackMermaidCode,
	}
}

// completeTransactionNarrative fills required fields the generator left blank
func completeTransactionNarrative(n *models.TransactionNarrative) *models.TransactionNarrative {
	if strings.TrimSpace(n.Summary) == "" {
		n.Summary = FallbackTransactionSummary
	}
	if strings.TrimSpace(n.TechnicalPlayByPlay) == "" {
		n.TechnicalPlayByPlay = FallbackTransactionPlayByPlay
	}
	return n
}

// FailedPackageNarrative is returned when the generator fails
func FailedPackageNarrative(moduleNames []string) *models.PackageNarrative {
	return &models.PackageNarrative{
		Summary:      FailedPackageSummary,
		Modules:      append([]string(nil), moduleNames...),
		Capabilities: []string{},
	}
}

func completePackageNarrative(n *models.PackageNarrative, moduleNames []string) *models.PackageNarrative {
	if strings.TrimSpace(n.Summary) == "" {
		n.Summary = FallbackPackageSummary
	}
	if n.Modules == nil {
		n.Modules = append([]string(nil), moduleNames...)
	}
	if n.Capabilities == nil {
		n.Capabilities = []string{DefaultPackageCapability}
	}
	return n
}

var _ NarrativeGenerator = (*GeminiNarrator)(nil)
