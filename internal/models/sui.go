package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MistPerSUI is the number of MIST in one SUI
const MistPerSUI = 1_000_000_000

// TransactionBlock is the subset of a sui_getTransactionBlock response the
// pipeline reads. Raw holds the untouched response for callers that want it.
type TransactionBlock struct {
	Digest         string          `json:"digest"`
	Transaction    *TransactionEnv `json:"transaction,omitempty"`
	Effects        *Effects        `json:"effects,omitempty"`
	BalanceChanges []BalanceChange `json:"balanceChanges,omitempty"`
	ObjectChanges  []ObjectChange  `json:"objectChanges,omitempty"`
	Events         []Event         `json:"events,omitempty"`
	TimestampMs    string          `json:"timestampMs,omitempty"`
	Checkpoint     string          `json:"checkpoint,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// TransactionEnv wraps the signed transaction data
type TransactionEnv struct {
	Data TransactionData `json:"data"`
}

// TransactionData holds sender, gas and the programmable transaction
type TransactionData struct {
	MessageVersion string          `json:"messageVersion,omitempty"`
	Transaction    TransactionKind `json:"transaction"`
	Sender         string          `json:"sender"`
	GasData        GasData         `json:"gasData"`
}

// TransactionKind is the programmable transaction body
type TransactionKind struct {
	Kind         string            `json:"kind"`
	Inputs       []json.RawMessage `json:"inputs,omitempty"`
	Transactions []Command         `json:"transactions,omitempty"`
}

// GasData names the gas owner and budget
type GasData struct {
	Owner  string `json:"owner"`
	Price  string `json:"price"`
	Budget string `json:"budget"`
}

// Effects carries execution status and gas usage
type Effects struct {
	Status        ExecutionStatus `json:"status"`
	GasUsed       GasCostSummary  `json:"gasUsed"`
	ExecutedEpoch string          `json:"executedEpoch,omitempty"`
}

// ExecutionStatus is "success" or "failure"
type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// GasCostSummary is reported in MIST as decimal strings
type GasCostSummary struct {
	ComputationCost         string `json:"computationCost"`
	StorageCost             string `json:"storageCost"`
	StorageRebate           string `json:"storageRebate"`
	NonRefundableStorageFee string `json:"nonRefundableStorageFee,omitempty"`
}

// BalanceChange is one owner's delta for one coin type
type BalanceChange struct {
	Owner    Owner  `json:"owner"`
	CoinType string `json:"coinType"`
	Amount   string `json:"amount"`
}

// ObjectChange is one created/mutated/transferred/deleted object
type ObjectChange struct {
	Type       string `json:"type"`
	Sender     string `json:"sender,omitempty"`
	Owner      *Owner `json:"owner,omitempty"`
	ObjectType string `json:"objectType,omitempty"`
	ObjectID   string `json:"objectId,omitempty"`
	PackageID  string `json:"packageId,omitempty"`
	Version    string `json:"version,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// Event is an emitted Move event
type Event struct {
	PackageID         string          `json:"packageId,omitempty"`
	TransactionModule string          `json:"transactionModule,omitempty"`
	Sender            string          `json:"sender,omitempty"`
	Type              string          `json:"type"`
	ParsedJSON        json.RawMessage `json:"parsedJson,omitempty"`
}

// ShortType returns the last "::" segment of the event type,
// "0xabc::pool::SwapEvent" becomes "SwapEvent"
func (e Event) ShortType() string {
	if i := strings.LastIndex(e.Type, "::"); i >= 0 {
		return e.Type[i+2:]
	}
	return e.Type
}

// Owner is the polymorphic object owner: a bare string such as "Immutable",
// or a single-key object like {"AddressOwner": "0x.."} or {"Shared": {...}}
type Owner struct {
	Kind    string
	Address string
	raw     json.RawMessage
}

// UnmarshalJSON accepts every owner encoding the fullnode emits
func (o *Owner) UnmarshalJSON(data []byte) error {
	o.raw = append(o.raw[:0], data...)
	o.Kind, o.Address = "", ""

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		o.Kind = s
		o.Address = s
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	for kind, value := range fields {
		o.Kind = kind
		var s string
		if json.Unmarshal(value, &s) == nil {
			o.Address = s
		}
		break
	}
	return nil
}

// MarshalJSON writes the owner back in the form it was read
func (o Owner) MarshalJSON() ([]byte, error) {
	if len(o.raw) > 0 {
		return o.raw, nil
	}
	if o.Kind == "" {
		return []byte("null"), nil
	}
	if o.Kind == o.Address {
		return json.Marshal(o.Address)
	}
	return json.Marshal(map[string]string{o.Kind: o.Address})
}

// String returns the owner's address, or the bare owner label
func (o Owner) String() string {
	return o.Address
}

// Command is one programmable transaction command, a single-key object
// such as {"MoveCall": {...}} or {"TransferObjects": [...]}
type Command struct {
	Type     string
	MoveCall *MoveCall
	raw      json.RawMessage
}

// MoveCall is the target of a MoveCall command
type MoveCall struct {
	Package       string   `json:"package"`
	Module        string   `json:"module"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments,omitempty"`
}

// UnmarshalJSON reads the command's single key
func (c *Command) UnmarshalJSON(data []byte) error {
	c.raw = append(c.raw[:0], data...)
	c.Type, c.MoveCall = "", nil

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &c.Type)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	for kind, value := range fields {
		c.Type = kind
		if kind == "MoveCall" {
			var call MoveCall
			if err := json.Unmarshal(value, &call); err != nil {
				return err
			}
			c.MoveCall = &call
		}
		break
	}
	return nil
}

// MarshalJSON writes the command back in the form it was read
func (c Command) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	if c.MoveCall != nil {
		return json.Marshal(map[string]*MoveCall{c.Type: c.MoveCall})
	}
	return json.Marshal(c.Type)
}

// Checkpoint is the subset of sui_getCheckpoint used for sampling
type Checkpoint struct {
	SequenceNumber string   `json:"sequenceNumber"`
	Digest         string   `json:"digest"`
	TimestampMs    string   `json:"timestampMs,omitempty"`
	Transactions   []string `json:"transactions"`
}

// NormalizedModule is one entry of sui_getNormalizedMoveModulesByPackage
type NormalizedModule struct {
	FileFormatVersion int                        `json:"fileFormatVersion"`
	Address           string                     `json:"address"`
	Name              string                     `json:"name"`
	Friends           []json.RawMessage          `json:"friends,omitempty"`
	Structs           map[string]json.RawMessage `json:"structs,omitempty"`
	ExposedFunctions  map[string]json.RawMessage `json:"exposedFunctions,omitempty"`
}

// NameServicePage is the response of suix_resolveNameServiceNames
type NameServicePage struct {
	Data        []string `json:"data"`
	NextCursor  *string  `json:"nextCursor"`
	HasNextPage bool     `json:"hasNextPage"`
}

// SuiCoinMetadata is the response of suix_getCoinMetadata
type SuiCoinMetadata struct {
	ID          *string `json:"id"`
	Decimals    int     `json:"decimals"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	IconURL     *string `json:"iconUrl"`
}
