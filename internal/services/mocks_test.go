package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dcablorh/txsense/internal/models"
)

// MockChain implements ChainReader for testing
type MockChain struct {
	mu           sync.Mutex
	transactions map[string]*models.TransactionBlock
	packages     map[string]map[string]models.NormalizedModule
	digests      []string
	err          error
	sampleErr    error
	txCalls      int
	pkgCalls     int
	sampleCalls  int
}

// NewMockChain creates an empty mock chain
func NewMockChain() *MockChain {
	return &MockChain{
		transactions: make(map[string]*models.TransactionBlock),
		packages:     make(map[string]map[string]models.NormalizedModule),
	}
}

// AddTransaction registers a transaction under its digest
func (m *MockChain) AddTransaction(tx *models.TransactionBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.Digest] = tx
}

// AddPackage registers a package with the given module names
func (m *MockChain) AddPackage(id string, modules ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing := make(map[string]models.NormalizedModule, len(modules))
	for _, name := range modules {
		listing[name] = models.NormalizedModule{Address: id, Name: name}
	}
	m.packages[id] = listing
}

// SetError makes every lookup fail with err
func (m *MockChain) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockChain) GetTransactionBlock(ctx context.Context, digest string) (*models.TransactionBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	if m.err != nil {
		return nil, m.err
	}
	tx, ok := m.transactions[digest]
	if !ok {
		return nil, &RPCError{Method: "sui_getTransactionBlock", Code: -32602, Message: "Could not find the referenced transaction"}
	}
	return tx, nil
}

func (m *MockChain) GetNormalizedModules(ctx context.Context, packageID string) (map[string]models.NormalizedModule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pkgCalls++
	if m.err != nil {
		return nil, m.err
	}
	modules, ok := m.packages[packageID]
	if !ok {
		return nil, &RPCError{Method: "sui_getNormalizedMoveModulesByPackage", Code: -32602, Message: "Package object does not exist"}
	}
	return modules, nil
}

func (m *MockChain) SampleTransactionDigest(ctx context.Context, span, maxAttempts int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleCalls++
	if m.sampleErr != nil {
		return "", m.sampleErr
	}
	if len(m.digests) == 0 {
		return "", ErrNoTransactions
	}
	return m.digests[0], nil
}

// Calls returns transaction, package and sample call counts
func (m *MockChain) Calls() (tx, pkg, sample int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCalls, m.pkgCalls, m.sampleCalls
}

// MockMetadataSource implements CoinMetadataSource for testing
type MockMetadataSource struct {
	mu      sync.Mutex
	entries map[string]*models.CoinMetadataEntry
	err     error
	delay   time.Duration
	batches [][]string
}

// NewMockMetadataSource creates a source that knows entries
func NewMockMetadataSource(entries ...models.CoinMetadataEntry) *MockMetadataSource {
	m := &MockMetadataSource{entries: make(map[string]*models.CoinMetadataEntry)}
	for i := range entries {
		entry := entries[i]
		m.entries[entry.ID] = &entry
	}
	return m
}

// SetError makes every batch fail
func (m *MockMetadataSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay simulates network latency
func (m *MockMetadataSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MockMetadataSource) FetchCoinMetadata(ctx context.Context, coinTypes []string) ([]*models.CoinMetadataEntry, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), coinTypes...))
	delay, err := m.delay, m.err
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.CoinMetadataEntry, len(coinTypes))
	for i, coinType := range coinTypes {
		if entry, ok := m.entries[coinType]; ok {
			copied := *entry
			out[i] = &copied
		}
	}
	return out, nil
}

// Batches returns every batch requested so far
func (m *MockMetadataSource) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.batches))
	for i, b := range m.batches {
		sorted := append([]string(nil), b...)
		sort.Strings(sorted)
		out[i] = sorted
	}
	return out
}

// MockNameLookup implements NameLookup for testing
type MockNameLookup struct {
	mu        sync.Mutex
	names     map[string]string
	failing   map[string]bool
	delay     time.Duration
	callCount map[string]int
}

// NewMockNameLookup creates a lookup that knows names
func NewMockNameLookup(names map[string]string) *MockNameLookup {
	if names == nil {
		names = map[string]string{}
	}
	return &MockNameLookup{
		names:     names,
		failing:   make(map[string]bool),
		callCount: make(map[string]int),
	}
}

// Fail makes lookups for address fail
func (m *MockNameLookup) Fail(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[address] = true
}

func (m *MockNameLookup) ResolveName(ctx context.Context, address string) (*string, error) {
	m.mu.Lock()
	m.callCount[address]++
	delay := m.delay
	failing := m.failing[address]
	name, ok := m.names[address]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		return nil, errors.New("name service unavailable")
	}
	if !ok {
		return nil, nil
	}
	return &name, nil
}

// CallCount returns lookups made for address
func (m *MockNameLookup) CallCount(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[address]
}

// TotalCalls returns all lookups made
func (m *MockNameLookup) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.callCount {
		total += n
	}
	return total
}

// MockNarrator implements NarrativeGenerator for testing
type MockNarrator struct {
	mu          sync.Mutex
	transaction *models.TransactionNarrative
	pkg         *models.PackageNarrative
	err         error
	bundles     []*models.EnrichedBundle
	pkgCalls    int
}

func (m *MockNarrator) ExplainTransaction(ctx context.Context, bundle *models.EnrichedBundle) (*models.TransactionNarrative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles = append(m.bundles, bundle)
	if m.err != nil {
		return nil, m.err
	}
	if m.transaction == nil {
		return &models.TransactionNarrative{}, nil
	}
	copied := *m.transaction
	copied.InvolvedParties = append([]models.InvolvedParty(nil), m.transaction.InvolvedParties...)
	return &copied, nil
}

func (m *MockNarrator) ExplainPackage(ctx context.Context, packageID string, moduleNames []string) (*models.PackageNarrative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pkgCalls++
	if m.err != nil {
		return nil, m.err
	}
	if m.pkg == nil {
		return &models.PackageNarrative{}, nil
	}
	copied := *m.pkg
	return &copied, nil
}

// Bundles returns every bundle passed to ExplainTransaction
func (m *MockNarrator) Bundles() []*models.EnrichedBundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.EnrichedBundle(nil), m.bundles...)
}

// sampleTransaction builds a transfer of coin from sender to receiver
func sampleTransaction(digest, sender, receiver string, coinTypes ...string) *models.TransactionBlock {
	tx := &models.TransactionBlock{
		Digest: digest,
		Transaction: &models.TransactionEnv{Data: models.TransactionData{
			Sender:  sender,
			GasData: models.GasData{Owner: sender, Price: "750", Budget: "5000000"},
			Transaction: models.TransactionKind{
				Kind: "ProgrammableTransaction",
				Transactions: []models.Command{
					{Type: "SplitCoins"},
					{Type: "TransferObjects"},
				},
			},
		}},
		Effects: &models.Effects{
			Status:  models.ExecutionStatus{Status: "success"},
			GasUsed: models.GasCostSummary{ComputationCost: "1000000", StorageCost: "2000000", StorageRebate: "500000"},
		},
		Raw: []byte(`{"digest":"` + digest + `"}`),
	}
	for _, coinType := range coinTypes {
		tx.BalanceChanges = append(tx.BalanceChanges,
			models.BalanceChange{Owner: models.Owner{Kind: "AddressOwner", Address: sender}, CoinType: coinType, Amount: "-1500000000"},
			models.BalanceChange{Owner: models.Owner{Kind: "AddressOwner", Address: receiver}, CoinType: coinType, Amount: "1500000000"},
		)
	}
	return tx
}
