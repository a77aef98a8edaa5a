package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FakeBackend is an in-memory node used by tests. Receipts become available
// after PendingPolls lookups.
type FakeBackend struct {
	mu sync.Mutex

	Balances      map[common.Address]*big.Int
	GasPriceWei   *big.Int
	ChainIDValue  *big.Int
	Nonce         uint64
	SendErr       error
	BalanceErr    error
	ReceiptStatus uint64
	PendingPolls  int
	NeverMine     bool
	// SendDelay stalls SendTransaction before the nonce is checked.
	SendDelay time.Duration

	Sent  []*types.Transaction
	polls map[common.Hash]int
}

// NewFakeBackend returns a backend on chain id 11155111 whose receipts succeed
// immediately.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Balances:      map[common.Address]*big.Int{},
		GasPriceWei:   big.NewInt(1_000_000_000),
		ChainIDValue:  big.NewInt(11155111),
		ReceiptStatus: types.ReceiptStatusSuccessful,
		polls:         map[common.Hash]int{},
	}
}

// SetBalance sets the balance of address, given in ether.
func (f *FakeBackend) SetBalance(address common.Address, ether string) {
	wei, err := ParseEther(ether)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[address] = wei
}

// SentCount reports how many transactions were submitted.
func (f *FakeBackend) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *FakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if b, ok := f.Balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *FakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.GasPriceWei), nil
}

func (f *FakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *FakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonce, nil
}

func (f *FakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.ChainIDValue), nil
}

// SendTransaction accepts tx only when it carries the next pending nonce, as a
// node rejects a second transaction reusing a nonce.
func (f *FakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.SendDelay > 0 {
		time.Sleep(f.SendDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	if tx.Nonce() != f.Nonce {
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", f.Nonce, tx.Nonce())
	}
	f.Sent = append(f.Sent, tx)
	f.Nonce++
	return nil
}

func (f *FakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NeverMine {
		return nil, ethereum.NotFound
	}
	if f.polls[hash] < f.PendingPolls {
		f.polls[hash]++
		return nil, ethereum.NotFound
	}
	return &types.Receipt{TxHash: hash, Status: f.ReceiptStatus}, nil
}
