package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/atomic"
)

type MockEthClient struct {
	SubscribeNewHeadFunc   func(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
	BlockNumberFunc        func(ctx context.Context) (uint64, error)
	BlockTxHashesFunc      func(ctx context.Context, number uint64) (*BlockSummary, error)
	TransactionByHashFunc  func(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceiptFunc func(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CodeAtFunc             func(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

func (c *MockEthClient) SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
	if c.SubscribeNewHeadFunc != nil {
		return c.SubscribeNewHeadFunc(ctx, ch)
	}

	return nil, ethereum.NotFound
}

func (c *MockEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	if c.BlockNumberFunc != nil {
		return c.BlockNumberFunc(ctx)
	}
	return 0, nil
}

func (c *MockEthClient) BlockTxHashes(ctx context.Context, number uint64) (*BlockSummary, error) {
	if c.BlockTxHashesFunc != nil {
		return c.BlockTxHashesFunc(ctx, number)
	}

	return nil, ethereum.NotFound
}

func (c *MockEthClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error) {
	if c.TransactionByHashFunc != nil {
		return c.TransactionByHashFunc(ctx, txHash)
	}

	return nil, false, ethereum.NotFound
}

func (c *MockEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if c.TransactionReceiptFunc != nil {
		return c.TransactionReceiptFunc(ctx, txHash)
	}

	return nil, ethereum.NotFound
}

func (c *MockEthClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if c.CodeAtFunc != nil {
		return c.CodeAtFunc(ctx, account, blockNumber)
	}

	return nil, nil
}

func (c *MockEthClient) Close() {}

// MockSubscription is a controllable ethereum.Subscription.
type MockSubscription struct {
	ErrCh            chan error
	UnsubscribeCount *atomic.Int32
}

func NewMockSubscription() *MockSubscription {
	return &MockSubscription{
		ErrCh:            make(chan error, 1),
		UnsubscribeCount: atomic.NewInt32(0),
	}
}

func (s *MockSubscription) Unsubscribe() {
	s.UnsubscribeCount.Inc()
}

func (s *MockSubscription) Err() <-chan error {
	return s.ErrCh
}
