package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
)

// BlockSummary is a block loaded without its full transaction bodies.
type BlockSummary struct {
	Number   uint64
	Hash     common.Hash
	TxHashes []common.Hash
}

// EthClient A wrapper around eth.client so that we can mock in watcher tests.
type EthClient interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTxHashes(ctx context.Context, number uint64) (*BlockSummary, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

type defaultEthClient struct {
	rpcClient *rpc.Client
	client    *ethclient.Client
}

// NewEthClient dials a node. Block subscriptions need a websocket or ipc endpoint.
func NewEthClient(ctx context.Context, rawurl string) (EthClient, error) {
	rpcClient, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}

	log.Info("Adding eth client at rpc: ", rawurl)

	return &defaultEthClient{
		rpcClient: rpcClient,
		client:    ethclient.NewClient(rpcClient),
	}, nil
}

func (c *defaultEthClient) SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
	return c.client.SubscribeNewHead(ctx, ch)
}

func (c *defaultEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

// BlockTxHashes loads a block by number with transaction hashes only. Header.Hash() computed
// locally misses header fields added by later forks, so it cannot be used to fetch the block.
func (c *defaultEthClient) BlockTxHashes(ctx context.Context, number uint64) (*BlockSummary, error) {
	var raw *struct {
		Number       hexutil.Uint64 `json:"number"`
		Hash         common.Hash    `json:"hash"`
		Transactions []common.Hash  `json:"transactions"`
	}

	err := c.rpcClient.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ethereum.NotFound
	}

	return &BlockSummary{
		Number:   uint64(raw.Number),
		Hash:     raw.Hash,
		TxHashes: raw.Transactions,
	}, nil
}

func (c *defaultEthClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error) {
	return c.client.TransactionByHash(ctx, txHash)
}

func (c *defaultEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return c.client.TransactionReceipt(ctx, txHash)
}

func (c *defaultEthClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return c.client.CodeAt(ctx, account, blockNumber)
}

func (c *defaultEthClient) Close() {
	c.client.Close()
}
