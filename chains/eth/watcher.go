package eth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/chains"
	"github.com/sisu-network/txconfirm/config"
	"github.com/sisu-network/txconfirm/database"
	"github.com/sisu-network/txconfirm/types"
	"go.uber.org/atomic"
)

const (
	// Blocks to wait before fetching again a receipt that the node has not indexed yet.
	ReceiptCatchUpBlocks = 2
)

type Watcher struct {
	cfg        config.Chain
	client     EthClient
	db         database.Database
	rpcTimeout time.Duration

	registry     *watchRegistry
	dispatcher   *callbackDispatcher
	headCh       chan *ethtypes.Header
	subscription *blockSubscription

	lock        *sync.Mutex
	running     *atomic.Bool
	cancel      context.CancelFunc
	loopDone    chan struct{}
	blockHeight *atomic.Uint64
}

func NewWatcher(db database.Database, cfg config.Chain, client EthClient) chains.Watcher {
	config.ApplyChainDefaults(&cfg)

	headCh := make(chan *ethtypes.Header)
	registry := newWatchRegistry()

	return &Watcher{
		cfg:          cfg,
		client:       client,
		db:           db,
		rpcTimeout:   time.Duration(cfg.RpcTimeout) * time.Millisecond,
		registry:     registry,
		dispatcher:   newCallbackDispatcher(cfg, registry, db),
		headCh:       headCh,
		subscription: newBlockSubscription(cfg, headCh, client),
		lock:         &sync.Mutex{},
		running:      atomic.NewBool(false),
		blockHeight:  atomic.NewUint64(0),
	}
}

// Start subscribes to new blocks. Calling it on a running watcher restarts the subscription.
// Outstanding watches are kept.
func (w *Watcher) Start() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.running.Load() {
		log.Info("Watcher is already running for chain ", w.cfg.Chain, ", restarting")
		w.stopLocked()
	}

	log.Info("Starting Watcher for chain ", w.cfg.Chain)

	ctx, cancel := context.WithCancel(context.Background())
	prevDone := w.loopDone
	done := make(chan struct{})
	w.cancel = cancel
	w.loopDone = done

	go w.waitForBlock(ctx, prevDone, done)
	w.subscription.start()
	w.running.Store(true)
}

// Stop cancels the block subscription. It does not wait for the block being processed, so it
// is safe to call from a callback.
func (w *Watcher) Stop() {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.stopLocked()
}

func (w *Watcher) stopLocked() {
	if w.cancel == nil {
		return
	}

	w.running.Store(false)
	w.subscription.stop()
	w.cancel()
	w.cancel = nil
	log.Info("Watcher stopped for chain ", w.cfg.Chain)
}

// State reports the state of the block subscription.
func (w *Watcher) State() SubscriptionState {
	return w.subscription.getState()
}

// Outstanding returns the number of watches not resolved yet.
func (w *Watcher) Outstanding() int {
	return w.registry.size()
}

// waitForBlock processes heads one at a time. A loop created by a restart waits for the
// previous one to finish so that two blocks are never processed concurrently.
// A loop never finishes before its predecessor, even when it is cancelled while waiting.
func (w *Watcher) waitForBlock(ctx context.Context, prevDone <-chan struct{}, done chan struct{}) {
	defer func() {
		if prevDone != nil {
			<-prevDone
		}
		close(done)
	}()

	if prevDone != nil {
		select {
		case <-prevDone:
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case head := <-w.headCh:
			if head.Number == nil {
				log.Warn("Received a head without number on chain ", w.cfg.Chain)
				continue
			}
			w.processBlock(head.Number.Uint64())
		}
	}
}

// processBlock matches the block's txs against the registry and then evaluates every
// outstanding watch against the block height.
func (w *Watcher) processBlock(blockNumber uint64) {
	block, err := w.getBlock(blockNumber)
	if err != nil {
		log.Errorf("cannot get block %d on chain %s, err = %v", blockNumber, w.cfg.Chain, err)
		return
	}

	number := block.Number
	log.Verbose(w.cfg.Chain, " Block ", number, " length = ", len(block.TxHashes))

	for _, txHash := range block.TxHashes {
		entry := w.registry.get(txHash)
		if entry == nil {
			continue
		}

		log.Infof("Watched tx %s found in block %d on chain %s, waiting %d block(s)", txHash.Hex(),
			number, w.cfg.Chain, entry.canonicalAfter)
		entry.startBlock = number
		entry.receipt = w.getReceipt(txHash)
	}

	for _, entry := range w.registry.snapshot() {
		w.evaluate(entry, number)
	}

	w.blockHeight.Store(number)
}

func (w *Watcher) evaluate(entry *watchEntry, number uint64) {
	// Some nodes announce a block before its receipts are indexed.
	if entry.receipt == nil && blocksPassed(number, entry.startBlock, ReceiptCatchUpBlocks) {
		if receipt := w.getReceipt(entry.txHash); receipt != nil {
			entry.receipt = receipt
			if receipt.BlockNumber != nil {
				entry.startBlock = receipt.BlockNumber.Uint64()
			}
		}
	}

	switch {
	case entry.receipt != nil && blocksPassed(number, entry.startBlock, entry.canonicalAfter):
		w.confirm(entry, number)

	case entry.receipt == nil && entry.dropAfter > 0 && blocksPassed(number, entry.startBlock, entry.dropAfter):
		log.Infof("Watched tx %s timed out after %d blocks on chain %s", entry.txHash.Hex(), entry.dropAfter,
			w.cfg.Chain)
		w.dispatcher.resolve(entry, types.TrackResultDropped, nil, types.ErrDropTimeout, number)
	}
}

func (w *Watcher) confirm(entry *watchEntry, number uint64) {
	receipt := entry.receipt

	addr := entry.to
	created := receipt.ContractAddress != (common.Address{})
	if created {
		contract := receipt.ContractAddress
		addr = &contract
	}

	var cond error
	if receipt.GasUsed >= entry.gas {
		cond = types.NewGasExhaustedError(receipt.GasUsed, entry.gas)
	} else if created && w.hasNoCode(receipt.ContractAddress) {
		cond = types.ErrEmptyContract
	}

	log.Verbosef("Watched tx %s confirmed at block %d on chain %s, cond = %v", entry.txHash.Hex(), number,
		w.cfg.Chain, cond)
	w.dispatcher.resolve(entry, types.TrackResultConfirmed, addr, cond, number)
}

// blocksPassed reports whether number >= start + delta without overflowing.
func blocksPassed(number, start, delta uint64) bool {
	return number >= start && number-start >= delta
}

func (w *Watcher) Register(ctx context.Context, txHash common.Hash, args []any, callback types.Callback,
	opts *types.WatchOptions) (common.Hash, error) {
	if callback == nil {
		return txHash, types.ErrNilCallback
	}

	if err := w.register(ctx, []common.Hash{txHash}, args, callback, opts); err != nil {
		return txHash, err
	}
	return txHash, nil
}

func (w *Watcher) RegisterBatch(ctx context.Context, txHashes []common.Hash, args []any,
	callback types.Callback, opts *types.WatchOptions) ([]common.Hash, error) {
	if callback == nil {
		return nil, types.ErrNilCallback
	}
	if len(txHashes) == 0 {
		return nil, types.ErrEmptyBatch
	}

	batchOpts := types.WatchOptions{}
	if opts != nil {
		batchOpts = *opts
	}
	groupId := txHashes[0]
	batchOpts.GroupId = &groupId

	if err := w.register(ctx, txHashes, args, callback, &batchOpts); err != nil {
		return nil, err
	}

	ret := make([]common.Hash, len(txHashes))
	copy(ret, txHashes)
	return ret, nil
}

type rejection struct {
	txHash common.Hash
	err    error
}

// register validates every hash, then adds the valid entries in one step so that a block
// cannot resolve part of a group before the rest of it is registered. If the node cannot answer
// a lookup, nothing is registered, no callback runs and the error is returned.
func (w *Watcher) register(ctx context.Context, txHashes []common.Hash, args []any, callback types.Callback,
	opts *types.WatchOptions) error {
	if opts == nil {
		opts = &types.WatchOptions{}
	}

	entries := make([]*watchEntry, 0, len(txHashes))
	rejections := make([]rejection, 0)
	for _, txHash := range txHashes {
		entry, err := w.newEntry(ctx, txHash, args, callback, opts)
		if err != nil {
			var lookupErr *types.TxLookupError
			if errors.As(err, &lookupErr) && !lookupErr.NotFound() {
				log.Errorf("cannot look up tx %s on chain %s, err = %v", txHash.Hex(), w.cfg.Chain, lookupErr.Err)
				return err
			}
			rejections = append(rejections, rejection{txHash: txHash, err: err})
			continue
		}
		entries = append(entries, entry)
	}

	for _, entry := range entries {
		if err := w.registry.add(entry); err != nil {
			rejections = append(rejections, rejection{txHash: entry.txHash, err: err})
			continue
		}

		if entry.groupId != nil {
			log.Infof("Transaction %s added to the watch on chain %s in group %s", entry.txHash.Hex(),
				w.cfg.Chain, entry.groupId.Hex())
		} else {
			log.Infof("Transaction %s added to the watch on chain %s", entry.txHash.Hex(), w.cfg.Chain)
		}
	}

	for _, r := range rejections {
		w.dispatcher.reject(r.txHash, copyArgs(args), callback, r.err)
	}

	return nil
}

func (w *Watcher) newEntry(ctx context.Context, txHash common.Hash, args []any, callback types.Callback,
	opts *types.WatchOptions) (*watchEntry, error) {
	tx, isPending, err := w.getTransaction(ctx, txHash)
	if err != nil || tx == nil {
		if err == nil {
			err = ethereum.NotFound
		}
		return nil, types.NewTxLookupError(txHash, err)
	}

	if !w.running.Load() {
		return nil, types.ErrNotStarted
	}

	entry := &watchEntry{
		txHash:         txHash,
		gas:            tx.Gas(),
		to:             tx.To(),
		args:           copyArgs(args),
		callback:       callback,
		startBlock:     w.getStartBlock(ctx, txHash, isPending),
		canonicalAfter: opts.CanonicalAfter,
		dropAfter:      opts.DropAfter,
	}
	if opts.GroupId != nil {
		groupId := *opts.GroupId
		entry.groupId = &groupId
	}

	return entry, nil
}

// getStartBlock returns the inclusion block of a mined tx, otherwise the current chain head.
func (w *Watcher) getStartBlock(ctx context.Context, txHash common.Hash, isPending bool) uint64 {
	if !isPending {
		if receipt := w.getReceiptCtx(ctx, txHash); receipt != nil && receipt.BlockNumber != nil {
			return receipt.BlockNumber.Uint64()
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, w.rpcTimeout)
	defer cancel()

	number, err := w.client.BlockNumber(callCtx)
	if err != nil {
		last := w.blockHeight.Load()
		log.Errorf("cannot get block number on chain %s, using last processed block %d. err = %v",
			w.cfg.Chain, last, err)
		return last
	}

	return number
}

func (w *Watcher) GetResolution(txHash common.Hash) (*types.Resolution, bool) {
	return w.dispatcher.lookup(txHash)
}

func (w *Watcher) getBlock(number uint64) (*BlockSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.rpcTimeout)
	defer cancel()

	return w.client.BlockTxHashes(ctx, number)
}

func (w *Watcher) getTransaction(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, w.rpcTimeout)
	defer cancel()

	return w.client.TransactionByHash(ctx, txHash)
}

// getReceipt returns nil if the receipt is not available yet.
func (w *Watcher) getReceipt(txHash common.Hash) *ethtypes.Receipt {
	return w.getReceiptCtx(context.Background(), txHash)
}

func (w *Watcher) getReceiptCtx(ctx context.Context, txHash common.Hash) *ethtypes.Receipt {
	ctx, cancel := context.WithTimeout(ctx, w.rpcTimeout)
	defer cancel()

	receipt, err := w.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if err != ethereum.NotFound {
			log.Errorf("cannot get receipt for tx %s on chain %s, err = %v", txHash.Hex(), w.cfg.Chain, err)
		}
		return nil
	}

	return receipt
}

func (w *Watcher) hasNoCode(addr common.Address) bool {
	ctx, cancel := context.WithTimeout(context.Background(), w.rpcTimeout)
	defer cancel()

	code, err := w.client.CodeAt(ctx, addr, nil)
	if err != nil {
		log.Errorf("cannot get code at %s on chain %s, err = %v", addr.Hex(), w.cfg.Chain, err)
		return false
	}

	return len(code) == 0
}

func copyArgs(args []any) []any {
	if args == nil {
		return nil
	}

	ret := make([]any, len(args))
	copy(ret, args)
	return ret
}
