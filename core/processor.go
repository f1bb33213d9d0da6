package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/chains"
	"github.com/sisu-network/txconfirm/chains/eth"
	"github.com/sisu-network/txconfirm/client"
	"github.com/sisu-network/txconfirm/config"
	"github.com/sisu-network/txconfirm/database"
	"github.com/sisu-network/txconfirm/types"
)

// Dials the node of a chain.
type EthClientDialer func(cfg config.Chain) (eth.EthClient, error)

func dialEthClient(cfg config.Chain) (eth.EthClient, error) {
	return eth.NewEthClient(context.Background(), cfg.RpcUrl)
}

// Processor runs one watcher per configured chain and forwards the resolutions of the watches
// created through it to the notifier.
type Processor struct {
	cfg            config.Config
	db             database.Database
	notifierClient client.Client
	dialer         EthClientDialer

	updateCh chan *types.TrackUpdate
	watchers map[string]chains.Watcher

	clientReady atomic.Value
}

func NewProcessor(
	cfg *config.Config,
	db database.Database,
	notifierClient client.Client,
) *Processor {
	return &Processor{
		cfg:            *cfg,
		db:             db,
		notifierClient: notifierClient,
		dialer:         dialEthClient,
		watchers:       make(map[string]chains.Watcher),
	}
}

// SetDialer replaces how node clients are created. It must be called before Start.
func (p *Processor) SetDialer(dialer EthClientDialer) {
	p.dialer = dialer
}

func (p *Processor) Start() error {
	log.Info("Starting tx processor...")
	log.Info("p.cfg.Chains = ", p.cfg.Chains)

	p.updateCh = make(chan *types.TrackUpdate, 1000)
	go p.listen()

	for chain, cfg := range p.cfg.Chains {
		log.Info("Supported chain and config: ", chain, cfg)

		ethClient, err := p.dialer(cfg)
		if err != nil {
			return fmt.Errorf("cannot dial rpc %s for chain %s: %w", cfg.RpcUrl, chain, err)
		}

		watcher := eth.NewWatcher(p.db, cfg, ethClient)
		p.watchers[chain] = watcher
		watcher.Start()
	}

	return nil
}

func (p *Processor) Stop() {
	for _, watcher := range p.watchers {
		watcher.Stop()
	}
}

func (p *Processor) listen() {
	for update := range p.updateCh {
		log.Verbose("There is a resolved tx with hash: ", update.Hash, " result = ", update.Result)
		if p.clientReady.Load() == true {
			p.notifierClient.PostTrackUpdate(update)
		} else {
			log.Warnf("track update %s: notifier is not ready", update.Hash)
		}
	}
}

func (p *Processor) onResolution(chain string) types.Callback {
	return func(res *types.Resolution) {
		update := types.NewTrackUpdate(chain, res)
		select {
		case p.updateCh <- update:
		default:
			log.Warnf("Notifier queue is full, dropping track update of tx %s on chain %s", update.Hash, chain)
		}
	}
}

func (p *Processor) watchOptions(chain string, req *types.WatchRequest) *types.WatchOptions {
	cfg := p.cfg.Chains[chain]
	opts := &types.WatchOptions{
		CanonicalAfter: cfg.CanonicalAfter,
		DropAfter:      cfg.DropAfter,
	}

	if req != nil {
		if req.CanonicalAfter != nil {
			opts.CanonicalAfter = *req.CanonicalAfter
		}
		if req.DropAfter != nil {
			opts.DropAfter = *req.DropAfter
		}
	}

	return opts
}

func (p *Processor) WatchTx(ctx context.Context, chain string, txHash common.Hash,
	req *types.WatchRequest) (common.Hash, error) {
	watcher := p.watchers[chain]
	if watcher == nil {
		return txHash, fmt.Errorf("unknown chain %s", chain)
	}

	var args []any
	if req != nil {
		args = req.Context
	}

	return watcher.Register(ctx, txHash, args, p.onResolution(chain), p.watchOptions(chain, req))
}

func (p *Processor) WatchTxs(ctx context.Context, chain string, txHashes []common.Hash,
	req *types.WatchRequest) ([]common.Hash, error) {
	watcher := p.watchers[chain]
	if watcher == nil {
		return nil, fmt.Errorf("unknown chain %s", chain)
	}

	var args []any
	if req != nil {
		args = req.Context
	}

	return watcher.RegisterBatch(ctx, txHashes, args, p.onResolution(chain), p.watchOptions(chain, req))
}

// GetResolution returns nil if the tx has not been resolved on the chain.
func (p *Processor) GetResolution(chain string, txHash common.Hash) (*types.TrackUpdate, error) {
	watcher := p.watchers[chain]
	if watcher == nil {
		return nil, fmt.Errorf("unknown chain %s", chain)
	}

	if res, ok := watcher.GetResolution(txHash); ok {
		return types.NewTrackUpdate(chain, res), nil
	}

	return p.db.LoadResolution(chain, txHash.Hex())
}

// GetStates returns the block subscription state of every chain.
func (p *Processor) GetStates() map[string]string {
	states := make(map[string]string)
	for chain, watcher := range p.watchers {
		if w, ok := watcher.(*eth.Watcher); ok {
			states[chain] = w.State().String()
		}
	}

	return states
}

func (p *Processor) GetWatcher(chain string) chains.Watcher {
	return p.watchers[chain]
}

func (p *Processor) SetClientReady(isReady bool) {
	p.clientReady.Store(isReady)
}
