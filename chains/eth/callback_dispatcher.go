package eth

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/groupcache/lru"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/config"
	"github.com/sisu-network/txconfirm/database"
	"github.com/sisu-network/txconfirm/types"
)

// callbackDispatcher hands resolutions to their callbacks. It owns the removal of an entry from
// the registry so that removal, group countdown and the callback happen together.
type callbackDispatcher struct {
	chain    string
	registry *watchRegistry
	db       database.Database

	lock    *sync.Mutex
	history *lru.Cache
}

func newCallbackDispatcher(cfg config.Chain, registry *watchRegistry, db database.Database) *callbackDispatcher {
	return &callbackDispatcher{
		chain:    cfg.Chain,
		registry: registry,
		db:       db,
		lock:     &sync.Mutex{},
		history:  lru.New(cfg.ResolutionCacheSize),
	}
}

// resolve removes the entry from the registry and invokes its callback. It returns false if
// the entry was already resolved.
func (d *callbackDispatcher) resolve(entry *watchEntry, result types.TrackResult, addr *common.Address,
	cond error, blockHeight uint64) bool {
	remaining, ok := d.registry.remove(entry)
	if !ok {
		return false
	}

	res := &types.Resolution{
		TxHash:      entry.txHash,
		Context:     entry.args,
		Address:     addr,
		Err:         cond,
		Result:      result,
		BlockHeight: blockHeight,
	}
	if entry.groupId != nil && remaining != nil {
		res.GroupId = entry.groupId
		res.Remaining = remaining
	}

	d.dispatch(res, entry.callback)
	return true
}

// reject resolves a registration that never made it into the registry.
func (d *callbackDispatcher) reject(txHash common.Hash, args []any, callback types.Callback, err error) {
	log.Warnf("Rejecting watch for tx %s on chain %s, err = %v", txHash.Hex(), d.chain, err)

	d.dispatch(&types.Resolution{
		TxHash:  txHash,
		Context: args,
		Err:     err,
		Result:  types.TrackResultRejected,
	}, callback)
}

func (d *callbackDispatcher) dispatch(res *types.Resolution, callback types.Callback) {
	// A duplicate registration must not shadow the outcome of the watch that is still running.
	if !errors.Is(res.Err, types.ErrAlreadyWatched) {
		d.lock.Lock()
		d.history.Add(res.TxHash, res)
		d.lock.Unlock()

		if d.db != nil {
			d.db.SaveResolution(types.NewTrackUpdate(d.chain, res))
		}
	}

	callback(res)
}

// lookup returns a recent resolution of the tx hash.
func (d *callbackDispatcher) lookup(txHash common.Hash) (*types.Resolution, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()

	v, ok := d.history.Get(txHash)
	if !ok {
		return nil, false
	}

	return v.(*types.Resolution), true
}
