package chains

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sisu-network/txconfirm/types"
)

type Watcher interface {
	Start()
	Stop()

	// Register tracks a tx until it is confirmed or dropped. Unless an error is returned, the
	// callback is invoked exactly once. Unknown hashes and registrations on a stopped watcher
	// resolve synchronously. An error means the node could not be queried and nothing was watched.
	Register(ctx context.Context, txHash common.Hash, args []any, callback types.Callback,
		opts *types.WatchOptions) (common.Hash, error)

	// RegisterBatch tracks every hash as its own watch in one group identified by the first hash.
	RegisterBatch(ctx context.Context, txHashes []common.Hash, args []any, callback types.Callback,
		opts *types.WatchOptions) ([]common.Hash, error)

	// GetResolution returns a recent resolution of the tx hash, if any.
	GetResolution(txHash common.Hash) (*types.Resolution, bool)
}
