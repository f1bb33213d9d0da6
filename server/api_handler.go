package server

import (
	"context"

	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/core"
	"github.com/sisu-network/txconfirm/types"
	"github.com/sisu-network/txconfirm/utils"
)

type ApiHandler struct {
	processor *core.Processor
}

func NewApi(processor *core.Processor) *ApiHandler {
	return &ApiHandler{
		processor: processor,
	}
}

// CheckHealth returns the block subscription state of every chain.
func (api *ApiHandler) CheckHealth() map[string]string {
	return api.processor.GetStates()
}

// Called by the notifier to indicate that it is ready to receive track updates.
func (api *ApiHandler) SetClientReady(isReady bool) {
	log.Info("Notifier ready = ", isReady)
	api.processor.SetClientReady(isReady)
}

// WatchTx starts tracking a tx. The outcome is posted to the notifier.
func (api *ApiHandler) WatchTx(ctx context.Context, chain string, txHash string,
	req *types.WatchRequest) (string, error) {
	hash, err := utils.ParseTxHash(txHash)
	if err != nil {
		return "", err
	}

	handle, err := api.processor.WatchTx(ctx, chain, hash, req)
	if err != nil {
		return "", err
	}

	return handle.Hex(), nil
}

// WatchTxs tracks a batch of txs as one group.
func (api *ApiHandler) WatchTxs(ctx context.Context, chain string, txHashes []string,
	req *types.WatchRequest) ([]string, error) {
	hashes, err := utils.ParseTxHashes(txHashes)
	if err != nil {
		return nil, err
	}

	handles, err := api.processor.WatchTxs(ctx, chain, hashes, req)
	if err != nil {
		return nil, err
	}

	ret := make([]string, len(handles))
	for i, handle := range handles {
		ret[i] = handle.Hex()
	}

	return ret, nil
}

func (api *ApiHandler) GetResolution(chain string, txHash string) (*types.TrackUpdate, error) {
	hash, err := utils.ParseTxHash(txHash)
	if err != nil {
		return nil, err
	}

	return api.processor.GetResolution(chain, hash)
}
