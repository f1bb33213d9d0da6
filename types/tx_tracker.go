package types

import (
	"github.com/ethereum/go-ethereum/common"
)

type TrackResult int

const (
	TrackResultConfirmed TrackResult = iota
	TrackResultDropped
	TrackResultRejected
)

func (r TrackResult) String() string {
	switch r {
	case TrackResultConfirmed:
		return "confirmed"
	case TrackResultDropped:
		return "dropped"
	case TrackResultRejected:
		return "rejected"
	}

	return "unknown"
}

// Callback is invoked exactly once per registered tx hash.
type Callback func(res *Resolution)

// WatchOptions controls when a watch is considered final or lost.
type WatchOptions struct {
	// Number of blocks that must pass after inclusion before the tx is confirmed.
	CanonicalAfter uint64
	// Number of blocks to wait for inclusion before the tx is dropped. 0 waits forever.
	DropAfter uint64
	// Set by batch registration. All members of a batch share the hash of the first member.
	GroupId *common.Hash
}

// Resolution is the outcome of a watch handed to its callback.
type Resolution struct {
	TxHash common.Hash
	// Values given at registration, unchanged and in order.
	Context []any
	// Created contract address if any, otherwise the tx destination. Nil when dropped or rejected.
	Address *common.Address
	// Nil on a clean confirmation. Soft conditions (gas exhausted, empty contract) come with
	// Result == TrackResultConfirmed.
	Err    error
	Result TrackResult
	// Height of the block whose processing resolved the watch. 0 for immediate resolutions.
	BlockHeight uint64

	// Only set when the watch belongs to a group. Remaining is counted after this member.
	GroupId   *common.Hash
	Remaining *int
}

// TrackUpdate is the serializable form of a Resolution posted to downstream consumers.
type TrackUpdate struct {
	Chain       string      `json:"chain"`
	Hash        string      `json:"hash"`
	BlockHeight int64       `json:"block_height"`
	Result      TrackResult `json:"result"`
	Address     string      `json:"address,omitempty"`
	Error       string      `json:"error,omitempty"`
	Context     []any       `json:"context,omitempty"`

	GroupId   string `json:"group_id,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

func NewTrackUpdate(chain string, res *Resolution) *TrackUpdate {
	update := &TrackUpdate{
		Chain:       chain,
		Hash:        res.TxHash.Hex(),
		BlockHeight: int64(res.BlockHeight),
		Result:      res.Result,
		Context:     res.Context,
		Remaining:   res.Remaining,
	}

	if res.Address != nil {
		update.Address = res.Address.Hex()
	}
	if res.Err != nil {
		update.Error = res.Err.Error()
	}
	if res.GroupId != nil {
		update.GroupId = res.GroupId.Hex()
	}

	return update
}

// WatchRequest is the API form of a registration.
type WatchRequest struct {
	CanonicalAfter *uint64 `json:"canonical_after,omitempty"`
	DropAfter      *uint64 `json:"drop_after,omitempty"`
	Context        []any   `json:"context,omitempty"`
}
