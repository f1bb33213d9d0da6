package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrTxNotFound     = errors.New("tx hash does not exist on the node")
	ErrNotStarted     = errors.New("watcher has not been started")
	ErrGasExhausted   = errors.New("full gas used")
	ErrEmptyContract  = errors.New("created contract has no code")
	ErrDropTimeout    = errors.New("maximum number of blocks reached, tx still not mined")
	ErrAlreadyWatched = errors.New("tx hash is already being watched")

	ErrNilCallback = errors.New("callback cannot be nil")
	ErrEmptyBatch  = errors.New("batch must contain at least one tx hash")
)

// TxLookupError is returned when a tx cannot be loaded at registration. Only a tx unknown to the
// node matches ErrTxNotFound; any other error means the node could not answer.
type TxLookupError struct {
	TxHash common.Hash
	Err    error
}

func NewTxLookupError(txHash common.Hash, err error) error {
	return &TxLookupError{
		TxHash: txHash,
		Err:    err,
	}
}

func (e *TxLookupError) Error() string {
	if e.NotFound() {
		return fmt.Sprintf("cannot find tx %s, err = %v", e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("cannot look up tx %s, err = %v", e.TxHash.Hex(), e.Err)
}

func (e *TxLookupError) NotFound() bool {
	return errors.Is(e.Err, ethereum.NotFound)
}

func (e *TxLookupError) Is(target error) bool {
	return target == ErrTxNotFound && e.NotFound()
}

func (e *TxLookupError) Unwrap() error {
	return e.Err
}

type GasExhaustedError struct {
	GasUsed  uint64
	GasLimit uint64
}

func NewGasExhaustedError(gasUsed, gasLimit uint64) error {
	return &GasExhaustedError{
		GasUsed:  gasUsed,
		GasLimit: gasLimit,
	}
}

func (e *GasExhaustedError) Error() string {
	return fmt.Sprintf("full gas used: %d (limit %d)", e.GasUsed, e.GasLimit)
}

func (e *GasExhaustedError) Is(target error) bool {
	return target == ErrGasExhausted
}
