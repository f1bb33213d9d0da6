package utils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseTxHash parses a 0x prefixed 32 byte hex string.
func ParseTxHash(s string) (common.Hash, error) {
	bz, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q: %w", s, err)
	}

	if len(bz) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q: expected %d bytes, got %d", s, common.HashLength,
			len(bz))
	}

	return common.BytesToHash(bz), nil
}

func ParseTxHashes(arr []string) ([]common.Hash, error) {
	hashes := make([]common.Hash, 0, len(arr))
	for _, s := range arr {
		hash, err := ParseTxHash(s)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}

	return hashes, nil
}
