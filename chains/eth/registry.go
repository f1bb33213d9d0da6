package eth

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/txconfirm/types"
)

// watchEntry is the state of one tracked tx. Only the block processing goroutine mutates it
// once it is in the registry.
type watchEntry struct {
	seq      uint64
	txHash   common.Hash
	gas      uint64
	to       *common.Address
	args     []any
	callback types.Callback

	startBlock     uint64
	canonicalAfter uint64
	dropAfter      uint64
	receipt        *ethtypes.Receipt

	groupId *common.Hash
}

type txGroup struct {
	members map[common.Hash]struct{}
}

// watchRegistry maps tx hashes to their watch and group ids to the members still outstanding.
// A group's remaining count is the size of its member set.
type watchRegistry struct {
	lock    *sync.Mutex
	nextSeq uint64
	entries map[common.Hash]*watchEntry
	groups  map[common.Hash]*txGroup
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{
		lock:    &sync.Mutex{},
		entries: make(map[common.Hash]*watchEntry),
		groups:  make(map[common.Hash]*txGroup),
	}
}

// add inserts an entry and joins its group. A hash that is still outstanding is refused.
func (r *watchRegistry) add(entry *watchEntry) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.entries[entry.txHash]; ok {
		return types.ErrAlreadyWatched
	}

	r.nextSeq++
	entry.seq = r.nextSeq
	r.entries[entry.txHash] = entry

	if entry.groupId != nil {
		group, ok := r.groups[*entry.groupId]
		if !ok {
			group = &txGroup{members: make(map[common.Hash]struct{})}
			r.groups[*entry.groupId] = group
		}
		group.members[entry.txHash] = struct{}{}
	}

	return nil
}

func (r *watchRegistry) get(txHash common.Hash) *watchEntry {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.entries[txHash]
}

// snapshot returns the outstanding entries in registration order. Entries added while the
// caller iterates over the result are not part of it.
func (r *watchRegistry) snapshot() []*watchEntry {
	r.lock.Lock()
	ret := make([]*watchEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		ret = append(ret, entry)
	}
	r.lock.Unlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].seq < ret[j].seq
	})

	return ret
}

// remove deletes the entry and decrements its group. It returns false if the entry is no
// longer in the registry. For grouped entries the remaining count of the group is returned.
func (r *watchRegistry) remove(entry *watchEntry) (*int, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.entries[entry.txHash] != entry {
		return nil, false
	}
	delete(r.entries, entry.txHash)

	if entry.groupId == nil {
		return nil, true
	}

	group, ok := r.groups[*entry.groupId]
	if !ok {
		return nil, true
	}

	delete(group.members, entry.txHash)
	remaining := len(group.members)
	if remaining == 0 {
		delete(r.groups, *entry.groupId)
	}

	return &remaining, true
}

func (r *watchRegistry) size() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.entries)
}

// groupRemaining returns the outstanding count of a group and whether the group exists.
func (r *watchRegistry) groupRemaining(groupId common.Hash) (int, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	group, ok := r.groups[groupId]
	if !ok {
		return 0, false
	}

	return len(group.members), true
}
