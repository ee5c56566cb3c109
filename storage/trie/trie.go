package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"dscengine/storage"
)

// Trie wraps go-ethereum's Merkle Patricia trie behind the small API the
// ledger needs: keyed reads and writes, a root hash over the current contents,
// commits to the backing store and reloading an earlier committed root.
//
// Keys passed into Get/Update are expected to be hashed (keccak256) by the
// caller. Writing an empty value deletes the key.
//
// Trie is not safe for concurrent use.
type Trie struct {
	trieDB *triedb.Database
	trie   *gethtrie.Trie
	root   common.Hash
}

// NewTrie opens a trie backed by the provided storage at the given root. A nil
// or empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	trieDB := store.TrieDB()
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(rootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{
		trieDB: trieDB,
		trie:   underlying,
		root:   rootHash,
	}, nil
}

// Get retrieves a value from the trie for the provided key.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update inserts, updates or (with an empty value) deletes a key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Hash returns the root hash of the trie reflecting all in-memory mutations.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Reset discards uncommitted changes and reloads the trie at the provided
// committed root.
func (t *Trie) Reset(root common.Hash) error {
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.trieDB)
	if err != nil {
		return err
	}
	t.trie = underlying
	t.root = root
	return nil
}

// Commit persists the trie changes to the backing database and returns the new
// root hash. The underlying trie is recreated so the wrapper stays usable.
func (t *Trie) Commit(parent common.Hash, version uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, version, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(newRoot), t.trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	t.trie = underlying
	t.root = newRoot
	return newRoot, nil
}
