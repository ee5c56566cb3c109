package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"dscengine/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 0)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieResetDiscardsUncommitted(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)
	require.Equal(t, gethtypes.EmptyRootHash, tr.Root())

	key := crypto.Keccak256([]byte("debt"))
	require.NoError(t, tr.Update(key, []byte{0x01}))
	root, err := tr.Commit(tr.Root(), 1)
	require.NoError(t, err)

	require.NoError(t, tr.Update(key, []byte{0x02}))
	require.NotEqual(t, root, tr.Hash())

	require.NoError(t, tr.Reset(root))
	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)
	require.Equal(t, root, tr.Hash())
}

func TestTrieEmptyValueDeletes(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	key := crypto.Keccak256([]byte("collateral"))
	require.NoError(t, tr.Update(key, []byte{0x05}))
	require.NoError(t, tr.Update(key, nil))
	require.Equal(t, gethtypes.EmptyRootHash, tr.Hash())
}
