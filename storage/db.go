package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The engine can run on either backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

type kvStore struct {
	db       ethdb.Database
	trieOnce sync.Once
	trieDB   *triedb.Database
}

func (s *kvStore) Put(key []byte, value []byte) error {
	return s.db.Put(key, value)
}

func (s *kvStore) Get(key []byte) ([]byte, error) {
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.db.Get(key)
}

// TrieDB returns the hash-scheme trie database layered over the store. The
// handle is created once and shared by every trie opened on this store.
func (s *kvStore) TrieDB() *triedb.Database {
	s.trieOnce.Do(func() {
		s.trieDB = triedb.NewDatabase(s.db, triedb.HashDefaults)
	})
	return s.trieDB
}

func (s *kvStore) close() {
	if s.trieDB != nil {
		_ = s.trieDB.Close()
	}
	_ = s.db.Close()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kvStore
}

func NewMemDB() *MemDB {
	return &MemDB{kvStore: kvStore{db: rawdb.NewMemoryDatabase()}}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	db.close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	kvStore
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := gethleveldb.NewCustom(path, "", func(options *opt.Options) {
		options.OpenFilesCacheCapacity = 64
		options.BlockCacheCapacity = 16 * opt.MiB
		options.WriteBuffer = 8 * opt.MiB
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{kvStore: kvStore{db: rawdb.NewDatabase(kv)}}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.close()
}
