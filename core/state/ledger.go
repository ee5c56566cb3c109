package state

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	nativecommon "dscengine/native/common"
	"dscengine/storage"
	"dscengine/storage/trie"
)

var (
	// ErrValueOverflow is returned when a balance does not fit in 256 bits.
	ErrValueOverflow = errors.New("state: value exceeds 256 bits")
	// ErrNegativeValue is returned when a negative balance is written.
	ErrNegativeValue = errors.New("state: negative value")
	// ErrIncompleteRollback is returned when journaled writes could not all be
	// undone.
	ErrIncompleteRollback = errors.New("state: incomplete rollback")
)

var (
	collateralPrefix = []byte("dsc/collateral/")
	debtPrefix       = []byte("dsc/debt/")
	entriesPrefix    = []byte("dsc/entries/")
	accountsKey      = ethcrypto.Keccak256([]byte("dsc/accounts"))

	// headRootKey lives in the raw key-value store, outside the trie.
	headRootKey = []byte("dsc/ledger/head")
)

func collateralKey(user, asset common.Address) []byte {
	return ethcrypto.Keccak256(collateralPrefix, user.Bytes(), asset.Bytes())
}

func debtKey(user common.Address) []byte {
	return ethcrypto.Keccak256(debtPrefix, user.Bytes())
}

func entriesKey(user common.Address) []byte {
	return ethcrypto.Keccak256(entriesPrefix, user.Bytes())
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Ledger persists collateral and debt balances in a Merkle Patricia trie.
// Balances are stored as RLP-encoded 256-bit integers; zero balances are
// deleted. Every write made while a snapshot is open is journaled so it can be
// undone, and Commit persists the trie and records the new root as the head.
type Ledger struct {
	mu      sync.Mutex
	db      storage.Database
	trie    *trie.Trie
	journal nativecommon.Journal
	version uint64

	// rollbackErr holds undo failures; the trie may be partially reverted
	// until Reset reloads it.
	rollbackErr error
}

// OpenLedger opens the ledger at the head root recorded in db, or an empty
// ledger when none has been committed yet.
func OpenLedger(db storage.Database) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database must not be nil")
	}
	var root []byte
	head, err := db.Get(headRootKey)
	switch {
	case err == nil:
		root = head
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("state: load head root: %w", err)
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("state: open trie: %w", err)
	}
	return &Ledger{db: db, trie: tr}, nil
}

// Root returns the last committed root.
func (l *Ledger) Root() common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trie.Root()
}

// Hash returns the root over the current, possibly uncommitted, contents.
func (l *Ledger) Hash() common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trie.Hash()
}

// Reset discards uncommitted writes and reloads the ledger at root.
func (l *Ledger) Reset(root common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.trie.Reset(root); err != nil {
		return err
	}
	l.rollbackErr = nil
	return nil
}

// Commit persists pending writes and records the resulting root as the head.
// It refuses to persist after a failed rollback.
func (l *Ledger) Commit() (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rollbackErr != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrIncompleteRollback, l.rollbackErr)
	}
	parent := l.trie.Root()
	root, err := l.trie.Commit(parent, l.version+1)
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: commit trie: %w", err)
	}
	if err := l.db.Put(headRootKey, root.Bytes()); err != nil {
		return common.Hash{}, fmt.Errorf("state: store head root: %w", err)
	}
	l.version++
	return root, nil
}

func (l *Ledger) CollateralBalance(user, asset common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAmount(collateralKey(user, asset))
}

func (l *Ledger) SetCollateralBalance(user, asset common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.storeAmount(user, collateralKey(user, asset), amount)
}

func (l *Ledger) DebtBalance(user common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAmount(debtKey(user))
}

func (l *Ledger) SetDebtBalance(user common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.storeAmount(user, debtKey(user), amount)
}

// Accounts returns every account holding at least one non-zero balance, in
// ascending address order.
func (l *Ledger) Accounts() ([]common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAccounts()
}

func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journal.Snapshot()
}

func (l *Ledger) RevertToSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.journal.RevertToSnapshot(id); err != nil {
		l.rollbackErr = errors.Join(l.rollbackErr, err)
		return fmt.Errorf("%w: %w", ErrIncompleteRollback, err)
	}
	return nil
}

func (l *Ledger) Release(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal.Release(id)
}

// KVPut stores value RLP-encoded under the keccak hash of key.
func (l *Ledger) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.put(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (l *Ledger) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	l.mu.Lock()
	data, err := l.trie.Get(kvKey(key))
	l.mu.Unlock()
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// put writes a raw trie value and journals the previous one.
func (l *Ledger) put(key, value []byte) error {
	prev, err := l.trie.Get(key)
	if err != nil {
		return err
	}
	prev = common.CopyBytes(prev)
	if err := l.trie.Update(key, value); err != nil {
		return err
	}
	l.journal.RecordFallible(func() error {
		return l.trie.Update(key, prev)
	})
	return nil
}

func (l *Ledger) loadAmount(key []byte) (*big.Int, error) {
	data, err := l.trie.Get(key)
	if err != nil {
		return nil, err
	}
	return decodeAmount(data)
}

func (l *Ledger) storeAmount(user common.Address, key []byte, amount *big.Int) error {
	encoded, err := encodeAmount(amount)
	if err != nil {
		return err
	}
	prev, err := l.trie.Get(key)
	if err != nil {
		return err
	}
	wasEmpty := len(prev) == 0
	if err := l.put(key, encoded); err != nil {
		return err
	}
	isEmpty := len(encoded) == 0
	if wasEmpty == isEmpty {
		return nil
	}
	return l.adjustEntries(user, isEmpty)
}

// adjustEntries tracks how many non-zero balances user holds and keeps the
// account index in step with it.
func (l *Ledger) adjustEntries(user common.Address, removed bool) error {
	key := entriesKey(user)
	var count uint64
	data, err := l.trie.Get(key)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &count); err != nil {
			return fmt.Errorf("state: decode entry count: %w", err)
		}
	}
	switch {
	case removed && count > 0:
		count--
	case !removed:
		count++
	}

	var encoded []byte
	if count > 0 {
		if encoded, err = rlp.EncodeToBytes(count); err != nil {
			return err
		}
	}
	if err := l.put(key, encoded); err != nil {
		return err
	}
	switch {
	case count == 0:
		return l.updateIndex(user, false)
	case count == 1 && !removed:
		return l.updateIndex(user, true)
	}
	return nil
}

func (l *Ledger) loadAccounts() ([]common.Address, error) {
	data, err := l.trie.Get(accountsKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []common.Address{}, nil
	}
	var list []common.Address
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, fmt.Errorf("state: decode account index: %w", err)
	}
	return list, nil
}

func (l *Ledger) updateIndex(user common.Address, present bool) error {
	list, err := l.loadAccounts()
	if err != nil {
		return err
	}
	pos, found := slices.BinarySearchFunc(list, user, func(a, b common.Address) int {
		return a.Cmp(b)
	})
	switch {
	case present && !found:
		list = slices.Insert(list, pos, user)
	case !present && found:
		list = slices.Delete(list, pos, pos+1)
	default:
		return nil
	}
	var encoded []byte
	if len(list) > 0 {
		if encoded, err = rlp.EncodeToBytes(list); err != nil {
			return err
		}
	}
	return l.put(accountsKey, encoded)
}

// encodeAmount returns nil for zero so the trie entry is removed.
func encodeAmount(amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() == 0 {
		return nil, nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrValueOverflow, amount)
	}
	return rlp.EncodeToBytes(value)
}

func decodeAmount(data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	value := new(uint256.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, fmt.Errorf("state: decode amount: %w", err)
	}
	return value.ToBig(), nil
}
