package dsc

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "dscengine/native/common"
)

type collateralKey struct {
	user  common.Address
	asset common.Address
}

// MemoryState is an in-process ledger backend. Absent entries read as zero
// and zero writes remove the entry, so an emptied account is
// indistinguishable from one that never existed.
type MemoryState struct {
	collateral map[collateralKey]*big.Int
	debt       map[common.Address]*big.Int
	journal    nativecommon.Journal
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		collateral: make(map[collateralKey]*big.Int),
		debt:       make(map[common.Address]*big.Int),
	}
}

func (s *MemoryState) CollateralBalance(user, asset common.Address) (*big.Int, error) {
	if v, ok := s.collateral[collateralKey{user, asset}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (s *MemoryState) SetCollateralBalance(user, asset common.Address, amount *big.Int) error {
	key := collateralKey{user, asset}
	prev, had := s.collateral[key]
	s.journal.Record(func() {
		if had {
			s.collateral[key] = prev
		} else {
			delete(s.collateral, key)
		}
	})
	if amount == nil || amount.Sign() == 0 {
		delete(s.collateral, key)
		return nil
	}
	s.collateral[key] = new(big.Int).Set(amount)
	return nil
}

func (s *MemoryState) DebtBalance(user common.Address) (*big.Int, error) {
	if v, ok := s.debt[user]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (s *MemoryState) SetDebtBalance(user common.Address, amount *big.Int) error {
	prev, had := s.debt[user]
	s.journal.Record(func() {
		if had {
			s.debt[user] = prev
		} else {
			delete(s.debt, user)
		}
	})
	if amount == nil || amount.Sign() == 0 {
		delete(s.debt, user)
		return nil
	}
	s.debt[user] = new(big.Int).Set(amount)
	return nil
}

// Accounts returns every account with a non-zero balance, sorted.
func (s *MemoryState) Accounts() ([]common.Address, error) {
	seen := make(map[common.Address]struct{})
	for key := range s.collateral {
		seen[key.user] = struct{}{}
	}
	for user := range s.debt {
		seen[user] = struct{}{}
	}
	out := make([]common.Address, 0, len(seen))
	for user := range seen {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cmp(out[j]) < 0
	})
	return out, nil
}

func (s *MemoryState) Snapshot() int                 { return s.journal.Snapshot() }
func (s *MemoryState) RevertToSnapshot(id int) error { return s.journal.RevertToSnapshot(id) }
func (s *MemoryState) Release(id int)                { s.journal.Release(id) }
