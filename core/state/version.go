package state

import (
	"errors"
	"fmt"
	"math"
)

// SchemaVersion identifies the expected layout of the ledger trie. Increment
// it whenever the stored structure changes incompatibly.
const SchemaVersion uint32 = 1

var (
	schemaVersionKey = []byte("dsc/schema/version")
	// ErrSchemaMismatch indicates the stored schema version does not match
	// the version supported by the current binary.
	ErrSchemaMismatch = errors.New("state: schema version mismatch")
)

// SetSchemaVersion records version in the ledger. It is persisted by the next
// Commit.
func (l *Ledger) SetSchemaVersion(version uint32) error {
	if l == nil {
		return fmt.Errorf("state: ledger unavailable")
	}
	return l.KVPut(schemaVersionKey, uint64(version))
}

// SchemaVersion returns the stored schema version and whether it was present.
func (l *Ledger) SchemaVersion() (uint32, bool, error) {
	if l == nil {
		return 0, false, fmt.Errorf("state: ledger unavailable")
	}
	var stored uint64
	ok, err := l.KVGet(schemaVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureSchemaVersion stamps a fresh ledger with the current schema version
// and verifies it on an existing one. When allowMigrate is true, mismatches are
// tolerated so operators can perform manual migrations.
func (l *Ledger) EnsureSchemaVersion(allowMigrate bool) error {
	version, ok, err := l.SchemaVersion()
	if err != nil {
		return err
	}
	if !ok {
		accounts, err := l.Accounts()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			if err := l.SetSchemaVersion(SchemaVersion); err != nil {
				return err
			}
			_, err := l.Commit()
			return err
		}
	}
	if version == SchemaVersion || allowMigrate {
		return nil
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaMismatch, version, SchemaVersion)
}
