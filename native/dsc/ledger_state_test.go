package dsc

import (
	"context"
	"errors"
	"testing"

	"dscengine/core/state"
	"dscengine/storage"
)

func TestEngineCommitsTrieLedger(t *testing.T) {
	env := newTestEnv(t)
	db := storage.NewMemDB()
	defer db.Close()
	ledger, err := state.OpenLedger(db)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	env.engine.SetState(ledger)

	env.open(t, userAddr, ether(10), ether(100))
	committed := ledger.Root()
	if committed != ledger.Hash() {
		t.Fatalf("successful operation must leave no uncommitted writes")
	}

	err = env.engine.MintDebt(context.Background(), userAddr, ether(1_000_000))
	if !errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected ErrBreaksHealthFactor, got %v", err)
	}
	if ledger.Root() != committed || ledger.Hash() != committed {
		t.Fatalf("rejected operation changed the ledger")
	}
	expectEqual(t, "debt", env.mustDebt(t, userAddr), ether(100))

	accounts, err := env.engine.Accounts(context.Background())
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != userAddr {
		t.Fatalf("unexpected accounts %v", accounts)
	}
}
