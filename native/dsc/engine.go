package dsc

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dscengine/core/events"
	nativecommon "dscengine/native/common"
	"dscengine/observability/metrics"
)

const (
	opDeposit        = "deposit"
	opRedeem         = "redeem"
	opMint           = "mint"
	opBurn           = "burn"
	opDepositAndMint = "deposit_and_mint"
	opRedeemForDebt  = "redeem_for_debt"
	opLiquidate      = "liquidate"
)

// Config wires the engine to its collaborators. Collateral must hold a token
// for every asset in Registry.
type Config struct {
	Registry   *Registry
	Custody    common.Address
	Oracle     PriceFeed
	Stable     StableToken
	Collateral map[common.Address]Token
}

// Engine is the solvency engine. Every mutating entry point runs to
// completion or is rolled back entirely, one operation at a time.
type Engine struct {
	registry   *Registry
	custody    common.Address
	oracle     PriceFeed
	stable     StableToken
	collateral map[common.Address]Token

	state   engineState
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.EngineMetrics
	tracer  trace.Tracer

	guard   nativecommon.ReentrancyGuard
	pending []events.Event
}

// NewEngine validates cfg and constructs an engine. State must be attached
// with SetState before use.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("dsc engine: collateral registry required")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("dsc engine: price feed required")
	}
	if cfg.Stable == nil {
		return nil, fmt.Errorf("dsc engine: stablecoin required")
	}
	if cfg.Custody == (common.Address{}) {
		return nil, fmt.Errorf("%w: custody account", ErrZeroAddress)
	}
	tokens := make(map[common.Address]Token, cfg.Registry.Len())
	for _, asset := range cfg.Registry.Assets() {
		token, ok := cfg.Collateral[asset]
		if !ok || token == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingToken, asset.Hex())
		}
		tokens[asset] = token
	}
	return &Engine{
		registry:   cfg.Registry,
		custody:    cfg.Custody,
		oracle:     cfg.Oracle,
		stable:     cfg.Stable,
		collateral: tokens,
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
		tracer:     otel.Tracer("dscengine/native/dsc"),
	}, nil
}

// SetState wires the engine to the ledger persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures where committed events are delivered.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) SetMetrics(m *metrics.EngineMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// Custody returns the account that holds deposited collateral and stablecoin
// awaiting destruction.
func (e *Engine) Custody() common.Address { return e.custody }

// Exclusive runs fn while no engine operation is in flight. It serves
// out-of-band adjustments of in-process collaborators, such as funding
// development accounts.
func (e *Engine) Exclusive(ctx context.Context, fn func() error) error {
	if e == nil {
		return ErrNilState
	}
	_, release, err := e.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

type snapshot struct {
	tx nativecommon.Transactional
	id int
}

// execute runs fn as one atomic operation. Ledger writes, writes to
// transactional collaborators and buffered events are discarded when fn fails
// or panics. Events of a successful operation are delivered once the guard is
// released.
func (e *Engine) execute(ctx context.Context, op string, account common.Address, fn func(ctx context.Context) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	emitted, err := e.apply(ctx, op, account, fn)
	if err != nil {
		return err
	}
	for _, evt := range emitted {
		e.emitter.Emit(evt)
	}
	return nil
}

// apply holds the reentrancy guard for the duration of fn. The deferred
// cleanup also runs while a panic unwinds, which is then re-raised.
func (e *Engine) apply(ctx context.Context, op string, account common.Address, fn func(ctx context.Context) error) ([]events.Event, error) {
	ctx, release, err := e.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := e.tracer.Start(ctx, "dsc."+op, trace.WithAttributes(
		attribute.String("dsc.op", op),
		attribute.String("dsc.account", account.Hex()),
	))
	defer span.End()

	started := time.Now()
	snaps := e.snapshot()
	e.pending = e.pending[:0]
	settled := false
	defer func() {
		if settled {
			return
		}
		e.revert(snaps)
		e.pending = e.pending[:0]
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "panic")
			e.metrics.ObserveOperation(op, "panic", time.Since(started))
			e.logger.Error("dsc operation panicked", "op", op, "account", account.Hex(), "panic", r)
			panic(r)
		}
	}()

	err = fn(ctx)
	if err == nil {
		if c, ok := e.state.(committer); ok {
			if _, commitErr := c.Commit(); commitErr != nil {
				err = fmt.Errorf("dsc engine: commit state: %w", commitErr)
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errorClass(err))
		e.metrics.ObserveOperation(op, errorClass(err), time.Since(started))
		e.logger.Warn("dsc operation rejected", "op", op, "account", account.Hex(), "error", err)
		return nil, err
	}

	e.release(snaps)
	settled = true
	emitted := make([]events.Event, len(e.pending))
	copy(emitted, e.pending)
	e.pending = e.pending[:0]
	e.observeHealth(ctx, account)

	e.metrics.ObserveOperation(op, errorClass(nil), time.Since(started))
	e.logger.Info("dsc operation applied", "op", op, "account", account.Hex(), "events", len(emitted))
	return emitted, nil
}

func (e *Engine) participants() []nativecommon.Transactional {
	out := []nativecommon.Transactional{e.state}
	seen := map[any]bool{}
	add := func(v any) {
		tx, ok := v.(nativecommon.Transactional)
		if !ok {
			return
		}
		if reflect.TypeOf(v).Comparable() {
			if seen[v] {
				return
			}
			seen[v] = true
		}
		out = append(out, tx)
	}
	add(e.stable)
	for _, asset := range e.registry.assets {
		add(e.collateral[asset])
	}
	return out
}

func (e *Engine) snapshot() []snapshot {
	txs := e.participants()
	snaps := make([]snapshot, 0, len(txs))
	for _, tx := range txs {
		snaps = append(snaps, snapshot{tx: tx, id: tx.Snapshot()})
	}
	return snaps
}

func (e *Engine) revert(snaps []snapshot) {
	for i := len(snaps) - 1; i >= 0; i-- {
		err := snaps[i].tx.RevertToSnapshot(snaps[i].id)
		if err == nil {
			continue
		}
		e.logger.Error("dsc rollback incomplete", "error", err)
		r, ok := snaps[i].tx.(resetter)
		if !ok {
			continue
		}
		if err := r.Reset(r.Root()); err != nil {
			e.logger.Error("dsc state reset failed", "error", err)
		}
	}
}

func (e *Engine) release(snaps []snapshot) {
	for i := len(snaps) - 1; i >= 0; i-- {
		snaps[i].tx.Release(snaps[i].id)
	}
}

func (e *Engine) emit(evt events.Event) {
	e.pending = append(e.pending, evt)
}

func (e *Engine) observeHealth(ctx context.Context, user common.Address) {
	if e.metrics == nil {
		return
	}
	hf, err := e.healthFactor(ctx, user)
	if err != nil || hf.Cmp(maxHealthFactor) == 0 {
		return
	}
	e.metrics.ObserveHealthFactor(hf, precision)
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNeedsMoreThanZero
	}
	return nil
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
