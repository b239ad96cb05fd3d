// Package engine is the deterministic core of FarmLedger. Every externally
// triggered action is compiled into a pipeline of sub-operations and applied
// by a single goroutine; an error anywhere in the pipeline rolls the whole
// action back to its checkpoint. Channels carry the resulting outputs to the
// persistence and projection workers.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FarmLedger/internal/adapter"
	"FarmLedger/internal/asset"
	"FarmLedger/internal/event"
	"FarmLedger/internal/health"
	"FarmLedger/internal/observability"
	"FarmLedger/internal/state"
)

// Output is one emitted action result. The persistence worker receives every
// output over a blocking channel; projections receive a best-effort copy.
type Output struct {
	Envelope *event.Envelope
}

// Collaborators bundles the engine's external dependencies. RewardPair may
// be nil when the reward asset is the primary asset and trades on the
// primary pair.
type Collaborators struct {
	PrimaryPair adapter.Pair
	RewardPair  adapter.Pair
	Generator   adapter.Generator
	Market      adapter.MoneyMarket
	Oracle      adapter.Oracle
	Bank        adapter.Bank
}

// Engine is the single-threaded action processor.
type Engine struct {
	store   *state.Store
	pair    adapter.Pair
	rwdPair adapter.Pair
	gen     adapter.Generator
	market  adapter.MoneyMarket
	oracle  adapter.Oracle
	bank    adapter.Bank
	taxes   asset.TaxTable
	calc    *health.Calculator

	// The engine's own account at the generator, money market, and bank.
	account uuid.UUID

	sequence int64
	metrics  *observability.Metrics
	log      zerolog.Logger

	persistChan    chan<- Output
	projectionChan chan<- Output

	cmdChan chan func(context.Context)

	// Per-action scratch, reset by runAction.
	pending []*event.Envelope
	attrs   []event.Attribute
}

// New wires an engine over a store and its collaborators. Nil channels
// disable emission, which the unit tests rely on.
func New(
	store *state.Store,
	col Collaborators,
	taxes asset.TaxTable,
	account uuid.UUID,
	startSequence int64,
	persistChan, projectionChan chan<- Output,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		store:          store,
		pair:           col.PrimaryPair,
		rwdPair:        col.RewardPair,
		gen:            col.Generator,
		market:         col.Market,
		oracle:         col.Oracle,
		bank:           col.Bank,
		taxes:          taxes,
		calc:           health.NewCalculator(col.PrimaryPair, col.Generator, col.Market, col.Oracle, account),
		account:        account,
		sequence:       startSequence,
		metrics:        metrics,
		log:            log,
		persistChan:    persistChan,
		projectionChan: projectionChan,
		cmdChan:        make(chan func(context.Context), 64),
	}
}

// Sequence returns the next action sequence number.
func (e *Engine) Sequence() int64 { return e.sequence }

// Store exposes the underlying store for queries routed through Dispatch.
func (e *Engine) Store() *state.Store { return e.store }

// Result is returned to the caller of a successful action.
type Result struct {
	Sequence int64             `json:"sequence"`
	Events   []*event.Envelope `json:"events,omitempty"`
}

// runAction applies one compiled action atomically: checkpoint, optional
// prep step, sub-operations in order, post-checks, then output emission.
// Any error restores the checkpoint and reports the action rejected.
func (e *Engine) runAction(ctx context.Context, name string, prep func(context.Context) error, ops []SubOp) (*Result, error) {
	start := time.Now()

	if !e.store.TransientEmpty() {
		// A dirty slot means a prior pipeline aborted without restoring,
		// which the checkpoint discipline rules out.
		panic("FATAL: transient user slot dirty at action start")
	}

	cp := e.store.Checkpoint()
	e.pending = e.pending[:0]
	e.attrs = e.attrs[:0]

	fail := func(err error) (*Result, error) {
		e.store.Restore(cp)
		if e.metrics != nil {
			e.metrics.ActionsRejected.WithLabelValues(name, Kind(err)).Inc()
		}
		e.log.Warn().Str("action", name).Str("reason", Kind(err)).Err(err).Msg("action rejected")
		return nil, err
	}

	if prep != nil {
		if err := prep(ctx); err != nil {
			return fail(err)
		}
	}
	for i := range ops {
		if err := e.execute(ctx, ops[i]); err != nil {
			return fail(err)
		}
	}
	if !e.store.TransientEmpty() {
		return fail(fmt.Errorf("%w: observed sub-operation left no reply", ErrInvariant))
	}

	if err := e.store.ValidateUnitConservation(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	for i := range ops {
		e.store.PurgeIfEmpty(ops[i].User)
	}

	res := &Result{
		Sequence: e.sequence,
		Events:   append([]*event.Envelope(nil), e.pending...),
	}
	attrs := append([]event.Attribute(nil), e.attrs...)
	for _, env := range e.pending {
		env.Attributes = attrs
		e.emitOutput(Output{Envelope: env})
	}
	e.sequence++

	if e.metrics != nil {
		e.metrics.ActionsApplied.WithLabelValues(name).Inc()
		e.metrics.ActionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
		st := e.store.State()
		e.metrics.TotalBondUnits.Set(intToFloat(st.TotalBondUnits.BigInt()))
		e.metrics.TotalDebtUnits.Set(intToFloat(st.TotalDebtUnits.BigInt()))
		e.metrics.OpenPositions.Set(float64(len(e.store.Users())))
	}
	e.log.Info().Str("action", name).Int64("sequence", res.Sequence).Int("sub_ops", len(ops)).Msg("action applied")

	return res, nil
}

// emitOutput sends to persistence with backpressure and to projections
// best-effort.
func (e *Engine) emitOutput(out Output) {
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			// Blocking send: the engine stalls until the persistence
			// worker drains. No output is ever lost.
			e.persistChan <- out
		}
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}
	}
}

// emit queues an envelope stamped with the current action sequence. The
// envelope is delivered to the output channels only if the action commits.
func (e *Engine) emit(t event.Type, user *uuid.UUID, payload any) {
	e.pending = append(e.pending, &event.Envelope{
		Sequence: e.sequence,
		Type:     t,
		User:     user,
		Payload:  payload,
	})
}

func (e *Engine) attr(key, value string) {
	e.attrs = append(e.attrs, event.Attribute{Key: key, Value: value})
}

// PositionHealth values one position against live collaborator state. Call
// through Dispatch when the engine loop is running.
func (e *Engine) PositionHealth(ctx context.Context, user uuid.UUID) (health.Health, error) {
	return e.positionHealth(ctx, user)
}

// positionHealth values one position against live collaborator state.
func (e *Engine) positionHealth(ctx context.Context, user uuid.UUID) (health.Health, error) {
	cfg := e.store.Config()
	st := e.store.State()
	bondUnits, debtUnits := unitHoldings(e.store, user)
	return e.calc.Compute(ctx, cfg.PrimaryAsset, cfg.SecondaryAsset,
		bondUnits, debtUnits, st.TotalBondUnits, st.TotalDebtUnits)
}

func unitHoldings(s *state.Store, user uuid.UUID) (bond, debt math.Int) {
	if p, ok := s.Position(user); ok {
		return p.BondUnits, p.DebtUnits
	}
	return math.ZeroInt(), math.ZeroInt()
}

func intToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
