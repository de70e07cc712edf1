package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/alanyoungcy/boldengine/internal/notify"
	"golang.org/x/sync/errgroup"
)

// Reasons recorded when a bet is marked failed.
const (
	ReasonMissingTxRef      = "missing_transaction_ref"
	ReasonOnChainFailure    = "onchain_failure"
	ReasonMalformedResponse = "malformed_ledger_response"
	ReasonLedgerError       = "ledger_error"
	ReasonConfirmFailed     = "confirm_failed"
)

// Bet examination results, as counted in metrics.
const (
	BetConfirmed = "confirmed"
	BetFailed    = "failed"
	BetPending   = "pending"
	BetSkipped   = "skipped"
)

// ReconcilerConfig tunes a Reconciler.
type ReconcilerConfig struct {
	// Concurrency bounds how many bets are examined at once.
	Concurrency int
	// RetryLedgerErrors leaves a bet pending when the ledger cannot be
	// reached, instead of failing it. Malformed responses still fail.
	RetryLedgerErrors bool
}

// Reconciler settles pending bets against the ledger. A bet leaves pending
// exactly once: confirmation and the pool credit commit together, and both
// store transitions are conditional on the bet still being pending.
type Reconciler struct {
	bets   domain.BetStore
	ledger domain.LedgerClient
	hooks  Hooks
	cfg    ReconcilerConfig
	logger *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	bets domain.BetStore,
	ledger domain.LedgerClient,
	hooks Hooks,
	cfg ReconcilerConfig,
	logger *slog.Logger,
) *Reconciler {
	cfg.Concurrency = concurrencyOrDefault(cfg.Concurrency)
	return &Reconciler{
		bets:   bets,
		ledger: ledger,
		hooks:  hooks,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "reconciler")),
	}
}

// SettlePass examines every pending bet once. Only a failure to list pending
// bets is returned; everything else is resolved per bet.
func (r *Reconciler) SettlePass(ctx context.Context) error {
	bets, err := r.bets.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: list pending bets: %w", err)
	}
	if len(bets) == 0 {
		return nil
	}

	start := time.Now()
	var counts [3]atomic.Int64 // confirmed, failed, other

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for _, b := range bets {
		if ctx.Err() != nil {
			break
		}
		if b.Status != domain.BetPending {
			continue
		}
		g.Go(func() error {
			result := r.settleBet(ctx, b)
			r.hooks.Metrics.BetResult(result)
			switch result {
			case BetConfirmed:
				counts[0].Add(1)
			case BetFailed:
				counts[1].Add(1)
			default:
				counts[2].Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.InfoContext(ctx, "settle pass finished",
		slog.Int("bets", len(bets)),
		slog.Int64("confirmed", counts[0].Load()),
		slog.Int64("failed", counts[1].Load()),
		slog.Int64("unchanged", counts[2].Load()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// settleBet drives one bet and returns the state it was left in.
func (r *Reconciler) settleBet(ctx context.Context, bet domain.Bet) string {
	ref := bet.TxRef()
	if ref == "" {
		return r.fail(ctx, bet, ReasonMissingTxRef, domain.ErrMissingTxRef)
	}

	res, err := r.ledger.Lookup(ctx, ref)
	if err != nil {
		r.hooks.Metrics.LedgerLookup("error")
		if ctx.Err() != nil {
			return BetPending
		}
		if errors.Is(err, domain.ErrMalformedLedgerResponse) {
			return r.fail(ctx, bet, ReasonMalformedResponse, err)
		}
		if r.cfg.RetryLedgerErrors {
			r.logger.WarnContext(ctx, "ledger lookup failed, bet left pending",
				slog.String("bet_id", bet.ID),
				slog.String("tx_ref", ref),
				slog.String("error", err.Error()),
			)
			return BetPending
		}
		return r.fail(ctx, bet, ReasonLedgerError, err)
	}

	if !res.Found {
		r.hooks.Metrics.LedgerLookup("not_found")
		r.logger.DebugContext(ctx, "transaction not visible yet",
			slog.String("bet_id", bet.ID),
			slog.String("tx_ref", ref),
		)
		return BetPending
	}
	r.hooks.Metrics.LedgerLookup("found")

	if !res.Success {
		return r.fail(ctx, bet, ReasonOnChainFailure, fmt.Errorf("transaction %s failed on chain: %s", ref, res.Error))
	}

	market, err := r.bets.Confirm(ctx, bet)
	if err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			r.logger.InfoContext(ctx, "bet already settled elsewhere", slog.String("bet_id", bet.ID))
			return BetSkipped
		}
		if ctx.Err() != nil {
			return BetPending
		}
		return r.fail(ctx, bet, ReasonConfirmFailed, err)
	}

	r.logger.InfoContext(ctx, "bet confirmed",
		slog.String("bet_id", bet.ID),
		slog.String("market_id", bet.MarketID),
		slog.String("outcome", bet.OutcomeLabel()),
		slog.String("amount", bet.Amount.String()),
		slog.String("pool_yes", market.PoolYes.String()),
		slog.String("pool_no", market.PoolNo.String()),
		slog.String("total_volume", market.TotalVolume.String()),
	)
	r.hooks.audit(ctx, r.logger, "bet_confirmed", map[string]any{
		"bet_id":    bet.ID,
		"market_id": bet.MarketID,
		"outcome":   bet.OutcomeLabel(),
		"amount":    bet.Amount.String(),
		"tx_ref":    ref,
	})
	r.hooks.publish(ctx, r.logger, domain.ChannelBetSettled, map[string]any{
		"bet_id":       bet.ID,
		"market_id":    bet.MarketID,
		"status":       string(domain.BetConfirmed),
		"outcome":      bet.OutcomeLabel(),
		"amount":       bet.Amount.String(),
		"pool_yes":     market.PoolYes.String(),
		"pool_no":      market.PoolNo.String(),
		"total_volume": market.TotalVolume.String(),
	})
	return BetConfirmed
}

// fail moves bet to failed and reports why. If the bet already left pending
// nothing is reported.
func (r *Reconciler) fail(ctx context.Context, bet domain.Bet, reason string, cause error) string {
	if err := r.bets.MarkFailed(ctx, bet.ID); err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			r.logger.InfoContext(ctx, "bet already settled elsewhere", slog.String("bet_id", bet.ID))
			return BetSkipped
		}
		r.logger.ErrorContext(ctx, "could not mark bet failed",
			slog.String("bet_id", bet.ID),
			slog.String("reason", reason),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return BetPending
	}

	r.logger.WarnContext(ctx, "bet failed",
		slog.String("bet_id", bet.ID),
		slog.String("market_id", bet.MarketID),
		slog.String("reason", reason),
		slog.String("error", cause.Error()),
	)
	r.hooks.audit(ctx, r.logger, notify.EventBetFailed, map[string]any{
		"bet_id":    bet.ID,
		"market_id": bet.MarketID,
		"reason":    reason,
		"error":     cause.Error(),
		"tx_ref":    bet.TxRef(),
	})
	r.hooks.publish(ctx, r.logger, domain.ChannelBetSettled, map[string]any{
		"bet_id":    bet.ID,
		"market_id": bet.MarketID,
		"status":    string(domain.BetFailed),
		"reason":    reason,
	})
	r.hooks.alert(ctx, r.logger, notify.EventBetFailed, "Bet failed",
		fmt.Sprintf("bet %s on market %s: %s (%v)", bet.ID, bet.MarketID, reason, cause))
	return BetFailed
}
