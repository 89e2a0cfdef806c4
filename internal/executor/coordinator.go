// Package executor coordinates multi-leg trade execution. All legs of an
// opportunity are submitted concurrently, every result is gathered before
// an outcome is decided, and any partial fill is immediately neutralized
// with a compensating order.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/ledger"
)

// Alerter surfaces operator alerts for conditions that must not pass
// unnoticed, such as a failed hedge.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Coordinator implements domain.TradeExecutor. Per trade it walks the
// state machine pending -> all_filled, or pending -> partial -> hedging ->
// hedged / hedge_failed. At most one trade per (strategy, instrument) is
// in flight at any time, and a hedge failure halts the instrument until
// operator intervention.
type Coordinator struct {
	venues      map[domain.Venue]domain.OrderVenue
	ledger      *ledger.Ledger
	store       domain.TradeOutcomeStore
	bus         domain.EventSink
	alerter     Alerter
	legDeadline time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	halted   map[string]struct{}
}

// Config holds the coordinator's tunables and optional collaborators.
// Store, Bus, and Alerter may be nil.
type Config struct {
	Venues      map[domain.Venue]domain.OrderVenue
	Ledger      *ledger.Ledger
	Store       domain.TradeOutcomeStore
	Bus         domain.EventSink
	Alerter     Alerter
	LegDeadline time.Duration
}

// New creates a Coordinator.
func New(cfg Config, logger *slog.Logger) *Coordinator {
	legDeadline := cfg.LegDeadline
	if legDeadline <= 0 {
		legDeadline = 5 * time.Second
	}
	return &Coordinator{
		venues:      cfg.Venues,
		ledger:      cfg.Ledger,
		store:       cfg.Store,
		bus:         cfg.Bus,
		alerter:     cfg.Alerter,
		legDeadline: legDeadline,
		logger:      logger.With(slog.String("component", "coordinator")),
		inflight:    make(map[string]struct{}),
		halted:      make(map[string]struct{}),
	}
}

// Halted reports whether new opportunities for the instrument are
// suspended after a hedge failure.
func (c *Coordinator) Halted(instrument string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.halted[instrument]
	return ok
}

// Execute runs all legs of the opportunity to resolution. Once legs are
// submitted the trade is never cancelled mid-flight: it completes on a
// context detached from shutdown cancellation.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (domain.TradeOutcome, error) {
	outcome := domain.TradeOutcome{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Kind:          opp.Kind,
		Strategy:      opp.Strategy,
		Instrument:    opp.Instrument,
		State:         domain.TradePending,
		StartedAt:     time.Now().UTC(),
	}

	key := opp.Strategy + "|" + opp.Instrument
	c.mu.Lock()
	if _, ok := c.halted[opp.Instrument]; ok {
		c.mu.Unlock()
		return outcome, fmt.Errorf("coordinator: %s: %w", opp.Instrument, domain.ErrInstrumentHalted)
	}
	if _, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return outcome, fmt.Errorf("coordinator: %s: %w", key, domain.ErrTradeInFlight)
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	log := c.logger.With(
		slog.String("trade_id", outcome.ID),
		slog.String("opp_id", opp.ID),
		slog.String("instrument", opp.Instrument),
		slog.String("kind", string(opp.Kind)),
	)

	// Detach from shutdown: submitted legs run to resolution.
	execCtx := context.WithoutCancel(ctx)

	outcome.Legs = c.submitAll(execCtx, opp.Legs)

	allFilled := true
	for _, res := range outcome.Legs {
		if res.Status != domain.LegFilled {
			allFilled = false
			break
		}
	}

	if allFilled {
		return c.settleFilled(execCtx, outcome, log)
	}
	return c.hedgePartial(execCtx, outcome, log)
}

// submitAll fires every leg concurrently with a per-leg deadline and
// gathers all results. A failed leg never causes the others to be dropped.
func (c *Coordinator) submitAll(ctx context.Context, specs []domain.LegSpec) []domain.LegResult {
	results := make([]domain.LegResult, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec domain.LegSpec) {
			defer wg.Done()
			results[i] = c.submit(ctx, spec)
		}(i, spec)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) submit(ctx context.Context, spec domain.LegSpec) domain.LegResult {
	venue, ok := c.venues[spec.Venue]
	if !ok {
		return domain.LegResult{
			Spec:   spec,
			Status: domain.LegRejected,
			Err:    fmt.Sprintf("no adapter for venue %q", spec.Venue),
		}
	}

	legCtx, cancel := context.WithTimeout(ctx, c.legDeadline)
	defer cancel()

	res, err := venue.Submit(legCtx, spec)
	res.Spec = spec
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrLegTimeout):
			res.Status = domain.LegTimeout
		default:
			res.Status = domain.LegRejected
		}
		if res.Err == "" {
			res.Err = err.Error()
		}
	}
	if res.Status == "" {
		res.Status = domain.LegRejected
	}
	return res
}

// settleFilled applies all fills to the ledger, computes realized profit,
// and records the outcome.
func (c *Coordinator) settleFilled(ctx context.Context, outcome domain.TradeOutcome, log *slog.Logger) (domain.TradeOutcome, error) {
	outcome.State = domain.TradeAllFilled
	outcome.RealizedProfit = realizedProfit(outcome.Legs)
	outcome.CompletedAt = time.Now().UTC()

	if err := c.ledger.ApplyTrade(outcome.Legs); err != nil {
		return outcome, fmt.Errorf("coordinator: apply trade: %w", err)
	}

	log.Info("trade filled",
		slog.Float64("realized_profit", outcome.RealizedProfit),
		slog.Int("legs", len(outcome.Legs)),
	)
	c.record(ctx, outcome, log)
	return outcome, nil
}

// hedgePartial issues a compensating order for every filled leg, sized to
// the filled amount and priced off the realized fill, on the same venue.
// The hedge takes priority over any
// new opportunity for the instrument (the in-flight slot is held until it
// resolves). A failed hedge halts the instrument.
func (c *Coordinator) hedgePartial(ctx context.Context, outcome domain.TradeOutcome, log *slog.Logger) (domain.TradeOutcome, error) {
	outcome.State = domain.TradePartial
	log.Warn("trade partially filled, hedging", slog.Int("legs", len(outcome.Legs)))

	if err := c.ledger.ApplyTrade(outcome.Legs); err != nil {
		return outcome, fmt.Errorf("coordinator: apply partial fills: %w", err)
	}

	outcome.State = domain.TradeHedging
	hedgeFailed := false
	for _, res := range outcome.Legs {
		if !res.Filled() {
			continue
		}
		side := res.Spec.Side.Opposite()
		hedgeSpec := domain.LegSpec{
			Venue:       res.Spec.Venue,
			Side:        side,
			Instrument:  res.Spec.Instrument,
			Size:        res.FilledSize,
			LimitPrice:  domain.MarketableLimit(side, res.RealizedPrice, res.Spec.MaxSlippage),
			MaxSlippage: res.Spec.MaxSlippage,
		}
		hedgeRes := c.submit(ctx, hedgeSpec)
		outcome.HedgeLegs = append(outcome.HedgeLegs, hedgeRes)

		if err := c.ledger.Apply(hedgeRes); err != nil {
			return outcome, fmt.Errorf("coordinator: apply hedge: %w", err)
		}
		if hedgeRes.Status != domain.LegFilled {
			hedgeFailed = true
			log.Error("hedge leg failed",
				slog.String("venue", string(hedgeSpec.Venue)),
				slog.String("side", string(hedgeSpec.Side)),
				slog.Float64("size", hedgeSpec.Size),
				slog.String("status", string(hedgeRes.Status)),
				slog.String("error", hedgeRes.Err),
			)
		}
	}

	outcome.RealizedProfit = realizedProfit(append(append([]domain.LegResult{}, outcome.Legs...), outcome.HedgeLegs...))
	outcome.CompletedAt = time.Now().UTC()

	if hedgeFailed {
		outcome.State = domain.TradeHedgeFailed
		c.halt(ctx, outcome, log)
		c.record(ctx, outcome, log)
		return outcome, fmt.Errorf("coordinator: %s: %w", outcome.Instrument, domain.ErrHedgeFailed)
	}

	outcome.State = domain.TradeHedged
	log.Info("partial trade hedged",
		slog.Int("hedge_legs", len(outcome.HedgeLegs)),
		slog.Float64("realized_profit", outcome.RealizedProfit),
	)
	c.record(ctx, outcome, log)
	return outcome, nil
}

// halt suspends new opportunity generation for the instrument and raises
// an operator alert. Exposure on the instrument is unknown until resolved
// by hand.
func (c *Coordinator) halt(ctx context.Context, outcome domain.TradeOutcome, log *slog.Logger) {
	c.mu.Lock()
	c.halted[outcome.Instrument] = struct{}{}
	c.mu.Unlock()

	log.Error("instrument halted after hedge failure",
		slog.String("instrument", outcome.Instrument),
	)
	if c.alerter != nil {
		msg := fmt.Sprintf("hedge failed for %s (trade %s); instrument halted with unresolved exposure",
			outcome.Instrument, outcome.ID)
		if err := c.alerter.Notify(ctx, "hedge_failed", "hedge failed", msg); err != nil {
			log.Warn("alert delivery failed", slog.String("error", err.Error()))
		}
	}
}

// record persists and publishes the trade outcome. Both paths are
// fire-and-forget with respect to the core.
func (c *Coordinator) record(ctx context.Context, outcome domain.TradeOutcome, log *slog.Logger) {
	if c.store != nil {
		if err := c.store.Create(ctx, outcome); err != nil {
			log.Warn("trade outcome record failed", slog.String("error", err.Error()))
		}
	}
	if c.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":           "trade_outcome",
		"trade_id":        outcome.ID,
		"opp_id":          outcome.OpportunityID,
		"instrument":      outcome.Instrument,
		"kind":            string(outcome.Kind),
		"state":           string(outcome.State),
		"legs":            len(outcome.Legs),
		"hedge_legs":      len(outcome.HedgeLegs),
		"realized_profit": outcome.RealizedProfit,
		"completed_at":    outcome.CompletedAt.Format(time.RFC3339Nano),
	})
	if err := c.bus.Publish(ctx, "trades", evt); err != nil {
		log.Warn("publish trade outcome failed", slog.String("error", err.Error()))
	}
}

// realizedProfit is sell proceeds minus buy cost minus venue fees over all
// filled legs.
func realizedProfit(legs []domain.LegResult) float64 {
	var profit float64
	for _, res := range legs {
		if !res.Filled() {
			continue
		}
		notional := res.FilledSize * res.RealizedPrice
		if res.Spec.Side == domain.SideSell {
			profit += notional
		} else {
			profit -= notional
		}
		profit -= res.Fee
	}
	return profit
}

var _ domain.TradeExecutor = (*Coordinator)(nil)
