// Package rebalance drives hedged pairs back toward zero net exposure. It
// runs on its own cadence, independent of opportunity detection, and feeds
// corrective trades through the same execution coordinator so
// partial-failure handling is uniform.
package rebalance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/ledger"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
)

// Config holds the planner's tunables. HedgeVenue is the venue carrying
// the short side of each hedged pair; corrective orders are issued there.
type Config struct {
	Threshold     float64 // value delta, quote units, strict trigger
	Interval      time.Duration
	HedgeVenue    domain.Venue
	SlippageBound float64
}

// Planner compares ledger exposure against cached marks and emits one
// corrective opportunity per instrument whose |value delta| exceeds the
// threshold.
type Planner struct {
	ledger *ledger.Ledger
	cache  *pricecache.Cache
	bus    domain.EventSink
	cfg    Config
	logger *slog.Logger
}

// New creates a Planner. bus may be nil.
func New(l *ledger.Ledger, cache *pricecache.Cache, bus domain.EventSink, cfg Config, logger *slog.Logger) *Planner {
	return &Planner{
		ledger: l,
		cache:  cache,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "rebalance_planner")),
	}
}

// Plan returns one rebalance opportunity per out-of-band instrument. A
// delta of exactly the threshold does not fire; threshold plus epsilon
// fires exactly once in the corrective direction.
func (p *Planner) Plan(ctx context.Context) []domain.Opportunity {
	var out []domain.Opportunity
	for _, instrument := range p.ledger.Instruments() {
		opp := p.planInstrument(ctx, instrument)
		if opp != nil {
			out = append(out, *opp)
		}
	}
	return out
}

func (p *Planner) planInstrument(ctx context.Context, instrument string) *domain.Opportunity {
	sizeDelta := p.ledger.ExposureDelta(instrument)
	if sizeDelta == 0 {
		return nil
	}

	mark := p.mark(instrument)
	if mark <= 0 {
		p.logger.Warn("no mark price, skipping rebalance",
			slog.String("instrument", instrument),
		)
		return nil
	}

	valueDelta := sizeDelta * mark
	if math.Abs(valueDelta) <= p.cfg.Threshold {
		return nil
	}

	// Risk side above hedge side: increase the short. Otherwise reduce it.
	side := domain.SideSell
	if valueDelta < 0 {
		side = domain.SideBuy
	}
	size := math.Abs(valueDelta) / mark

	opp := &domain.Opportunity{
		ID:         uuid.New().String(),
		Kind:       domain.OpportunityRebalance,
		Strategy:   "rebalance",
		Instrument: instrument,
		Legs: []domain.LegSpec{{
			Venue:       p.cfg.HedgeVenue,
			Side:        side,
			Instrument:  instrument,
			Size:        size,
			LimitPrice:  domain.MarketableLimit(side, mark, p.cfg.SlippageBound),
			MaxSlippage: p.cfg.SlippageBound,
		}},
		MaxSize:    size,
		DetectedAt: time.Now().UTC(),
	}

	p.logger.Info("rebalance planned",
		slog.String("instrument", instrument),
		slog.String("side", string(side)),
		slog.Float64("value_delta", valueDelta),
		slog.Float64("size", size),
	)
	p.publish(ctx, opp, valueDelta)
	return opp
}

// mark resolves a mark price for the instrument, preferring the hedge
// venue's quote and falling back to any fresh venue.
func (p *Planner) mark(instrument string) float64 {
	if vq, ok := p.cache.Quote(p.cfg.HedgeVenue, instrument); ok && !vq.Stale {
		if mid := vq.Mid(); mid > 0 {
			return mid
		}
	}
	for _, vq := range p.cache.Snapshot(instrument) {
		if vq.Stale {
			continue
		}
		if mid := vq.Mid(); mid > 0 {
			return mid
		}
	}
	return 0
}

// Run plans and executes corrective trades at the configured interval
// until ctx is cancelled.
func (p *Planner) Run(ctx context.Context, exec domain.TradeExecutor) error {
	p.logger.Info("rebalance planner started", slog.Duration("interval", p.cfg.Interval))
	defer p.logger.Info("rebalance planner stopped")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, opp := range p.Plan(ctx) {
			_, err := exec.Execute(ctx, opp)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrTradeInFlight), errors.Is(err, domain.ErrInstrumentHalted):
				p.logger.Debug("rebalance skipped",
					slog.String("instrument", opp.Instrument),
					slog.String("reason", err.Error()),
				)
			case errors.Is(err, domain.ErrLedgerInconsistent):
				return err
			default:
				p.logger.Warn("rebalance execution failed",
					slog.String("instrument", opp.Instrument),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (p *Planner) publish(ctx context.Context, opp *domain.Opportunity, valueDelta float64) {
	if p.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":       "rebalance_planned",
		"opp_id":      opp.ID,
		"instrument":  opp.Instrument,
		"side":        string(opp.Legs[0].Side),
		"size":        opp.MaxSize,
		"value_delta": valueDelta,
	})
	if err := p.bus.Publish(ctx, "rebalances", evt); err != nil {
		p.logger.Warn("publish rebalance event failed", slog.String("error", err.Error()))
	}
}
