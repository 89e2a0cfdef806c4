// Package detector computes candidate cross-venue trades from price cache
// snapshots. Detection is advisory: an emitted Opportunity encodes the
// state at detection time and may be stale by the time execution begins.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
)

// Config holds the detection thresholds.
type Config struct {
	ProfitThreshold float64 // minimum per-trade expected profit, quote units
	MaxTradeSize    float64 // hard cap per opportunity, base units
	SlippageBound   float64 // per-leg slippage bound, fraction of price
}

// Detector reads price snapshots and emits at most one arbitrage
// opportunity per symbol per cycle: the higher-profit direction when both
// happen to clear the fee gate.
type Detector struct {
	cache   *pricecache.Cache
	capital domain.CapitalView
	depth   domain.LiquidityView
	fees    domain.FeeModel
	bus     domain.EventSink
	cfg     Config
	logger  *slog.Logger
}

// New creates a Detector. bus may be nil when no event sink is configured.
func New(cache *pricecache.Cache, capital domain.CapitalView, depth domain.LiquidityView, fees domain.FeeModel, bus domain.EventSink, cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		cache:   cache,
		capital: capital,
		depth:   depth,
		fees:    fees,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "detector")),
	}
}

// Detect scans all venue pairs quoting the symbol and returns the most
// profitable positive-edge opportunity, or nil when none clears the gate.
// Stale venues and venues with no data are excluded.
func (d *Detector) Detect(ctx context.Context, symbol string) (*domain.Opportunity, error) {
	snap := d.cache.Snapshot(symbol)

	fresh := make([]pricecache.VenueQuote, 0, len(snap))
	for _, vq := range snap {
		if vq.Stale {
			d.logger.Debug("excluding stale venue",
				slog.String("venue", string(vq.Venue)),
				slog.String("symbol", symbol),
			)
			continue
		}
		fresh = append(fresh, vq)
	}
	if len(fresh) < 2 {
		return nil, nil
	}

	var best *domain.Opportunity
	for i := range fresh {
		for j := range fresh {
			if i == j {
				continue
			}
			opp, err := d.evaluate(ctx, symbol, fresh[i], fresh[j])
			if err != nil {
				return nil, err
			}
			if opp == nil {
				continue
			}
			if best == nil || opp.ExpectedProfit > best.ExpectedProfit {
				best = opp
			}
		}
	}

	if best != nil {
		d.publish(ctx, best)
	}
	return best, nil
}

// evaluate prices the buy-near/sell-far direction for one ordered venue
// pair and returns nil when the edge does not survive fees or sizing.
func (d *Detector) evaluate(ctx context.Context, symbol string, near, far pricecache.VenueQuote) (*domain.Opportunity, error) {
	if near.Ask <= 0 || far.Bid <= 0 || near.Ask >= far.Bid {
		return nil, nil
	}

	spread := far.Bid - near.Ask
	profitPerUnit := spread - d.fees.Estimate(near.Venue, far.Venue, near.Ask, far.Bid)
	if profitPerUnit <= 0 {
		return nil, nil
	}

	size, err := d.size(ctx, symbol, near.Venue, far.Venue)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, nil
	}

	profit := profitPerUnit * size
	if profit <= 0 || profit < d.cfg.ProfitThreshold {
		return nil, nil
	}

	return &domain.Opportunity{
		ID:         uuid.New().String(),
		Kind:       domain.OpportunityArbitrage,
		Strategy:   "arbitrage",
		Instrument: symbol,
		Legs: []domain.LegSpec{
			{
				Venue:       near.Venue,
				Side:        domain.SideBuy,
				Instrument:  symbol,
				Size:        size,
				LimitPrice:  near.Ask * (1 + d.cfg.SlippageBound),
				MaxSlippage: d.cfg.SlippageBound,
			},
			{
				Venue:       far.Venue,
				Side:        domain.SideSell,
				Instrument:  symbol,
				Size:        size,
				LimitPrice:  far.Bid * (1 - d.cfg.SlippageBound),
				MaxSlippage: d.cfg.SlippageBound,
			},
		},
		ExpectedProfit: profit,
		MaxSize:        size,
		DetectedAt:     time.Now().UTC(),
	}, nil
}

// size bounds the trade by the smaller venue's capital, the liquidity
// depth estimate on both sides, and the configured cap, so the coordinator
// never commits to an unfillable leg.
func (d *Detector) size(ctx context.Context, symbol string, buyVenue, sellVenue domain.Venue) (float64, error) {
	size := d.cfg.MaxTradeSize
	for _, venue := range []domain.Venue{buyVenue, sellVenue} {
		capital, err := d.capital.Available(ctx, venue, symbol)
		if err != nil {
			return 0, fmt.Errorf("detector: capital for %s on %s: %w", symbol, venue, err)
		}
		if capital < size {
			size = capital
		}
		depth, err := d.depth.Depth(ctx, venue, symbol)
		if err != nil {
			return 0, fmt.Errorf("detector: depth for %s on %s: %w", symbol, venue, err)
		}
		if depth < size {
			size = depth
		}
	}
	return size, nil
}

func (d *Detector) publish(ctx context.Context, opp *domain.Opportunity) {
	d.logger.Info("opportunity detected",
		slog.String("opp_id", opp.ID),
		slog.String("instrument", opp.Instrument),
		slog.String("buy_venue", string(opp.Legs[0].Venue)),
		slog.String("sell_venue", string(opp.Legs[1].Venue)),
		slog.Float64("expected_profit", opp.ExpectedProfit),
		slog.Float64("size", opp.MaxSize),
	)
	if d.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":           "opportunity_detected",
		"opp_id":          opp.ID,
		"instrument":      opp.Instrument,
		"buy_venue":       string(opp.Legs[0].Venue),
		"sell_venue":      string(opp.Legs[1].Venue),
		"expected_profit": opp.ExpectedProfit,
		"size":            opp.MaxSize,
		"detected_at":     opp.DetectedAt.Format(time.RFC3339Nano),
	})
	if err := d.bus.Publish(ctx, "opportunities", evt); err != nil {
		d.logger.Warn("publish opportunity event failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}
