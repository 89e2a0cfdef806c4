package strategy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
)

// FarmingConfig holds the yield-farming entry parameters.
type FarmingConfig struct {
	APYThreshold  float64 // minimum pool APY, fraction per year
	ScanInterval  time.Duration
	EntrySize     float64 // base units per entry
	MaxPositions  int
	SlippageBound float64
	SpotVenue     domain.Venue // on-chain venue holding the LP/spot side
	PerpVenue     domain.Venue // low-latency venue carrying the short
}

// FarmingLoop scans on-chain pools for yield above the threshold and
// enters delta-neutral positions: a spot buy on the chain venue hedged by
// a perpetual short on the CEX, both through the coordinator so a failed
// side is neutralized like any other partial trade. The rebalance planner
// keeps entered pairs value-balanced afterwards.
type FarmingLoop struct {
	farm    domain.FarmSource
	capital domain.CapitalView
	cache   *pricecache.Cache
	exec    domain.TradeExecutor
	cfg     FarmingConfig
	logger  *slog.Logger

	mu      sync.Mutex
	entered map[string]struct{} // token -> entered
}

// NewFarmingLoop creates a FarmingLoop.
func NewFarmingLoop(farm domain.FarmSource, capital domain.CapitalView, cache *pricecache.Cache, exec domain.TradeExecutor, cfg FarmingConfig, logger *slog.Logger) *FarmingLoop {
	return &FarmingLoop{
		farm:    farm,
		capital: capital,
		cache:   cache,
		exec:    exec,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "farming_loop")),
		entered: make(map[string]struct{}),
	}
}

// Entered reports whether a delta-neutral position is already held for the
// token.
func (f *FarmingLoop) Entered(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entered[token]
	return ok
}

// Run scans until ctx is cancelled.
func (f *FarmingLoop) Run(ctx context.Context) error {
	f.logger.Info("farming loop started",
		slog.Float64("apy_threshold", f.cfg.APYThreshold),
		slog.Duration("interval", f.cfg.ScanInterval),
	)
	defer f.logger.Info("farming loop stopped")

	ticker := time.NewTicker(f.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := f.scan(ctx); err != nil {
			return err
		}
	}
}

func (f *FarmingLoop) scan(ctx context.Context) error {
	pairs, err := f.farm.Pairs(ctx)
	if err != nil {
		f.logger.Warn("list pairs failed", slog.String("error", err.Error()))
		return nil
	}

	for _, pair := range pairs {
		if f.Entered(pair.Token) {
			continue
		}
		if f.cfg.MaxPositions > 0 && f.positionCount() >= f.cfg.MaxPositions {
			return nil
		}

		ok, err := f.qualify(ctx, pair)
		if err != nil {
			f.logger.Warn("qualify pair failed",
				slog.String("token", pair.Token),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		if err := f.enter(ctx, pair); err != nil {
			return err
		}
	}
	return nil
}

// qualify gates entry on yield and on the CEX listing a perpetual for the
// token; without the perp there is no hedge and no entry.
func (f *FarmingLoop) qualify(ctx context.Context, pair domain.FarmPair) (bool, error) {
	apy, err := f.farm.APY(ctx, pair)
	if err != nil {
		return false, err
	}
	if apy <= f.cfg.APYThreshold {
		return false, nil
	}
	hasPerp, err := f.farm.HasPerp(ctx, pair.Token)
	if err != nil {
		return false, err
	}
	if !hasPerp {
		f.logger.Debug("no perp listed, skipping",
			slog.String("token", pair.Token),
			slog.Float64("apy", apy),
		)
		return false, nil
	}
	return true, nil
}

func (f *FarmingLoop) enter(ctx context.Context, pair domain.FarmPair) error {
	size, err := f.entrySize(ctx, pair.Token)
	if err != nil {
		f.logger.Warn("sizing failed",
			slog.String("token", pair.Token),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if size <= 0 {
		return nil
	}

	spotMark := f.mark(f.cfg.SpotVenue, pair.Token)
	perpMark := f.mark(f.cfg.PerpVenue, pair.Token)
	if spotMark <= 0 || perpMark <= 0 {
		f.logger.Warn("no mark price, skipping entry",
			slog.String("token", pair.Token),
		)
		return nil
	}

	opp := domain.Opportunity{
		ID:         uuid.New().String(),
		Kind:       domain.OpportunityFarmingEntry,
		Strategy:   "farming",
		Instrument: pair.Token,
		Legs: []domain.LegSpec{
			{
				Venue:       f.cfg.SpotVenue,
				Side:        domain.SideBuy,
				Instrument:  pair.Token,
				Size:        size,
				LimitPrice:  domain.MarketableLimit(domain.SideBuy, spotMark, f.cfg.SlippageBound),
				MaxSlippage: f.cfg.SlippageBound,
			},
			{
				Venue:       f.cfg.PerpVenue,
				Side:        domain.SideSell,
				Instrument:  pair.Token,
				Size:        size,
				LimitPrice:  domain.MarketableLimit(domain.SideSell, perpMark, f.cfg.SlippageBound),
				MaxSlippage: f.cfg.SlippageBound,
			},
		},
		MaxSize:    size,
		DetectedAt: time.Now().UTC(),
	}

	outcome, err := f.exec.Execute(ctx, opp)
	switch {
	case err == nil && outcome.State == domain.TradeAllFilled:
		f.mu.Lock()
		f.entered[pair.Token] = struct{}{}
		f.mu.Unlock()
		f.logger.Info("farming position entered",
			slog.String("token", pair.Token),
			slog.String("pool", pair.Pool),
			slog.Float64("size", size),
		)
	case errors.Is(err, domain.ErrTradeInFlight), errors.Is(err, domain.ErrInstrumentHalted):
		f.logger.Debug("farming entry dropped",
			slog.String("token", pair.Token),
			slog.String("reason", err.Error()),
		)
	case errors.Is(err, domain.ErrLedgerInconsistent):
		return err
	default:
		f.logger.Warn("farming entry not filled",
			slog.String("token", pair.Token),
			slog.String("state", string(outcome.State)),
		)
	}
	return nil
}

// mark resolves a fresh mid price for the token on one venue, or zero when
// the venue has no usable quote.
func (f *FarmingLoop) mark(venue domain.Venue, token string) float64 {
	q, ok := f.cache.Quote(venue, token)
	if !ok || q.Stale {
		return 0
	}
	return q.Mid()
}

// entrySize bounds the entry by capital on both venues and the configured
// per-entry size.
func (f *FarmingLoop) entrySize(ctx context.Context, token string) (float64, error) {
	size := f.cfg.EntrySize
	for _, venue := range []domain.Venue{f.cfg.SpotVenue, f.cfg.PerpVenue} {
		capital, err := f.capital.Available(ctx, venue, token)
		if err != nil {
			return 0, err
		}
		if capital < size {
			size = capital
		}
	}
	return size, nil
}

func (f *FarmingLoop) positionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entered)
}
