package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/feed"
	"github.com/alanyoungcy/crossarb/internal/strategy"
)

// ArbitrageMode runs feeds, detection, execution, and rebalancing.
func (a *App) ArbitrageMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting arbitrage mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)

	loop := strategy.NewArbitrageLoop(
		deps.Detector, deps.Executor, a.cfg.Symbols,
		a.cfg.Arbitrage.ScanInterval.Duration, a.logger,
	)
	g.Go(func() error { return loop.Run(ctx) })

	a.startRebalance(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FarmingMode runs feeds, the yield-farming entry loop, and rebalancing.
func (a *App) FarmingMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting farming mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)
	a.startFarming(ctx, g, deps)
	a.startRebalance(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// MonitorMode runs feeds and tails the event bus: quotes flow into the
// cache, and any activity published by other processes sharing the bus is
// logged, but nothing trades.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)
	a.startEventLog(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: feeds, arbitrage, farming, rebalancing, and
// archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)

	if a.cfg.Arbitrage.Enabled {
		loop := strategy.NewArbitrageLoop(
			deps.Detector, deps.Executor, a.cfg.Symbols,
			a.cfg.Arbitrage.ScanInterval.Duration, a.logger,
		)
		g.Go(func() error { return loop.Run(ctx) })
	}

	a.startFarming(ctx, g, deps)
	a.startRebalance(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startFeeds launches one REST poller per (venue, symbol) pair, each at its
// venue's own cadence, and, when configured, the CEX WebSocket stream. The
// stream and the poller write through the same cache, which keeps whichever
// quote is newest.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	cexInterval := a.cfg.Arbitrage.PollIntervalFor(string(deps.CEX.Venue()))
	dexInterval := a.cfg.Arbitrage.PollIntervalFor(string(deps.DEX.Venue()))
	staleAfter := a.cfg.Arbitrage.StaleAfter

	for _, symbol := range a.cfg.Symbols {
		symbol := symbol

		cexPoller := feed.NewPoller(
			deps.CEX, deps.Cache, deps.Bus,
			deps.CEX.Venue(), symbol, cexInterval, staleAfter, a.logger,
		)
		g.Go(func() error { return cexPoller.Run(ctx) })

		dexPoller := feed.NewPoller(
			deps.DEX, deps.Cache, deps.Bus,
			deps.DEX.Venue(), symbol, dexInterval, staleAfter, a.logger,
		)
		g.Go(func() error { return dexPoller.Run(ctx) })
	}

	if deps.WS != nil {
		deps.WS.OnQuote(func(q domain.Quote) {
			deps.Cache.Update(q)
		})
		g.Go(func() error {
			if err := deps.WS.Connect(ctx); err != nil {
				// The stream is an accelerator; polling still covers the
				// venue, so a failed connect is not fatal.
				a.logger.WarnContext(ctx, "websocket stream unavailable",
					slog.String("error", err.Error()),
				)
				return nil
			}
			<-ctx.Done()
			return deps.WS.Close()
		})
	}
}

// startEventLog subscribes to the live event channels and logs every
// payload, so a monitor process shows detection, trade, and rebalance
// activity as it happens.
func (a *App) startEventLog(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Events == nil {
		return
	}
	for _, channel := range []string{"feeds", "opportunities", "trades", "rebalances"} {
		channel := channel
		g.Go(func() error {
			events, err := deps.Events.Subscribe(ctx, channel)
			if err != nil {
				a.logger.WarnContext(ctx, "event subscription failed",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				return nil
			}
			for payload := range events {
				a.logger.InfoContext(ctx, "event",
					slog.String("channel", channel),
					slog.String("payload", string(payload)),
				)
			}
			return nil
		})
	}
}

// startFarming launches the farming loop when enabled.
func (a *App) startFarming(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Farming.Enabled || deps.Farm == nil {
		return
	}
	loop := strategy.NewFarmingLoop(
		deps.Farm, deps.Capital, deps.Cache, deps.Executor,
		a.farmingConfig(), a.logger,
	)
	g.Go(func() error { return loop.Run(ctx) })
}

// startRebalance launches the rebalance planner when enabled.
func (a *App) startRebalance(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Rebalance.Enabled {
		return
	}
	g.Go(func() error { return deps.Planner.Run(ctx, deps.Executor) })
}

// startArchiver launches periodic trade-history archival when configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	interval := a.cfg.S3.ArchiveInterval.Duration
	keep := retention(a.cfg.S3.RetentionDays)
	g.Go(func() error { return deps.Archiver.Run(ctx, interval, keep) })
}
