// Package strategy contains the long-running loops that drive detection
// and position entry. Each loop is one supervised goroutine started by the
// app layer and cancelled as a unit at shutdown.
package strategy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ArbitrageLoop scans the configured symbols at a fixed cadence and hands
// any detected opportunity to the coordinator.
type ArbitrageLoop struct {
	detector *detector.Detector
	exec     domain.TradeExecutor
	symbols  []string
	interval time.Duration
	logger   *slog.Logger
}

// NewArbitrageLoop creates an ArbitrageLoop.
func NewArbitrageLoop(d *detector.Detector, exec domain.TradeExecutor, symbols []string, interval time.Duration, logger *slog.Logger) *ArbitrageLoop {
	return &ArbitrageLoop{
		detector: d,
		exec:     exec,
		symbols:  symbols,
		interval: interval,
		logger:   logger.With(slog.String("component", "arbitrage_loop")),
	}
}

// Run loops until ctx is cancelled. Detection errors are logged and the
// loop continues; a ledger inconsistency aborts the whole process.
func (a *ArbitrageLoop) Run(ctx context.Context) error {
	a.logger.Info("arbitrage loop started",
		slog.Int("symbols", len(a.symbols)),
		slog.Duration("interval", a.interval),
	)
	defer a.logger.Info("arbitrage loop stopped")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, symbol := range a.symbols {
			if err := a.scan(ctx, symbol); err != nil {
				return err
			}
		}
	}
}

func (a *ArbitrageLoop) scan(ctx context.Context, symbol string) error {
	opp, err := a.detector.Detect(ctx, symbol)
	if err != nil {
		a.logger.Warn("detection failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if opp == nil {
		return nil
	}

	outcome, err := a.exec.Execute(ctx, *opp)
	switch {
	case err == nil:
		a.logger.Info("arbitrage executed",
			slog.String("symbol", symbol),
			slog.String("state", string(outcome.State)),
			slog.Float64("realized_profit", outcome.RealizedProfit),
		)
	case errors.Is(err, domain.ErrTradeInFlight), errors.Is(err, domain.ErrInstrumentHalted):
		a.logger.Debug("opportunity dropped",
			slog.String("symbol", symbol),
			slog.String("reason", err.Error()),
		)
	case errors.Is(err, domain.ErrLedgerInconsistent):
		return err
	default:
		a.logger.Warn("execution failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
