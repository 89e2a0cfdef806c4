package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/crossarb/internal/blob/s3"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/ledger"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/platform/cex"
	"github.com/alanyoungcy/crossarb/internal/platform/dex"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
	"github.com/alanyoungcy/crossarb/internal/rebalance"
	"github.com/alanyoungcy/crossarb/internal/store/postgres"
	"github.com/alanyoungcy/crossarb/internal/strategy"
)

// Dependencies bundles everything the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Cache  *pricecache.Cache
	Ledger *ledger.Ledger
	Bus    domain.EventSink
	Events *redis.EventBus // concrete bus, for subscribing consumers

	CEX *cex.Client
	DEX *dex.Client
	WS  *cex.WSClient

	Capital domain.CapitalView
	Depth   domain.LiquidityView
	Fees    domain.FeeModel

	OutcomeStore domain.TradeOutcomeStore
	Archiver     *s3blob.Archiver
	Notifier     *notify.Notifier

	Executor *executor.Coordinator
	Detector *detector.Detector
	Planner  *rebalance.Planner
	Farm     domain.FarmSource
}

// needsPostgres returns true for modes that persist trade outcomes.
func needsPostgres(mode string) bool {
	return mode != "monitor"
}

// needsWallet returns true for modes that submit on-chain swaps.
func needsWallet(mode string) bool {
	return mode != "monitor"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Cache:  pricecache.New(),
		Ledger: ledger.New(),
	}

	// --- Redis event bus ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	bus := redis.NewEventBus(redisClient)
	deps.Bus = bus
	deps.Events = bus

	// --- PostgreSQL trade outcome store ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.OutcomeStore = postgres.NewOutcomeStore(pgClient.Pool())
	}

	// --- CEX venue ---
	deps.CEX = cex.NewClient(cex.ClientConfig{
		Venue:         domain.Venue(cfg.CEX.Venue),
		BaseURL:       cfg.CEX.BaseURL,
		APIKey:        cfg.CEX.APIKey,
		APISecret:     cfg.CEX.APISecret,
		SlippageBound: cfg.Arbitrage.SlippageBound,
	})
	if cfg.CEX.WsURL != "" {
		deps.WS = cex.NewWSClient(domain.Venue(cfg.CEX.Venue), cfg.CEX.WsURL, cfg.Symbols)
	}

	// --- DEX venue ---
	var signingKey *ecdsa.PrivateKey
	if needsWallet(mode) {
		signingKey, err = crypto.LoadSigningKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
	}

	pools := make(map[string]dex.Pool, len(cfg.DEX.Pools))
	for instrument, p := range cfg.DEX.Pools {
		pools[instrument] = dex.Pool{
			Pair:          common.HexToAddress(p.Pair),
			BaseToken:     common.HexToAddress(p.BaseToken),
			QuoteToken:    common.HexToAddress(p.QuoteToken),
			BaseDecimals:  p.BaseDecimals,
			QuoteDecimals: p.QuoteDecimals,
		}
	}
	deps.DEX, err = dex.NewClient(ctx, dex.ClientConfig{
		Venue:         domain.Venue(cfg.DEX.Venue),
		RPCURL:        cfg.DEX.RPCURL,
		Router:        common.HexToAddress(cfg.DEX.Router),
		Pools:         pools,
		GasLimit:      cfg.DEX.GasLimit,
		SlippageBound: cfg.Arbitrage.SlippageBound,
	}, signingKey)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: dex: %w", err)
	}
	closers = append(closers, deps.DEX.Close)

	// --- Venue routing views ---
	router := &venueRouter{
		views: map[domain.Venue]venueView{
			deps.CEX.Venue(): deps.CEX,
			deps.DEX.Venue(): deps.DEX,
		},
	}
	deps.Capital = router
	deps.Depth = router

	venueRates := make(map[domain.Venue]float64, len(cfg.Arbitrage.VenueFeeRates))
	for v, rate := range cfg.Arbitrage.VenueFeeRates {
		venueRates[domain.Venue(v)] = rate
	}
	deps.Fees = detector.StaticFeeModel{
		VenueRate:    venueRates,
		NetworkFee:   cfg.Arbitrage.NetworkFee,
		SlippageRate: cfg.Arbitrage.SlippageRate,
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Execution coordinator ---
	deps.Executor = executor.New(executor.Config{
		Venues: map[domain.Venue]domain.OrderVenue{
			deps.CEX.Venue(): deps.CEX,
			deps.DEX.Venue(): deps.DEX,
		},
		Ledger:      deps.Ledger,
		Store:       deps.OutcomeStore,
		Bus:         deps.Bus,
		Alerter:     deps.Notifier,
		LegDeadline: cfg.Arbitrage.LegDeadline.Duration,
	}, logger)

	// --- Detection and rebalance ---
	deps.Detector = detector.New(deps.Cache, deps.Capital, deps.Depth, deps.Fees, deps.Bus, detector.Config{
		ProfitThreshold: cfg.Arbitrage.ProfitThreshold,
		MaxTradeSize:    cfg.Arbitrage.MaxTradeSize,
		SlippageBound:   cfg.Arbitrage.SlippageBound,
	}, logger)

	deps.Planner = rebalance.New(deps.Ledger, deps.Cache, deps.Bus, rebalance.Config{
		Threshold:     cfg.Rebalance.Threshold,
		Interval:      cfg.Rebalance.Interval.Duration,
		HedgeVenue:    domain.Venue(cfg.Rebalance.HedgeVenue),
		SlippageBound: cfg.Arbitrage.SlippageBound,
	}, logger)

	// --- Farming source ---
	if cfg.Farming.Enabled {
		deps.Farm = dex.NewFarmSource(cfg.DEX.FarmAPIURL, parseFarmPairs(cfg.Farming.Pairs), deps.CEX)
	}

	// --- S3 archival ---
	if cfg.S3.Enabled && deps.OutcomeStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.OutcomeStore, logger)
	}

	return deps, cleanup, nil
}

// farmingConfig translates config into the loop's terms.
func (a *App) farmingConfig() strategy.FarmingConfig {
	return strategy.FarmingConfig{
		APYThreshold:  a.cfg.Farming.APYThreshold,
		ScanInterval:  a.cfg.Farming.ScanInterval.Duration,
		EntrySize:     a.cfg.Farming.EntrySize,
		MaxPositions:  a.cfg.Farming.MaxPositions,
		SlippageBound: a.cfg.Arbitrage.SlippageBound,
		SpotVenue:     domain.Venue(a.cfg.DEX.Venue),
		PerpVenue:     domain.Venue(a.cfg.CEX.Venue),
	}
}

// parseFarmPairs turns "pool:token:quote" config entries into FarmPairs.
// Malformed entries are skipped.
func parseFarmPairs(entries []string) []domain.FarmPair {
	pairs := make([]domain.FarmPair, 0, len(entries))
	for _, e := range entries {
		parts := strings.Split(e, ":")
		if len(parts) != 3 {
			continue
		}
		pairs = append(pairs, domain.FarmPair{
			Pool:  strings.TrimSpace(parts[0]),
			Token: strings.TrimSpace(parts[1]),
			Quote: strings.TrimSpace(parts[2]),
		})
	}
	return pairs
}

// venueView is the read surface both venue clients share.
type venueView interface {
	Available(ctx context.Context, venue domain.Venue, instrument string) (float64, error)
	Depth(ctx context.Context, venue domain.Venue, instrument string) (float64, error)
}

// venueRouter dispatches capital and depth queries to the client serving
// the requested venue.
type venueRouter struct {
	views map[domain.Venue]venueView
}

func (r *venueRouter) Available(ctx context.Context, venue domain.Venue, instrument string) (float64, error) {
	v, ok := r.views[venue]
	if !ok {
		return 0, fmt.Errorf("app: no client for venue %s", venue)
	}
	return v.Available(ctx, venue, instrument)
}

func (r *venueRouter) Depth(ctx context.Context, venue domain.Venue, instrument string) (float64, error) {
	v, ok := r.views[venue]
	if !ok {
		return 0, fmt.Errorf("app: no client for venue %s", venue)
	}
	return v.Depth(ctx, venue, instrument)
}

var (
	_ domain.CapitalView   = (*venueRouter)(nil)
	_ domain.LiquidityView = (*venueRouter)(nil)
)

// retention converts configured days to a duration.
func retention(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
