package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/events"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/feed"
	"github.com/alanyoungcy/arbengine/internal/pairing"
	"github.com/alanyoungcy/arbengine/internal/platform/kalshi"
	"github.com/alanyoungcy/arbengine/internal/platform/polymarket"
	"github.com/alanyoungcy/arbengine/internal/risk"
	"github.com/alanyoungcy/arbengine/internal/server"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
	"github.com/alanyoungcy/arbengine/internal/server/ws"
	"github.com/shopspring/decimal"
)

// Runtime holds the trading components built from the configuration.
type Runtime struct {
	Ledger    *risk.Ledger
	Breaker   *risk.Breaker
	Publisher *events.Publisher
	Table     *pairing.Table
	Engine    *engine.Engine
	Hub       *ws.Hub
	// Server is nil when the API is disabled.
	Server *server.Server
}

// Build assembles the risk state, venue adapters, discovery, the engine and
// the API around deps.
func (a *App) Build(ctx context.Context, deps *Dependencies) (*Runtime, error) {
	cfg := a.cfg
	rt := &Runtime{Publisher: events.NewPublisher(a.logger)}

	// Risk state, restored from the last snapshot.
	rt.Ledger = risk.NewLedger(time.Now)
	if err := a.restorePositions(ctx, deps.PositionStore, rt.Ledger); err != nil {
		return nil, err
	}
	rt.Ledger.OnRollover(func(day string, pnl decimal.Decimal) {
		a.logger.Info("app: trading day closed",
			slog.String("day", day),
			slog.String("realized_pnl", pnl.String()),
		)
		if deps.Archiver != nil {
			go a.archiveDay(deps.Archiver, day)
		}
	})
	rt.Breaker = risk.NewBreaker(riskLimits(cfg.Risk), rt.Ledger,
		risk.WithTransitionHook(func(t domain.BreakerTransition) {
			rt.Publisher.Publish(context.Background(), events.BreakerEvent(t))
		}),
	)

	// Venues.
	kalshiClient, err := a.kalshiClient()
	if err != nil {
		return nil, err
	}
	sources := []domain.ListingSource{kalshi.NewCatalog(kalshiClient, cfg.Discovery.KalshiSeries)}
	var venues []domain.VenueClient
	if !cfg.Mode.DryRun {
		venues = append(venues, kalshi.NewOrderAdapter(kalshiClient))
	}
	if !cfg.Mode.KalshiOnly {
		gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
		sources = append(sources, polymarket.NewCatalog(gamma, cfg.Discovery.PolymarketTags))
		if !cfg.Mode.DryRun {
			orders, err := a.polymarketOrders(ctx)
			if err != nil {
				return nil, err
			}
			venues = append(venues, orders)
		}
	}
	venues = a.throttle(venues, deps.RateLimiter)

	// Discovery.
	mapping, err := pairing.LoadTeamMapping(cfg.Discovery.TeamMappingPath)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if mapping.Len() == 0 && !cfg.Mode.KalshiOnly {
		a.logger.Warn("app: team mapping is empty, no cross-venue pairs can be built",
			slog.String("path", cfg.Discovery.TeamMappingPath))
	}
	rt.Table = pairing.NewTable()
	discoverer := pairing.NewDiscoverer(
		sources,
		pairing.NewBuilder(mapping, cfg.Mode.KalshiOnly),
		rt.Table,
		deps.PairCache,
		deps.PairStore,
		pairing.DiscoveryConfig{Leagues: cfg.Discovery.Leagues, CacheTTL: cfg.Discovery.CacheTTL.Duration},
		a.logger,
	)

	// Detection and execution.
	detector := arbitrage.NewDetector(arbitrage.Config{
		Threshold:     cfg.Arbitrage.Threshold(),
		MaxQuoteAge:   cfg.Arbitrage.MaxQuoteAge.Duration,
		IncludeFees:   cfg.Arbitrage.IncludeFees,
		KalshiFeeRate: cfg.Arbitrage.FeeRate(),
	})
	var recorder executor.ExecutionRecorder
	if deps.ExecutionStore != nil {
		recorder = deps.ExecutionStore
	}
	coordinator := executor.NewCoordinator(
		executor.Config{
			DryRun:       cfg.Mode.DryRun,
			Timeout:      cfg.Execution.Timeout.Duration,
			PollInterval: cfg.Execution.PollInterval.Duration,
			Slippage:     cfg.Execution.Slippage(),
		},
		venues,
		rt.Breaker,
		rt.Ledger,
		recorder,
		rt.Publisher,
		a.logger,
	)

	opts := []engine.Option{engine.WithQuoteObserver(deps.Metrics)}
	if deps.QuoteCache != nil {
		opts = append(opts, engine.WithQuoteCache(deps.QuoteCache))
	}
	if deps.PositionStore != nil {
		opts = append(opts, engine.WithPositionStore(deps.PositionStore))
	}
	rt.Engine = engine.New(
		engine.Config{
			QueueSize:         cfg.Feed.QueueSize,
			HeartbeatInterval: cfg.Heartbeat.Interval.Duration,
			RefreshInterval:   cfg.Discovery.RefreshInterval.Duration,
			SnapshotInterval:  cfg.Risk.SnapshotInterval.Duration,
			ForceDiscovery:    cfg.Discovery.Force,
			QuoteRetention:    cfg.Feed.QuoteRetention.Duration,
		},
		rt.Table,
		discoverer,
		feed.NewNormalizer(cfg.Arbitrage.MaxQuoteAge.Duration),
		detector,
		coordinator,
		rt.Breaker,
		rt.Ledger,
		rt.Publisher,
		a.logger,
		opts...,
	)

	// Feeds.
	delay := cfg.Feed.ReconnectDelay.Duration
	kalshiWS := kalshi.NewWSClient(cfg.Kalshi.WsURL, kalshiClient.AuthHeaders, delay)
	rt.Engine.AddFeed(feed.NewKalshiFeed(kalshiWS, rt.Engine.Sink(domain.VenueKalshi), a.logger))
	if !cfg.Mode.KalshiOnly {
		polyWS := polymarket.NewWSClient(cfg.Polymarket.WsHost, delay)
		rt.Engine.AddFeed(feed.NewPolymarketFeed(polyWS, rt.Engine.Sink(domain.VenuePolymarket), a.logger))
	}

	// Event sinks.
	rt.Publisher.Observe(deps.Metrics.Observe)
	if deps.SignalBus != nil {
		rt.Publisher.Attach(events.NewBusSink(deps.SignalBus), 1024, nil)
	}
	if deps.AuditStore != nil {
		rt.Publisher.Attach(events.NewAuditSink(deps.AuditStore), 512, auditWorthy)
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		rt.Publisher.Attach(events.NewNotifySink(deps.Notifier), 64, deps.Notifier.Wants)
	}
	rt.Hub = ws.NewHub(statusFrame(rt.Engine, rt.Breaker, cfg.Mode.DryRun), a.logger)
	rt.Publisher.Attach(events.NewHubSink(rt.Hub), 256, nil)

	if cfg.Server.Enabled {
		rt.Server = server.NewServer(
			server.Config{
				Port:        cfg.Server.Port,
				CORSOrigins: cfg.Server.CORSOrigins,
				APIKey:      cfg.Server.ApiKey,
				RateLimit:   cfg.Server.RateLimit,
				RateWindow:  cfg.Server.RateWindow.Duration,
			},
			server.Handlers{
				Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
				Status: handler.NewStatusHandler(handler.StatusInfo{
					DryRun:     cfg.Mode.DryRun,
					KalshiOnly: cfg.Mode.KalshiOnly,
					Threshold:  cfg.Arbitrage.Threshold(),
					StartedAt:  time.Now().UTC(),
					Config:     cfg.Redacted(),
				}, rt.Engine, rt.Breaker),
				Pairs:      handler.NewPairHandler(rt.Table),
				Positions:  handler.NewPositionHandler(rt.Ledger),
				Executions: handler.NewExecutionHandler(deps.ExecutionStore, a.logger),
				Operator:   handler.NewOperatorHandler(rt.Breaker, rt.Ledger, rt.Publisher, a.logger),
				Events:     handler.NewEventHandler(eventLog(deps.SignalBus), events.BusStream, a.logger),
				Metrics:    deps.Metrics.Handler(),
			},
			rt.Hub,
			deps.RateLimiter,
			a.logger,
		)
	}

	return rt, nil
}

func (a *App) kalshiClient() (*kalshi.Client, error) {
	client := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.cfg.Kalshi.ApiKey, a.cfg.Kalshi.RequestsPerSecond)
	key, err := crypto.LoadRSAKey(a.cfg.Kalshi.RsaPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("app: kalshi key: %w", err)
	}
	client.SetPrivateKey(key)
	return client, nil
}

func (a *App) polymarketOrders(ctx context.Context) (*polymarket.OrderAdapter, error) {
	pm := a.cfg.Polymarket
	key, err := crypto.LoadWalletKey(crypto.WalletKeySource{
		RawPrivateKey:    pm.PrivateKey,
		EncryptedKeyPath: pm.EncryptedKeyPath,
		KeyPassword:      pm.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: polymarket wallet: %w", err)
	}
	signer, err := crypto.NewSigner(key, int64(pm.ChainID), pm.Exchange, pm.NegRiskExchange)
	if err != nil {
		return nil, fmt.Errorf("app: polymarket signer: %w", err)
	}
	a.logger.Info("app: polymarket signer ready", slog.String("address", signer.Address().Hex()))

	if pm.ApiKey != "" {
		auth := &crypto.HMACAuth{Key: pm.ApiKey, Secret: pm.ApiSecret, Passphrase: pm.ApiPassphrase}
		return polymarket.NewOrderAdapter(polymarket.NewClobClient(pm.ClobHost, signer, auth), signer), nil
	}
	clob := polymarket.NewClobClient(pm.ClobHost, signer, nil)
	if err := clob.DeriveAPIKey(ctx); err != nil {
		return nil, fmt.Errorf("app: polymarket api key: %w", err)
	}
	a.logger.Info("app: polymarket api key derived")
	return polymarket.NewOrderAdapter(clob, signer), nil
}

// throttle puts the shared order rate limit in front of every venue.
func (a *App) throttle(venues []domain.VenueClient, limiter domain.RateLimiter) []domain.VenueClient {
	if limiter == nil || a.cfg.Execution.OrderRateLimit <= 0 {
		return venues
	}
	out := make([]domain.VenueClient, len(venues))
	for i, v := range venues {
		out[i] = executor.NewThrottled(v, limiter, a.cfg.Execution.OrderRateLimit,
			a.cfg.Execution.OrderRateWindow.Duration, a.logger)
	}
	return out
}

func (a *App) restorePositions(ctx context.Context, store domain.PositionStore, ledger *risk.Ledger) error {
	if store == nil {
		return nil
	}
	snap, err := store.Latest(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("app: restore positions: %w", err)
	}
	ledger.Restore(snap)
	a.logger.Info("app: positions restored",
		slog.String("day", snap.Day),
		slog.Int("pairs", len(snap.Pairs)),
		slog.String("daily_pnl", snap.DailyPnL.String()),
	)
	return nil
}

// archiveDay uploads a closed day. It is idempotent, so a restart may call
// it for a day that was already archived.
func (a *App) archiveDay(archiver domain.Archiver, day string) {
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		a.logger.Error("app: bad archive day", slog.String("day", day))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	n, err := archiver.ArchiveDay(ctx, t)
	if err != nil {
		a.logger.Error("app: archive failed", slog.String("day", day), slog.String("error", err.Error()))
		return
	}
	a.logger.Info("app: day archived", slog.String("day", day), slog.Int("executions", n))
}

func riskLimits(r config.RiskConfig) risk.Limits {
	return risk.Limits{
		MaxPositionPerMarket: decimal.NewFromFloat(r.MaxPositionPerMarket),
		MaxTotalPosition:     decimal.NewFromFloat(r.MaxTotalPosition),
		MaxDailyLoss:         decimal.NewFromFloat(r.MaxDailyLoss),
		MaxConsecutiveErrors: r.MaxConsecutiveErrors,
		Cooldown:             r.Cooldown.Duration,
	}
}

// auditWorthy keeps periodic reports out of the audit log.
func auditWorthy(ev domain.Event) bool {
	switch ev.Type {
	case domain.EventHeartbeat, domain.EventPositionSnapshot:
		return false
	}
	return true
}

type statusSource interface {
	Stats() engine.Stats
}

type breakerSource interface {
	State() domain.BreakerState
}

// statusFrame builds the first frame a dashboard client receives.
func statusFrame(eng statusSource, breaker breakerSource, dryRun bool) ws.StatusFunc {
	return func() map[string]any {
		st := eng.Stats()
		mode := "live"
		if dryRun {
			mode = "dry_run"
		}
		return map[string]any{
			"mode":          mode,
			"breaker":       string(breaker.State().Mode),
			"generation":    st.Generation,
			"pairs":         st.Pairs,
			"opportunities": st.Opportunities,
			"executions":    st.Executions,
		}
	}
}

// eventLog keeps a nil bus a nil interface for the handler.
func eventLog(bus domain.SignalBus) handler.EventLog {
	if bus == nil {
		return nil
	}
	return bus
}
