package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/engine"
	"autotrader/internal/execution"
	"autotrader/internal/feed"
	"autotrader/internal/ledger"
	"autotrader/internal/models"
	"autotrader/internal/notify"
	"autotrader/internal/optimizer"
	"autotrader/internal/oracle"
	"autotrader/internal/perf"
	"autotrader/internal/portfolio"
	"autotrader/internal/risk"
	"autotrader/internal/safety"
	"autotrader/internal/store"
	"autotrader/internal/strategy"
)

// replayWarmup is the candle window exposed before the replay starts
// advancing, enough for the slowest indicator.
const replayWarmup = 100

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the trading engine",
		Long: `Run starts the four periodic loops (scan, position update,
performance, safety) and trades until interrupted.

Simulation mode replays stored candle history against an in-memory venue.
Import history first with 'autotrader data import'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), app)
		},
	}
}

func runEngine(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	if !cfg.IsSimMode() {
		return fmt.Errorf("live mode requires a venue connector; none is configured, run in sim mode")
	}

	db, err := store.NewSQLiteStore(app.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	history := make(map[string][]models.Candle, len(cfg.Trading.Symbols))
	for _, symbol := range cfg.Trading.Symbols {
		candles, err := db.Candles(symbol, 0)
		if err != nil {
			return fmt.Errorf("loading candles for %s: %w", symbol, err)
		}
		if len(candles) == 0 {
			return fmt.Errorf("no candle history for %s, import some with 'autotrader data import'", symbol)
		}
		history[symbol] = candles
	}

	marketFeed := feed.NewReplayFeed(history)
	marketFeed.Rewind(replayWarmup)
	marketFeed.Advance()
	// Replayed candles carry their historical timestamps; a staleness
	// window would reject every cycle.
	cfg.Trading.FeedStaleness = 0

	venue := execution.NewSimVenue(execution.SimVenueConfig{
		Name:           "sim",
		InitialBalance: cfg.Trading.InitialEquity,
		TakerFee:       0.001,
		Slippage:       cfg.Execution.SlippageTolerance / 2,
		FillRatio:      1.0,
		BookLevels:     cfg.Execution.BookDepthLevels * 2,
		LevelSpacing:   0.0002,
		LevelQuantity:  5.0,
	})
	syncVenuePrices(marketFeed, venue, cfg.Trading.Symbols)

	dispatcher := notify.NewDispatcher(cfg.Notifications, logger)
	monitor := safety.NewMonitor(cfg.Safety, dispatcher, logger)
	state := portfolio.NewState(cfg.Trading.InitialEquity)

	evaluators := strategy.DefaultEvaluators()
	var advisor oracle.Advisor
	if cfg.Oracle.Enabled && cfg.Oracle.APIKey != "" {
		advisor = oracle.NewOpenAIAdvisor(cfg.Oracle.APIKey, cfg.Oracle.Model)
	}
	ensemble := strategy.NewEnsemble(evaluators, advisor, strategy.NewBookQualityScorer(), strategy.EnsembleConfig{
		MinConfidence:       cfg.Trading.MinConfidence,
		MinRiskReward:       cfg.Trading.MinRiskReward,
		MinMarketQuality:    cfg.Trading.MinMarketQuality,
		DefaultSizeFraction: cfg.Trading.DefaultSizeFraction,
		OracleTimeout:       cfg.Oracle.Timeout,
	}, logger)

	deps := engine.Deps{
		Config:    cfg,
		Feed:      marketFeed,
		Ensemble:  ensemble,
		Risk:      risk.NewEngine(cfg.Risk),
		Router:    execution.NewRouter(cfg.Execution, []execution.Venue{venue}, monitor, logger, true),
		Ledger:    ledger.New(cfg.Ledger, state, db, logger, true),
		Perf:      perf.NewEvaluator(cfg.Optimizer, db, logger),
		Optimizer: optimizer.New(cfg.Optimizer, optimizer.BacktestEval(evaluators, history), ensemble, logger),
		Safety:    monitor,
		State:     state,
		Logger:    logger,
	}
	eng := engine.New(deps)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(runCtx)
	driveReplay(runCtx, stop, marketFeed, venue, cfg.Trading.Symbols, cfg.Trading.ScanInterval)

	<-runCtx.Done()
	logger.Info().Msg("shutting down")
	eng.Stop()
	dispatcher.Flush()
	return nil
}

// driveReplay advances the replay window each scan interval and mirrors
// the latest closes into the simulated venue. When the history is
// exhausted the run stops.
func driveReplay(ctx context.Context, stop context.CancelFunc, marketFeed *feed.ReplayFeed, venue *execution.SimVenue, symbols []string, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !marketFeed.Advance() {
					stop()
					return
				}
				syncVenuePrices(marketFeed, venue, symbols)
			}
		}
	}()
}

func syncVenuePrices(marketFeed *feed.ReplayFeed, venue *execution.SimVenue, symbols []string) {
	for _, symbol := range symbols {
		if price := marketFeed.LastClose(symbol); price > 0 {
			venue.SetPrice(symbol, price)
		}
	}
}
