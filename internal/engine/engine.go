// Package engine wires the decision-to-execution pipeline and drives it
// with four periodic loops: market scan, position update, performance
// evaluation, and safety check.
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/errors"
	"autotrader/internal/execution"
	"autotrader/internal/feed"
	"autotrader/internal/ledger"
	"autotrader/internal/logging"
	"autotrader/internal/models"
	"autotrader/internal/optimizer"
	"autotrader/internal/perf"
	"autotrader/internal/portfolio"
	"autotrader/internal/risk"
	"autotrader/internal/safety"
	"autotrader/internal/strategy"
	"autotrader/internal/worker"
)

// candleLookback is how many candles one decision cycle requests.
const candleLookback = 200

// tapeLookback is how many tape entries one decision cycle requests.
const tapeLookback = 50

// Deps are the wired components the engine drives.
type Deps struct {
	Config    *config.Config
	Feed      feed.Feed
	Ensemble  *strategy.Ensemble
	Risk      *risk.Engine
	Router    *execution.Router
	Ledger    *ledger.Ledger
	Perf      *perf.Evaluator
	Optimizer *optimizer.Optimizer // nil disables re-optimization
	Safety    *safety.Monitor
	State     *portfolio.State
	Logger    zerolog.Logger
}

// Engine runs the four loops until its context is cancelled.
type Engine struct {
	Deps

	pool   *worker.Pool
	logger zerolog.Logger

	wg         sync.WaitGroup
	cancel     context.CancelFunc
	optRunning sync.Mutex // held while an optimization is in flight

	mu           sync.Mutex
	lastSlippage float64
	lastDay      int
}

// New creates an engine from wired dependencies.
func New(deps Deps) *Engine {
	return &Engine{
		Deps:   deps,
		pool:   worker.NewPool(0),
		logger: logging.WithComponent(deps.Logger, "engine"),
	}
}

// Start launches the loops. It returns immediately; Stop blocks until the
// loops drain.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.pool.Start()

	cfg := e.Config.Trading
	e.loop(ctx, cfg.ScanInterval, e.scanCycle)
	e.loop(ctx, cfg.UpdateInterval, e.positionCycle)
	e.loop(ctx, cfg.PerfInterval, e.perfCycle)
	e.loop(ctx, cfg.SafetyInterval, e.safetyCycle)

	e.logger.Info().
		Str("mode", cfg.Mode).
		Strs("symbols", cfg.Symbols).
		Msg("engine started")
}

// Stop cancels the loops and waits for in-flight cycles to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.pool.Stop()
	e.logger.Info().Msg("engine stopped")
}

// loop runs fn once immediately, then on every tick until cancellation.
func (e *Engine) loop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// scanCycle evaluates every configured symbol in parallel. The safety gate
// is checked once up front: an OPEN breaker skips the whole cycle.
func (e *Engine) scanCycle(ctx context.Context) {
	e.Safety.Heartbeat()
	if err := e.Safety.Allow(); err != nil {
		e.logger.Debug().Err(err).Msg("scan skipped")
		return
	}
	symbols := e.Config.Trading.Symbols
	e.pool.Map(len(symbols), func(i int) {
		e.scanSymbol(ctx, symbols[i])
	})
}

// scanSymbol runs one symbol through the full pipeline: feed, ensemble,
// risk, execution, ledger. Feed errors skip the symbol for this cycle
// only.
func (e *Engine) scanSymbol(ctx context.Context, symbol string) {
	logger := logging.WithSymbol(e.logger, symbol)

	if !e.State.TryAcquireSymbol(symbol) {
		logger.Debug().Msg("order in flight, skipping")
		return
	}
	defer e.State.ReleaseSymbol(symbol)

	series, err := e.collectSeries(ctx, symbol)
	if err != nil {
		var feedErr *errors.FeedError
		if errors.As(err, &feedErr) {
			logger.Warn().Err(err).Msg("feed unusable, symbol skipped this cycle")
		} else {
			logger.Error().Err(err).Msg("market data collection failed")
		}
		return
	}

	signal := e.Ensemble.Evaluate(ctx, *series)
	if !signal.IsActionable() {
		return
	}
	logging.LogSignal(logger, symbol, string(signal.Action), signal.Confidence, signal.Source)

	snap := e.State.Snapshot()
	if snap.HasPosition(symbol) {
		logger.Debug().Msg("position already open, signal ignored")
		return
	}

	advisories := e.Safety.Advisories()
	decision := e.Risk.Evaluate(risk.Input{
		Signal:             signal,
		Portfolio:          snap,
		Returns:            e.State.Returns(),
		VenueLiquidity:     e.bookNotional(series.Book),
		TakerFee:           e.takerFee(),
		Spread:             e.bookSpread(series.Book),
		CurrentVolatility:  realizedVolatility(closeReturns(series.Closes())),
		ReduceSizeAdvisory: advisories[models.AdvisoryReduceSize],
	})
	if !decision.Approved {
		logger.Info().Strs("reasons", decision.Reasons).Msg("signal rejected by risk engine")
		return
	}

	side := signal.OrderSide()
	stop, target := signal.StopLoss, signal.TakeProfit
	if ref := series.Book.MidPrice(); ref > 0 {
		// A signal without exit levels still gets venue-side protection
		// at the ledger's default distances.
		if stop <= 0 {
			stop = ref * (1 - e.Config.Ledger.DefaultStopPercent*side.Sign())
		}
		if target <= 0 {
			target = ref * (1 + e.Config.Ledger.DefaultTargetPercent*side.Sign())
		}
	}

	intent := &models.OrderIntent{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Notional:   decision.Notional,
		StopLoss:   stop,
		TakeProfit: target,
		Status:     models.IntentCreated,
		CreatedAt:  time.Now(),
	}
	if advisories[models.AdvisoryPreferLimitOrders] {
		// Passive pricing while the monitor flags poor fill quality.
		intent.PriceBound = series.Book.MidPrice()
	}
	result, err := e.Router.Execute(ctx, intent)
	if err != nil {
		e.Safety.RecordVenueFailure(err)
		logger.Error().Err(err).Msg("execution failed")
		return
	}
	e.Safety.RecordVenueSuccess()
	e.recordSlippage(series.Book, result)

	if result.FilledAmount <= 0 {
		logger.Warn().Msg("nothing filled")
		return
	}
	if _, err := e.Ledger.OpenFromFill(result); err != nil {
		logger.Error().Err(err).Msg("position not opened")
	}
}

func (e *Engine) collectSeries(ctx context.Context, symbol string) (*strategy.Series, error) {
	candles, err := e.Feed.Candles(ctx, symbol, candleLookback)
	if err != nil {
		return nil, err
	}
	if err := feed.CheckStaleness(symbol, candles, e.Config.Trading.FeedStaleness); err != nil {
		return nil, err
	}
	book, err := e.Feed.Book(ctx, symbol)
	if err != nil {
		return nil, err
	}
	tape, err := e.Feed.Tape(ctx, symbol, tapeLookback)
	if err != nil {
		// The tape is optional input; strategies degrade without it.
		tape = nil
	}
	return &strategy.Series{Symbol: symbol, Candles: candles, Book: book, Tape: tape}, nil
}

// positionCycle marks every open position to the latest price and lets the
// ledger fire stops and take-profit rungs, then refreshes equity.
func (e *Engine) positionCycle(ctx context.Context) {
	snap := e.State.Snapshot()
	for _, pos := range snap.OpenPositions {
		book, err := e.Feed.Book(ctx, pos.Symbol)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("mark price unavailable")
			continue
		}
		price := book.MidPrice()
		if price <= 0 {
			continue
		}
		for _, trade := range e.Ledger.MarkPrice(pos.Symbol, price) {
			e.logger.Info().
				Str("symbol", trade.Symbol).
				Str("reason", string(trade.Reason)).
				Float64("pnl", trade.RealizedPnL).
				Msg("position closed")
		}
	}
	e.refreshEquity()
	e.rolloverDay()
}

// refreshEquity recomputes equity as cash plus open position value and
// records the period return.
func (e *Engine) refreshEquity() {
	snap := e.State.Snapshot()
	equity := snap.Cash
	for _, p := range snap.OpenPositions {
		equity += p.Notional()
	}
	if snap.Equity > 0 && equity > 0 {
		e.State.RecordReturn(equity/snap.Equity - 1)
	}
	e.State.SetEquity(equity)
}

// rolloverDay resets the daily P&L counter on the first cycle of a new day.
func (e *Engine) rolloverDay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	day := time.Now().YearDay()
	if e.lastDay == 0 {
		e.lastDay = day
		return
	}
	if day != e.lastDay {
		e.lastDay = day
		e.State.ResetDaily()
		e.logger.Info().Msg("daily counters reset")
	}
}

// perfCycle snapshots equity, recomputes the report, and kicks off a
// background re-optimization when due.
func (e *Engine) perfCycle(ctx context.Context) {
	snap := e.State.Snapshot()
	e.Perf.RecordSnapshot(snap.Equity)
	report := e.Perf.Report(e.State.TradeHistory())
	e.logger.Info().
		Float64("total_return", report.TotalReturn).
		Float64("sharpe", report.SharpeRatio).
		Float64("max_drawdown", report.MaxDrawdown).
		Float64("win_rate", report.WinRate).
		Int("trades", report.TradeCount).
		Msg("performance report")

	if e.Optimizer != nil && e.Perf.ShouldReoptimize(report) {
		e.startOptimization(ctx)
	}
}

// startOptimization runs the genetic search unless one is already in
// flight.
func (e *Engine) startOptimization(ctx context.Context) {
	if !e.optRunning.TryLock() {
		e.logger.Debug().Msg("optimization already running")
		return
	}
	e.logger.Info().Msg("starting strategy re-optimization")
	results := e.Optimizer.RunBackground(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.optRunning.Unlock()
		if result, ok := <-results; ok {
			e.logger.Info().
				Float64("fitness", result.BestFitness).
				Msg("strategy weights updated")
		}
	}()
}

// safetyCycle runs the monitor and applies a forced close when a critical
// trip requests one.
func (e *Engine) safetyCycle(ctx context.Context) {
	snap := e.State.Snapshot()
	e.mu.Lock()
	slippage := e.lastSlippage
	e.mu.Unlock()

	state := e.Safety.Check(safety.CheckInput{
		Snapshot:          snap,
		CurrentVolatility: realizedVolatility(e.State.Returns()),
		RecentSlippage:    slippage,
	})
	if state.State != models.BreakerOpen {
		return
	}
	e.Router.CancelResting(ctx)
	if !e.Safety.ConsumeForceClose() {
		return
	}

	e.logger.Warn().Str("reason", state.TripReason).Msg("force-closing open positions")
	for _, pos := range snap.OpenPositions {
		price := pos.CurrentPrice
		if book, err := e.Feed.Book(ctx, pos.Symbol); err == nil && book.MidPrice() > 0 {
			price = book.MidPrice()
		}
		if _, err := e.Ledger.CloseAll(pos.Symbol, price, models.CloseReasonForced); err != nil {
			e.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("forced close failed")
		}
	}
}

func (e *Engine) recordSlippage(book *models.OrderBook, result *models.ExecutionResult) {
	if result == nil || result.FilledAmount <= 0 || book == nil {
		return
	}
	mid := book.MidPrice()
	if mid <= 0 {
		return
	}
	slip := math.Abs(result.AvgFillPrice-mid) / mid
	e.mu.Lock()
	e.lastSlippage = slip
	e.mu.Unlock()
}

func (e *Engine) bookNotional(book *models.OrderBook) float64 {
	if book == nil {
		return 0
	}
	return book.Depth(e.Config.Execution.BookDepthLevels) * book.MidPrice()
}

func (e *Engine) bookSpread(book *models.OrderBook) float64 {
	if book == nil {
		return 0
	}
	return book.Spread()
}

func (e *Engine) takerFee() float64 {
	return 0.001 // flat assumption until per-venue fees are plumbed through
}

// closeReturns converts a close price series into period returns.
func closeReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			rets = append(rets, closes[i]/closes[i-1]-1)
		}
	}
	return rets
}

// realizedVolatility annualizes the standard deviation of period returns.
func realizedVolatility(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var sq float64
	for _, r := range rets {
		d := r - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(len(rets)-1))
	return sd * math.Sqrt(252)
}
