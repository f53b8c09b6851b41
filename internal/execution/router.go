package execution

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/errors"
	"autotrader/internal/logging"
	"autotrader/internal/models"
	"autotrader/pkg/utils"
)

// priceNudge is the per-retry limit price adjustment in the taker's favor.
const priceNudge = 0.001

// Gate is consulted before each new slice submission. A non-nil error
// blocks the submission; slices already at the venue run to completion.
type Gate interface {
	Allow() error
}

// Router turns approved order intents into venue orders. Large intents are
// split into equal slices, each with its own idempotent client ID, retry
// budget, and limit price staggered from mid by the slippage tolerance.
type Router struct {
	cfg    config.ExecutionConfig
	venues []Venue
	gate   Gate
	logger zerolog.Logger
	sim    bool

	mu      sync.Mutex
	resting map[string]Venue
}

// NewRouter creates a router over the given venues. gate may be nil, which
// disables the pre-submission safety check.
func NewRouter(cfg config.ExecutionConfig, venues []Venue, gate Gate, logger zerolog.Logger, sim bool) *Router {
	return &Router{
		cfg:     cfg,
		venues:  venues,
		gate:    gate,
		logger:  logging.WithComponent(logger, "router"),
		sim:     sim,
		resting: make(map[string]Venue),
	}
}

// Execute routes an intent to the best-scoring venue, submits its slices
// sequentially, and aggregates fills into a volume-weighted result. A
// partially filled intent is not an error: per-slice failures are recorded
// on the slice and the remaining slices still run.
func (r *Router) Execute(ctx context.Context, intent *models.OrderIntent) (*models.ExecutionResult, error) {
	if err := r.checkGate(); err != nil {
		intent.Status = models.IntentRejected
		return nil, err
	}

	venue, book, err := SelectVenue(ctx, r.venues, intent.Symbol)
	if err != nil {
		intent.Status = models.IntentRejected
		return nil, errors.Wrap(err, "venue selection")
	}
	mid := book.MidPrice()
	if mid <= 0 {
		intent.Status = models.IntentRejected
		return nil, errors.NewVenueError(venue.Name(), intent.Symbol, "book", errors.ErrInsufficientLiquidity)
	}

	slices := r.buildSlices(intent, mid)
	r.logger.Info().
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Float64("notional", intent.Notional).
		Int("slices", len(slices)).
		Str("venue", venue.Name()).
		Msg("executing intent")

	result := &models.ExecutionResult{
		Intent:    intent,
		Venue:     venue.Name(),
		Simulated: r.sim,
	}
	var filledNotional float64
	for i := range slices {
		if i > 0 && r.cfg.InterSliceDelay > 0 {
			select {
			case <-ctx.Done():
				slices[i].Status = models.SliceCancelled
				result.Slices = append(result.Slices, slices[i])
				continue
			case <-time.After(r.cfg.InterSliceDelay):
			}
		}
		if err := r.checkGate(); err != nil {
			slices[i].Status = models.SliceCancelled
			result.Slices = append(result.Slices, slices[i])
			r.logger.Warn().Err(err).Str("client_id", slices[i].ClientID).Msg("slice blocked by safety gate")
			continue
		}

		r.submitSlice(ctx, venue, &slices[i])
		if slices[i].FilledAmount > 0 {
			result.FilledAmount += slices[i].FilledAmount
			filledNotional += slices[i].FilledAmount * slices[i].FillPrice
		}
		result.Slices = append(result.Slices, slices[i])
	}

	if result.FilledAmount > 0 {
		result.AvgFillPrice = filledNotional / result.FilledAmount
	}
	result.CompletedAt = time.Now()
	r.finalizeIntent(intent, result)

	if result.FilledAmount > 0 {
		logging.LogFill(r.logger, intent.Symbol, string(intent.Side),
			result.FilledAmount, result.AvgFillPrice, r.sim)
		r.placeProtective(ctx, venue, intent, result)
	}
	return result, nil
}

func (r *Router) checkGate() error {
	if r.gate == nil {
		return nil
	}
	return r.gate.Allow()
}

// buildSlices splits the intent into ceil(notional/threshold) equal child
// orders. Each slice's limit price is walked from mid by the slippage
// tolerance, staggered so later slices concede slightly more. An intent
// with a price bound never concedes past it.
func (r *Router) buildSlices(intent *models.OrderIntent, mid float64) []models.OrderSlice {
	n := 1
	if r.cfg.SplitThreshold > 0 && intent.Notional > r.cfg.SplitThreshold {
		n = int(math.Ceil(intent.Notional / r.cfg.SplitThreshold))
	}
	sliceNotional := intent.Notional / float64(n)

	slices := make([]models.OrderSlice, n)
	for i := 0; i < n; i++ {
		stagger := r.cfg.SlippageTolerance * (1 + float64(i)/float64(n))
		limit := mid * (1 + stagger*intent.Side.Sign())
		if intent.PriceBound > 0 {
			if intent.Side == models.SideBuy && limit > intent.PriceBound {
				limit = intent.PriceBound
			} else if intent.Side == models.SideSell && limit < intent.PriceBound {
				limit = intent.PriceBound
			}
		}
		slices[i] = models.OrderSlice{
			ClientID:   uuid.NewString(),
			IntentID:   intent.ID,
			Symbol:     intent.Symbol,
			Side:       intent.Side,
			Amount:     sliceNotional / mid,
			LimitPrice: limit,
			Status:     models.SlicePending,
		}
	}
	return slices
}

// submitSlice submits one slice with retries. Each retry nudges the limit
// price 0.1% in the taker's favor and backs off before resubmitting under
// the same ClientID. Exhausted retries fail only this slice.
func (r *Router) submitSlice(ctx context.Context, venue Venue, slice *models.OrderSlice) {
	limit := slice.LimitPrice
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			limit *= 1 + priceNudge*slice.Side.Sign()
			backoff := utils.CalculateBackoff(attempt-1, r.cfg.RetryBackoff, r.cfg.OrderTimeout, 2.0)
			select {
			case <-ctx.Done():
				slice.Status = models.SliceCancelled
				return
			case <-time.After(backoff):
			}
		}
		slice.Retries = attempt
		slice.LimitPrice = limit

		state, err := r.trySubmit(ctx, venue, slice)
		if err != nil {
			if errors.IsRetryableVenueError(err) && attempt < r.cfg.MaxRetries {
				r.logger.Warn().Err(err).
					Str("client_id", slice.ClientID).
					Int("attempt", attempt+1).
					Msg("slice submission failed, retrying")
				continue
			}
			slice.Status = models.SliceFailed
			r.logger.Error().Err(err).Str("client_id", slice.ClientID).Msg("slice failed")
			return
		}

		slice.VenueOrderID = state.VenueOrderID
		slice.SubmittedAt = time.Now()
		slice.Status = state.Status
		slice.FilledAmount = state.FilledAmount
		slice.FillPrice = state.AvgFillPrice
		if state.Status == models.SliceFilled {
			return
		}
		r.trackOrder(venue, state.VenueOrderID)
		r.awaitFill(ctx, venue, slice)
		if slice.Status == models.SliceFilled || slice.Status == models.SliceCancelled {
			r.untrackOrder(state.VenueOrderID)
		}
		return
	}
}

func (r *Router) trySubmit(ctx context.Context, venue Venue, slice *models.OrderSlice) (*OrderState, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
	defer cancel()
	return venue.SubmitOrder(callCtx, OrderRequest{
		ClientID:   slice.ClientID,
		Symbol:     slice.Symbol,
		Side:       slice.Side,
		Type:       models.OrderTypeLimit,
		Amount:     slice.Amount,
		LimitPrice: slice.LimitPrice,
	})
}

// awaitFill polls an open order until it fills or the order timeout lapses,
// then cancels whatever is still resting.
func (r *Router) awaitFill(ctx context.Context, venue Venue, slice *models.OrderSlice) {
	deadline := time.Now().Add(r.cfg.OrderTimeout)
	poll := r.cfg.OrderTimeout / 10
	if poll < 100*time.Millisecond {
		poll = 100 * time.Millisecond
	}
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			r.cancelSlice(venue, slice)
			return
		case <-time.After(poll):
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
		state, err := venue.OrderStatus(callCtx, slice.VenueOrderID)
		cancel()
		if err != nil {
			continue
		}
		slice.Status = state.Status
		slice.FilledAmount = state.FilledAmount
		slice.FillPrice = state.AvgFillPrice
		if state.Status == models.SliceFilled || state.Status == models.SliceCancelled {
			return
		}
	}
	r.cancelSlice(venue, slice)
}

func (r *Router) cancelSlice(venue Venue, slice *models.OrderSlice) {
	callCtx, cancel := context.WithTimeout(context.Background(), r.cfg.VenueTimeout)
	defer cancel()
	if err := venue.CancelOrder(callCtx, slice.VenueOrderID); err != nil {
		r.logger.Warn().Err(err).Str("client_id", slice.ClientID).Msg("cancel failed")
	}
	if slice.FilledAmount > 0 {
		return
	}
	slice.Status = models.SliceCancelled
}

func (r *Router) finalizeIntent(intent *models.OrderIntent, result *models.ExecutionResult) {
	ratio := result.FillRatio()
	switch {
	case ratio >= 1:
		intent.Status = models.IntentFilled
	case ratio > 0:
		intent.Status = models.IntentPartiallyFilled
	default:
		intent.Status = models.IntentRejected
	}
}

// placeProtective submits reduce-only stop and take-profit children for the
// filled amount. The position ledger remains the authority for exits; these
// rest at the venue as a backstop against feed loss.
func (r *Router) placeProtective(ctx context.Context, venue Venue, intent *models.OrderIntent, result *models.ExecutionResult) {
	exitSide := intent.Side.Opposite()
	if intent.StopLoss > 0 {
		state, err := venue.SubmitOrder(ctx, OrderRequest{
			ClientID:   uuid.NewString(),
			Symbol:     intent.Symbol,
			Side:       exitSide,
			Type:       models.OrderTypeStopLoss,
			Amount:     result.FilledAmount,
			StopPrice:  intent.StopLoss,
			ReduceOnly: true,
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("symbol", intent.Symbol).Msg("protective stop not placed")
		} else if state.Status != models.SliceFilled {
			r.trackOrder(venue, state.VenueOrderID)
		}
	}
	if intent.TakeProfit > 0 {
		state, err := venue.SubmitOrder(ctx, OrderRequest{
			ClientID:   uuid.NewString(),
			Symbol:     intent.Symbol,
			Side:       exitSide,
			Type:       models.OrderTypeLimit,
			Amount:     result.FilledAmount,
			LimitPrice: intent.TakeProfit,
			ReduceOnly: true,
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("symbol", intent.Symbol).Msg("protective target not placed")
		} else if state.Status != models.SliceFilled {
			r.trackOrder(venue, state.VenueOrderID)
		}
	}
}

func (r *Router) trackOrder(venue Venue, venueOrderID string) {
	if venueOrderID == "" {
		return
	}
	r.mu.Lock()
	r.resting[venueOrderID] = venue
	r.mu.Unlock()
}

func (r *Router) untrackOrder(venueOrderID string) {
	r.mu.Lock()
	delete(r.resting, venueOrderID)
	r.mu.Unlock()
}

// RestingOrders reports how many venue orders the router still holds open.
func (r *Router) RestingOrders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resting)
}

// CancelResting cancels every order the router still has open at a venue.
// The safety monitor's trip path runs this so no protective child or
// unfilled slice survives a halt. An order whose cancel fails stays
// tracked for the next sweep.
func (r *Router) CancelResting(ctx context.Context) {
	r.mu.Lock()
	resting := r.resting
	r.resting = make(map[string]Venue)
	r.mu.Unlock()

	for id, venue := range resting {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
		err := venue.CancelOrder(callCtx, id)
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Str("venue_order_id", id).Msg("resting order not cancelled")
			r.trackOrder(venue, id)
			continue
		}
		r.logger.Info().Str("venue_order_id", id).Str("venue", venue.Name()).Msg("resting order cancelled")
	}
}
