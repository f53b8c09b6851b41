// Package execution routes approved order intents to trading venues. It
// splits large orders into slices, retries transient venue failures with
// price nudges, and aggregates fills back into a single execution result.
package execution

import (
	"context"
	"time"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

// OrderRequest is a single child order submitted to a venue.
type OrderRequest struct {
	ClientID   string // idempotency key, stable across retries
	Symbol     string
	Side       models.Side
	Type       models.OrderType
	Amount     float64
	LimitPrice float64 // ignored for market orders
	StopPrice  float64 // trigger level for stop orders
	ReduceOnly bool
}

// OrderState is the venue's view of a submitted order.
type OrderState struct {
	VenueOrderID string
	ClientID     string
	Status       models.SliceStatus
	FilledAmount float64
	AvgFillPrice float64
	UpdatedAt    time.Time
}

// Balance reports available quote currency at a venue.
type Balance struct {
	Currency  string
	Available float64
	Total     float64
}

// Venue is the exchange gateway. Submissions are idempotent on ClientID:
// re-submitting the same ClientID must not create a duplicate order.
type Venue interface {
	Name() string
	TakerFee() float64

	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderState, error)
	OrderStatus(ctx context.Context, venueOrderID string) (*OrderState, error)
	CancelOrder(ctx context.Context, venueOrderID string) error
	Book(ctx context.Context, symbol string) (*models.OrderBook, error)
	Balance(ctx context.Context) (*Balance, error)
}

// scoreDepthLevels is the number of book levels counted as usable liquidity.
const scoreDepthLevels = 5

// Score ranks a venue for a given book snapshot. Higher is better: deep
// books score up, wide spreads and taker fees score down.
func Score(book *models.OrderBook, takerFee float64) float64 {
	if book == nil {
		return 0
	}
	liquidity := book.Depth(scoreDepthLevels)
	return liquidity*100 - book.Spread()*1000 - takerFee*100
}

// SelectVenue picks the best-scoring venue for a symbol. Venues whose book
// cannot be fetched are skipped; an error is returned only when no venue
// responds at all.
func SelectVenue(ctx context.Context, venues []Venue, symbol string) (Venue, *models.OrderBook, error) {
	var (
		best      Venue
		bestBook  *models.OrderBook
		bestScore float64
	)
	var lastErr error
	for _, v := range venues {
		book, err := v.Book(ctx, symbol)
		if err != nil {
			lastErr = err
			continue
		}
		score := Score(book, v.TakerFee())
		if best == nil || score > bestScore {
			best = v
			bestBook = book
			bestScore = score
		}
	}
	if best == nil {
		if lastErr == nil {
			lastErr = errors.ErrInsufficientLiquidity
		}
		return nil, nil, lastErr
	}
	return best, bestBook, nil
}
