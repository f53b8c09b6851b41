package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

// SimVenueConfig configures the simulated venue.
type SimVenueConfig struct {
	Name           string
	InitialBalance float64
	TakerFee       float64 // fraction of notional, e.g. 0.001
	Slippage       float64 // adverse fill offset from mid, e.g. 0.0005
	FillRatio      float64 // filled fraction per order; 1.0 fills fully
	BookLevels     int     // synthetic book depth per side
	LevelSpacing   float64 // price gap between synthetic levels
	LevelQuantity  float64 // base quantity per synthetic level
}

// DefaultSimVenueConfig returns a simulated venue with full fills and a
// tight synthetic book.
func DefaultSimVenueConfig() SimVenueConfig {
	return SimVenueConfig{
		Name:           "sim",
		InitialBalance: 100000,
		TakerFee:       0.001,
		Slippage:       0.0005,
		FillRatio:      1.0,
		BookLevels:     10,
		LevelSpacing:   0.0002,
		LevelQuantity:  5.0,
	}
}

// SimVenue is an in-memory venue used in simulation mode. It fills orders
// immediately at mid plus a configured slippage and tracks balance and
// order state so results are structurally identical to a live venue's.
type SimVenue struct {
	mu      sync.Mutex
	cfg     SimVenueConfig
	prices  map[string]float64 // mark price per symbol
	orders  map[string]*OrderState
	byCID   map[string]string // ClientID -> VenueOrderID
	balance float64
	counter int64
}

// NewSimVenue creates a simulated venue.
func NewSimVenue(cfg SimVenueConfig) *SimVenue {
	if cfg.Name == "" {
		cfg.Name = "sim"
	}
	if cfg.FillRatio <= 0 || cfg.FillRatio > 1 {
		cfg.FillRatio = 1.0
	}
	if cfg.BookLevels <= 0 {
		cfg.BookLevels = 10
	}
	return &SimVenue{
		cfg:     cfg,
		prices:  make(map[string]float64),
		orders:  make(map[string]*OrderState),
		byCID:   make(map[string]string),
		balance: cfg.InitialBalance,
	}
}

func (s *SimVenue) Name() string      { return s.cfg.Name }
func (s *SimVenue) TakerFee() float64 { return s.cfg.TakerFee }

// SetPrice updates the mark price driving the synthetic book and fills.
func (s *SimVenue) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SubmitOrder fills immediately at mid adjusted by slippage. Resubmitting
// an already-seen ClientID returns the original order state unchanged.
func (s *SimVenue) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byCID[req.ClientID]; ok {
		return s.copyState(id), nil
	}

	mark, ok := s.prices[req.Symbol]
	if !ok || mark <= 0 {
		return nil, errors.NewVenueError(s.cfg.Name, req.Symbol, "submit",
			errors.ErrInsufficientLiquidity)
	}
	if req.Amount <= 0 {
		return nil, errors.NewValidationError("amount", req.Amount, "non-positive order amount")
	}

	fillPrice := mark * (1 + s.cfg.Slippage*req.Side.Sign())
	marketable := true
	if req.Type == models.OrderTypeLimit && req.LimitPrice > 0 {
		// A marketable limit caps the fill at its own price; an away limit
		// rests open.
		if req.Side == models.SideBuy {
			if req.LimitPrice < mark {
				marketable = false
			} else if fillPrice > req.LimitPrice {
				fillPrice = req.LimitPrice
			}
		} else {
			if req.LimitPrice > mark {
				marketable = false
			} else if fillPrice < req.LimitPrice {
				fillPrice = req.LimitPrice
			}
		}
	}

	filled := req.Amount * s.cfg.FillRatio
	notional := filled * fillPrice
	if req.Side == models.SideBuy && !req.ReduceOnly && notional > s.balance {
		return nil, errors.NewVenueError(s.cfg.Name, req.Symbol, "submit",
			fmt.Errorf("insufficient balance: need %.2f, have %.2f", notional, s.balance))
	}

	s.counter++
	state := &OrderState{
		VenueOrderID: fmt.Sprintf("SIM-%d-%d", time.Now().Unix(), s.counter),
		ClientID:     req.ClientID,
		FilledAmount: filled,
		AvgFillPrice: fillPrice,
		UpdatedAt:    time.Now(),
	}
	if req.Type == models.OrderTypeStopLoss || !marketable {
		// Protective children and away limits rest until triggered; the
		// simulation leaves them open rather than filling against the mark.
		state.Status = models.SliceSubmitted
		state.FilledAmount = 0
		state.AvgFillPrice = 0
	} else if filled >= req.Amount {
		state.Status = models.SliceFilled
	} else {
		state.Status = models.SliceSubmitted
	}

	if state.FilledAmount > 0 {
		fee := notional * s.cfg.TakerFee
		if req.Side == models.SideBuy {
			s.balance -= notional + fee
		} else {
			s.balance += notional - fee
		}
	}

	s.orders[state.VenueOrderID] = state
	s.byCID[req.ClientID] = state.VenueOrderID
	return s.copyState(state.VenueOrderID), nil
}

// OrderStatus returns the current state of a submitted order.
func (s *SimVenue) OrderStatus(ctx context.Context, venueOrderID string) (*OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.copyState(venueOrderID)
	if state == nil {
		return nil, errors.NewVenueError(s.cfg.Name, "", "status",
			fmt.Errorf("unknown order %s", venueOrderID))
	}
	return state, nil
}

// CancelOrder cancels an open order. Cancelling a filled order is a no-op.
func (s *SimVenue) CancelOrder(ctx context.Context, venueOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.orders[venueOrderID]
	if !ok {
		return errors.NewVenueError(s.cfg.Name, "", "cancel",
			fmt.Errorf("unknown order %s", venueOrderID))
	}
	if state.Status == models.SliceSubmitted {
		state.Status = models.SliceCancelled
		state.UpdatedAt = time.Now()
	}
	return nil
}

// Book builds a synthetic order book around the current mark price.
func (s *SimVenue) Book(ctx context.Context, symbol string) (*models.OrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark, ok := s.prices[symbol]
	if !ok || mark <= 0 {
		return nil, errors.NewFeedError(symbol, "no mark price", errors.ErrFeedUnavailable)
	}
	book := &models.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	for i := 0; i < s.cfg.BookLevels; i++ {
		offset := mark * s.cfg.LevelSpacing * float64(i+1)
		qty := s.cfg.LevelQuantity * math.Pow(0.9, float64(i))
		book.Bids = append(book.Bids, models.BookLevel{Price: mark - offset, Amount: qty})
		book.Asks = append(book.Asks, models.BookLevel{Price: mark + offset, Amount: qty})
	}
	return book, nil
}

// Balance reports the simulated quote balance.
func (s *SimVenue) Balance(ctx context.Context) (*Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Balance{Currency: "USD", Available: s.balance, Total: s.balance}, nil
}

// Reset restores the initial balance and clears all order state.
func (s *SimVenue) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.cfg.InitialBalance
	s.orders = make(map[string]*OrderState)
	s.byCID = make(map[string]string)
	s.counter = 0
}

func (s *SimVenue) copyState(venueOrderID string) *OrderState {
	state, ok := s.orders[venueOrderID]
	if !ok {
		return nil
	}
	c := *state
	return &c
}

var _ Venue = (*SimVenue)(nil)
