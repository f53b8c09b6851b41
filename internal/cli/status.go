package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/models"
	"autotrader/internal/store"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show trade history and performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			db, err := store.NewSQLiteStore(app.DBPath)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			trades, err := db.Trades(50)
			if err != nil {
				return fmt.Errorf("loading trades: %w", err)
			}
			snapshots, err := db.Snapshots(time.Now().AddDate(0, -1, 0))
			if err != nil {
				return fmt.Errorf("loading snapshots: %w", err)
			}

			summary := summarize(trades, snapshots)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"summary": summary,
					"trades":  trades,
				})
			}

			output.Header("Performance")
			output.Printf("Trades:       %d\n", summary.TradeCount)
			output.Printf("Win rate:     %s\n", FormatPercent(summary.WinRate))
			output.Printf("Total P&L:    %s\n", output.PnLColored(summary.TotalPnL))
			if summary.LastEquity > 0 {
				output.Printf("Equity:       %s\n", FormatCompact(summary.LastEquity))
				output.Printf("Drawdown:     %s\n", FormatPercent(summary.Drawdown))
			}

			if len(trades) > 0 {
				output.Println()
				output.Header("Recent trades")
				start := len(trades) - 10
				if start < 0 {
					start = 0
				}
				for _, t := range trades[start:] {
					output.Printf("%s  %-10s %-4s  %s -> %s  %s  (%s)\n",
						t.ClosedAt.Format("2006-01-02 15:04"),
						t.Symbol, t.Side,
						FormatPrice(t.EntryPrice), FormatPrice(t.ExitPrice),
						output.PnLColored(t.RealizedPnL), t.Reason)
				}
			}
			return nil
		},
	}
}

// statusSummary is the aggregate view printed by the status command.
type statusSummary struct {
	TradeCount int     `json:"trade_count"`
	WinRate    float64 `json:"win_rate"`
	TotalPnL   float64 `json:"total_pnl"`
	LastEquity float64 `json:"last_equity"`
	Drawdown   float64 `json:"drawdown"`
}

func summarize(trades []models.ClosedTrade, snapshots []models.PerformanceSnapshot) statusSummary {
	var s statusSummary
	s.TradeCount = len(trades)
	var wins int
	for _, t := range trades {
		s.TotalPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	if len(trades) > 0 {
		s.WinRate = float64(wins) / float64(len(trades))
	}
	if n := len(snapshots); n > 0 {
		s.LastEquity = snapshots[n-1].Equity
		s.Drawdown = snapshots[n-1].Drawdown
	}
	return s
}
