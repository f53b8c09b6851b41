package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"autotrader/internal/models"
	"autotrader/internal/store"
)

// csvCandle is the CSV row shape for candle import. Timestamps are unix
// seconds or RFC3339.
type csvCandle struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

func newDataCmd(app *App) *cobra.Command {
	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Candle history commands",
	}
	dataCmd.AddCommand(newDataImportCmd(app))
	dataCmd.AddCommand(newDataShowCmd(app))
	return dataCmd
}

func newDataImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <symbol> <file.csv>",
		Short: "Import OHLCV history from a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, path := args[0], args[1]
			output := NewOutput(cmd)

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()

			var rows []csvCandle
			if err := gocsv.UnmarshalFile(f, &rows); err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}

			candles := make([]models.Candle, 0, len(rows))
			for i, row := range rows {
				ts, err := parseTimestamp(row.Timestamp)
				if err != nil {
					return fmt.Errorf("row %d: %w", i+1, err)
				}
				candles = append(candles, models.Candle{
					Timestamp: ts,
					Open:      row.Open,
					High:      row.High,
					Low:       row.Low,
					Close:     row.Close,
					Volume:    row.Volume,
				})
			}

			db, err := store.NewSQLiteStore(app.DBPath)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			if err := db.SaveCandles(symbol, candles); err != nil {
				return fmt.Errorf("saving candles: %w", err)
			}
			output.Printf("imported %d candles for %s\n", len(candles), symbol)
			return nil
		},
	}
}

func newDataShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <symbol>",
		Short: "Show the most recent stored candles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			db, err := store.NewSQLiteStore(app.DBPath)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			candles, err := db.Candles(args[0], 10)
			if err != nil {
				return fmt.Errorf("loading candles: %w", err)
			}
			if output.IsJSON() {
				return output.JSON(candles)
			}
			output.Header(fmt.Sprintf("%s: last %d candles", args[0], len(candles)))
			for _, c := range candles {
				output.Printf("%s  O %s  H %s  L %s  C %s  V %.2f\n",
					c.Timestamp.Format(time.RFC3339),
					FormatPrice(c.Open), FormatPrice(c.High),
					FormatPrice(c.Low), FormatPrice(c.Close), c.Volume)
			}
			return nil
		},
	}
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	var unix int64
	if _, err := fmt.Sscanf(s, "%d", &unix); err == nil && unix > 0 {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
