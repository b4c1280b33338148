package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ubi-pricer/internal/storage"
)

// Export renders the stored premium distribution as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rows, err := store.ListRecentPricedRows(ctx, opts.MaxPoints)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no priced rows found for export")
		return nil
	}

	a.Logger.Info().Int("rows", len(rows)).Msg("exporting priced rows")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, rows); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePremiumPNG(opts.PNGPath, rows); err != nil {
			return err
		}
	}

	return nil
}

func writeRowsCSV(path string, rows []storage.PricedRowRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"driver_id", "period_key", "period_start", "period_end", "miles", "risk_score", "model_multiplier", "final_multiplier", "final_monthly_premium", "prior_claim_count", "car_value", "created_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.DriverID,
			row.PeriodKey,
			row.PeriodStart,
			row.PeriodEnd,
			fmt.Sprintf("%.2f", row.Miles),
			fmt.Sprintf("%.6f", row.RiskScore),
			fmt.Sprintf("%.6f", row.ModelMultiplier),
			fmt.Sprintf("%.6f", row.FinalMultiplier),
			row.FinalMonthlyPremium.StringFixed(2),
			fmt.Sprintf("%d", row.PriorClaimCount),
			fmt.Sprintf("%.0f", row.CarValue),
			row.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writePremiumPNG charts the premium distribution sorted ascending, with the
// final multiplier on a secondary axis.
func writePremiumPNG(path string, rows []storage.PricedRowRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	sorted := make([]storage.PricedRowRecord, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FinalMonthlyPremium.LessThan(sorted[j].FinalMonthlyPremium)
	})

	x := make([]float64, len(sorted))
	premium := make([]float64, len(sorted))
	multiplier := make([]float64, len(sorted))
	for i, row := range sorted {
		x[i] = float64(i)
		premium[i] = row.FinalMonthlyPremium.InexactFloat64()
		multiplier[i] = row.FinalMultiplier
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name: "Row (sorted by premium)",
		},
		YAxis: chart.YAxis{
			Name: "Monthly premium (USD)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Final multiplier",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Premium",
				XValues: x,
				YValues: premium,
			},
			chart.ContinuousSeries{
				Name:    "Multiplier",
				XValues: x,
				YValues: multiplier,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
