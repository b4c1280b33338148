package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Show prints recently priced driver-period rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show priced rows")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rows, err := store.ListRecentPricedRows(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no priced rows found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Driver\tPeriod\tMiles\tRisk\tModel×\tFinal×\tPremium\tClaims")

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%.1f\t%.4f\t%.4f\t%.4f\t%s\t%d\n",
			row.DriverID,
			row.PeriodKey,
			row.Miles,
			row.RiskScore,
			row.ModelMultiplier,
			row.FinalMultiplier,
			row.FinalMonthlyPremium.StringFixed(2),
			row.PriorClaimCount,
		)
	}

	writer.Flush()
	return nil
}
