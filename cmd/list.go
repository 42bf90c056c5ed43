package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/earnings-cli/internal/model"
)

var (
	listTicker string
	listLimit  int
	listDates  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show persisted earnings rows for a ticker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		ticker := strings.ToUpper(strings.TrimSpace(listTicker))
		if ticker == "" {
			return eris.New("--ticker is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		if listDates {
			dates, err := st.LatestReportDates(ctx, ticker, listLimit)
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(out, d.Format("2006-01-02"))
			}
			return nil
		}

		rows, err := st.ListByTicker(ctx, ticker, listLimit)
		if err != nil {
			return err
		}
		return printRows(out, rows)
	},
}

func printRows(w io.Writer, rows []model.EarningsRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tQUARTER\tREV EST\tREV ACT\tREV\tEPS EST\tEPS ACT\tEPS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ReportDate.Format("2006-01-02"), r.Quarter,
			withUnit(r.RevEst, r.RevEstUnit), withUnit(r.RevAct, r.RevActUnit), r.RevStatus,
			dec(r.EPSEst), dec(r.EPSAct), r.EPSStatus)
	}
	return tw.Flush()
}

func dec(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func withUnit(d decimal.NullDecimal, unit string) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String() + unit
}

func init() {
	listCmd.Flags().StringVar(&listTicker, "ticker", "", "ticker symbol (required)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "max rows, newest first")
	listCmd.Flags().BoolVar(&listDates, "dates", false, "print report dates only")
	rootCmd.AddCommand(listCmd)
}
