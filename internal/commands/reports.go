package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"conti/internal/balance"
	"conti/internal/cli"
	"conti/internal/core"
	"conti/internal/report"
	"conti/internal/settle"
)

// periodFlags select a year, a month of a year, or everything.
type periodFlags struct {
	year  int
	month int
}

func (f *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.year, "year", 0, "only entries dated in this year")
	cmd.Flags().IntVar(&f.month, "month", 0, "only entries dated in this month (1-12)")
}

func (f *periodFlags) period() (core.Period, error) {
	if f.month < 0 || f.month > 12 {
		return core.Period{}, fmt.Errorf("invalid month %d: must be between 1 and 12", f.month)
	}
	if f.year < 0 {
		return core.Period{}, fmt.Errorf("invalid year %d", f.year)
	}
	return core.Period{Year: f.year, Month: f.month}, nil
}

func newBalancesCommand(a *app) *cobra.Command {
	var pf periodFlags
	var convert bool

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show who is owed and who owes, per unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				w := cmd.OutOrStdout()
				if convert {
					return writeConverted(w, s, period)
				}
				sheet := s.Service.Balances(period)
				if len(sheet) == 0 {
					_, err := fmt.Fprintln(w, "No balances")
					return err
				}
				for _, u := range sheet {
					if err := writeUnitBalances(w, u); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&convert, "convert", false, "express everything in the FX base unit")

	return cmd
}

func writeUnitBalances(w io.Writer, u balance.Unit) error {
	fmt.Fprintf(w, "%s\n", u.Code)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, p := range u.Positions {
		fmt.Fprintf(tw, "  %s\t%s\t\n", p.Participant, core.FormatAmount(p.Amount))
	}
	return tw.Flush()
}

func writeConverted(w io.Writer, s *cli.Session, period core.Period) error {
	view := s.Service.Converted(period)
	if err := writeUnitBalances(w, view.Balances); err != nil {
		return err
	}
	for _, t := range view.Settlements {
		fmt.Fprintln(w, t.String())
	}
	fmt.Fprintf(w, "Total spent: %s %s\n", core.FormatAmount(view.GrandTotal), view.Base)
	if view.Source != "" || view.AsOf != "" {
		fmt.Fprintf(w, "Rates: %s %s\n", view.Source, view.AsOf)
	}
	if len(view.Skipped) > 0 {
		fmt.Fprintf(w, "Not converted (no rate): %v\n", view.Skipped)
	}
	return nil
}

func newSettleCommand(a *app) *cobra.Command {
	var pf periodFlags
	var verify bool

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Suggest the transfers that square every balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				w := cmd.OutOrStdout()
				sheet := s.Service.Balances(period)
				plans := settle.Suggest(sheet)
				printed := false
				for i, plan := range plans {
					for _, t := range plan.Transfers {
						fmt.Fprintln(w, t.String())
						printed = true
					}
					if verify {
						if err := verifyPlan(sheet[i], plan); err != nil {
							return err
						}
					}
				}
				if !printed {
					fmt.Fprintln(w, "Everyone is square")
				}
				if verify {
					fmt.Fprintln(w, "Verified: every balance is zero after these transfers")
				}
				return nil
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&verify, "verify", false, "check that paying the transfers leaves every balance at zero")

	return cmd
}

// verifyPlan applies plan to u and fails when any participant is left with
// more than a rounding residue.
func verifyPlan(u balance.Unit, plan settle.Plan) error {
	after := settle.Apply(u, plan.Transfers)
	for _, p := range after.Positions {
		if !core.IsNoise(p.Amount) {
			return fmt.Errorf("%s: %s is left with %s after settling", u.Code, p.Participant, core.FormatAmount(p.Amount))
		}
	}
	return nil
}

func newTotalsCommand(a *app) *cobra.Command {
	var year, month int

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Show spending per category for a month or a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if month < 0 || month > 12 {
				return fmt.Errorf("invalid month %d: must be between 1 and 12", month)
			}
			if year == 0 {
				year = time.Now().Year()
			}
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				return writeTotals(cmd.OutOrStdout(), s.Service.Totals(year, month))
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year to report (default current year)")
	cmd.Flags().IntVar(&month, "month", 0, "month to report; omit for the whole year")

	return cmd
}

func writeTotals(w io.Writer, totals report.Totals) error {
	if len(totals) == 0 {
		_, err := fmt.Fprintln(w, "No expenses")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, u := range totals {
		for _, c := range u.Categories {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", u.Unit, c.Category, core.FormatAmount(c.Amount))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", u.Unit, "total", core.FormatAmount(u.Sum()))
	}
	return tw.Flush()
}

func newPeriodsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "periods",
		Short: "List the years and months that have dated entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				w := cmd.OutOrStdout()
				periods := s.Service.Periods()
				if len(periods.Years) == 0 {
					_, err := fmt.Fprintln(w, "No dated entries")
					return err
				}
				for _, y := range periods.Years {
					fmt.Fprintf(w, "%d:", y)
					for _, m := range periods.Months[y] {
						fmt.Fprintf(w, " %02d", m)
					}
					fmt.Fprintln(w)
				}
				return nil
			})
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	var pf periodFlags
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write entries and category totals as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				if output == "" || output == "-" {
					return s.Service.ExportCSV(cmd.OutOrStdout(), period)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				if err := s.Service.ExportCSV(f, period); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("closing %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", period, output)
				return nil
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")

	return cmd
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the ledger is stored and whether it is durable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				w := cmd.OutOrStdout()
				st := s.Service.Status()
				snap := s.Service.Snapshot()
				fmt.Fprintf(w, "Backend: %s\n", st.Backend)
				fmt.Fprintf(w, "Durable: %t\n", st.Durable)
				if st.Reason != "" {
					fmt.Fprintf(w, "Reason: %s\n", st.Reason)
				}
				if s.Backend.Status != "" {
					fmt.Fprintf(w, "Storage: %s\n", s.Backend.Status)
				}
				fmt.Fprintf(w, "Entries: %d\n", len(snap.Entries))
				fmt.Fprintf(w, "Next id: %d\n", snap.NextID)
				return nil
			})
		},
	}
}
