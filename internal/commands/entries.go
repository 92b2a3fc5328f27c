package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"conti/internal/cli"
	"conti/internal/core"
	"conti/internal/ledger"
)

// entryFlags are the entry fields settable from the command line.
type entryFlags struct {
	amount       string
	payer        string
	participants []string
	category     string
	description  string
	unit         string
	shares       []string
	date         string
}

func (f *entryFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.amount, "amount", "", "amount paid, e.g. 12.50 or 12,50")
	fl.StringVar(&f.payer, "payer", "", "who paid")
	fl.StringSliceVar(&f.participants, "participants", nil, "who shares the expense (comma separated)")
	fl.StringVar(&f.category, "category", "", "category (default general)")
	fl.StringVar(&f.description, "description", "", "free text description")
	fl.StringVar(&f.unit, "unit", "", "currency or unit (default EUR)")
	fl.StringArrayVar(&f.shares, "share", nil, "custom share as name=amount; repeat for each participant")
	fl.StringVar(&f.date, "date", "", "date as YYYY-MM-DD")
}

func (f *entryFlags) newEntry() (ledger.NewEntry, error) {
	amount, err := parseAmountFlag(f.amount)
	if err != nil {
		return ledger.NewEntry{}, err
	}
	shares, err := parseShares(f.shares)
	if err != nil {
		return ledger.NewEntry{}, err
	}
	return ledger.NewEntry{
		Amount:       amount,
		Payer:        f.payer,
		Participants: f.participants,
		Category:     f.category,
		Description:  f.description,
		Unit:         strings.ToUpper(f.unit),
		Shares:       shares,
		Date:         f.date,
	}, nil
}

// patch builds a patch from the flags the user actually set.
func (f *entryFlags) patch(cmd *cobra.Command) (ledger.Patch, error) {
	var p ledger.Patch
	changed := cmd.Flags().Changed
	if changed("amount") {
		amount, err := parseAmountFlag(f.amount)
		if err != nil {
			return p, err
		}
		p.Amount = &amount
	}
	if changed("share") {
		shares, err := parseShares(f.shares)
		if err != nil {
			return p, err
		}
		p.Shares = &shares
	}
	if changed("participants") {
		p.Participants = &f.participants
	}
	if changed("payer") {
		p.Payer = &f.payer
	}
	if changed("category") {
		p.Category = &f.category
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("unit") {
		unit := strings.ToUpper(f.unit)
		p.Unit = &unit
	}
	if changed("date") {
		p.Date = &f.date
	}
	return p, nil
}

func parseAmountFlag(s string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: "amount", Err: err}
	}
	return d, nil
}

// parseShares reads name=amount pairs. A repeated name keeps the last amount.
func parseShares(pairs []string) (core.Shares, error) {
	var out core.Shares
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid share %q: expected name=amount", pair)
		}
		d, err := core.ParseAmount(value)
		if err != nil {
			return nil, &core.ValidationError{Field: "shares", Err: fmt.Errorf("share of %s: %w", name, err)}
		}
		out = out.Set(name, d)
	}
	return out, nil
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid entry id %q", arg)
	}
	return id, nil
}

func describe(e core.Entry) string {
	return fmt.Sprintf("%s %s paid by %s (%s)", core.FormatAmount(e.Amount), e.Unit, e.Payer, e.Category)
}

func newAddCommand(a *app) *cobra.Command {
	var f entryFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a shared expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ne, err := f.newEntry()
			if err != nil {
				return err
			}
			return a.withSession(cmd, true, func(ctx context.Context, s *cli.Session) error {
				e, err := s.Service.AddEntry(ctx, ne)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added entry %d: %s\n", e.ID, describe(e))
				return nil
			})
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("payer")

	return cmd
}

func newEditCommand(a *app) *cobra.Command {
	var f entryFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an entry",
		Long:  "Change fields of an entry. Only the flags given are replaced; the result is validated like a new entry.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := f.patch(cmd)
			if err != nil {
				return err
			}
			return a.withSession(cmd, true, func(ctx context.Context, s *cli.Session) error {
				e, err := s.Service.EditEntry(ctx, id, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated entry %d: %s\n", e.ID, describe(e))
				return nil
			})
		},
	}
	f.register(cmd)

	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, true, func(ctx context.Context, s *cli.Session) error {
				removed, err := s.Service.DeleteEntry(ctx, id)
				if err != nil {
					return err
				}
				if !removed {
					return &core.NotFoundError{ID: id}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %d\n", id)
				return nil
			})
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	var pf periodFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				entries := s.Service.Entries(ctx, period)
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				return writeEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")

	return cmd
}

func writeEntries(w io.Writer, entries []core.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No entries")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tUNIT\tPAYER\tPARTICIPANTS\tCATEGORY\tDESCRIPTION")
	for _, e := range entries {
		participants := strings.Join(e.Participants, ", ")
		if len(e.Shares) > 0 {
			parts := make([]string, 0, len(e.Shares))
			for _, sh := range e.Shares {
				parts = append(parts, sh.Participant+"="+core.FormatAmount(sh.Amount))
			}
			participants = strings.Join(parts, ", ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, core.FormatAmount(e.Amount), e.Unit, e.Payer, participants, e.Category, e.Description)
	}
	return tw.Flush()
}
