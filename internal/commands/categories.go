package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conti/internal/cli"
)

func newCategoriesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List expense categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, false, func(ctx context.Context, s *cli.Session) error {
				for _, c := range s.Service.Categories() {
					fmt.Fprintln(cmd.OutOrStdout(), c)
				}
				return nil
			})
		},
	}
	cmd.AddCommand(newCategoriesAddCommand(a))

	return cmd
}

func newCategoriesAddCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Register a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, true, func(ctx context.Context, s *cli.Session) error {
				added, err := s.Service.AddCategory(ctx, args[0])
				if err != nil {
					return err
				}
				if added {
					fmt.Fprintf(cmd.OutOrStdout(), "Added category %q\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Category %q already exists\n", args[0])
				}
				return nil
			})
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every entry and reset categories and ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the ledger without --yes")
			}
			return a.withSession(cmd, true, func(ctx context.Context, s *cli.Session) error {
				if err := s.Service.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Ledger cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the ledger")

	return cmd
}
