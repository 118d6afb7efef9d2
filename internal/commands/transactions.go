package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/curb-dev/curb/internal/engine"
	"github.com/curb-dev/curb/internal/importer"
	"github.com/curb-dev/curb/internal/model"
)

const dateFormat = "2006-01-02"

func newAddCommand(opts *globalOptions) *cobra.Command {
	var (
		description string
		amount      string
		category    string
		date        string
		optimize    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a manual transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("parsing amount %q: %w", amount, err)
			}
			cat, ok := model.ParseCategory(category)
			if !ok {
				return fmt.Errorf("unknown category %q (one of %s)", category, categoryList())
			}
			in := engine.ManualInput{Description: description, Amount: amt, Category: cat}
			if date != "" {
				d, err := time.ParseInLocation(dateFormat, date, time.Local)
				if err != nil {
					return fmt.Errorf("parsing date %q: %w", date, err)
				}
				in.Date = d
			}

			return withApp(cmd, opts, func(a *app) error {
				opt := a.cfg.Optimize.Enabled
				if cmd.Flags().Changed("optimize") {
					opt = optimize
				}

				res, err := a.svc.AddManual(cmd.Context(), a.user, in, opt)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if res.Persisted {
					fmt.Fprintf(out, "Added %s: %s %s (%s)%s\n", res.Transaction.ID, res.Transaction.Description,
						res.Transaction.Amount.StringFixed(2), res.Transaction.Category, flags(res.Transaction))
				}
				if res.Notice != nil {
					fmt.Fprintln(out, res.Notice.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "what the money was spent on (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount spent (required)")
	cmd.Flags().StringVar(&category, "category", "", "spending category (required)")
	cmd.Flags().StringVar(&date, "date", "", "transaction date, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&optimize, "optimize", false, "apply category caps (default from curb.yaml)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func categoryList() string {
	cats := model.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func flags(t model.Transaction) string {
	var tags []string
	if t.IsImpulse {
		tags = append(tags, "impulse")
	}
	if t.IsHabit {
		tags = append(tags, "habit")
	}
	if len(tags) == 0 {
		return ""
	}
	return " [" + strings.Join(tags, ",") + "]"
}

func newImportCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import bank statement CSVs",
		Long: `Import bank statement CSVs as read-only transactions. Only debits are kept.

With no files, every CSV in <dir>/import is imported and moved to
<dir>/import/processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				var (
					results []engine.ImportResult
					err     error
				)
				if len(args) == 0 {
					results, _, err = a.svc.ImportDir(cmd.Context(), a.user, a.root, format)
				} else {
					results, _, err = a.svc.ImportFiles(cmd.Context(), a.user, args, format)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(out, "Nothing to import")
					return nil
				}
				for _, r := range results {
					fmt.Fprintf(out, "%s: imported %d of %d rows\n", r.File, r.Imported, r.Records)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", engine.DefaultFormat,
		fmt.Sprintf("CSV format (%s)", strings.Join(importer.DefaultRegistry().Formats(), ", ")))

	return cmd
}

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				snap, err := a.svc.Refresh(cmd.Context(), a.user)
				if err != nil {
					return err
				}
				return writeTransactions(cmd.OutOrStdout(), snap.Transactions)
			})
		},
	}
}

func writeTransactions(w io.Writer, txns []model.Transaction) error {
	if len(txns) == 0 {
		_, err := fmt.Fprintln(w, "No transactions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tSOURCE\tFLAGS\tDESCRIPTION")
	for _, t := range txns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date.Format(dateFormat), t.Category, t.Amount.StringFixed(2), t.Source,
			strings.TrimSpace(flags(t)), t.Description)
	}
	return tw.Flush()
}

func newDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a manual transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if _, err := a.svc.Delete(cmd.Context(), a.user, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
