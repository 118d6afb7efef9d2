package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/curb-dev/curb/internal/activity"
	"github.com/curb-dev/curb/internal/advisory"
	"github.com/curb-dev/curb/internal/engine"
	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/model"
)

func newAlertsCommand(opts *globalOptions) *cobra.Command {
	var (
		dismiss []string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show spending habit alerts for this month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				snap, err := a.svc.Refresh(cmd.Context(), a.user)
				if err != nil {
					return err
				}
				for _, key := range dismiss {
					if snap, err = a.svc.Dismiss(cmd.Context(), a.user, key); err != nil {
						return err
					}
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), alertsJSON(snap.Alerts))
				}
				return writeAlerts(cmd.OutOrStdout(), snap.Alerts)
			})
		},
	}

	cmd.Flags().StringSliceVar(&dismiss, "dismiss", nil, "alert keys to hide from this listing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output alerts as JSON")

	return cmd
}

func writeAlerts(w io.Writer, all []model.HabitAlert) error {
	if len(all) == 0 {
		_, err := fmt.Fprintln(w, "No alerts")
		return err
	}
	for _, a := range all {
		fmt.Fprintf(w, "[%s] %s (%s)\n", strings.ToUpper(string(a.Severity)), a.Title, a.Key)
		fmt.Fprintf(w, "  %s\n", a.Description)
		fmt.Fprintf(w, "  %s\n", a.Suggestion)
		if a.SavingPotential.IsPositive() {
			fmt.Fprintf(w, "  Saving potential: %s\n", a.SavingPotential.StringFixed(2))
		}
	}
	return nil
}

type alertJSON struct {
	Key             string `json:"key"`
	Category        string `json:"category"`
	Severity        string `json:"severity"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Suggestion      string `json:"suggestion"`
	SavingPotential string `json:"saving_potential"`
	Period          string `json:"period"`
}

func alertsJSON(all []model.HabitAlert) []alertJSON {
	out := make([]alertJSON, len(all))
	for i, a := range all {
		out[i] = alertJSON{
			Key:             a.Key,
			Category:        string(a.Category),
			Severity:        string(a.Severity),
			Title:           a.Title,
			Description:     a.Description,
			Suggestion:      a.Suggestion,
			SavingPotential: a.SavingPotential.StringFixed(2),
			Period:          a.Period,
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSavingsCommand(opts *globalOptions) *cobra.Command {
	var (
		period string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "savings",
		Short: "Show how much caps have saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if period != "" {
				if _, _, err := id.ParsePeriod(period); err != nil {
					return err
				}
			}
			return withApp(cmd, opts, func(a *app) error {
				s, err := a.svc.Savings(cmd.Context(), a.user, period)
				if err != nil {
					return err
				}
				if period != "" {
					if asJSON {
						return writeJSON(cmd.OutOrStdout(), s)
					}
					return writeSavings(cmd.OutOrStdout(), period, s)
				}

				months, err := a.svc.SavingsByPeriod(cmd.Context(), a.user)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), savingsHistory{SavingsSummary: s, Periods: months})
				}
				if err := writeSavings(cmd.OutOrStdout(), "all time", s); err != nil {
					return err
				}
				return writeSavingsByPeriod(cmd.OutOrStdout(), months)
			})
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "limit to one month, YYYY-MM")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the summary as JSON")

	return cmd
}

// savingsHistory is the JSON shape of an all-time savings report.
type savingsHistory struct {
	model.SavingsSummary
	Periods []engine.PeriodSavings `json:"periods"`
}

func writeSavings(w io.Writer, period string, s model.SavingsSummary) error {
	fmt.Fprintf(w, "Savings (%s)\n", period)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Prevented\t%s\n", s.Prevented.StringFixed(2))
	fmt.Fprintf(tw, "Reduced\t%s\n", s.Reduced.StringFixed(2))
	fmt.Fprintf(tw, "Optimized\t%s\n", s.Optimized.StringFixed(2))
	fmt.Fprintf(tw, "Total\t%s\n", s.Total.StringFixed(2))
	return tw.Flush()
}

func writeSavingsByPeriod(w io.Writer, months []engine.PeriodSavings) error {
	if len(months) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tPREVENTED\tREDUCED\tOPTIMIZED\tTOTAL")
	for _, m := range months {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Period, m.Prevented.StringFixed(2),
			m.Reduced.StringFixed(2), m.Optimized.StringFixed(2), m.Total.StringFixed(2))
	}
	return tw.Flush()
}

func newActivityCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show purchases the category caps blocked or reduced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				entries, err := a.svc.Activity(a.user)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), activityJSON(entries))
				}
				return writeActivity(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output entries as JSON")

	return cmd
}

func writeActivity(w io.Writer, entries []activity.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No cap activity")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tCATEGORY\tREQUESTED\tCOMMITTED\tSAVED\tREF")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"), e.Action, e.Category,
			e.Requested.StringFixed(2), e.Committed.StringFixed(2), e.Saved.StringFixed(2), e.Ref)
	}
	return tw.Flush()
}

type activityEntryJSON struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Category  string `json:"category"`
	Requested string `json:"requested"`
	Committed string `json:"committed"`
	Saved     string `json:"saved"`
	Ref       string `json:"ref"`
}

func activityJSON(entries []activity.Entry) []activityEntryJSON {
	out := make([]activityEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = activityEntryJSON{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Action:    e.Action,
			Category:  string(e.Category),
			Requested: e.Requested.StringFixed(2),
			Committed: e.Committed.StringFixed(2),
			Saved:     e.Saved.StringFixed(2),
			Ref:       e.Ref,
		}
	}
	return out
}

func newAdviseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "advise [question]",
		Short: "Get suggestions, or ask a question about your spending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				out := cmd.OutOrStdout()
				if len(args) > 0 {
					reply, err := a.svc.Ask(cmd.Context(), a.user, strings.Join(args, " "))
					if err != nil {
						return err
					}
					fmt.Fprintln(out, reply)
					return nil
				}

				if _, err := a.svc.Refresh(cmd.Context(), a.user); err != nil {
					return err
				}
				timeout := a.cfg.Advisory.Timeout
				if timeout <= 0 {
					timeout = advisory.DefaultTimeout
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if err := a.advisor.Wait(ctx); err != nil {
					a.logger.Warn("advice not ready", "error", err)
				}

				res, _ := a.advisor.Latest()
				if res.Empty() {
					fmt.Fprintln(out, advisory.FallbackMessage)
					return nil
				}
				for _, s := range res.Suggestions {
					fmt.Fprintf(out, "- %s\n", s)
				}
				for _, e := range res.Explanations {
					fmt.Fprintf(out, "  %s\n", e)
				}
				return nil
			})
		},
	}
}
