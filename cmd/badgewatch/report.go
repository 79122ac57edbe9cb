package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/export"
	"badgewatch/internal/metrics"
	"badgewatch/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMonthsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "months",
		Short: "List the months present in the dataset, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			months := aggregator.ListMonthKeys(a.dataset().Events)
			if a.output == "json" {
				return a.writeJSON(months)
			}
			for _, m := range months {
				fmt.Fprintln(a.stdout, m)
			}
			return nil
		},
	}
}

// monthOrLatest falls back to the newest month of the dataset
func monthOrLatest(month string, events []models.BadgeEvent) (string, error) {
	if month != "" {
		return month, nil
	}
	months := aggregator.ListMonthKeys(events)
	if len(months) == 0 {
		return "", fmt.Errorf("dataset has no events")
	}
	return months[0], nil
}

func newRosterCmd(a *app) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Print the monthly roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := a.dataset()
			monthKey, err := monthOrLatest(month, ds.Events)
			if err != nil {
				return err
			}
			summaries, err := aggregator.BuildMonthlySummaries(ds.People, ds.Events, monthKey)
			if err != nil {
				return err
			}
			if a.output == "json" {
				return a.writeJSON(summaries)
			}
			return a.printRoster(summaries)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month key YYYY-MM (default: newest month)")
	return cmd
}

func (a *app) printRoster(summaries []models.MonthlyPersonSummary) error {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERSON\tNAME\tSTATUS\tSCORE\tEVENTS\tDENIED%\tAFTER-HOURS%\tRAPID\tREASONS")
	for _, s := range summaries {
		status := aggregator.MonthlyStatus(s)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%.1f\t%.1f\t%d\t%s\n",
			s.PersonID, s.Name, status.Label, s.AnomalyScore, s.TotalEvents,
			s.DeniedRate, s.AfterHoursRate, s.RapidBadgingCount,
			strings.Join(status.Reasons, "; "))
	}
	return tw.Flush()
}

func newProfileCmd(a *app) *cobra.Command {
	var personID, month string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show a person's last-30-day profile, or their month with drivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := a.dataset()
			if month == "" {
				profile, err := aggregator.ProfileForPerson(personID, ds.People, ds.Events, ds.Anchor)
				if err != nil {
					return err
				}
				if a.output == "json" {
					return a.writeJSON(profile)
				}
				return a.printProfile(profile)
			}

			summaries, err := aggregator.BuildMonthlySummaries(ds.People, ds.Events, month)
			if err != nil {
				return err
			}
			row, err := aggregator.FindSummary(summaries, personID)
			if err != nil {
				return err
			}
			drivers := aggregator.ExplainDrivers(row, aggregator.BuildPeerBaseline(summaries))
			if a.output == "json" {
				return a.writeJSON(map[string]interface{}{
					"summary": row,
					"status":  aggregator.MonthlyStatus(row),
					"drivers": drivers,
				})
			}
			return a.printDrivers(row, drivers)
		},
	}
	cmd.Flags().StringVar(&personID, "person", "", "person ID, e.g. p-001")
	cmd.Flags().StringVar(&month, "month", "", "month key YYYY-MM")
	_ = cmd.MarkFlagRequired("person")
	return cmd
}

func (a *app) printProfile(p models.PersonProfile) error {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Person:\t%s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(tw, "Window:\t%s\n", p.ActiveWindowLabel)
	fmt.Fprintf(tw, "Status:\t%s\n", p.StatusLabel)
	fmt.Fprintf(tw, "Anomaly score:\t%.2f (%.0f%%)\n", p.AnomalyScore, metrics.AnomalyPercent(p.AnomalyScore))
	fmt.Fprintf(tw, "Events:\t%d approved, %d denied\n", p.ApprovedCount, p.DeniedCount)
	fmt.Fprintf(tw, "Entropy:\t%.2f bits\n", p.ShannonEntropy)
	fmt.Fprintf(tw, "Reasons:\t%s\n", strings.Join(p.StatusReasons, "; "))
	return tw.Flush()
}

func (a *app) printDrivers(s models.MonthlyPersonSummary, drivers []aggregator.Driver) error {
	status := aggregator.MonthlyStatus(s)
	fmt.Fprintf(a.stdout, "%s (%s) %s %s: score %.2f\n\n", s.Name, s.PersonID, s.MonthKey, status.Label, s.AnomalyScore)

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE\tPEER AVG\tP25\tP75\tDIRECTION")
	for _, d := range drivers {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			d.Label, d.Value, d.PeerAvg, d.P25, d.P75, d.Direction)
	}
	return tw.Flush()
}

func newExportCmd(a *app) *cobra.Command {
	var month, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the monthly roster to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := a.dataset()
			monthKey, err := monthOrLatest(month, ds.Events)
			if err != nil {
				return err
			}
			summaries, err := aggregator.BuildMonthlySummaries(ds.People, ds.Events, monthKey)
			if err != nil {
				return err
			}
			data, err := export.MonthlyRosterWorkbook(monthKey, summaries)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("badgewatch-roster-%s.xlsx", monthKey)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			a.log.Info("Exported roster",
				zap.String("month_key", monthKey),
				zap.String("path", out),
				zap.Int("person_count", len(summaries)),
			)
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month key YYYY-MM (default: newest month)")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: badgewatch-roster-<month>.xlsx)")
	return cmd
}
