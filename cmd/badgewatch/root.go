package main

import (
	"encoding/json"
	"fmt"
	"io"

	"badgewatch/internal/config"
	"badgewatch/internal/logger"
	"badgewatch/internal/synth"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "badgewatch"

type app struct {
	cfg    *config.Config
	log    *zap.Logger
	output string
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "badgewatch",
		Short:         "Badge access anomaly rosters",
		Long:          "badgewatch generates a synthetic badge-access dataset, scores each person and serves monthly rosters.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table or json")

	cmd.AddCommand(
		newServeCmd(a),
		newMonthsCmd(a),
		newRosterCmd(a),
		newProfileCmd(a),
		newExportCmd(a),
		newRefreshCmd(a),
	)
	return cmd
}

func (a *app) init() error {
	if a.output != "table" && a.output != "json" {
		return fmt.Errorf("unsupported output format: %s", a.output)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = log
	return nil
}

func (a *app) dataset() synth.Dataset {
	return synth.GenerateDataset(synth.DatasetConfig{
		Seed:         a.cfg.Dataset.Seed,
		PersonCount:  a.cfg.Dataset.PersonCount,
		Anchor:       a.cfg.Dataset.Anchor,
		LookbackDays: a.cfg.Dataset.LookbackDays,
	})
}

func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
