// Package cli implements claimctl, the terminal client for the accident-claim
// questionnaire: an interactive run, an offline evaluator for answer files
// and a catalog printer.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/qualify"
)

// Execute runs claimctl and exits non-zero on failure.
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// engineFlags are the persistent flags that shape the questionnaire.
type engineFlags struct {
	catalogFile   string
	asOf          string
	accidentDays  int
	treatmentDays int
}

// NewRootCmd builds the claimctl command tree.
func NewRootCmd() *cobra.Command {
	var debug bool
	ef := &engineFlags{}

	cmd := &cobra.Command{
		Use:          "claimctl",
		Short:        "claimctl: accident claim pre-qualification from the terminal",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogger(cmd.ErrOrStderr(), debug)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&debug, "debug", false, "log at debug level to stderr")
	pf.StringVar(&ef.catalogFile, "catalog", "", "question catalog YAML file (default: built-in catalog)")
	pf.StringVar(&ef.asOf, "as-of", "", "evaluate as of this date (YYYY-MM-DD) instead of today")
	pf.IntVar(&ef.accidentDays, "accident-window-days", qualify.DefaultAccidentWindowDays, "days before today an accident may have occurred")
	pf.IntVar(&ef.treatmentDays, "treatment-window-days", qualify.DefaultTreatmentWindowDays, "days after the accident treatment must have started")

	cmd.AddCommand(runCmd(ef))
	cmd.AddCommand(evaluateCmd(ef))
	cmd.AddCommand(catalogCmd(ef))
	return cmd
}

// setupLogger sends logs to w: warnings only unless debug is set.
func setupLogger(w io.Writer, debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// clock returns the evaluation clock the flags select.
func (ef *engineFlags) clock() (func() time.Time, error) {
	if ef.asOf == "" {
		return time.Now, nil
	}
	t, err := time.Parse(models.DateLayout, ef.asOf)
	if err != nil {
		return nil, fmt.Errorf("--as-of: %w", err)
	}
	// Midday keeps the calendar date stable across time zones.
	t = t.Add(12 * time.Hour)
	return func() time.Time { return t }, nil
}

func (ef *engineFlags) rules() (qualify.Rules, error) {
	if ef.accidentDays <= 0 || ef.treatmentDays <= 0 {
		return qualify.Rules{}, fmt.Errorf("eligibility windows must be positive (got %d and %d days)", ef.accidentDays, ef.treatmentDays)
	}
	return qualify.Rules{AccidentWindowDays: ef.accidentDays, TreatmentWindowDays: ef.treatmentDays}, nil
}

// engine builds the questionnaire engine the flags describe.
func (ef *engineFlags) engine() (*flow.Engine, error) {
	now, err := ef.clock()
	if err != nil {
		return nil, err
	}
	rules, err := ef.rules()
	if err != nil {
		return nil, err
	}
	env := catalog.Env{Now: now, Rules: rules}

	var base catalog.Catalog
	if ef.catalogFile != "" {
		base, err = catalog.LoadFile(ef.catalogFile, env)
	} else {
		base, err = catalog.Default(env)
	}
	if err != nil {
		return nil, err
	}
	return flow.NewEngine(base, flow.WithClock(now), flow.WithRules(rules)), nil
}
