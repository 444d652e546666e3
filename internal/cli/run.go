package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/ClaimCheck/internal/lead"
	"github.com/BTreeMap/ClaimCheck/internal/store"
)

func runCmd(ef *engineFlags) *cobra.Command {
	var dsn string
	var testMode bool

	c := &cobra.Command{
		Use:   "run",
		Short: "Answer the questionnaire interactively",
		Long: `Walks through the questionnaire one question at a time.

Answer choices by number or label, dates as YYYY-MM-DD and checkboxes as a
comma-separated list. Press enter to keep the current answer. Type :back,
:restart or :quit at any prompt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := ef.engine()
			if err != nil {
				return err
			}
			st, err := store.Open(dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() {
				if cerr := st.Close(); cerr != nil {
					slog.Warn("claimctl run: close store", "error", cerr)
				}
			}()

			display := NewTerminalDisplay(cmd.InOrStdin(), cmd.OutOrStdout())
			session := engine.NewSession(testMode)
			if testMode {
				fmt.Fprintln(cmd.OutOrStdout(), "[test mode] submissions are marked as tests")
			}
			return engine.Run(cmd.Context(), session, display, display, lead.NewSubmitter(st))
		},
	}

	c.Flags().StringVar(&dsn, "db", "", "store submitted leads in this database (SQLite path or Postgres DSN; default: memory)")
	c.Flags().BoolVar(&testMode, "test", false, "mark the session as a test")
	return c
}
