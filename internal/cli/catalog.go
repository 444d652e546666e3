package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/ClaimCheck/internal/catalog"
)

func catalogCmd(ef *engineFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the question catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := ef.engine()
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), engine.Catalog())
			return nil
		},
	}
}

func printCatalog(w io.Writer, c catalog.Catalog) {
	for i, q := range c.Questions() {
		printQuestion(w, fmt.Sprintf("%d.", i+1), q)
	}
}

func printQuestion(w io.Writer, prefix string, q catalog.Question) {
	flags := ""
	if q.ReverseLogic {
		flags = ", yes disqualifies"
	}
	fmt.Fprintf(w, "%s %s [%s%s] %s\n", prefix, q.ID, q.Kind, flags, q.Prompt)
	for _, opt := range q.Choices() {
		mark := ""
		if !opt.Qualifying() {
			mark = " (disqualifies)"
		}
		fmt.Fprintf(w, "     - %s: %s%s\n", opt.Value, opt.Label, mark)
	}
	if q.FollowUp != nil {
		printQuestion(w, "   ->", q.FollowUp.Question)
	}
}
