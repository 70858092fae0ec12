// Package cli implements the scorectl command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the scorectl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "scorectl",
		Short: "Inspect and evaluate underwriter rule sets",
		Long: `scorectl works with underwriter rule lists offline.
It lists the rule catalogue, validates rule files and evaluates them
against a request without any lookup collaborators.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newEvalCmd())
	return root
}

// Execute runs scorectl and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
