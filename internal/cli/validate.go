package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/settings"
)

func newValidateCmd() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a JSON or YAML rule list",
		Long: `Validate checks that every rule in FILE names a registered class and
carries parameters of the right shape, including nested conditional
branches.

Example:
  scorectl validate rules/alfa.yaml
  scorectl validate --max-depth 5 rules/alfa.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := loadRules(args[0])
			if err != nil {
				return err
			}
			if err := rules.NewDefaultRegistry().ValidateDepth(cfgs, maxDepth); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", args[0], len(cfgs))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", domain.DefaultMaxDepth, "Maximum nesting of conditional rules")
	return cmd
}

func loadRules(path string) ([]domain.RuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	cfgs, err := settings.DecodeRules(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return cfgs, nil
}
