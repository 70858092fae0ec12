package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
)

type evalOptions struct {
	rulesPath    string
	requestPath  string
	bankCode     string
	strict       bool
	shortCircuit bool
	verbose      bool
	maxDepth     int
}

// EvalOutput is the JSON written by the eval command.
type EvalOutput struct {
	Mode         string       `json:"mode"`
	Result       rules.Result `json:"result"`
	RulesChecked int          `json:"rulesChecked"`
}

func newEvalCmd() *cobra.Command {
	opts := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a rule list against a request",
		Long: `Eval runs a rule list against a request file with no lookup
collaborators. Rules that need financial statements, contract history or
registry checks fail with the generic scoring error, or abort the run
with --strict.

Example:
  scorectl eval --rules alfa.yaml --request request.json
  scorectl eval --rules alfa.yaml --request request.yaml --short-circuit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.rulesPath, "rules", "", "Path to the JSON/YAML rule list")
	cmd.Flags().StringVar(&opts.requestPath, "request", "", "Path to the JSON/YAML request")
	cmd.Flags().StringVar(&opts.bankCode, "bank", "", "Bank code exposed to rules as bank.code")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Return rule defects as errors")
	cmd.Flags().BoolVar(&opts.shortCircuit, "short-circuit", false, "Stop at the first failing rule")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log rule defects to stderr")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", domain.DefaultMaxDepth, "Maximum nesting of conditional rules")
	_ = cmd.MarkFlagRequired("rules")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func runEval(cmd *cobra.Command, opts *evalOptions) error {
	cfgs, err := loadRules(opts.rulesPath)
	if err != nil {
		return err
	}
	req, err := loadRequest(opts.requestPath)
	if err != nil {
		return err
	}

	level := slog.LevelError + 1
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	evaluator := rules.NewEvaluator(rules.NewDefaultRegistry(),
		rules.WithLogger(logger),
		rules.WithStrict(opts.strict),
		rules.WithMaxDepth(opts.maxDepth),
	)

	var bank *domain.Bank
	if opts.bankCode != "" {
		bank = &domain.Bank{Code: opts.bankCode}
	}
	env := rules.NewEnv(bank, req, domain.Lookups{})

	mode := "agent"
	evaluate := evaluator.Evaluate
	if opts.shortCircuit {
		mode = "short_circuit"
		evaluate = evaluator.EvaluateShortCircuit
	}
	res, err := evaluate(cmd.Context(), env, cfgs)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(EvalOutput{Mode: mode, Result: res, RulesChecked: len(cfgs)})
}

// loadRequest reads a request written as JSON or YAML. YAML goes through
// JSON so both forms share the request's field names.
func loadRequest(path string) (*domain.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse request %s: %w", path, err)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var req domain.Request
	if err := json.Unmarshal(normalized, &req); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", path, err)
	}
	return &req, nil
}
