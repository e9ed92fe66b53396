package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/upb/workflow-runner/app"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/services/pipeline"
	"github.com/upb/workflow-runner/services/workflow"
)

var (
	execSteps         []string
	execInput         string
	execJSON          bool
	execLocalFallback bool
	execTotalTimeout  time.Duration
)

// execCmd runs one pipeline without the API or a database
var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run a step list once over some text",
	Long: `Run a step list once and print each step's output.

The input is read from --input, or from stdin when --input is empty or "-".

Example:
  workflow-runner exec --steps clean-text,summarize --input "some long text"
  cat notes.txt | workflow-runner exec --steps clean-text,generate-title --json`,
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringSliceVar(&execSteps, "steps", nil, "comma separated step identifiers (2 to 4)")
	execCmd.Flags().StringVar(&execInput, "input", "", "input text, or - for stdin")
	execCmd.Flags().BoolVar(&execJSON, "json", false, "print the result as JSON")
	execCmd.Flags().BoolVar(&execLocalFallback, "local-fallback", false, "allow local heuristics when providers are unavailable")
	execCmd.Flags().DurationVar(&execTotalTimeout, "total-timeout", 0, "override the pipeline's total time budget")
	_ = execCmd.MarkFlagRequired("steps")
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if _, err := pipeline.ValidateSteps(execSteps); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	input, err := readInput(execInput, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := workflow.ValidateInput(input); err != nil {
		return err
	}

	p, err := app.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	settings := p.Settings
	if cmd.Flags().Changed("local-fallback") {
		settings.AllowLocalFallback = execLocalFallback
	}
	if execTotalTimeout > 0 {
		settings.TotalTimeout = execTotalTimeout
	}

	result, err := p.Executor.Execute(ctx, execSteps, input, settings)
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), result, execJSON)
}

func readInput(flag string, stdin io.Reader) (string, error) {
	if flag != "" && flag != "-" {
		return flag, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func printResult(w io.Writer, result *models.PipelineResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*models.PipelineResult
			FinalOutput string `json:"final_output"`
		}{result, result.FinalOutput()})
	}

	for i, out := range result.StepOutputs {
		fmt.Fprintf(w, "== %d. %s\n%s\n\n", i+1, out.StepName.DisplayName(), strings.TrimSpace(out.Output))
	}
	fmt.Fprintf(w, "completed in %dms\n", result.ExecutionTimeMs)
	return nil
}
