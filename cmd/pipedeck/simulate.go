package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/npratt/pipedeck/internal/config"
	"github.com/npratt/pipedeck/internal/scenario"
	"github.com/npratt/pipedeck/internal/tui"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// simulateResult is one scenario's outcome in --json output.
type simulateResult struct {
	Name       string              `json:"name"`
	Passed     bool                `json:"passed"`
	Error      string              `json:"error,omitempty"`
	Mismatches []string            `json:"mismatches,omitempty"`
	Overview   *viewmodel.Overview `json:"overview,omitempty"`
}

func newSimulateCmd(a *app) *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Replay scenario files without a daemon",
		Long: `Replay each scenario against a fresh in-process dispatcher and print
the resulting overview. Scenarios with an expect block are checked and
the command fails if any expectation does not hold.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(viper.GetViper())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Replays are quiet unless --verbose.
			logger := NewLogger(io.Discard, a.logLevel)
			if viper.GetBool(FlagVerbose) {
				logger = a.logger
			}

			results := make([]simulateResult, 0, len(args))
			for _, path := range args {
				results = append(results, runScenario(cmd, cfg, path, logger))
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool(FlagJSON); asJSON {
				if err := printJSON(out, results); err != nil {
					return err
				}
			} else {
				printResults(out, results)
			}

			failed := 0
			for _, r := range results {
				if !r.Passed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
			}
			return nil
		},
	}
	simulateCmd.Flags().Bool(FlagJSON, false, "Output results as JSON")
	return simulateCmd
}

func runScenario(cmd *cobra.Command, cfg *config.Config, path string, logger *slog.Logger) simulateResult {
	s, err := scenario.Load(path)
	if err != nil {
		return simulateResult{Name: path, Error: err.Error()}
	}

	ov, err := scenario.Replay(cmd.Context(), cfg, s, logger)
	if err != nil {
		return simulateResult{Name: s.Name, Error: err.Error()}
	}

	mismatches := s.Expect.Check(ov)
	return simulateResult{
		Name:       s.Name,
		Passed:     len(mismatches) == 0,
		Mismatches: mismatches,
		Overview:   ov,
	}
}

func printResults(w io.Writer, results []simulateResult) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s\n", r.Name)
		if r.Overview != nil {
			fmt.Fprint(w, tui.FormatOverview(r.Overview))
		}
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "FAIL: %s\n", r.Error)
		case !r.Passed:
			fmt.Fprintln(w, "FAIL")
			for _, m := range r.Mismatches {
				fmt.Fprintf(w, "  %s\n", m)
			}
		default:
			fmt.Fprintln(w, "PASS")
		}
	}
}
