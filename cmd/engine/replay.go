package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/replay"
)

func replayCmd() *cobra.Command {
	var (
		fixturePath string
		jsonOut     bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded fixture through a fresh in-memory engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fixturePath == "" {
				return fmt.Errorf("--fixture is required")
			}
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}

			results, summary, err := replay.Replay(cmd.Context(), f.ToInteractions(), f.Config.ToReplayConfig())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printReplayJSON(out, summary)
			}
			if verbose {
				printReplayTurns(out, results)
			}
			printReplaySummary(out, f.Description, summary)

			if len(f.ExpectedResults) == 0 {
				return nil
			}
			mismatches, err := f.Check(results)
			if err != nil {
				return err
			}
			for _, m := range mismatches {
				fmt.Fprintf(out, "MISMATCH turn %d (%s): expected=%s got=%s (%s)\n",
					m.Index, m.ID, m.Expected, m.Actual, m.Reason)
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("%d of %d interactions diverged from the fixture", len(mismatches), len(results))
			}
			fmt.Fprintf(out, "\nAll %d interactions match the fixture.\n", len(results))
			return nil
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "path to replay fixture JSON")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every interaction")
	return cmd
}

// #region output
func printReplayTurns(out io.Writer, results []replay.ReplayResult) {
	fmt.Fprintf(out, "%-10s  %-8s  %6s  %6s  %-8s  %s\n", "ID", "Action", "Conf", "Risk", "Fallback", "Suggested")
	for _, r := range results {
		d := r.Decision
		fmt.Fprintf(out, "%-10s  %-8s  %6.3f  %6.3f  %-8v  %s\n",
			r.ID, r.Action, d.Confidence, d.Risk, d.Fallback, d.SuggestedAmount.String())
		if r.OutcomeErr != nil {
			fmt.Fprintf(out, "            outcome error: %v\n", r.OutcomeErr)
		}
	}
	fmt.Fprintln(out)
}

func printReplaySummary(out io.Writer, description string, s replay.ReplaySummary) {
	if description != "" {
		fmt.Fprintf(out, "Fixture: %s\n", description)
	}
	fmt.Fprintf(out, "Turns: %d | Approved: %d | Rejected: %d | Invalid: %d | Fallbacks: %d | Outcomes: %d\n",
		s.TotalTurns, s.Approvals, s.Rejections, s.Invalid, s.Fallbacks, s.Outcomes)
	fmt.Fprintf(out, "Agreement: %.4f\n", s.FinalPerformance.Agreement)
	fmt.Fprintf(out, "Final weights:\n")
	for _, name := range slices.Sorted(maps.Keys(s.FinalWeights)) {
		fmt.Fprintf(out, "  %-12s %.4f  (accuracy %.4f)\n", name, s.FinalWeights[name], s.FinalPerformance.Accuracy[name])
	}
}

func printReplayJSON(out io.Writer, s replay.ReplaySummary) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// #endregion output
