package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/logging"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
)

func inspectCmd() *cobra.Command {
	var (
		dbPath    string
		last      int
		decisions int
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show weight versions and recent decisions from the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.Storage.Path
			}
			if dbPath == "" {
				return fmt.Errorf("no database: pass --db or set storage.path")
			}

			store, err := state.NewStore(dbPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer store.Close()

			versions, err := store.ListVersionsWithDecisions(last)
			if err != nil {
				return err
			}
			entries, err := logging.RecentDecisions(store.DB(), decisions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printInspectJSON(out, versions, entries)
			}
			printVersionTable(out, versions)
			printDecisionTable(out, entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the engine database (defaults to storage.path)")
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent weight versions")
	cmd.Flags().IntVar(&decisions, "decisions", 20, "show N most recent decisions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of tables")
	return cmd
}

// #region tables
func printVersionTable(out io.Writer, versions []state.VersionWithDecision) {
	if len(versions) == 0 {
		fmt.Fprintln(out, "no weight versions found")
		return
	}
	fmt.Fprintf(out, "%-12s  %-12s  %8s  %9s  %-8s  %s\n", "Version", "Parent", "Outcomes", "Agreement", "Outcome", "Time")
	fmt.Fprintf(out, "%-12s+-%-12s+-%8s+-%9s+-%-8s+-%s\n",
		"------------", "------------", "--------", "---------", "--------", "--------------------")

	// store returns newest first; print chronologically
	for _, v := range slices.Backward(versions) {
		fmt.Fprintf(out, "%-12s  %-12s  %8d  %9.4f  %-8s  %s\n",
			shortID(v.VersionID), shortID(v.ParentID), v.Performance.Outcomes, v.Performance.Agreement,
			orDash(v.Outcome), v.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}

	latest := versions[0]
	fmt.Fprintf(out, "\nWeights (latest %s):\n", shortID(latest.VersionID))
	for _, name := range slices.Sorted(maps.Keys(latest.Weights)) {
		fmt.Fprintf(out, "  %-12s %.4f  %s\n", name, latest.Weights[name], bar(latest.Weights[name]))
	}
	fmt.Fprintln(out)
}

func printDecisionTable(out io.Writer, entries []logging.DecisionEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no decisions logged")
		return
	}
	fmt.Fprintf(out, "%-12s  %-14s  %12s  %-7s  %6s  %6s  %-8s  %s\n",
		"Decision", "Recipient", "Amount", "Approve", "Conf", "Risk", "Outcome", "Time")
	for _, e := range entries {
		approve := "no"
		if e.Approve {
			approve = "yes"
		}
		if e.Fallback {
			approve += "*"
		}
		fmt.Fprintf(out, "%-12s  %-14s  %12s  %-7s  %6.3f  %6.3f  %-8s  %s\n",
			shortID(e.DecisionID), truncate(e.Recipient, 14), e.Amount, approve,
			e.Confidence, e.Risk, orDash(e.Outcome), e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	fmt.Fprintln(out, "(* heuristic fallback)")
}

// #endregion tables

// #region json
type inspectOutput struct {
	Versions  []versionRow  `json:"versions"`
	Decisions []decisionRow `json:"decisions"`
}

type versionRow struct {
	VersionID   string             `json:"version_id"`
	ParentID    string             `json:"parent_id,omitempty"`
	Weights     map[string]float64 `json:"weights"`
	Performance state.Performance  `json:"performance"`
	DecisionID  string             `json:"decision_id,omitempty"`
	Outcome     string             `json:"outcome,omitempty"`
	CreatedAt   string             `json:"created_at"`
}

type decisionRow struct {
	DecisionID      string          `json:"decision_id"`
	VersionID       string          `json:"version_id,omitempty"`
	Recipient       string          `json:"recipient"`
	Amount          string          `json:"amount"`
	Approve         bool            `json:"approve"`
	Fallback        bool            `json:"fallback"`
	Confidence      float64         `json:"confidence"`
	Risk            float64         `json:"risk"`
	SuggestedAmount string          `json:"suggested_amount"`
	Reasoning       string          `json:"reasoning"`
	Outcome         string          `json:"outcome,omitempty"`
	Record          json.RawMessage `json:"record,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

func printInspectJSON(out io.Writer, versions []state.VersionWithDecision, entries []logging.DecisionEntry) error {
	o := inspectOutput{
		Versions:  make([]versionRow, 0, len(versions)),
		Decisions: make([]decisionRow, 0, len(entries)),
	}
	for _, v := range versions {
		o.Versions = append(o.Versions, versionRow{
			VersionID:   v.VersionID,
			ParentID:    v.ParentID,
			Weights:     v.Weights,
			Performance: v.Performance,
			DecisionID:  v.DecisionID,
			Outcome:     v.Outcome,
			CreatedAt:   v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	for _, e := range entries {
		row := decisionRow{
			DecisionID:      e.DecisionID,
			VersionID:       e.VersionID,
			Recipient:       e.Recipient,
			Amount:          e.Amount,
			Approve:         e.Approve,
			Fallback:        e.Fallback,
			Confidence:      e.Confidence,
			Risk:            e.Risk,
			SuggestedAmount: e.SuggestedAmount,
			Reasoning:       e.Reasoning,
			Outcome:         e.Outcome,
			CreatedAt:       e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if json.Valid([]byte(e.RecordJSON)) {
			row.Record = json.RawMessage(e.RecordJSON)
		}
		o.Decisions = append(o.Decisions, row)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}

// #endregion json

// #region helpers
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-1] + "~"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func bar(w float64) string {
	return strings.Repeat("#", int(w*40+0.5))
}

// #endregion helpers
