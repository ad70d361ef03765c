package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/fusion"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
)

// decideLine is one stdin line: either a request with its vault snapshot or
// an outcome for an earlier decision.
type decideLine struct {
	Request    *payment.Request     `json:"request,omitempty"`
	Vault      *payment.VaultStatus `json:"vault,omitempty"`
	DecisionID string               `json:"decision_id,omitempty"`
	Outcome    *payment.Outcome     `json:"outcome,omitempty"`
}

type outcomeAck struct {
	DecisionID string `json:"decision_id"`
	Recorded   bool   `json:"recorded"`
	Error      string `json:"error,omitempty"`
}

func decideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decide",
		Short: "Decide JSON-lines payment requests from stdin",
		Long: `Read one JSON object per line from stdin and write one per line to stdout.

Request lines:  {"request": {...}, "vault": {...}}  -> decision
Outcome lines:  {"decision_id": "...", "outcome": {"success": true}}  -> ack`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			engine, err := newEngine(cfg, logger, store, nil)
			if err != nil {
				return err
			}
			return runDecide(cmd.Context(), engine, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runDecide(ctx context.Context, engine *fusion.Engine, logger *zap.Logger, in io.Reader, out io.Writer) error {
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var line decideLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch {
		case line.Outcome != nil:
			ack := outcomeAck{DecisionID: line.DecisionID, Recorded: true}
			if err := engine.RecordOutcome(ctx, line.DecisionID, *line.Outcome); err != nil {
				ack.Recorded = false
				ack.Error = err.Error()
			}
			if err := enc.Encode(ack); err != nil {
				return err
			}
		case line.Request != nil:
			if line.Vault == nil {
				return fmt.Errorf("line %d: vault snapshot is required", lineNum)
			}
			d := engine.Decide(ctx, *line.Request, *line.Vault)
			if err := enc.Encode(d); err != nil {
				return err
			}
		default:
			logger.Warn("skipping line with neither request nor outcome", zap.Int("line", lineNum))
		}
	}
	return scanner.Err()
}
