package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/config"
)

const trustedLine = `{"request":{"id":"req-1","agent":"agent-1","recipient":"0xtrusted","amount":"10","purpose":"api service payment","timestamp":"2026-03-02T14:00:00Z"},"vault":{"balance":"10000","daily_limit":"1000","daily_spent":"0","remaining_allowance":"1000","whitelisted":true}}`

func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = dbPath
	cfg.Engine.Seed = 7
	return cfg
}

func TestRunDecide_DecisionsAndOutcomes(t *testing.T) {
	engine, err := newEngine(testConfig(t, ""), zap.NewNop(), nil, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	err = runDecide(context.Background(), engine, zap.NewNop(), strings.NewReader(trustedLine+"\n\n"), &out)
	require.NoError(t, err)

	var d struct {
		ID      string `json:"id"`
		Approve bool   `json:"approve"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &d))
	assert.True(t, d.Approve)

	outcome := `{"decision_id":"` + d.ID + `","outcome":{"success":true}}` + "\n" +
		`{"decision_id":"` + d.ID + `","outcome":{"success":true}}`
	out.Reset()
	require.NoError(t, runDecide(context.Background(), engine, zap.NewNop(), strings.NewReader(outcome), &out))

	scanner := bufio.NewScanner(&out)
	var acks []outcomeAck
	for scanner.Scan() {
		var ack outcomeAck
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ack))
		acks = append(acks, ack)
	}
	require.Len(t, acks, 2)
	assert.True(t, acks[0].Recorded)
	assert.False(t, acks[1].Recorded)
	assert.Contains(t, acks[1].Error, "unknown decision")
}

func TestRunDecide_Errors(t *testing.T) {
	engine, err := newEngine(testConfig(t, ""), zap.NewNop(), nil, nil)
	require.NoError(t, err)

	err = runDecide(context.Background(), engine, zap.NewNop(), strings.NewReader("{broken"), &bytes.Buffer{})
	assert.ErrorContains(t, err, "line 1")

	noVault := `{"request":{"recipient":"0xa","amount":"1","purpose":"p","timestamp":"2026-03-02T14:00:00Z"}}`
	err = runDecide(context.Background(), engine, zap.NewNop(), strings.NewReader(noVault), &bytes.Buffer{})
	assert.ErrorContains(t, err, "vault snapshot is required")
}

func TestReplayCommand(t *testing.T) {
	cmd := replayCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--fixture", filepath.Join("..", "..", "internal", "replay", "testdata", "live_session.json"), "-v"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Turns: 4")
	assert.Contains(t, out.String(), "All 4 interactions match the fixture.")
}

func TestReplayCommand_RequiresFixture(t *testing.T) {
	cmd := replayCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)
	assert.Error(t, cmd.Execute())
}

func TestInspectCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "engine.db")
	cfg := testConfig(t, dbPath)

	store, err := openStore(cfg)
	require.NoError(t, err)
	engine, err := newEngine(cfg, zap.NewNop(), store, nil)
	require.NoError(t, err)

	var decided bytes.Buffer
	require.NoError(t, runDecide(context.Background(), engine, zap.NewNop(), strings.NewReader(trustedLine), &decided))
	var d struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decided.Bytes(), &d))
	outcome := `{"decision_id":"` + d.ID + `","outcome":{"success":true}}`
	require.NoError(t, runDecide(context.Background(), engine, zap.NewNop(), strings.NewReader(outcome), &bytes.Buffer{}))
	require.NoError(t, store.Close())

	cmd := inspectCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--db", dbPath, "--json"})
	require.NoError(t, cmd.Execute())

	var got inspectOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got.Versions, 2)
	require.Len(t, got.Decisions, 1)
	assert.Equal(t, d.ID, got.Decisions[0].DecisionID)
	assert.Equal(t, "success", got.Decisions[0].Outcome)
	assert.NotEmpty(t, got.Decisions[0].Record)
}
