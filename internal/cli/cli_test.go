package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"riskgate/decision-api/internal/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	rulesPath = ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion_PrintsJSON(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "riskgate", info["name"])
	assert.NotEmpty(t, info["version"])
}

func TestConfig_PrintsDefaultRulesAsYAML(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)

	var rules config.Rules
	require.NoError(t, yaml.Unmarshal([]byte(out), &rules))
	assert.Equal(t, config.DefaultRules(), rules)
}

func TestConfig_AppliesFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("latency_ms_extreme: 4000\n"), 0o644))
	t.Setenv("REJECT_AT", "12")

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)

	var rules config.Rules
	require.NoError(t, yaml.Unmarshal([]byte(out), &rules))
	assert.Equal(t, 4000, rules.LatencyMsExtreme)
	assert.Equal(t, 12, rules.ScoreToDecision.RejectAt)
	assert.Equal(t, 4, rules.ScoreToDecision.ReviewAt)
}

func TestConfig_BadOverrideFails(t *testing.T) {
	t.Setenv("REVIEW_AT", "four")
	_, err := execute(t, "config")
	assert.Error(t, err)
}

func TestSeedThenBatch(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "transactions_examples.csv")
	out := filepath.Join(dir, "decisions.csv")

	stdout, err := execute(t, "seed", "--output", in, "--count", "40")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Generated 40 transactions")

	stdout, err = execute(t, "batch", "--input", in, "--output", out, "--workers", "4")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Scored 40 transactions")
	assert.Contains(t, stdout, "risk_score")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 41)
	assert.Equal(t, []string{"decision", "risk_score", "reasons"}, records[0][len(records[0])-3:])
}

func TestBatch_MissingInputFails(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "batch", "--input", filepath.Join(dir, "missing.csv"), "--output", filepath.Join(dir, "out.csv"))
	assert.Error(t, err)
}

func TestNewService_WiresSinksFromSettings(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	_, err := execute(t, "version")
	require.NoError(t, err)

	svc := newService(config.Settings{}, config.DefaultRules())
	assert.Nil(t, svc.notifier)
	assert.Nil(t, svc.publisher)

	svc = newService(config.Settings{
		AlertWebhookURL:  "http://127.0.0.1:1/alerts",
		AlertMinDecision: "REJECTED",
		KafkaBrokers:     []string{"127.0.0.1:9092"},
		KafkaTopic:       "risk.decisions",
	}, config.DefaultRules())
	assert.NotNil(t, svc.notifier)
	assert.NotNil(t, svc.publisher)
	assert.NotNil(t, svc.router)
	require.NoError(t, svc.publisher.Close())
}
