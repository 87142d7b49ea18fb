package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/decision-api/internal/config"
	"riskgate/decision-api/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestDefaultRules_Values(t *testing.T) {
	r := config.DefaultRules()

	assert.Equal(t, 10, r.ScoreToDecision.RejectAt)
	assert.Equal(t, 4, r.ScoreToDecision.ReviewAt)
	assert.Equal(t, 2500.0, r.AmountThresholds["digital"])
	assert.Equal(t, 4000.0, r.AmountThresholds[config.DefaultThresholdKey])
	assert.Equal(t, 2, r.ChargebackHardBlock)
	assert.Equal(t, 2500, r.LatencyMsExtreme)
	assert.Equal(t, -2, r.ScoreWeights.UserReputation["trusted"])
	assert.NoError(t, r.Validate())
	assert.True(t, r.Ordered())
}

func TestDefaultRules_ReturnsFreshMaps(t *testing.T) {
	a := config.DefaultRules()
	a.AmountThresholds["digital"] = 1

	b := config.DefaultRules()
	assert.Equal(t, 2500.0, b.AmountThresholds["digital"])
}

// ─── Build ────────────────────────────────────────────────────────────────────

func TestBuild_NoOverrides_KeepsBase(t *testing.T) {
	r, err := config.Build(config.DefaultRules(), nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRules(), r)
}

func TestBuild_AppliesBothOverrides(t *testing.T) {
	r, err := config.Build(config.DefaultRules(), map[string]string{
		config.OverrideRejectAt: "12",
		config.OverrideReviewAt: " 6 ",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, r.ScoreToDecision.RejectAt)
	assert.Equal(t, 6, r.ScoreToDecision.ReviewAt)
}

func TestBuild_IgnoresUnknownKeys(t *testing.T) {
	r, err := config.Build(config.DefaultRules(), map[string]string{"NIGHT_HOUR": "9"})
	require.NoError(t, err)
	assert.Equal(t, 1, r.ScoreWeights.NightHour)
}

func TestBuild_MalformedOverride_Fails(t *testing.T) {
	for _, bad := range []string{"", "ten", "4.5"} {
		_, err := config.Build(config.DefaultRules(), map[string]string{config.OverrideReviewAt: bad})
		assert.Error(t, err, "value %q", bad)
	}
}

func TestBuild_DoesNotMutateBase(t *testing.T) {
	base := config.DefaultRules()
	_, err := config.Build(base, map[string]string{config.OverrideRejectAt: "99"})
	require.NoError(t, err)
	assert.Equal(t, 10, base.ScoreToDecision.RejectAt)
}

func TestBuild_InvertedThresholds_Allowed(t *testing.T) {
	r, err := config.Build(config.DefaultRules(), map[string]string{
		config.OverrideRejectAt: "3",
		config.OverrideReviewAt: "8",
	})
	require.NoError(t, err)
	assert.False(t, r.Ordered())
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func TestValidate_MissingDefaultThreshold(t *testing.T) {
	r := config.DefaultRules()
	delete(r.AmountThresholds, config.DefaultThresholdKey)
	assert.ErrorIs(t, r.Validate(), config.ErrMissingDefaultThreshold)
}

func TestValidate_NegativeValues(t *testing.T) {
	r := config.DefaultRules()
	r.LatencyMsExtreme = -1
	assert.Error(t, r.Validate())

	r = config.DefaultRules()
	r.ChargebackHardBlock = -1
	assert.Error(t, r.Validate())

	r = config.DefaultRules()
	r.AmountThresholds["digital"] = -5
	assert.Error(t, r.Validate())
}

func TestClone_IsDeep(t *testing.T) {
	a := config.DefaultRules()
	b := a.Clone()
	b.ScoreWeights.IPRisk["medium"] = 50
	b.AmountThresholds["digital"] = 1
	assert.Equal(t, 2, a.ScoreWeights.IPRisk["medium"])
	assert.Equal(t, 2500.0, a.AmountThresholds["digital"])
}

// ─── YAML ─────────────────────────────────────────────────────────────────────

func TestLoadRules_EmptyPath_ReturnsDefaults(t *testing.T) {
	r, err := config.LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRules(), r)
}

func TestLoadRules_PartialFile_MergesOverDefaults(t *testing.T) {
	path := writeFile(t, `
amount_thresholds:
  digital: 1000
  gift_card: 300
score_weights:
  ip_risk:
    medium: 3
  night_hour: 2
score_to_decision:
  reject_at: 12
`)
	r, err := config.LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, r.AmountThresholds["digital"])
	assert.Equal(t, 300.0, r.AmountThresholds["gift_card"])
	assert.Equal(t, 6000.0, r.AmountThresholds["physical"], "untouched keys keep defaults")
	assert.Equal(t, 3, r.ScoreWeights.IPRisk["medium"])
	assert.Equal(t, 4, r.ScoreWeights.IPRisk["high"])
	assert.Equal(t, 2, r.ScoreWeights.NightHour)
	assert.Equal(t, 12, r.ScoreToDecision.RejectAt)
	assert.Equal(t, 4, r.ScoreToDecision.ReviewAt)
}

func TestLoadRules_MixedCaseKeys_AreLowered(t *testing.T) {
	path := writeFile(t, `
amount_thresholds:
  Digital: 100
  _DEFAULT: 50
score_weights:
  ip_risk:
    High: 9
  user_reputation:
    High_Risk: 7
`)
	r, err := config.LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, 100.0, r.AmountThresholds["digital"])
	assert.Equal(t, 50.0, r.AmountThresholds["_default"])
	assert.NotContains(t, r.AmountThresholds, "Digital")
	assert.Equal(t, 9, r.ScoreWeights.IPRisk["high"])
	assert.NotContains(t, r.ScoreWeights.IPRisk, "High")
	assert.Equal(t, 7, r.ScoreWeights.UserReputation["high_risk"])
	assert.NoError(t, r.Validate())
}

func TestLoadRules_KeysCollidingOnceLowered_Fail(t *testing.T) {
	path := writeFile(t, "score_weights:\n  email_risk:\n    high: 3\n    HIGH: 5\n")
	_, err := config.LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score_weights.email_risk")
}

func TestLoadRules_MissingFile_Fails(t *testing.T) {
	_, err := config.LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRules_InvalidYAML_Fails(t *testing.T) {
	path := writeFile(t, "score_to_decision: [not, a, map")
	_, err := config.LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRules_WrongType_Fails(t *testing.T) {
	path := writeFile(t, "latency_ms_extreme: soon\n")
	_, err := config.LoadRules(path)
	assert.Error(t, err)
}

func TestResolve_FileThenOverrides(t *testing.T) {
	path := writeFile(t, "score_to_decision:\n  reject_at: 20\n  review_at: 5\n")
	r, err := config.Resolve(path, map[string]string{config.OverrideRejectAt: "15"})
	require.NoError(t, err)
	assert.Equal(t, 15, r.ScoreToDecision.RejectAt)
	assert.Equal(t, 5, r.ScoreToDecision.ReviewAt)
}

func TestYAML_RoundTripsThroughLoadRules(t *testing.T) {
	want, err := config.Build(config.DefaultRules(), map[string]string{config.OverrideReviewAt: "5"})
	require.NoError(t, err)

	data, err := want.YAML()
	require.NoError(t, err)

	got, err := config.LoadRules(writeFile(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEnvOverrides_ReadsOnlyKnownKeys(t *testing.T) {
	t.Setenv("REJECT_AT", "11")
	t.Setenv("NIGHT_HOUR", "5")

	got := config.EnvOverrides()
	assert.Equal(t, "11", got[config.OverrideRejectAt])
	assert.NotContains(t, got, "NIGHT_HOUR")
}

// ─── Settings ─────────────────────────────────────────────────────────────────

func TestLoadSettings_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "RISK_CONFIG", "ALERT_MIN_DECISION", "KAFKA_BROKERS", "KAFKA_TOPIC"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	s, err := config.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, ":8080", s.Address())
	assert.Equal(t, domain.DecisionRejected, s.AlertMinDecision)
	assert.Empty(t, s.KafkaBrokers)
	assert.Equal(t, "risk.decisions", s.KafkaTopic)
}

func TestLoadSettings_ParsesValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALERT_MIN_DECISION", "in_review")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")

	s, err := config.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 9090, s.Port)
	assert.Equal(t, domain.DecisionInReview, s.AlertMinDecision)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, s.KafkaBrokers)
}

func TestLoadSettings_BadValues_Fail(t *testing.T) {
	t.Setenv("PORT", "http")
	_, err := config.LoadSettings()
	assert.Error(t, err)

	t.Setenv("PORT", "8080")
	t.Setenv("ALERT_MIN_DECISION", "maybe")
	_, err = config.LoadSettings()
	assert.Error(t, err)
}
