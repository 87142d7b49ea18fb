// Package config builds the two configuration values the application runs on:
// the scoring Rules (weights, thresholds, decision cutoffs) and the process
// Settings (ports, sinks, logging).
//
// Rules are assembled once at startup from built-in defaults, an optional YAML
// file and the REJECT_AT / REVIEW_AT overrides, then validated. Anything
// malformed fails here so a bad deployment never reaches the scoring path.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"riskgate/decision-api/internal/domain"
)

// DefaultThresholdKey is the amount_thresholds entry used for unknown product types.
const DefaultThresholdKey = "_default"

// Override keys accepted by Build.
const (
	OverrideRejectAt = "REJECT_AT"
	OverrideReviewAt = "REVIEW_AT"
)

// ErrMissingDefaultThreshold is returned when amount_thresholds lacks "_default".
var ErrMissingDefaultThreshold = errors.New(`amount_thresholds must define "_default"`)

// Rules is the scoring configuration. Treat it as read-only once built: the
// engine shares one value across all concurrent scoring calls.
type Rules struct {
	AmountThresholds    map[string]float64 `yaml:"amount_thresholds" json:"amount_thresholds"`
	LatencyMsExtreme    int                `yaml:"latency_ms_extreme" json:"latency_ms_extreme"`
	ChargebackHardBlock int                `yaml:"chargeback_hard_block" json:"chargeback_hard_block"`
	ScoreWeights        ScoreWeights       `yaml:"score_weights" json:"score_weights"`
	ScoreToDecision     ScoreToDecision    `yaml:"score_to_decision" json:"score_to_decision"`
}

// ScoreWeights holds the point deltas per risk dimension.
type ScoreWeights struct {
	IPRisk                map[string]int `yaml:"ip_risk" json:"ip_risk"`
	EmailRisk             map[string]int `yaml:"email_risk" json:"email_risk"`
	DeviceFingerprintRisk map[string]int `yaml:"device_fingerprint_risk" json:"device_fingerprint_risk"`
	UserReputation        map[string]int `yaml:"user_reputation" json:"user_reputation"`
	NightHour             int            `yaml:"night_hour" json:"night_hour"`
	GeoMismatch           int            `yaml:"geo_mismatch" json:"geo_mismatch"`
	HighAmount            int            `yaml:"high_amount" json:"high_amount"`
	LatencyExtreme        int            `yaml:"latency_extreme" json:"latency_extreme"`
	NewUserHighAmount     int            `yaml:"new_user_high_amount" json:"new_user_high_amount"`
}

// ScoreToDecision holds the two score cutoffs.
// reject_at should be above review_at; the engine does not enforce it.
type ScoreToDecision struct {
	RejectAt int `yaml:"reject_at" json:"reject_at"`
	ReviewAt int `yaml:"review_at" json:"review_at"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		AmountThresholds: map[string]float64{
			"digital":      2500,
			"physical":     6000,
			"subscription": 1500,
			"_default":     4000,
		},
		LatencyMsExtreme:    2500,
		ChargebackHardBlock: 2,
		ScoreWeights: ScoreWeights{
			IPRisk:                map[string]int{"low": 0, "medium": 2, "high": 4},
			EmailRisk:             map[string]int{"low": 0, "medium": 1, "high": 3, "new_domain": 2},
			DeviceFingerprintRisk: map[string]int{"low": 0, "medium": 2, "high": 4},
			UserReputation:        map[string]int{"trusted": -2, "recurrent": -1, "new": 0, "high_risk": 4},
			NightHour:             1,
			GeoMismatch:           2,
			HighAmount:            2,
			LatencyExtreme:        2,
			NewUserHighAmount:     2,
		},
		ScoreToDecision: ScoreToDecision{
			RejectAt: 10,
			ReviewAt: 4,
		},
	}
}

// Clone returns a deep copy so callers can derive a new Rules value without
// aliasing the maps of the original.
func (r Rules) Clone() Rules {
	out := r
	out.AmountThresholds = maps.Clone(r.AmountThresholds)
	out.ScoreWeights.IPRisk = maps.Clone(r.ScoreWeights.IPRisk)
	out.ScoreWeights.EmailRisk = maps.Clone(r.ScoreWeights.EmailRisk)
	out.ScoreWeights.DeviceFingerprintRisk = maps.Clone(r.ScoreWeights.DeviceFingerprintRisk)
	out.ScoreWeights.UserReputation = maps.Clone(r.ScoreWeights.UserReputation)
	return out
}

// Validate rejects rule sets the engine cannot run on.
func (r Rules) Validate() error {
	if _, ok := r.AmountThresholds[DefaultThresholdKey]; !ok {
		return ErrMissingDefaultThreshold
	}
	for product, t := range r.AmountThresholds {
		if t < 0 {
			return fmt.Errorf("amount_thresholds.%s must not be negative, got %v", product, t)
		}
	}
	if r.LatencyMsExtreme < 0 {
		return fmt.Errorf("latency_ms_extreme must not be negative, got %d", r.LatencyMsExtreme)
	}
	if r.ChargebackHardBlock < 0 {
		return fmt.Errorf("chargeback_hard_block must not be negative, got %d", r.ChargebackHardBlock)
	}
	return nil
}

// Ordered reports whether reject_at sits above review_at. A false result is
// legal but means IN_REVIEW can never be produced.
func (r Rules) Ordered() bool {
	return r.ScoreToDecision.RejectAt > r.ScoreToDecision.ReviewAt
}

// Build derives a validated Rules value from base and an optional override
// map. Only REJECT_AT and REVIEW_AT are recognised; their values must parse
// as integers. base is not modified.
func Build(base Rules, overrides map[string]string) (Rules, error) {
	out := base.Clone()

	if v, ok := overrides[OverrideRejectAt]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Rules{}, fmt.Errorf("invalid %s %q: %w", OverrideRejectAt, v, err)
		}
		out.ScoreToDecision.RejectAt = n
	}
	if v, ok := overrides[OverrideReviewAt]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Rules{}, fmt.Errorf("invalid %s %q: %w", OverrideReviewAt, v, err)
		}
		out.ScoreToDecision.ReviewAt = n
	}

	if err := out.Validate(); err != nil {
		return Rules{}, err
	}
	return out, nil
}

// LoadRules reads a YAML rules file over the defaults. An empty path means
// defaults only. Values present in the file overwrite defaults; keys inside
// weight maps are merged, so a file only needs to name what it changes.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules file: %w", err)
	}

	// Transactions are matched in lower case, so file keys are too.
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if err := lowerKeys("amount_thresholds", rules.AmountThresholds, file.AmountThresholds); err != nil {
		return Rules{}, err
	}
	for _, m := range []struct {
		section      string
		merged, file map[string]int
	}{
		{"score_weights.ip_risk", rules.ScoreWeights.IPRisk, file.ScoreWeights.IPRisk},
		{"score_weights.email_risk", rules.ScoreWeights.EmailRisk, file.ScoreWeights.EmailRisk},
		{"score_weights.device_fingerprint_risk", rules.ScoreWeights.DeviceFingerprintRisk, file.ScoreWeights.DeviceFingerprintRisk},
		{"score_weights.user_reputation", rules.ScoreWeights.UserReputation, file.ScoreWeights.UserReputation},
	} {
		if err := lowerKeys(m.section, m.merged, m.file); err != nil {
			return Rules{}, err
		}
	}
	return rules, nil
}

// lowerKeys replaces every key the file named in merged with its lower-case
// form. Built-in keys are already lower-case, so the file value wins.
func lowerKeys[V any](section string, merged, file map[string]V) error {
	seen := make(map[string]string, len(file))
	for _, k := range slices.Sorted(maps.Keys(file)) {
		key := domain.Lower(k)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%s: keys %q and %q are the same once lower-cased", section, prev, k)
		}
		seen[key] = k
		delete(merged, k)
		merged[key] = file[k]
	}
	return nil
}

// Resolve is the startup path: rules file, then overrides, then validation.
func Resolve(path string, overrides map[string]string) (Rules, error) {
	base, err := LoadRules(path)
	if err != nil {
		return Rules{}, err
	}
	return Build(base, overrides)
}

// EnvOverrides collects REJECT_AT / REVIEW_AT from the process environment.
func EnvOverrides() map[string]string {
	out := make(map[string]string, 2)
	for _, key := range []string{OverrideRejectAt, OverrideReviewAt} {
		if v, ok := os.LookupEnv(key); ok {
			out[key] = v
		}
	}
	return out
}

// YAML renders rules as the document LoadRules accepts.
func (r Rules) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}
