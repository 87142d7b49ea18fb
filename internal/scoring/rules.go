package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"riskgate/decision-api/internal/config"
	"riskgate/decision-api/internal/domain"
)

// assessment is one rule's contribution to the total.
type assessment struct {
	points  int
	reasons []string
}

func (a *assessment) add(points int, reason string) {
	if points == 0 {
		return
	}
	a.points += points
	a.reasons = append(a.reasons, reason)
}

type assessor func(domain.Transaction, config.Rules) assessment

// assessors run in this order; the order only affects how reasons are listed.
var assessors = []assessor{
	assessCategoricalRisks,
	assessUserReputation,
	assessTemporalRisk,
	assessGeographicalRisk,
	assessAmountRisk,
	assessLatencyRisk,
}

// ─── Rule 1: Categorical risks ────────────────────────────────────────────────

// Unknown categories score zero: they are neither rejected nor logged.
func assessCategoricalRisks(tx domain.Transaction, rules config.Rules) assessment {
	var a assessment
	dimensions := []struct {
		field   string
		value   string
		weights map[string]int
	}{
		{"ip_risk", tx.IPRisk, rules.ScoreWeights.IPRisk},
		{"email_risk", tx.EmailRisk, rules.ScoreWeights.EmailRisk},
		{"device_fingerprint_risk", tx.DeviceFingerprintRisk, rules.ScoreWeights.DeviceFingerprintRisk},
	}
	for _, d := range dimensions {
		points := d.weights[d.value]
		a.add(points, fmt.Sprintf("%s:%s(%s)", d.field, d.value, signed(points)))
	}
	return a
}

// ─── Rule 2: User reputation ──────────────────────────────────────────────────

// The only rule whose weights are expected to go negative.
func assessUserReputation(tx domain.Transaction, rules config.Rules) assessment {
	var a assessment
	points := rules.ScoreWeights.UserReputation[tx.UserReputation]
	a.add(points, fmt.Sprintf("user_reputation:%s(%s)", tx.UserReputation, signed(points)))
	return a
}

// ─── Rule 3: Time of day ──────────────────────────────────────────────────────

func assessTemporalRisk(tx domain.Transaction, rules config.Rules) assessment {
	var a assessment
	if IsNight(tx.Hour) {
		points := rules.ScoreWeights.NightHour
		a.add(points, fmt.Sprintf("night_hour:%d(%s)", tx.Hour, signed(points)))
	}
	return a
}

// IsNight reports whether hour falls in 22:00–05:59. It is total over all
// integers: 24 is not night, -1 is.
func IsNight(hour int) bool {
	return hour >= 22 || hour <= 5
}

// ─── Rule 4: Geography ────────────────────────────────────────────────────────

// Missing country data on either side is never penalised.
func assessGeographicalRisk(tx domain.Transaction, rules config.Rules) assessment {
	var a assessment
	bin, ip := tx.BINCountry, tx.IPCountry
	if bin != "" && ip != "" && bin != ip {
		points := rules.ScoreWeights.GeoMismatch
		a.add(points, fmt.Sprintf("geo_mismatch:%s!=%s(%s)", bin, ip, signed(points)))
	}
	return a
}

// ─── Rule 5: Amount ───────────────────────────────────────────────────────────

// A new customer only draws the extra weight on top of a high amount.
func assessAmountRisk(tx domain.Transaction, rules config.Rules) assessment {
	var a assessment
	if !HighAmount(tx.AmountMXN, tx.ProductType, rules.AmountThresholds) {
		return a
	}

	points := rules.ScoreWeights.HighAmount
	a.add(points, fmt.Sprintf("high_amount:%s:%s(%s)", tx.ProductType, FormatAmount(tx.AmountMXN), signed(points)))

	if tx.UserReputation == domain.ReputationNew {
		extra := rules.ScoreWeights.NewUserHighAmount
		a.add(extra, fmt.Sprintf("new_user_high_amount(%s)", signed(extra)))
	}
	return a
}

// HighAmount reports whether amount reaches the threshold for productType,
// falling back to the "_default" threshold for unconfigured products.
func HighAmount(amount decimal.Decimal, productType string, thresholds map[string]float64) bool {
	t, ok := thresholds[productType]
	if !ok {
		t = thresholds[config.DefaultThresholdKey]
	}
	return amount.GreaterThanOrEqual(decimal.NewFromFloat(t))
}

// ─── Rule 6: Latency ──────────────────────────────────────────────────────────

func assessLatencyRisk(tx domain.Transaction, rules config.Rules) assessment {
	var a assessment
	if tx.LatencyMs >= rules.LatencyMsExtreme {
		points := rules.ScoreWeights.LatencyExtreme
		a.add(points, fmt.Sprintf("latency_extreme:%dms(%s)", tx.LatencyMs, signed(points)))
	}
	return a
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// signed renders points with an explicit sign: +2, -1.
func signed(points int) string {
	return fmt.Sprintf("%+d", points)
}

// FormatAmount renders an amount in the shortest float notation that always
// keeps a fractional part (5200 -> "5200.0", 5200.5 -> "5200.5"), switching to
// exponent form outside [1e-4, 1e16).
func FormatAmount(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
