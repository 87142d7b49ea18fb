// Package scoring implements the rule-based transaction risk engine.
//
// Architecture:
//
//	Assess is a pure function of a resolved transaction and a Rules value.
//	It reads nothing else and writes nothing, so any number of goroutines may
//	score transactions concurrently against one shared Rules value.
//
// Pipeline:
//  1. Hard block: chargebacks at or above the limit on a high-risk IP rejects
//     outright with the sentinel score 100. Nothing else runs.
//  2. Assessors: categorical risks, reputation, time of day, geography,
//     amount and latency each add (or, for reputation, subtract) points.
//     All of them always run so the reason list is complete.
//  3. Frequency buffer: established, active customers get one point back.
//  4. Decision: the total is mapped through reject_at then review_at.
package scoring

import (
	"fmt"

	"riskgate/decision-api/internal/config"
	"riskgate/decision-api/internal/domain"
)

// HardBlockScore is the fixed score reported for hard-blocked transactions.
const HardBlockScore = 100

// Engine scores transactions against one fixed rule set.
type Engine struct {
	rules config.Rules
}

// New creates an engine bound to rules. rules must already be validated.
func New(rules config.Rules) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the rule set the engine scores with.
func (e *Engine) Rules() config.Rules {
	return e.rules
}

// Assess scores tx with the engine's rules.
func (e *Engine) Assess(tx domain.Transaction) domain.ScoreResult {
	return Assess(tx, e.rules)
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Assess maps a transaction to a decision, a risk score and the ordered list
// of reasons that produced it. Calling it twice with the same inputs yields
// identical results.
func Assess(tx domain.Transaction, rules config.Rules) domain.ScoreResult {
	if blocked, reasons := CheckHardBlock(tx, rules); blocked {
		return domain.ScoreResult{
			Decision:  domain.DecisionRejected,
			RiskScore: HardBlockScore,
			Reasons:   reasons,
		}
	}

	score := 0
	reasons := make([]string, 0, 8)
	for _, assess := range assessors {
		a := assess(tx, rules)
		score += a.points
		reasons = append(reasons, a.reasons...)
	}

	score, reasons = applyFrequencyBuffer(tx, score, reasons)

	return domain.ScoreResult{
		Decision:  Decide(score, rules.ScoreToDecision),
		RiskScore: score,
		Reasons:   reasons,
	}
}

// CheckHardBlock reports whether tx must be rejected before any scoring.
func CheckHardBlock(tx domain.Transaction, rules config.Rules) (bool, []string) {
	if tx.ChargebackCount >= rules.ChargebackHardBlock && tx.IPRisk == domain.RiskHigh {
		return true, []string{fmt.Sprintf("hard_block:chargebacks>=%d+ip_high", rules.ChargebackHardBlock)}
	}
	return false, nil
}

// Decide maps a total score to a decision. reject_at is checked first, so a
// score meeting both cutoffs is always REJECTED.
func Decide(score int, cutoffs config.ScoreToDecision) domain.Decision {
	switch {
	case score >= cutoffs.RejectAt:
		return domain.DecisionRejected
	case score >= cutoffs.ReviewAt:
		return domain.DecisionInReview
	default:
		return domain.DecisionAccepted
	}
}

// ─── Frequency buffer ─────────────────────────────────────────────────────────

// frequencyBufferMinTxns is the 30-day activity needed for the buffer.
const frequencyBufferMinTxns = 3

// applyFrequencyBuffer takes one point off a positive score for recurrent or
// trusted customers with steady recent activity.
func applyFrequencyBuffer(tx domain.Transaction, score int, reasons []string) (int, []string) {
	established := tx.UserReputation == domain.ReputationRecurrent || tx.UserReputation == domain.ReputationTrusted
	if established && tx.CustomerTxn30d >= frequencyBufferMinTxns && score > 0 {
		return score - 1, append(reasons, "frequency_buffer(-1)")
	}
	return score, reasons
}
