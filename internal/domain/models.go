// Package domain contains all core types used across the application.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// ─── Decisions ───────────────────────────────────────────────────────────────

// Decision is the final outcome for a scored transaction.
type Decision string

// The three decisions the engine can produce.
const (
	DecisionAccepted Decision = "ACCEPTED"  // let the payment through
	DecisionInReview Decision = "IN_REVIEW" // route to manual review queue
	DecisionRejected Decision = "REJECTED"  // decline the payment
)

// ParseDecision accepts a decision name in any letter case.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown decision %q (want ACCEPTED, IN_REVIEW or REJECTED)", s)
	}
	return d, nil
}

// Valid reports whether d is one of the three known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAccepted, DecisionInReview, DecisionRejected:
		return true
	}
	return false
}

// Severity orders decisions from least to most restrictive.
// Unknown values sort below ACCEPTED.
func (d Decision) Severity() int {
	switch d {
	case DecisionAccepted:
		return 1
	case DecisionInReview:
		return 2
	case DecisionRejected:
		return 3
	}
	return 0
}

func (d Decision) String() string { return string(d) }

// ─── Defaults ────────────────────────────────────────────────────────────────

// Values assumed for fields a transaction does not carry.
const (
	DefaultRisk        = "low"
	DefaultReputation  = "new"
	DefaultHour        = 12
	DefaultProductType = "_default"
)

// Reputation values with special meaning to the engine.
const (
	ReputationNew       = "new"
	ReputationRecurrent = "recurrent"
	ReputationTrusted   = "trusted"
)

// RiskHigh is the categorical value that arms the hard block.
const RiskHigh = "high"

// ─── Transactions ────────────────────────────────────────────────────────────

// Transaction is the fully resolved input to the scoring engine.
// Every field already holds its default when the source omitted it, and
// categorical values are normalized (risk levels lower-case, countries upper-case).
type Transaction struct {
	ChargebackCount       int
	IPRisk                string
	EmailRisk             string
	DeviceFingerprintRisk string
	UserReputation        string
	Hour                  int
	BINCountry            string
	IPCountry             string
	AmountMXN             decimal.Decimal
	ProductType           string
	CustomerTxn30d        int
	LatencyMs             int
}

// TransactionRequest is the boundary form of a transaction as it arrives over
// HTTP or from a CSV row. Every scoring field is optional; Resolve fills the gaps.
type TransactionRequest struct {
	TransactionID         *int64           `json:"transaction_id"`
	ChargebackCount       *int             `json:"chargeback_count"`
	IPRisk                *string          `json:"ip_risk"`
	EmailRisk             *string          `json:"email_risk"`
	DeviceFingerprintRisk *string          `json:"device_fingerprint_risk"`
	UserReputation        *string          `json:"user_reputation"`
	Hour                  *int             `json:"hour"`
	BINCountry            *string          `json:"bin_country"`
	IPCountry             *string          `json:"ip_country"`
	AmountMXN             *decimal.Decimal `json:"amount_mxn"`
	ProductType           *string          `json:"product_type"`
	CustomerTxn30d        *int             `json:"customer_txn_30d"`
	LatencyMs             *int             `json:"latency_ms"`
}

// Resolve applies the documented defaults and normalization and returns the
// engine input. It never fails; call Validate first to enforce field domains.
func (r TransactionRequest) Resolve() Transaction {
	tx := Transaction{
		ChargebackCount:       intOr(r.ChargebackCount, 0),
		IPRisk:                Lower(stringOr(r.IPRisk, DefaultRisk)),
		EmailRisk:             Lower(stringOr(r.EmailRisk, DefaultRisk)),
		DeviceFingerprintRisk: Lower(stringOr(r.DeviceFingerprintRisk, DefaultRisk)),
		UserReputation:        Lower(stringOr(r.UserReputation, DefaultReputation)),
		Hour:                  intOr(r.Hour, DefaultHour),
		BINCountry:            Upper(stringOr(r.BINCountry, "")),
		IPCountry:             Upper(stringOr(r.IPCountry, "")),
		AmountMXN:             decimal.Zero,
		ProductType:           Lower(stringOr(r.ProductType, DefaultProductType)),
		CustomerTxn30d:        intOr(r.CustomerTxn30d, 0),
		LatencyMs:             intOr(r.LatencyMs, 0),
	}
	if r.AmountMXN != nil {
		tx.AmountMXN = *r.AmountMXN
	}
	return tx
}

// Validate checks field domains at the boundary. The engine itself is total
// over all inputs; this is where malformed data is turned away.
func (r TransactionRequest) Validate() error {
	if r.Hour != nil && (*r.Hour < 0 || *r.Hour > 23) {
		return &ValidationError{Field: "hour", Message: fmt.Sprintf("must be between 0 and 23, got %d", *r.Hour)}
	}
	if r.AmountMXN != nil && r.AmountMXN.IsNegative() {
		return &ValidationError{Field: "amount_mxn", Message: "must not be negative"}
	}
	counts := []struct {
		field string
		value *int
	}{
		{"chargeback_count", r.ChargebackCount},
		{"customer_txn_30d", r.CustomerTxn30d},
		{"latency_ms", r.LatencyMs},
	}
	for _, c := range counts {
		if c.value != nil && *c.value < 0 {
			return &ValidationError{Field: c.field, Message: fmt.Sprintf("must not be negative, got %d", *c.value)}
		}
	}
	return nil
}

// UnmarshalJSON decodes the integer fields leniently: 23 and 23.0 both mean
// 23, while 23.5 or "23" fail with a ValidationError naming the field.
func (r *TransactionRequest) UnmarshalJSON(data []byte) error {
	type plain TransactionRequest
	aux := struct {
		*plain
		TransactionID   json.RawMessage `json:"transaction_id"`
		ChargebackCount json.RawMessage `json:"chargeback_count"`
		Hour            json.RawMessage `json:"hour"`
		CustomerTxn30d  json.RawMessage `json:"customer_txn_30d"`
		LatencyMs       json.RawMessage `json:"latency_ms"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := decodeInteger("transaction_id", aux.TransactionID)
	if err != nil {
		return err
	}
	r.TransactionID = id

	for _, f := range []struct {
		name string
		raw  json.RawMessage
		dst  **int
	}{
		{"chargeback_count", aux.ChargebackCount, &r.ChargebackCount},
		{"hour", aux.Hour, &r.Hour},
		{"customer_txn_30d", aux.CustomerTxn30d, &r.CustomerTxn30d},
		{"latency_ms", aux.LatencyMs, &r.LatencyMs},
	} {
		n, err := decodeInteger(f.name, f.raw)
		if err != nil {
			return err
		}
		*f.dst = nil
		if n != nil {
			v := int(*n)
			*f.dst = &v
		}
	}
	return nil
}

func decodeInteger(field string, raw json.RawMessage) (*int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var num json.Number
	if raw[0] == '"' || json.Unmarshal(raw, &num) != nil {
		return nil, &ValidationError{Field: field, Message: "must be a JSON integer"}
	}
	n, err := ParseInteger(field, num.String())
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ParseInteger accepts plain integers and integral decimals such as "23.0",
// which spreadsheet exports and some JSON encoders produce.
func ParseInteger(field, v string) (int64, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsInteger() {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("not an integer: %q", v)}
	}
	return d.IntPart(), nil
}

// ValidationError reports a single field that failed boundary validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ─── Results ─────────────────────────────────────────────────────────────────

// ScoreResult is the engine output for one transaction.
type ScoreResult struct {
	Decision  Decision `json:"decision"`
	RiskScore int      `json:"risk_score"`
	Reasons   []string `json:"reasons"`
}

// JoinedReasons renders reasons the way the batch output column carries them.
func (r ScoreResult) JoinedReasons() string {
	return strings.Join(r.Reasons, ";")
}

// TransactionResponse is returned by the HTTP scoring endpoints.
type TransactionResponse struct {
	TransactionID int64    `json:"transaction_id"`
	Decision      Decision `json:"decision"`
	RiskScore     int      `json:"risk_score"`
	Reasons       []string `json:"reasons"`
}

// DecisionEvent is what the alert and stream sinks receive for each scored
// transaction.
type DecisionEvent struct {
	EventID       string      `json:"event_id"`
	Event         string      `json:"event"`
	TransactionID int64       `json:"transaction_id"`
	Result        ScoreResult `json:"result"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// EventDecisionMade is the event name carried by every DecisionEvent.
const EventDecisionMade = "transaction_decision"

// ─── Normalization ───────────────────────────────────────────────────────────

// Lower normalizes a categorical value: NFC composition, then lower case.
func Lower(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Upper normalizes a country code: NFC composition, then upper case.
func Upper(s string) string {
	return strings.ToUpper(norm.NFC.String(s))
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
