// Package batch scores a CSV file of transactions and writes the decisions
// next to the original columns.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"riskgate/decision-api/internal/config"
	"riskgate/decision-api/internal/domain"
	"riskgate/decision-api/internal/scoring"
)

// Output columns appended to (or overwritten in) every row.
const (
	ColumnDecision  = "decision"
	ColumnRiskScore = "risk_score"
	ColumnReasons   = "reasons"
)

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = errors.New("batch: input has no header row")

// RowError ties a failure to its 1-based data row (the header is row 0).
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Options tunes a run. The zero value is usable.
type Options struct {
	// Workers bounds concurrent scoring. Zero means GOMAXPROCS.
	Workers int
	// PreviewRows is how many output rows to keep in Summary.Preview.
	PreviewRows int
	// OnResult, when set, is called once per scored row, possibly concurrently.
	OnResult func(domain.ScoreResult)
	Logger   *slog.Logger
}

// Summary describes a completed run.
type Summary struct {
	RunID     string
	Rows      int
	Decisions map[domain.Decision]int
	Duration  time.Duration
	// Preview holds the output header followed by up to PreviewRows rows.
	Preview [][]string
}

// Run reads transactions from in, scores every row against rules and writes
// the annotated CSV to out. Rows keep their input order. A row that fails
// validation aborts the run before anything is written.
func Run(ctx context.Context, in io.Reader, out io.Writer, rules config.Rules, opts Options) (Summary, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	summary := Summary{
		RunID:     uuid.NewString(),
		Decisions: make(map[domain.Decision]int, 3),
	}
	logger = logger.With("run_id", summary.RunID)

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return summary, ErrNoHeader
	}
	if err != nil {
		return summary, fmt.Errorf("read header: %w", err)
	}
	header = normalizeHeader(header)

	records, err := r.ReadAll()
	if err != nil {
		return summary, fmt.Errorf("read rows: %w", err)
	}

	index := columnIndex(header)
	txs := make([]domain.Transaction, len(records))
	for i, rec := range records {
		if len(rec) > len(header) {
			return summary, &RowError{Row: i + 1, Err: fmt.Errorf("has %d fields, header has %d", len(rec), len(header))}
		}
		req, err := parseRecord(rec, index)
		if err == nil {
			err = req.Validate()
		}
		if err != nil {
			return summary, &RowError{Row: i + 1, Err: err}
		}
		txs[i] = req.Resolve()
	}

	results, err := scoreAll(ctx, txs, rules, opts)
	if err != nil {
		return summary, err
	}

	outHeader, resultCols := outputHeader(header)
	w := csv.NewWriter(out)
	if err := w.Write(outHeader); err != nil {
		return summary, fmt.Errorf("write header: %w", err)
	}
	if opts.PreviewRows > 0 {
		summary.Preview = append(summary.Preview, outHeader)
	}
	for i, rec := range records {
		row := make([]string, len(outHeader))
		copy(row, rec)
		res := results[i]
		row[resultCols[0]] = string(res.Decision)
		row[resultCols[1]] = strconv.Itoa(res.RiskScore)
		row[resultCols[2]] = res.JoinedReasons()
		if err := w.Write(row); err != nil {
			return summary, fmt.Errorf("write row %d: %w", i+1, err)
		}
		if i < opts.PreviewRows {
			summary.Preview = append(summary.Preview, row)
		}
		summary.Decisions[res.Decision]++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return summary, fmt.Errorf("flush output: %w", err)
	}

	summary.Rows = len(records)
	summary.Duration = time.Since(start)
	logger.Info("batch complete",
		"rows", summary.Rows,
		"accepted", summary.Decisions[domain.DecisionAccepted],
		"in_review", summary.Decisions[domain.DecisionInReview],
		"rejected", summary.Decisions[domain.DecisionRejected],
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

// RunFile is Run over files. The output file is only created once the input
// has been opened.
func RunFile(ctx context.Context, inPath, outPath string, rules config.Rules, opts Options) (Summary, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return Summary{}, fmt.Errorf("create output: %w", err)
	}

	summary, runErr := Run(ctx, in, out, rules, opts)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	return summary, runErr
}

func scoreAll(ctx context.Context, txs []domain.Transaction, rules config.Rules, opts Options) ([]domain.ScoreResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]domain.ScoreResult, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range txs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scoring.Assess(txs[i], rules)
			if opts.OnResult != nil {
				opts.OnResult(results[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ─── Columns ─────────────────────────────────────────────────────────────────

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = h
	}
	return out
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(h)
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}
	return index
}

// outputHeader returns the output header and the positions of the decision,
// risk_score and reasons columns, reusing existing ones.
func outputHeader(header []string) ([]string, [3]int) {
	out := append([]string(nil), header...)
	var pos [3]int
	index := columnIndex(header)
	for i, name := range []string{ColumnDecision, ColumnRiskScore, ColumnReasons} {
		if at, ok := index[name]; ok {
			pos[i] = at
			continue
		}
		pos[i] = len(out)
		out = append(out, name)
	}
	return out, pos
}

// ─── Parsing ─────────────────────────────────────────────────────────────────

func parseRecord(rec []string, index map[string]int) (domain.TransactionRequest, error) {
	var (
		req  domain.TransactionRequest
		err  error
		cell = func(name string) (string, bool) {
			i, ok := index[name]
			if !ok || i >= len(rec) {
				return "", false
			}
			v := strings.TrimSpace(rec[i])
			return v, v != ""
		}
	)

	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"chargeback_count", &req.ChargebackCount},
		{"hour", &req.Hour},
		{"customer_txn_30d", &req.CustomerTxn30d},
		{"latency_ms", &req.LatencyMs},
	} {
		if v, ok := cell(f.name); ok {
			if *f.dst, err = parseInt(f.name, v); err != nil {
				return req, err
			}
		}
	}

	for _, f := range []struct {
		name string
		dst  **string
	}{
		{"ip_risk", &req.IPRisk},
		{"email_risk", &req.EmailRisk},
		{"device_fingerprint_risk", &req.DeviceFingerprintRisk},
		{"user_reputation", &req.UserReputation},
		{"bin_country", &req.BINCountry},
		{"ip_country", &req.IPCountry},
		{"product_type", &req.ProductType},
	} {
		if v, ok := cell(f.name); ok {
			*f.dst = &v
		}
	}

	if v, ok := cell("amount_mxn"); ok {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return req, &domain.ValidationError{Field: "amount_mxn", Message: fmt.Sprintf("not a number: %q", v)}
		}
		req.AmountMXN = &amount
	}

	if v, ok := cell("transaction_id"); ok {
		id, err := domain.ParseInteger("transaction_id", v)
		if err != nil {
			return req, err
		}
		req.TransactionID = &id
	}
	return req, nil
}

func parseInt(field, v string) (*int, error) {
	n, err := domain.ParseInteger(field, v)
	if err != nil {
		return nil, err
	}
	i := int(n)
	return &i, nil
}
