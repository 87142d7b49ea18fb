// Package sample generates realistic example transactions for demos and
// batch smoke tests.
//
// Output is deterministic for a given seed. The mix roughly follows what a
// MX card-not-present merchant sees:
//   - ~70% routine purchases from recurrent or trusted customers
//   - ~10% first purchases by new users at night
//   - ~8% BIN/IP country mismatches
//   - ~6% high-value purchases close to or above the product threshold
//   - ~3% chargeback repeaters on high-risk IPs
//   - ~3% slow, probably scripted sessions
package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// DefaultSeed keeps generated files reproducible across runs.
const DefaultSeed = 42

// Columns is the header of every generated file.
var Columns = []string{
	"transaction_id",
	"amount_mxn",
	"customer_txn_30d",
	"geo_state",
	"device_type",
	"chargeback_count",
	"hour",
	"product_type",
	"latency_ms",
	"user_reputation",
	"device_fingerprint_risk",
	"ip_risk",
	"email_risk",
	"bin_country",
	"ip_country",
}

// Row is one generated transaction.
type Row struct {
	TransactionID         int64
	AmountMXN             decimal.Decimal
	CustomerTxn30d        int
	GeoState              string
	DeviceType            string
	ChargebackCount       int
	Hour                  int
	ProductType           string
	LatencyMs             int
	UserReputation        string
	DeviceFingerprintRisk string
	IPRisk                string
	EmailRisk             string
	BINCountry            string
	IPCountry             string
}

// Record renders the row in Columns order.
func (r Row) Record() []string {
	return []string{
		strconv.FormatInt(r.TransactionID, 10),
		r.AmountMXN.StringFixed(2),
		strconv.Itoa(r.CustomerTxn30d),
		r.GeoState,
		r.DeviceType,
		strconv.Itoa(r.ChargebackCount),
		strconv.Itoa(r.Hour),
		r.ProductType,
		strconv.Itoa(r.LatencyMs),
		r.UserReputation,
		r.DeviceFingerprintRisk,
		r.IPRisk,
		r.EmailRisk,
		r.BINCountry,
		r.IPCountry,
	}
}

// ─── Generation ──────────────────────────────────────────────────────────────

type profile struct {
	weight int
	build  func(g *generator, r *Row)
}

var profiles = []profile{
	{70, (*generator).routine},
	{10, (*generator).newAtNight},
	{8, (*generator).geoMismatch},
	{6, (*generator).highValue},
	{3, (*generator).chargebackRepeater},
	{3, (*generator).slowSession},
}

var (
	states      = []string{"CDMX", "Jalisco", "Nuevo León", "Puebla", "Yucatán", "Querétaro", "Baja California"}
	devices     = []string{"android", "ios", "web"}
	products    = []string{"digital", "physical", "subscription"}
	foreignISOs = []string{"US", "CO", "BR", "ES", "AR", "NG"}
)

type generator struct {
	rng *rand.Rand
}

// Generate returns count rows. The same seed always yields the same rows.
func Generate(count int, seed int64) []Row {
	g := &generator{rng: rand.New(rand.NewSource(seed))}

	total := 0
	for _, p := range profiles {
		total += p.weight
	}

	rows := make([]Row, count)
	for i := range rows {
		r := g.base(int64(i + 1))
		roll := g.rng.Intn(total)
		for _, p := range profiles {
			if roll < p.weight {
				p.build(g, &r)
				break
			}
			roll -= p.weight
		}
		rows[i] = r
	}
	return rows
}

// Write generates count rows and writes them as CSV with a header.
func Write(w io.Writer, count int, seed int64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range Generate(count, seed) {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("write row %d: %w", r.TransactionID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile is Write into a newly created file at path.
func WriteFile(path string, count int, seed int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, count, seed); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// base is a plain daytime purchase by a domestic recurrent customer.
func (g *generator) base(id int64) Row {
	return Row{
		TransactionID:         id,
		AmountMXN:             g.amount(150, 1800),
		CustomerTxn30d:        1 + g.rng.Intn(6),
		GeoState:              pick(g.rng, states),
		DeviceType:            pick(g.rng, devices),
		ChargebackCount:       0,
		Hour:                  8 + g.rng.Intn(13), // 08..20
		ProductType:           pick(g.rng, products),
		LatencyMs:             80 + g.rng.Intn(400),
		UserReputation:        "recurrent",
		DeviceFingerprintRisk: "low",
		IPRisk:                "low",
		EmailRisk:             "low",
		BINCountry:            "MX",
		IPCountry:             "MX",
	}
}

func (g *generator) routine(r *Row) {
	if g.rng.Intn(3) == 0 {
		r.UserReputation = "trusted"
		r.CustomerTxn30d += 3
	}
	if g.rng.Intn(5) == 0 {
		r.IPRisk = "medium"
	}
}

func (g *generator) newAtNight(r *Row) {
	r.UserReputation = "new"
	r.CustomerTxn30d = 0
	r.Hour = pick(g.rng, []int{22, 23, 0, 1, 2, 3, 4, 5})
	r.EmailRisk = pick(g.rng, []string{"low", "medium", "new_domain"})
	r.DeviceFingerprintRisk = pick(g.rng, []string{"low", "medium"})
}

func (g *generator) geoMismatch(r *Row) {
	r.IPCountry = pick(g.rng, foreignISOs)
	r.IPRisk = pick(g.rng, []string{"medium", "high"})
	if g.rng.Intn(2) == 0 {
		r.UserReputation = "new"
		r.CustomerTxn30d = 0
	}
}

func (g *generator) highValue(r *Row) {
	switch r.ProductType {
	case "digital":
		r.AmountMXN = g.amount(2000, 6000)
	case "subscription":
		r.AmountMXN = g.amount(1200, 3000)
	default:
		r.AmountMXN = g.amount(5000, 15000)
	}
	if g.rng.Intn(2) == 0 {
		r.UserReputation = "new"
		r.CustomerTxn30d = 0
	}
}

func (g *generator) chargebackRepeater(r *Row) {
	r.ChargebackCount = 1 + g.rng.Intn(4)
	r.IPRisk = "high"
	r.UserReputation = "high_risk"
	r.EmailRisk = "high"
}

func (g *generator) slowSession(r *Row) {
	r.LatencyMs = 2500 + g.rng.Intn(3000)
	r.DeviceFingerprintRisk = pick(g.rng, []string{"medium", "high"})
	r.DeviceType = "web"
}

// amount draws a two-decimal amount in [min, max).
func (g *generator) amount(min, max int) decimal.Decimal {
	cents := int64(min*100) + g.rng.Int63n(int64((max-min)*100))
	return decimal.New(cents, -2)
}

func pick[T any](rng *rand.Rand, options []T) T {
	return options[rng.Intn(len(options))]
}
