package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyProfile describes the market rate and order amount range of one currency
type CurrencyProfile struct {
	Code      string
	Rate      float64
	MinAmount float64
	MaxAmount float64
}

// FeeSchedule is a percentage plus a fixed USD fee
type FeeSchedule struct {
	Pct   float64
	Fixed float64
}

var currencies = []CurrencyProfile{
	{Code: "MXN", Rate: 17.50, MinAmount: 200, MaxAmount: 5000},
	{Code: "BRL", Rate: 5.00, MinAmount: 50, MaxAmount: 1500},
	{Code: "IDR", Rate: 15500, MinAmount: 100000, MaxAmount: 3000000},
	{Code: "KES", Rate: 130, MinAmount: 500, MaxAmount: 15000},
	{Code: "COP", Rate: 4000, MinAmount: 50000, MaxAmount: 1500000},
}

var processors = []string{"StripeConnect", "MercadoPago", "Xendit", "PayU", "Flutterwave"}

var feeSchedules = map[string]FeeSchedule{
	"StripeConnect": {Pct: 0.029, Fixed: 0.30},
	"MercadoPago":   {Pct: 0.031, Fixed: 0.25},
	"Xendit":        {Pct: 0.025, Fixed: 0.35},
	"PayU":          {Pct: 0.028, Fixed: 0.30},
	"Flutterwave":   {Pct: 0.032, Fixed: 0.20},
}

// OrderRow is one line of the generated order ledger
type OrderRow struct {
	TransactionID string
	OrderDate     time.Time
	Currency      string
	Amount        decimal.Decimal
	Processor     string
}

// SettlementRow is one line of the generated settlement report
type SettlementRow struct {
	TransactionID  string
	SettlementDate time.Time
	USDReceived    decimal.Decimal
	FXRate         decimal.Decimal
	Fees           decimal.Decimal
}

// Injected counts the discrepancies planted in a dataset
type Injected struct {
	PayUErrors           int
	XenditErrors         int
	BadFXRates           int
	MissingSettlements   int
	MysterySettlements   int
	DuplicateOrders      int
	DuplicateSettlements int
}

// Flagged is the number of transactions a reconciliation run should flag
// at the default threshold. Bad FX rates are priced consistently and only
// surface as FX rate alerts.
func (i Injected) Flagged() int {
	return i.PayUErrors + i.XenditErrors + i.MissingSettlements + i.MysterySettlements
}

// Dataset is a generated order ledger and settlement report
type Dataset struct {
	Orders      []OrderRow
	Settlements []SettlementRow
	Injected    Injected
}

// SettlementGenerator builds order/settlement pairs with planted discrepancies
type SettlementGenerator struct {
	Count     int
	StartDate time.Time
	DaySpan   int
	rng       *rand.Rand
}

// NewSettlementGenerator creates a generator; equal seeds give equal datasets.
func NewSettlementGenerator(count int, start time.Time, seed int64) *SettlementGenerator {
	return &SettlementGenerator{
		Count:     count,
		StartDate: start,
		DaySpan:   90,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func main() {
	var (
		outputDir = flag.String("output-dir", ".", "Output directory for orders.csv and settlements.csv")
		count     = flag.Int("count", 220, "Number of orders to generate")
		startDate = flag.String("start-date", "2024-10-01", "First order date (YYYY-MM-DD)")
		seed      = flag.Int64("seed", 42, "Random seed for reproducible generation")
		scenario  = flag.String("scenario", "baseline", "Scenario to generate: baseline, duplicates")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	generator := NewSettlementGenerator(*count, start, *seed)

	var dataset *Dataset
	switch *scenario {
	case "baseline":
		dataset = generator.GenerateBaseline()
	case "duplicates":
		dataset = generator.GenerateWithDuplicates()
	default:
		log.Fatalf("Unknown scenario: %s", *scenario)
	}

	ordersPath := filepath.Join(*outputDir, "orders.csv")
	settlementsPath := filepath.Join(*outputDir, "settlements.csv")
	if err := WriteOrdersCSV(ordersPath, dataset.Orders); err != nil {
		log.Fatalf("Failed to write orders: %v", err)
	}
	if err := WriteSettlementsCSV(settlementsPath, dataset.Settlements); err != nil {
		log.Fatalf("Failed to write settlements: %v", err)
	}

	fmt.Printf("Generated %d orders in %s\n", len(dataset.Orders), ordersPath)
	fmt.Printf("Generated %d settlements in %s\n", len(dataset.Settlements), settlementsPath)
	fmt.Println()
	fmt.Println("Injected discrepancies:")
	fmt.Printf("  PayU calculation errors   : %d\n", dataset.Injected.PayUErrors)
	fmt.Printf("  Xendit calculation errors : %d\n", dataset.Injected.XenditErrors)
	fmt.Printf("  MercadoPago bad FX (BRL)  : %d\n", dataset.Injected.BadFXRates)
	fmt.Printf("  Missing settlements       : %d\n", dataset.Injected.MissingSettlements)
	fmt.Printf("  Mystery settlements       : %d\n", dataset.Injected.MysterySettlements)
	if *scenario == "duplicates" {
		fmt.Printf("  Duplicate orders          : %d\n", dataset.Injected.DuplicateOrders)
		fmt.Printf("  Duplicate settlements     : %d\n", dataset.Injected.DuplicateSettlements)
	}
	fmt.Printf("Seed used: %d\n", *seed)
}

// GenerateBaseline creates clean pairs, then plants calculation errors on
// PayU and Xendit, adverse BRL rates on MercadoPago, three orders without a
// settlement and three settlements without an order.
func (sg *SettlementGenerator) GenerateBaseline() *Dataset {
	dataset := &Dataset{
		Orders:      make([]OrderRow, 0, sg.Count),
		Settlements: make([]SettlementRow, 0, sg.Count),
	}

	for i := 1; i <= sg.Count; i++ {
		currency := currencies[sg.rng.Intn(len(currencies))]
		processor := processors[sg.rng.Intn(len(processors))]
		orderDate := sg.randomDate()
		amount := decimal.NewFromFloat(sg.uniform(currency.MinAmount, currency.MaxAmount)).Round(2)
		fx := decimal.NewFromFloat(currency.Rate * (1 + sg.uniform(-0.015, 0.015))).Round(4)

		order := OrderRow{
			TransactionID: fmt.Sprintf("TXN-2024-%05d", i),
			OrderDate:     orderDate,
			Currency:      currency.Code,
			Amount:        amount,
			Processor:     processor,
		}
		dataset.Orders = append(dataset.Orders, order)
		dataset.Settlements = append(dataset.Settlements,
			sg.settle(order, fx, orderDate.AddDate(0, 0, 1+sg.rng.Intn(2))))
	}

	injected := make(map[int]bool)

	// Calculation errors: PayU off in either direction, Xendit always short
	payu := sg.sample(sg.indices(dataset, func(o OrderRow) bool { return o.Processor == "PayU" }, injected), 5)
	for _, idx := range payu {
		delta := decimal.NewFromFloat(sg.uniform(1.5, 12.0)).Round(4)
		if sg.rng.Intn(2) == 0 {
			delta = delta.Neg()
		}
		dataset.Settlements[idx].USDReceived = dataset.Settlements[idx].USDReceived.Add(delta)
		injected[idx] = true
	}
	dataset.Injected.PayUErrors = len(payu)

	xendit := sg.sample(sg.indices(dataset, func(o OrderRow) bool { return o.Processor == "Xendit" }, injected), 3)
	for _, idx := range xendit {
		delta := decimal.NewFromFloat(sg.uniform(2.0, 8.0)).Round(4)
		dataset.Settlements[idx].USDReceived = dataset.Settlements[idx].USDReceived.Sub(delta)
		injected[idx] = true
	}
	dataset.Injected.XenditErrors = len(xendit)

	// Adverse FX: 5-10% above the BRL market rate, settled consistently
	brl := currencies[1]
	badFX := sg.sample(sg.indices(dataset, func(o OrderRow) bool {
		return o.Processor == "MercadoPago" && o.Currency == brl.Code
	}, injected), 4)
	for _, idx := range badFX {
		rate := decimal.NewFromFloat(brl.Rate * sg.uniform(1.05, 1.10)).Round(4)
		settlement := sg.settle(dataset.Orders[idx], rate, dataset.Settlements[idx].SettlementDate)
		dataset.Settlements[idx] = settlement
		injected[idx] = true
	}
	dataset.Injected.BadFXRates = len(badFX)

	// Missing settlements
	missing := sg.sample(sg.indices(dataset, func(OrderRow) bool { return true }, injected), 3)
	drop := make(map[int]bool, len(missing))
	for _, idx := range missing {
		drop[idx] = true
	}
	kept := make([]SettlementRow, 0, len(dataset.Settlements))
	for idx, settlement := range dataset.Settlements {
		if !drop[idx] {
			kept = append(kept, settlement)
		}
	}
	dataset.Injected.MissingSettlements = len(missing)

	// Mystery settlements
	for j := 1; j <= 3; j++ {
		kept = append(kept, SettlementRow{
			TransactionID:  fmt.Sprintf("TXN-MYSTERY-%03d", j),
			SettlementDate: sg.randomDate(),
			USDReceived:    decimal.NewFromFloat(sg.uniform(50, 600)).Round(4),
			FXRate:         decimal.NewFromFloat(sg.uniform(4.9, 18.0)).Round(4),
			Fees:           decimal.NewFromFloat(sg.uniform(1.5, 18.0)).Round(4),
		})
	}
	dataset.Injected.MysterySettlements = 3

	sg.rng.Shuffle(len(kept), func(i, j int) { kept[i], kept[j] = kept[j], kept[i] })
	dataset.Settlements = kept

	return dataset
}

// GenerateWithDuplicates is the baseline plus one repeated order and one
// repeated settlement, for exercising the duplicate policies.
func (sg *SettlementGenerator) GenerateWithDuplicates() *Dataset {
	dataset := sg.GenerateBaseline()
	if len(dataset.Orders) == 0 || len(dataset.Settlements) == 0 {
		return dataset
	}

	order := dataset.Orders[sg.rng.Intn(len(dataset.Orders))]
	order.Amount = order.Amount.Add(decimal.NewFromInt(1))
	dataset.Orders = append(dataset.Orders, order)
	dataset.Injected.DuplicateOrders = 1

	settlement := dataset.Settlements[sg.rng.Intn(len(dataset.Settlements))]
	settlement.SettlementDate = settlement.SettlementDate.AddDate(0, 0, 1)
	dataset.Settlements = append(dataset.Settlements, settlement)
	dataset.Injected.DuplicateSettlements = 1

	return dataset
}

// settle prices an order at the given rate: gross USD minus the processor fee
func (sg *SettlementGenerator) settle(order OrderRow, fx decimal.Decimal, date time.Time) SettlementRow {
	schedule := feeSchedules[order.Processor]
	gross := order.Amount.Div(fx)
	fee := gross.Mul(decimal.NewFromFloat(schedule.Pct)).Add(decimal.NewFromFloat(schedule.Fixed)).Round(4)
	return SettlementRow{
		TransactionID:  order.TransactionID,
		SettlementDate: date,
		USDReceived:    gross.Sub(fee).Round(4),
		FXRate:         fx,
		Fees:           fee,
	}
}

// indices returns the positions of orders matching keep, skipping used ones
func (sg *SettlementGenerator) indices(dataset *Dataset, keep func(OrderRow) bool, used map[int]bool) []int {
	var out []int
	for idx, order := range dataset.Orders {
		if !used[idx] && keep(order) {
			out = append(out, idx)
		}
	}
	return out
}

// sample picks up to n distinct elements of pool, returned in ascending order
func (sg *SettlementGenerator) sample(pool []int, n int) []int {
	if n > len(pool) {
		n = len(pool)
	}
	picked := make([]int, 0, n)
	for _, p := range sg.rng.Perm(len(pool))[:n] {
		picked = append(picked, pool[p])
	}
	sort.Ints(picked)
	return picked
}

func (sg *SettlementGenerator) uniform(min, max float64) float64 {
	return min + sg.rng.Float64()*(max-min)
}

func (sg *SettlementGenerator) randomDate() time.Time {
	return sg.StartDate.AddDate(0, 0, sg.rng.Intn(sg.DaySpan+1))
}

// WriteOrdersCSV writes the order ledger with its header row
func WriteOrdersCSV(filename string, orders []OrderRow) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"transaction_id", "order_date", "customer_currency", "original_amount", "payment_processor"}); err != nil {
		return err
	}

	for _, order := range orders {
		record := []string{
			order.TransactionID,
			order.OrderDate.Format("2006-01-02"),
			order.Currency,
			order.Amount.StringFixed(2),
			order.Processor,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteSettlementsCSV writes the settlement report with its header row
func WriteSettlementsCSV(filename string, settlements []SettlementRow) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"transaction_id", "settlement_date", "usd_amount_received", "fx_rate_applied", "fees_deducted"}); err != nil {
		return err
	}

	for _, settlement := range settlements {
		record := []string{
			settlement.TransactionID,
			settlement.SettlementDate.Format("2006-01-02"),
			settlement.USDReceived.String(),
			settlement.FXRate.String(),
			settlement.Fees.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
