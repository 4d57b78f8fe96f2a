// Command loadgen generates synthetic transaction traffic against a
// running FraudGuard API.
//
// Usage:
//
//	go run ./cmd/loadgen -count 500 -rate 50 -fraud-pct 0.1
//	go run ./cmd/loadgen -stream -count 1000          # via Kafka intake
//	go run ./cmd/loadgen -batch 100 -count 1000       # batch endpoint
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type transaction struct {
	Amount             float64 `json:"amount"`
	TransactionType    string  `json:"transaction_type"`
	MerchantName       string  `json:"merchant_name"`
	MerchantCategory   string  `json:"merchant_category,omitempty"`
	MerchantCountry    string  `json:"merchant_country,omitempty"`
	CustomerID         string  `json:"customer_id"`
	PaymentMethod      string  `json:"payment_method"`
	TransactionCountry string  `json:"transaction_country,omitempty"`
	TransactionCity    string  `json:"transaction_city,omitempty"`
	IPAddress          string  `json:"ip_address,omitempty"`
	DeviceID           string  `json:"device_id,omitempty"`
}

// profile is a transaction archetype that gets jittered per emission.
type profile struct {
	tx        transaction
	minAmount float64
	maxAmount float64
}

var cleanProfiles = []profile{
	{
		tx: transaction{
			TransactionType:  "purchase",
			MerchantName:     "Coffee Shop",
			MerchantCategory: "Food & Beverage",
			MerchantCountry:  "US", TransactionCountry: "US",
			PaymentMethod: "credit_card",
		},
		minAmount: 3, maxAmount: 60,
	},
	{
		tx: transaction{
			TransactionType:  "purchase",
			MerchantName:     "Grocery Mart",
			MerchantCategory: "Grocery",
			MerchantCountry:  "US", TransactionCountry: "US",
			PaymentMethod: "debit_card",
		},
		minAmount: 15, maxAmount: 240,
	},
	{
		tx: transaction{
			TransactionType:  "purchase",
			MerchantName:     "Electronics Store",
			MerchantCategory: "Electronics",
			MerchantCountry:  "MX", TransactionCountry: "US",
			TransactionCity: "San Diego",
			PaymentMethod:   "credit_card",
		},
		minAmount: 200, maxAmount: 4200,
	},
	{
		tx: transaction{
			TransactionType:  "payment",
			MerchantName:     "Streaming Plus",
			MerchantCategory: "Subscription",
			MerchantCountry:  "US", TransactionCountry: "US",
			PaymentMethod: "credit_card",
		},
		minAmount: 8, maxAmount: 35,
	},
}

var fraudProfiles = []profile{
	{
		tx: transaction{
			TransactionType:  "transfer",
			MerchantName:     "Wire Transfer Service",
			MerchantCategory: "Money Transfer",
			MerchantCountry:  "XX", TransactionCountry: "US",
			PaymentMethod: "prepaid_card",
		},
		minAmount: 6000, maxAmount: 9900,
	},
	{
		tx: transaction{
			TransactionType:  "withdrawal",
			MerchantName:     "Suspicious ATM Network",
			MerchantCategory: "ATM",
			MerchantCountry:  "YY", TransactionCountry: "XX",
			PaymentMethod: "prepaid_card",
		},
		minAmount: 11000, maxAmount: 20000,
	},
}

type generator struct {
	rand    *rand.Rand
	devices []string
	ips     []string
}

func newGenerator(seed int64) *generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &generator{rand: rand.New(rand.NewSource(seed))}
}

// next produces one jittered transaction. Fraud archetypes omit device
// and IP, matching the signals the scoring rules look for.
func (g *generator) next(fraudPct float64) transaction {
	fraud := g.rand.Float64() < fraudPct

	var p profile
	if fraud {
		p = fraudProfiles[g.rand.Intn(len(fraudProfiles))]
	} else {
		p = cleanProfiles[g.rand.Intn(len(cleanProfiles))]
	}

	tx := p.tx
	tx.Amount = round2(p.minAmount + g.rand.Float64()*(p.maxAmount-p.minAmount))
	tx.CustomerID = fmt.Sprintf("CUST%03d", g.rand.Intn(500)+1)
	if !fraud {
		tx.DeviceID = g.sharedValue(&g.devices, 0.7, func() string {
			return fmt.Sprintf("device-%06d", g.rand.Intn(999999))
		})
		tx.IPAddress = g.sharedValue(&g.ips, 0.7, func() string {
			return fmt.Sprintf("%d.%d.%d.%d", g.rand.Intn(223)+1, g.rand.Intn(256), g.rand.Intn(256), g.rand.Intn(256))
		})
	}
	return tx
}

// sharedValue reuses a pooled value with the given probability, so the
// stream shows repeat devices and IPs like real traffic does.
func (g *generator) sharedValue(pool *[]string, chance float64, newValue func() string) string {
	if len(*pool) > 0 && g.rand.Float64() < chance {
		return (*pool)[g.rand.Intn(len(*pool))]
	}
	val := newValue()
	*pool = append(*pool, val)
	return val
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}

type stats struct {
	sent     int
	accepted int
	failed   int
	byLevel  map[string]int
	declined int
}

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "FraudGuard API base URL")
		count    = flag.Int("count", 100, "number of transactions to send")
		rate     = flag.Int("rate", 10, "transactions per second")
		fraudPct = flag.Float64("fraud-pct", 0.1, "fraction of transactions drawn from fraud archetypes")
		stream   = flag.Bool("stream", false, "submit with stream_mode=true (requires Kafka)")
		batch    = flag.Int("batch", 0, "batch size for the batch endpoint (0 = submit individually)")
		seed     = flag.Int64("seed", 0, "random seed (0 = time-based)")
	)
	flag.Parse()

	if *fraudPct < 0 {
		*fraudPct = 0
	}
	if *fraudPct > 1 {
		*fraudPct = 1
	}
	if *rate < 1 {
		*rate = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := newGenerator(*seed)
	client := &http.Client{Timeout: 10 * time.Second}
	st := stats{byLevel: make(map[string]int)}

	fmt.Printf("Sending %d transactions to %s (rate %d/s, fraud %.0f%%)\n",
		*count, *baseURL, *rate, *fraudPct*100)

	start := time.Now()
	if *batch > 0 {
		runBatches(ctx, client, gen, &st, *baseURL, *count, *batch, *rate, *fraudPct)
	} else {
		runSingles(ctx, client, gen, &st, *baseURL, *count, *rate, *fraudPct, *stream)
	}
	elapsed := time.Since(start)

	fmt.Printf("\nDone in %s: sent %d, accepted %d, failed %d\n",
		elapsed.Round(time.Millisecond), st.sent, st.accepted, st.failed)
	if len(st.byLevel) > 0 {
		fmt.Printf("Risk levels: low %d, medium %d, high %d (declined %d)\n",
			st.byLevel["low"], st.byLevel["medium"], st.byLevel["high"], st.declined)
	}
	if st.failed > 0 {
		os.Exit(1)
	}
}

func runSingles(ctx context.Context, client *http.Client, gen *generator, st *stats, baseURL string, count, rate int, fraudPct float64, stream bool) {
	url := baseURL + "/api/v1/transactions"
	if stream {
		url += "?stream_mode=true"
	}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return
		case <-ticker.C:
		}

		tx := gen.next(fraudPct)
		st.sent++
		resp, err := postJSON(ctx, client, url, tx)
		if err != nil {
			st.failed++
			fmt.Fprintf(os.Stderr, "submit failed: %v\n", err)
			continue
		}

		switch {
		case resp.code == http.StatusCreated:
			st.accepted++
			st.byLevel[resp.riskLevel]++
			if resp.status == "declined" {
				st.declined++
			}
		case resp.code == http.StatusAccepted:
			st.accepted++
		default:
			st.failed++
			fmt.Fprintf(os.Stderr, "submit rejected (%d): %s\n", resp.code, resp.body)
		}

		if st.sent%50 == 0 {
			fmt.Printf("  %d/%d sent\n", st.sent, count)
		}
	}
}

func runBatches(ctx context.Context, client *http.Client, gen *generator, st *stats, baseURL string, count, batchSize, rate int, fraudPct float64) {
	url := baseURL + "/api/v1/transactions/batch"

	// One batch per tick, sized so the per-transaction rate holds
	interval := time.Duration(batchSize) * time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; sent < count; {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return
		case <-ticker.C:
		}

		n := batchSize
		if remaining := count - sent; n > remaining {
			n = remaining
		}
		txs := make([]transaction, n)
		for i := range txs {
			txs[i] = gen.next(fraudPct)
		}
		sent += n
		st.sent += n

		resp, err := postJSON(ctx, client, url, map[string]interface{}{"transactions": txs})
		if err != nil {
			st.failed += n
			fmt.Fprintf(os.Stderr, "batch failed: %v\n", err)
			continue
		}
		if resp.code != http.StatusAccepted {
			st.failed += n
			fmt.Fprintf(os.Stderr, "batch rejected (%d): %s\n", resp.code, resp.body)
			continue
		}
		st.accepted += resp.submitted
		st.failed += n - resp.submitted
		fmt.Printf("  batch of %d: %d accepted\n", n, resp.submitted)
	}
}

type apiResponse struct {
	code      int
	status    string
	riskLevel string
	submitted int
	body      string
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) (apiResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiResponse{}, err
	}

	out := apiResponse{code: resp.StatusCode, body: string(body)}
	var parsed struct {
		Status         string `json:"status"`
		RiskLevel      string `json:"risk_level"`
		SubmittedCount int    `json:"submitted_count"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		out.status = parsed.Status
		out.riskLevel = parsed.RiskLevel
		out.submitted = parsed.SubmittedCount
	}
	return out, nil
}
