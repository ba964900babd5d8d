package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numWorkers      = 5
	ordersPerSpread = 10
	serverAddress   = "http://localhost:8080"
)

var spreadIDs = []string{"tarot_3_ppf", "tarot_5_claridad", "iching_1", "rueda_3", "rueda_astral"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives the checkout -> mock payment -> reading flow
// against a running server in test mode
type simulationClient struct {
	baseURL string
	client  *http.Client
	mu      sync.Mutex
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"checkout": {name: "Checkout"},
			"payment":  {name: "Mock Payment"},
			"reading":  {name: "Get Reading"},
			"order":    {name: "Get Order"},
			"demo":     {name: "Demo Reading"},
		},
	}
}

func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

func (sc *simulationClient) post(path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := sc.client.Post(sc.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("POST %s failed with status %d: %s", path, resp.StatusCode, respBody)
	}

	return json.Unmarshal(respBody, out)
}

func (sc *simulationClient) get(path string, out interface{}) error {
	resp, err := sc.client.Get(sc.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s failed with status %d: %s", path, resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// runOrder walks one order through the full fulfillment flow
func (sc *simulationClient) runOrder(worker int, spreadID string) error {
	logger := log.With().Int("worker", worker).Str("spread_id", spreadID).Logger()

	// Checkout
	start := time.Now()
	var checkout struct {
		Data struct {
			OrderID             string `json:"order_id"`
			Status              string `json:"status"`
			MockPaymentRequired bool   `json:"mock_payment_required"`
		} `json:"data"`
	}
	err := sc.post("/api/v1/checkout", map[string]string{
		"email":           fmt.Sprintf("sim-%d@pleyazul.com", worker),
		"spread_id":       spreadID,
		"custom_question": "¿Qué me depara el camino?",
	}, &checkout)
	sc.record("checkout", start, err != nil)
	if err != nil {
		return err
	}

	orderID := checkout.Data.OrderID
	logger = logger.With().Str("order_id", orderID).Logger()
	logger.Debug().Str("status", checkout.Data.Status).Msg("order created")

	if !checkout.Data.MockPaymentRequired {
		return fmt.Errorf("server is not in test mode, cannot simulate payment for %s", orderID)
	}

	// Mock payment (confirms and generates the reading)
	start = time.Now()
	var mock struct {
		Data struct {
			Confirmed bool `json:"confirmed"`
		} `json:"data"`
	}
	err = sc.post("/api/v1/paypal/mock-payment", map[string]string{"order_id": orderID}, &mock)
	sc.record("payment", start, err != nil)
	if err != nil {
		return err
	}
	if !mock.Data.Confirmed {
		return fmt.Errorf("mock payment not confirmed for %s", orderID)
	}

	// Fetch the stored reading
	start = time.Now()
	var reading struct {
		Data struct {
			ReadingID  string `json:"reading_id"`
			ResultJSON string `json:"result_json"`
		} `json:"data"`
	}
	err = sc.get("/api/v1/readings/"+orderID, &reading)
	sc.record("reading", start, err != nil)
	if err != nil {
		return err
	}

	var result struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(reading.Data.ResultJSON), &result); err != nil {
		return fmt.Errorf("invalid result payload for %s: %w", orderID, err)
	}

	// Fetch order with reading attached
	start = time.Now()
	var details struct {
		Data struct {
			Order struct {
				Status string `json:"status"`
			} `json:"order"`
		} `json:"data"`
	}
	err = sc.get("/api/v1/orders/"+orderID, &details)
	sc.record("order", start, err != nil)
	if err != nil {
		return err
	}

	logger.Info().
		Str("oracle", result.Type).
		Str("final_status", details.Data.Order.Status).
		Msg("order fulfilled")

	return nil
}

// runDemo exercises the stateless demo path
func (sc *simulationClient) runDemo(spreadID string) error {
	start := time.Now()
	var demo struct {
		Data struct {
			ReadingID string `json:"reading_id"`
			IsDemo    bool   `json:"is_demo"`
		} `json:"data"`
	}
	err := sc.post("/api/v1/demo/reading", map[string]string{"spread_id": spreadID}, &demo)
	sc.record("demo", start, err != nil)
	if err != nil {
		return err
	}
	if !demo.Data.IsDemo {
		return fmt.Errorf("demo reading for %s not marked as demo", spreadID)
	}
	return nil
}

// printStats renders the per-route latency summary
func (sc *simulationClient) printStats() {
	fmt.Println("\nRoute statistics:")
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("  %-14s calls=%-4d failures=%-3d min=%v max=%v mean=%v median=%v p95=%v p99=%v\n",
			rs.name, rs.totalCalls, rs.failures, min, max, mean, median, p95, p99)
	}
}

func main() {
	sc := newSimulationClient()

	log.Info().
		Int("workers", numWorkers).
		Int("orders_per_spread", ordersPerSpread).
		Msg("starting fulfillment simulation")

	jobs := make(chan string)
	var wg sync.WaitGroup

	for w := 1; w <= numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for spreadID := range jobs {
				if err := sc.runOrder(worker, spreadID); err != nil {
					log.Error().Err(err).Str("spread_id", spreadID).Msg("order flow failed")
				}
			}
		}(w)
	}

	for i := 0; i < ordersPerSpread; i++ {
		for _, spreadID := range spreadIDs {
			jobs <- spreadID
		}
	}
	close(jobs)
	wg.Wait()

	for _, spreadID := range spreadIDs {
		if err := sc.runDemo(spreadID); err != nil {
			log.Error().Err(err).Str("spread_id", spreadID).Msg("demo flow failed")
		}
	}

	sc.printStats()
	log.Info().Msg("simulation complete")
}
