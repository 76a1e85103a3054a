// cmd/simulation is a load-testing client for a running engine,
// adapted from ksred-klear-api/cmd/simulation: the same routeStats
// percentile machinery and worker-pool submission pattern, retargeted
// from order-create/execute/clear/settle calls onto
// POST /contract and GET /optionsTable, with a summary that reports
// acceptance/rejection counts instead of a settlement funnel.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minSubmissions = 15
	maxSubmissions = 150
	numWorkers     = 5
)

var expiryDelta = []int64{86400, 172800, 259200, 432000, 604800}

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for one API route.
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

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

// simulationClient drives HTTP calls against a running engine instance.
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient(baseURL string) *simulationClient {
	return &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"optionsTable": {name: "GET /optionsTable"},
			"contract":     {name: "POST /contract"},
		},
	}
}

type gridCell struct {
	Side        string  `json:"side"`
	StrikePrice float64 `json:"strike_price"`
	Expire      string  `json:"expire"`
	Premium     float64 `json:"premium"`
	MaxQuantity float64 `json:"max_quantity"`
	IV          float64 `json:"iv"`
	Delta       float64 `json:"delta"`
}

// fetchOptionsTable retrieves the current quote grid.
func (sc *simulationClient) fetchOptionsTable() ([]gridCell, error) {
	start := time.Now()
	defer func() { sc.stats["optionsTable"].addDuration(time.Since(start)) }()

	resp, err := sc.client.Get(sc.baseURL + "/optionsTable")
	if err != nil {
		sc.stats["optionsTable"].failures++
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["optionsTable"].failures++
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("optionsTable failed with status %d: %s", resp.StatusCode, string(body))
	}

	var cells []gridCell
	if err := json.NewDecoder(resp.Body).Decode(&cells); err != nil {
		return nil, fmt.Errorf("failed to decode options table: %w", err)
	}
	return cells, nil
}

type contractSubmission struct {
	Side        string  `json:"side"`
	StrikePrice float64 `json:"strike_price"`
	Quantity    float64 `json:"quantity"`
	Expires     int64   `json:"expires"`
	Premium     float64 `json:"premium"`
}

type submissionOutcome struct {
	accepted bool
	reason   string
}

// submitContract posts one candidate contract and classifies the
// outcome without treating rejection as a request failure — rejection
// is an expected, correct response from the underwriting gate.
func (sc *simulationClient) submitContract(cell gridCell) (submissionOutcome, error) {
	start := time.Now()
	defer func() { sc.stats["contract"].addDuration(time.Since(start)) }()

	body, err := json.Marshal(contractSubmission{
		Side:        cell.Side,
		StrikePrice: cell.StrikePrice,
		Quantity:    sampleQuantity(cell.MaxQuantity),
		Expires:     time.Now().Unix() + expiryDelta[rand.Intn(len(expiryDelta))],
		Premium:     cell.Premium,
	})
	if err != nil {
		return submissionOutcome{}, err
	}

	resp, err := sc.client.Post(sc.baseURL+"/contract", "application/json", bytes.NewReader(body))
	if err != nil {
		sc.stats["contract"].failures++
		return submissionOutcome{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return submissionOutcome{}, fmt.Errorf("failed to read contract response: %w", err)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return submissionOutcome{accepted: true}, nil
	}

	var errResp struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(respBody, &errResp)
	return submissionOutcome{accepted: false, reason: errResp.Error}, nil
}

// sampleQuantity picks a plausible quantity below the quoted cap,
// occasionally overshooting it to exercise the gate's rejection paths.
func sampleQuantity(maxQuantity float64) float64 {
	if maxQuantity <= 0 {
		return 0.0001
	}
	if rand.Float64() < 0.1 {
		return maxQuantity * 1.5
	}
	return maxQuantity * (0.01 + rand.Float64()*0.2)
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// submitWorker pulls candidate cells off the channel and submits them,
// reporting outcomes on outcomes.
func submitWorker(workerID int, sc *simulationClient, cells <-chan gridCell, outcomes chan<- submissionOutcome, wg *sync.WaitGroup) {
	defer wg.Done()
	for cell := range cells {
		outcome, err := sc.submitContract(cell)
		if err != nil {
			log.Error().Err(err).Int("worker_id", workerID).Str("side", cell.Side).Msg("contract submission request failed")
			continue
		}
		if outcome.accepted {
			log.Info().Int("worker_id", workerID).Str("side", cell.Side).Float64("strike", cell.StrikePrice).Msg("contract accepted")
		} else {
			log.Warn().Int("worker_id", workerID).Str("side", cell.Side).Float64("strike", cell.StrikePrice).Str("reason", outcome.reason).Msg("contract rejected")
		}
		outcomes <- outcome
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

func main() {
	baseURL := os.Getenv("ENGINE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	sc := newSimulationClient(baseURL)

	grid, err := sc.fetchOptionsTable()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch initial options table; is the server running?")
	}
	log.Info().Int("cells", len(grid)).Msg("fetched options table")

	target := rand.Intn(maxSubmissions-minSubmissions) + minSubmissions
	log.Info().Int("target_submissions", target).Msg("starting simulation")

	cellsChan := make(chan gridCell, target)
	outcomes := make(chan submissionOutcome, target)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go submitWorker(i, sc, cellsChan, outcomes, &wg)
	}

	for i := 0; i < target; i++ {
		cellsChan <- grid[rand.Intn(len(grid))]
	}
	close(cellsChan)

	wg.Wait()
	close(outcomes)

	var accepted, rejected int
	reasons := make(map[string]int)
	for o := range outcomes {
		if o.accepted {
			accepted++
		} else {
			rejected++
			reasons[o.reason]++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("UNDERWRITING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Submissions Attempted: %d
Accepted:               %d
Rejected:               %d
`, target, accepted, rejected)

	fmt.Println("\nRejection Reasons")
	fmt.Println("-----------------")
	for reason, count := range reasons {
		if reason == "" {
			reason = "(unknown)"
		}
		fmt.Printf("%-60s %d\n", reason, count)
	}

	sc.printPerformanceStats()
}
