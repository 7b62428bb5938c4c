// Benchmark tool for replaying labeled quote scenarios against Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/quotes.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a CSV of quote scenarios with expected underwriting decisions
//   2. Sends each quote to Kestrel for evaluation
//   3. Compares Kestrel's decision with the expected label
//   4. Reports agreement per decision plus throughput
//
// Expected CSV columns:
//   quote_id,base_premium,duration_months,soil_type,cross_liability,clauses,expected_decision
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// QuoteScenario represents one row of the benchmark CSV.
type QuoteScenario struct {
	QuoteID          string
	BasePremium      float64
	DurationMonths   float64
	SoilType         string
	CrossLiability   bool
	Clauses          []string
	ExpectedDecision string
}

// EvaluateRequest is the Kestrel API request format.
type EvaluateRequest struct {
	QuoteID     string             `json:"quoteId,omitempty"`
	ProductID   string             `json:"productId"`
	BasePremium float64            `json:"basePremium"`
	Numeric     map[string]float64 `json:"numeric,omitempty"`
	Labels      map[string]string  `json:"labels,omitempty"`
	Choices     map[string]bool    `json:"choices,omitempty"`
	Clauses     []string           `json:"clauses,omitempty"`
}

// EvaluateResponse is the Kestrel API response format.
type EvaluateResponse struct {
	EvaluationID string  `json:"evaluationId"`
	FinalPremium float64 `json:"finalPremium"`
	Decision     string  `json:"decision"`
	Explanation  string  `json:"explanation,omitempty"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Agreements    int64 // Decision matched the expected label
	Disagreements int64 // Decision differed from the expected label
	Declines      int64 // NO_QUOTE decisions
	TotalErrors   int64 // Transport or non-200 failures

	TotalProcessed int64
	TotalLatencyUs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to quote scenario CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	insurerID := flag.String("insurer", "benchmark-test", "Insurer ID for requests")
	productID := flag.String("product", "contractors-all-risks", "Product ID for requests")
	limit := flag.Int("limit", 10000, "Maximum quotes to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each quote result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/quotes.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           KESTREL BENCHMARK - Quote Rating Replay             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Insurer ID:  %s\n", *insurerID)
	fmt.Printf("Product ID:  %s\n", *productID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read scenario data
	fmt.Printf("\nReading quote scenarios from %s...\n", *csvPath)
	scenarios, err := readScenarioCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d scenarios\n", len(scenarios))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(scenarios, *baseURL, *insurerID, *productID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readScenarioCSV(path string, limit int) ([]QuoteScenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}

	var scenarios []QuoteScenario

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		basePremium, _ := strconv.ParseFloat(record[colIndex["base_premium"]], 64)
		duration, _ := strconv.ParseFloat(record[colIndex["duration_months"]], 64)
		crossLiability := strings.EqualFold(record[colIndex["cross_liability"]], "yes")

		var clauses []string
		if raw := record[colIndex["clauses"]]; raw != "" {
			clauses = strings.Split(raw, ";")
		}

		scenarios = append(scenarios, QuoteScenario{
			QuoteID:          record[colIndex["quote_id"]],
			BasePremium:      basePremium,
			DurationMonths:   duration,
			SoilType:         record[colIndex["soil_type"]],
			CrossLiability:   crossLiability,
			Clauses:          clauses,
			ExpectedDecision: record[colIndex["expected_decision"]],
		})

		if limit > 0 && len(scenarios) >= limit {
			break
		}
	}

	return scenarios, nil
}

func runBenchmark(scenarios []QuoteScenario, baseURL, insurerID, productID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan QuoteScenario, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for scenario := range work {
				start := time.Now()
				resp, err := evaluate(client, baseURL, insurerID, productID, scenario)
				latency := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)
				atomic.AddInt64(&metrics.TotalLatencyUs, latency.Microseconds())

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("  %s ERROR: %v\n", scenario.QuoteID, err)
					}
					continue
				}

				if resp.Decision == "NO_QUOTE" {
					atomic.AddInt64(&metrics.Declines, 1)
				}

				if resp.Decision == scenario.ExpectedDecision {
					atomic.AddInt64(&metrics.Agreements, 1)
				} else {
					atomic.AddInt64(&metrics.Disagreements, 1)
					if verbose {
						fmt.Printf("  %s MISMATCH: expected %s, got %s (premium %.2f)\n",
							scenario.QuoteID, scenario.ExpectedDecision, resp.Decision, resp.FinalPremium)
					}
				}
			}
		}()
	}

	for _, scenario := range scenarios {
		work <- scenario
	}
	close(work)
	wg.Wait()

	return metrics
}

func evaluate(client *http.Client, baseURL, insurerID, productID string, scenario QuoteScenario) (*EvaluateResponse, error) {
	reqBody := EvaluateRequest{
		QuoteID:     scenario.QuoteID,
		ProductID:   productID,
		BasePremium: scenario.BasePremium,
		Numeric:     map[string]float64{"project_duration": scenario.DurationMonths},
		Choices:     map[string]bool{"cross_liability": scenario.CrossLiability},
		Clauses:     scenario.Clauses,
	}
	if scenario.SoilType != "" {
		reqBody.Labels = map[string]string{"soil_type": scenario.SoilType}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Insurer-ID", insurerID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println()
	fmt.Println("═══════════════════════════ RESULTS ═══════════════════════════")
	fmt.Printf("  Processed:      %d quotes in %s\n", m.TotalProcessed, duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("  Throughput:     %.1f quotes/sec\n", float64(m.TotalProcessed)/duration.Seconds())
		fmt.Printf("  Avg latency:    %.2f ms\n", float64(m.TotalLatencyUs)/float64(m.TotalProcessed)/1000)
	}
	fmt.Printf("  Agreements:     %d\n", m.Agreements)
	fmt.Printf("  Disagreements:  %d\n", m.Disagreements)
	fmt.Printf("  Declines:       %d\n", m.Declines)
	fmt.Printf("  Errors:         %d\n", m.TotalErrors)

	scored := m.Agreements + m.Disagreements
	if scored > 0 {
		fmt.Printf("  Agreement rate: %.2f%%\n", 100*float64(m.Agreements)/float64(scored))
	}
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
