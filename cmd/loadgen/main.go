// Load generator for testing Vigil against labelled contract data.
//
// Usage:
//   go run cmd/loadgen/main.go -csv /path/to/contracts.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labelled contract data (with fraud labels)
//   2. Sends each contract to Vigil for consensus prediction
//   3. Compares Vigil's verdict with the actual fraud labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns: contract_id, client_id, amount, total_premium,
// market_value, liability, is_fraud.
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

// LabelledContract represents a row from the input dataset.
type LabelledContract struct {
	ContractID   string
	ClientID     string
	Amount       float64
	TotalPremium float64
	MarketValue  float64
	Liability    float64
	IsFraud      bool
}

// PredictRequest is the Vigil API request format.
type PredictRequest struct {
	ContractData ContractData `json:"contractData"`
	ClientData   ClientData   `json:"clientData"`
}

type ContractData struct {
	ContractID   string  `json:"contractId"`
	ClientID     string  `json:"clientId"`
	Amount       float64 `json:"amount"`
	TotalPremium float64 `json:"totalPremium"`
	MarketValue  float64 `json:"marketValue"`
	Liability    float64 `json:"liability"`
}

type ClientData struct {
	ClientID string `json:"clientId"`
}

// PredictResponse is the Vigil API response format.
type PredictResponse struct {
	FraudDetected    bool    `json:"fraudDetected"`
	RiskLevel        string  `json:"riskLevel"`
	FraudProbability float64 `json:"fraudProbability"`
	AlertTriggered   bool    `json:"alertTriggered"`
}

// Metrics tracks load generation results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged as fraud
	FalsePositives int64 // Clean flagged as fraud
	TrueNegatives  int64 // Clean passed as clean
	FalseNegatives int64 // Fraud passed as clean (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled contract CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Vigil base URL")
	limit := flag.Int("limit", 10000, "Maximum contracts to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only send fraud-labelled contracts")
	verbose := flag.Bool("verbose", false, "Print each contract result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: loadgen -csv /path/to/contracts.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("CSV File:   %s\n", *csvPath)
	fmt.Printf("Vigil URL:  %s\n", *baseURL)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Limit:      %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Vigil not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Vigil is running:")
		fmt.Println("  go run cmd/vigil/main.go")
		os.Exit(1)
	}
	fmt.Println("Vigil is healthy")

	contracts, err := readContractCSV(*csvPath, *limit, *fraudOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}

	fraudCount := 0
	for _, c := range contracts {
		if c.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("Loaded %d contracts (%d fraud, %d clean)\n",
		len(contracts), fraudCount, len(contracts)-fraudCount)

	fmt.Printf("\nRunning with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := run(contracts, *baseURL, *workers, *verbose)
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

func readContractCSV(path string, limit int, fraudOnly bool) ([]LabelledContract, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var contracts []LabelledContract
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := field(record, "is_fraud") == "1"
		if fraudOnly && !isFraud {
			continue
		}

		amount, _ := strconv.ParseFloat(field(record, "amount"), 64)
		premium, _ := strconv.ParseFloat(field(record, "total_premium"), 64)
		market, _ := strconv.ParseFloat(field(record, "market_value"), 64)
		liability, _ := strconv.ParseFloat(field(record, "liability"), 64)

		contracts = append(contracts, LabelledContract{
			ContractID:   field(record, "contract_id"),
			ClientID:     field(record, "client_id"),
			Amount:       amount,
			TotalPremium: premium,
			MarketValue:  market,
			Liability:    liability,
			IsFraud:      isFraud,
		})

		if limit > 0 && len(contracts) >= limit {
			break
		}
	}

	return contracts, nil
}

func run(contracts []LabelledContract, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabelledContract, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := predict(client, baseURL, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.ContractID, err)
					}
					continue
				}

				if c.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				predicted := result.FraudDetected
				actual := c.IsFraud

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					marker := "ok  "
					if predicted != actual {
						marker = "MISS"
					}
					fmt.Printf("%s %-12s | Amount: %12.2f | Fraud: %-5v | Vigil: %-5v (%s, %.2f)\n",
						marker, c.ContractID, c.Amount, actual,
						result.FraudDetected, result.RiskLevel, result.FraudProbability)
				}
			}
		}()
	}

	for _, c := range contracts {
		work <- c
	}
	close(work)
	wg.Wait()

	return metrics
}

func predict(client *http.Client, baseURL string, c LabelledContract) (*PredictResponse, error) {
	req := PredictRequest{
		ContractData: ContractData{
			ContractID:   c.ContractID,
			ClientID:     c.ClientID,
			Amount:       c.Amount,
			TotalPremium: c.TotalPremium,
			MarketValue:  c.MarketValue,
			Liability:    c.Liability,
		},
		ClientData: ClientData{ClientID: c.ClientID},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/api/v1/fraud/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println()
	fmt.Println("Results")
	fmt.Println("-------")
	fmt.Printf("Processed:  %d in %s (%.1f req/s)\n",
		m.TotalProcessed, duration.Round(time.Millisecond),
		float64(m.TotalProcessed)/duration.Seconds())
	fmt.Printf("Errors:     %d\n", m.TotalErrors)
	if m.TotalProcessed > m.TotalErrors {
		fmt.Printf("Avg latency: %.1f ms\n",
			float64(m.ProcessingTimeMs)/float64(m.TotalProcessed-m.TotalErrors))
	}
	fmt.Println()
	fmt.Println("Confusion matrix:")
	fmt.Printf("  True positives:  %d\n", m.TruePositives)
	fmt.Printf("  False positives: %d\n", m.FalsePositives)
	fmt.Printf("  True negatives:  %d\n", m.TrueNegatives)
	fmt.Printf("  False negatives: %d\n", m.FalseNegatives)
	fmt.Println()

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	fmt.Printf("Precision:  %.3f\n", precision)
	fmt.Printf("Recall:     %.3f\n", recall)
	fmt.Printf("F1-score:   %.3f\n", f1)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
