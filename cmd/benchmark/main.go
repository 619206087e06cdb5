// Benchmark tool for testing Kestrel against labeled presentation data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/presentations.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled document presentation data (with discrepancy labels)
//   2. Sends each presentation to Kestrel for evaluation
//   3. Compares Kestrel's verdict (DISCREPANT/COMPLIANT) with the labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// The CSV needs a header row with at least: invoice_amount, invoice_currency,
// lc_amount, lc_currency, goods_description, lc_goods_description,
// shipment_date, latest_shipment_date, presentation_date, expiry_date,
// is_discrepant.
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

// Presentation represents a labeled row from the dataset
type Presentation struct {
	InvoiceAmount      float64
	InvoiceCurrency    string
	LCAmount           float64
	LCCurrency         string
	GoodsDescription   string
	LCGoodsDescription string
	ShipmentDate       string
	LatestShipmentDate string
	PresentationDate   string
	ExpiryDate         string
	IsDiscrepant       bool
}

// EvaluateRequest is the Kestrel API request format
type EvaluateRequest struct {
	DocumentType string         `json:"documentType"`
	Domain       string         `json:"domain"`
	Jurisdiction string         `json:"jurisdiction"`
	Context      map[string]any `json:"context"`
}

// EvaluateResponse is the subset of the report the benchmark needs
type EvaluateResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"` // COMPLIANT, DISCREPANT or REVIEW
	Score  float64 `json:"score"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Discrepant flagged DISCREPANT
	FalsePositives int64 // Clean flagged DISCREPANT
	TrueNegatives  int64 // Clean passed COMPLIANT
	FalseNegatives int64 // Discrepant passed COMPLIANT (missed!)

	TotalProcessed  int64
	TotalDiscrepant int64
	TotalClean      int64
	TotalReview     int64
	TotalErrors     int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled presentation CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	ruleDomain := flag.String("domain", "icc.ucp600", "Ruleset domain")
	jurisdiction := flag.String("jurisdiction", "global", "Ruleset jurisdiction")
	limit := flag.Int("limit", 10000, "Maximum presentations to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each presentation result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/presentations.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Document Compliance Checking       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Kestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Scope:        %s/%s\n", *ruleDomain, *jurisdiction)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled presentation data
	fmt.Printf("\nReading presentation data from %s...\n", *csvPath)
	presentations, err := readPresentationCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d presentations\n", len(presentations))

	// Count discrepant vs clean
	discrepantCount := 0
	for _, p := range presentations {
		if p.IsDiscrepant {
			discrepantCount++
		}
	}
	fmt.Printf("  - Discrepant: %d (%.2f%%)\n", discrepantCount, 100*float64(discrepantCount)/float64(len(presentations)))
	fmt.Printf("  - Clean:      %d (%.2f%%)\n", len(presentations)-discrepantCount, 100*float64(len(presentations)-discrepantCount)/float64(len(presentations)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(presentations, *baseURL, *tenantID, *ruleDomain, *jurisdiction, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
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

func readPresentationCSV(path string, limit int) ([]Presentation, error) {
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

	var presentations []Presentation

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		invoiceAmount, _ := strconv.ParseFloat(record[colIndex["invoice_amount"]], 64)
		lcAmount, _ := strconv.ParseFloat(record[colIndex["lc_amount"]], 64)

		p := Presentation{
			InvoiceAmount:      invoiceAmount,
			InvoiceCurrency:    record[colIndex["invoice_currency"]],
			LCAmount:           lcAmount,
			LCCurrency:         record[colIndex["lc_currency"]],
			GoodsDescription:   record[colIndex["goods_description"]],
			LCGoodsDescription: record[colIndex["lc_goods_description"]],
			ShipmentDate:       record[colIndex["shipment_date"]],
			LatestShipmentDate: record[colIndex["latest_shipment_date"]],
			PresentationDate:   record[colIndex["presentation_date"]],
			ExpiryDate:         record[colIndex["expiry_date"]],
			IsDiscrepant:       record[colIndex["is_discrepant"]] == "1",
		}

		presentations = append(presentations, p)

		if limit > 0 && len(presentations) >= limit {
			break
		}
	}

	return presentations, nil
}

func runBenchmark(presentations []Presentation, baseURL, tenantID, ruleDomain, jurisdiction string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan Presentation, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for p := range work {
				start := time.Now()
				result, err := evaluatePresentation(client, baseURL, tenantID, ruleDomain, jurisdiction, p)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				// Track actual labels
				if p.IsDiscrepant {
					atomic.AddInt64(&metrics.TotalDiscrepant, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}
				if result.Status == "REVIEW" {
					atomic.AddInt64(&metrics.TotalReview, 1)
				}

				// Calculate confusion matrix. REVIEW counts as not flagged
				// since those documents go to a human anyway.
				predicted := result.Status == "DISCREPANT"
				actual := p.IsDiscrepant

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					fmt.Printf("%s Invoice: %12.2f %s | Credit: %12.2f %s | Labeled: %-5v | Kestrel: %-10s (%.2f)\n",
						status,
						p.InvoiceAmount,
						p.InvoiceCurrency,
						p.LCAmount,
						p.LCCurrency,
						p.IsDiscrepant,
						result.Status,
						result.Score,
					)
				}
			}
		}()
	}

	// Send work
	for _, p := range presentations {
		work <- p
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func evaluatePresentation(client *http.Client, baseURL, tenantID, ruleDomain, jurisdiction string, p Presentation) (*EvaluateResponse, error) {
	// Build the nested document context the ruleset's field paths expect
	req := EvaluateRequest{
		DocumentType: "commercial_invoice",
		Domain:       ruleDomain,
		Jurisdiction: jurisdiction,
		Context: map[string]any{
			"invoice": map[string]any{
				"amount":      p.InvoiceAmount,
				"currency":    p.InvoiceCurrency,
				"description": p.GoodsDescription,
			},
			"lc": map[string]any{
				"amount":               p.LCAmount,
				"currency":             p.LCCurrency,
				"goods_description":    p.LCGoodsDescription,
				"latest_shipment_date": p.LatestShipmentDate,
				"expiry_date":          p.ExpiryDate,
			},
			"shipment": map[string]any{
				"date": p.ShipmentDate,
			},
			"presentation": map[string]any{
				"date": p.PresentationDate,
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Discrepant: %d\n", m.TotalDiscrepant)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Sent to Review:   %d\n", m.TotalReview)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  DISCREPANT  COMPLIANT")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  D  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           C  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged documents, how many were truly discrepant)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of discrepant documents, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalDiscrepant > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalDiscrepant) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalDiscrepant) * 100
		fmt.Printf("   Discrepancies Found:  %d / %d (%.2f%%)\n", m.TruePositives, m.TotalDiscrepant, detectionRate)
		fmt.Printf("   Discrepancies Missed: %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalDiscrepant, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Flags:          %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		dps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f docs/sec\n", dps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most discrepancies")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but some discrepancies slip through")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - many discrepancies being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most discrepancies are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false flags")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false flags")
	}

	fmt.Println()
}
