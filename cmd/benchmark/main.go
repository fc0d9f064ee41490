// Benchmark tool for testing Gavel against labeled contract statements.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/statements.csv -url http://localhost:8080
//
// This tool:
//   1. Optionally publishes a requirement set from a JSON file
//   2. Ingests each labeled statement as a single-statement document
//   3. Scores it and compares Gavel's verdict with the expected label
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// CSV columns: name,section,content,tags,violates
// where tags is semicolon-separated and violates is 0 or 1.
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
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledStatement is one row from the benchmark dataset.
type LabeledStatement struct {
	Name     string
	Section  string
	Content  string
	Tags     []string
	Violates bool
}

// statementInfo matches Gavel's statement wire format.
type statementInfo struct {
	Section string   `json:"section"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// documentRequest matches POST /documents.
type documentRequest struct {
	Name       string          `json:"name"`
	Source     string          `json:"source"`
	Statements []statementInfo `json:"statements"`
}

// analyzeRequest matches POST /analyze.
type analyzeRequest struct {
	DocumentID     string `json:"documentId"`
	JurisdictionID string `json:"jurisdictionId"`
}

// analyzeResponse is the subset of the analyze response the benchmark reads.
type analyzeResponse struct {
	Profile struct {
		ID           string  `json:"id"`
		OverallScore float64 `json:"overallScore"`
		Undetermined bool    `json:"undetermined"`
	} `json:"profile"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Violation detected as violation
	FalsePositives int64 // Clean statement flagged
	TrueNegatives  int64 // Clean statement passed
	FalseNegatives int64 // Violation missed

	TotalProcessed int64
	TotalViolating int64
	TotalClean     int64
	Undetermined   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled statements CSV file")
	rulesPath := flag.String("rules", "", "Path to a JSON requirements file to publish first")
	baseURL := flag.String("url", "http://localhost:8080", "Gavel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	jurisdiction := flag.String("jurisdiction", "BENCH", "Jurisdiction to score against")
	limit := flag.Int("limit", 10000, "Maximum statements to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each statement result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/statements.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         GAVEL BENCHMARK - Compliance Verdict Accuracy         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Gavel URL:    %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Jurisdiction: %s\n", *jurisdiction)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	// Check Gavel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Gavel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Gavel is running:")
		fmt.Println("  cd gavel && go run cmd/gavel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Gavel is healthy")

	// Publish the benchmark rule set when one is supplied
	if *rulesPath != "" {
		if err := publishRules(*baseURL, *tenantID, *jurisdiction, *rulesPath); err != nil {
			fmt.Printf("ERROR: Failed to publish rules: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Published requirement set from %s\n", *rulesPath)
	}

	// Read labeled data
	fmt.Printf("\nReading labeled statements from %s...\n", *csvPath)
	statements, err := readStatementsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d statements\n", len(statements))

	violating := 0
	for _, st := range statements {
		if st.Violates {
			violating++
		}
	}
	fmt.Printf("  - Violating: %d (%.2f%%)\n", violating, 100*float64(violating)/float64(len(statements)))
	fmt.Printf("  - Clean:     %d (%.2f%%)\n", len(statements)-violating, 100*float64(len(statements)-violating)/float64(len(statements)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(statements, *baseURL, *tenantID, *jurisdiction, *workers, *verbose)
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

// publishRules posts the JSON requirements file as a new regulation version.
func publishRules(baseURL, tenantID, jurisdiction, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var requirements []json.RawMessage
	if err := json.Unmarshal(raw, &requirements); err != nil {
		return fmt.Errorf("rules file must be a JSON array of requirements: %w", err)
	}

	body, _ := json.Marshal(map[string]any{"requirements": requirements})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/catalog/"+jurisdiction+"/versions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func readStatementsCSV(path string, limit int) ([]LabeledStatement, error) {
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

	var statements []LabeledStatement
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		st := LabeledStatement{
			Name:     record[colIndex["name"]],
			Section:  record[colIndex["section"]],
			Content:  record[colIndex["content"]],
			Violates: record[colIndex["violates"]] == "1",
		}
		for _, tag := range strings.Split(record[colIndex["tags"]], ";") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				st.Tags = append(st.Tags, trimmed)
			}
		}

		statements = append(statements, st)

		if limit > 0 && len(statements) >= limit {
			break
		}
	}

	return statements, nil
}

func runBenchmark(statements []LabeledStatement, baseURL, tenantID, jurisdiction string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledStatement, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for st := range work {
				start := time.Now()
				result, err := scoreStatement(client, baseURL, tenantID, jurisdiction, st)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", st.Name, err)
					}
					continue
				}

				// Track actual labels
				if st.Violates {
					atomic.AddInt64(&metrics.TotalViolating, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}
				if result.Profile.Undetermined {
					atomic.AddInt64(&metrics.Undetermined, 1)
				}

				// Calculate confusion matrix. A perfect score with at
				// least one applicable requirement counts as clean.
				predicted := result.Profile.OverallScore < 100 || result.Profile.Undetermined
				actual := st.Violates

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
					name := st.Name
					if len(name) > 18 {
						name = name[:18]
					}
					fmt.Printf("%s %-18s | Section: %-6s | Violates: %-5v | Score: %6.2f | Undetermined: %v\n",
						status,
						name,
						st.Section,
						st.Violates,
						result.Profile.OverallScore,
						result.Profile.Undetermined,
					)
				}
			}
		}()
	}

	// Send work
	for _, st := range statements {
		work <- st
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

// scoreStatement ingests the statement as a one-statement document and
// scores it against the active regulation version.
func scoreStatement(client *http.Client, baseURL, tenantID, jurisdiction string, st LabeledStatement) (*analyzeResponse, error) {
	docReq := documentRequest{
		Name:   st.Name,
		Source: "benchmark",
		Statements: []statementInfo{{
			Section: st.Section,
			Content: st.Content,
			Tags:    st.Tags,
		}},
	}

	var doc struct {
		ID string `json:"id"`
	}
	if err := postJSON(client, baseURL+"/documents", tenantID, docReq, http.StatusCreated, &doc); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	var result analyzeResponse
	err := postJSON(client, baseURL+"/analyze", tenantID, analyzeRequest{
		DocumentID:     doc.ID,
		JurisdictionID: jurisdiction,
	}, http.StatusOK, &result)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	return &result, nil
}

func postJSON(client *http.Client, url, tenantID string, body any, wantStatus int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Violating:  %d\n", m.TotalViolating)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Undetermined:     %d\n", m.Undetermined)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FLAG        PASS")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  V  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
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
	fmt.Printf("   Precision:  %.4f  (of flags, how many were actual violations)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of violations, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct verdicts)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalViolating > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalViolating) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalViolating) * 100
		fmt.Printf("   Violations Caught: %d / %d (%.2f%%)\n", m.TruePositives, m.TotalViolating, detectionRate)
		fmt.Printf("   Violations Missed: %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalViolating, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Flags:       %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		sps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f statements/sec\n", sps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most violations")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some violations")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant violations being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most violations are being missed!")
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
