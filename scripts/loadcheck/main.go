package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "farelens API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per route for averaging")
	depart = flag.String("depart", time.Now().AddDate(0, 0, 30).Format("2006-01-02"), "Departure date for test searches (YYYY-MM-DD)")
	output = flag.String("output", "loadcheck-results.json", "JSON output file path")
)

// Test routes covering different market types.
var testRoutes = []struct {
	Label       string
	Origin      string
	Destination string
}{
	{"Transcon", "JFK", "LAX"},
	{"Short hop", "BOS", "DCA"},
	{"Transatlantic", "JFK", "LHR"},
	{"West coast", "SEA", "SFO"},
	{"Hub to hub", "ORD", "ATL"},
}

// --- Request / Response types (mirror the models package) ---

type searchRequest struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	MaxResults    int    `json:"max_results,omitempty"`
}

type searchResponse struct {
	Success          bool    `json:"success"`
	Total            int     `json:"total_results"`
	ExecutionSeconds float64 `json:"execution_time"`
	CacheStatus      string  `json:"cache_status"`
	Offers           []struct {
		Price float64 `json:"price"`
	} `json:"flights"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// reportResponse mirrors GET /api/v1/report.
type reportResponse struct {
	Report struct {
		PagesMonitored int `json:"pages_monitored"`
		OverallHealth  struct {
			AverageSuccessRate float64 `json:"average_success_rate"`
			WorstSuccessRate   float64 `json:"worst_success_rate"`
		} `json:"overall_health"`
		CriticalIssues  []string `json:"critical_issues"`
		Recommendations []string `json:"recommendations"`
	} `json:"report"`
}

// --- Load check result types ---

type runResult struct {
	Run              int     `json:"run"`
	LatencyMs        int64   `json:"latency_ms"`
	ExecutionSeconds float64 `json:"execution_seconds"`
	Offers           int     `json:"offers"`
	MinPrice         float64 `json:"min_price,omitempty"`
	CacheStatus      string  `json:"cache_status,omitempty"`
	Success          bool    `json:"success"`
	Error            string  `json:"error,omitempty"`
}

type routeAverages struct {
	LatencyMs        float64 `json:"latency_ms"`
	ExecutionSeconds float64 `json:"execution_seconds"`
	Offers           float64 `json:"offers"`
	MinPrice         float64 `json:"min_price"`
}

type routeResult struct {
	Route    string         `json:"route"`
	Label    string         `json:"label"`
	Runs     []runResult    `json:"runs"`
	Averages *routeAverages `json:"averages,omitempty"`
}

type loadcheckReport struct {
	Timestamp      string          `json:"timestamp"`
	APIURL         string          `json:"api_url"`
	RunsPerRoute   int             `json:"runs_per_route"`
	DepartureDate  string          `json:"departure_date"`
	Results        []routeResult   `json:"results"`
	SelectorHealth json.RawMessage `json:"selector_health,omitempty"`
}

func main() {
	flag.Parse()

	fmt.Println("=== Farelens Load Check ===")
	fmt.Printf("API URL:     %s\n", *apiURL)
	fmt.Printf("Runs/route:  %d\n", *runs)
	fmt.Printf("Departure:   %s\n", *depart)
	fmt.Printf("Output:      %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure farelens is running (farelens serve)\n")
		os.Exit(1)
	}

	report := loadcheckReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		RunsPerRoute:  *runs,
		DepartureDate: *depart,
	}

	for _, t := range testRoutes {
		route := t.Origin + "-" + t.Destination
		fmt.Printf("Checking [%s] %s ...\n", t.Label, route)
		rr := routeResult{Route: route, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			res := searchRoute(t.Origin, t.Destination, i)
			if res.Success {
				fmt.Printf("OK  %dms  %d offers", res.LatencyMs, res.Offers)
				if res.CacheStatus == "hit" {
					fmt.Print("  (cached)")
				}
				fmt.Println()
			} else {
				fmt.Printf("FAILED: %s\n", res.Error)
			}
			rr.Runs = append(rr.Runs, res)
		}

		rr.Averages = computeAverages(rr.Runs)
		report.Results = append(report.Results, rr)
		fmt.Println()
	}

	// Print summary table.
	printTable(report.Results)

	// Pull the selector health report accumulated during the run.
	if raw, rep, err := fetchHealthReport(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: selector health report unavailable: %v\n", err)
	} else {
		report.SelectorHealth = raw
		printHealth(rep)
	}

	// Write JSON report.
	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func searchRoute(origin, destination string, run int) runResult {
	rr := runResult{Run: run}

	reqBody := searchRequest{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: *depart,
		MaxResults:    20,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest("POST", *apiURL+"/api/v1/search", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	start := time.Now()
	resp, err := client.Do(req)
	rr.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = sr.Success
	rr.ExecutionSeconds = sr.ExecutionSeconds
	rr.Offers = sr.Total
	rr.CacheStatus = sr.CacheStatus
	rr.MinPrice = minPrice(sr)

	if sr.Error != nil {
		rr.Error = fmt.Sprintf("[%s] %s", sr.Error.Code, sr.Error.Message)
	} else if !sr.Success {
		rr.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	return rr
}

func minPrice(sr searchResponse) float64 {
	min := 0.0
	for _, o := range sr.Offers {
		if o.Price <= 0 {
			continue
		}
		if min == 0 || o.Price < min {
			min = o.Price
		}
	}
	return min
}

func fetchHealthReport(baseURL string) (json.RawMessage, *reportResponse, error) {
	req, err := http.NewRequest("GET", baseURL+"/api/v1/report", nil)
	if err != nil {
		return nil, nil, err
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, nil, err
	}

	var rep reportResponse
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, nil, err
	}
	return raw, &rep, nil
}

func computeAverages(runs []runResult) *routeAverages {
	var successCount int
	var avg routeAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.LatencyMs += float64(r.LatencyMs)
		avg.ExecutionSeconds += r.ExecutionSeconds
		avg.Offers += float64(r.Offers)
		avg.MinPrice += r.MinPrice
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.LatencyMs /= n
	avg.ExecutionSeconds /= n
	avg.Offers /= n
	avg.MinPrice /= n
	return &avg
}

func printTable(results []routeResult) {
	fmt.Println(strings.Repeat("─", 70))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Route\tAvg Latency\tAvg Offers\tCheapest\tCache\n")
	fmt.Fprintf(w, "─────\t───────────\t──────────\t────────\t─────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", r.Route)
			continue
		}

		fmt.Fprintf(w, "%s\t%dms\t%.1f\t%s\t%s\n",
			r.Route,
			int64(r.Averages.LatencyMs),
			r.Averages.Offers,
			formatPrice(r.Averages.MinPrice),
			cacheSummary(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 70))
}

// cacheSummary reports how many runs were served from the outcome cache.
func cacheSummary(runs []runResult) string {
	hits, total := 0, 0
	for _, r := range runs {
		if !r.Success {
			continue
		}
		total++
		if r.CacheStatus == "hit" {
			hits++
		}
	}
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d hits", hits, total)
}

func printHealth(rep *reportResponse) {
	fmt.Println()
	fmt.Printf("Selector health: %.0f%% average success rate across %d pages (worst %.0f%%)\n",
		rep.Report.OverallHealth.AverageSuccessRate*100,
		rep.Report.PagesMonitored,
		rep.Report.OverallHealth.WorstSuccessRate*100,
	)
	for _, issue := range rep.Report.CriticalIssues {
		fmt.Printf("  critical: %s\n", issue)
	}
	for _, rec := range rep.Report.Recommendations {
		fmt.Printf("  recommended: %s\n", rec)
	}
}

func formatPrice(p float64) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("$%.0f", p)
}

func writeJSON(path string, report loadcheckReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
