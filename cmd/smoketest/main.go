// smoketest exercises a running inference service end to end: health,
// a prediction per sample letter, stats, and an optional load run.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"time"
)

var sampleData = map[string][]float64{
	"A": {512.3, 678.1, 345.9, 890.2, 234.5},
	"B": {723.4, 456.2, 234.1, 567.8, 890.3},
	"C": {345.1, 789.2, 456.3, 234.5, 678.9},
	"D": {456.7, 234.5, 890.1, 345.6, 567.2},
	"E": {789.3, 345.6, 567.8, 123.4, 456.7},
}

var client = &http.Client{Timeout: 5 * time.Second}

func main() {
	url := flag.String("url", "http://localhost:8100", "service base URL")
	load := flag.Int("load", 0, "run a load test with N requests instead of the full suite")
	flag.Parse()

	fmt.Printf("smoke testing %s\n", *url)

	if !checkHealth(*url) {
		os.Exit(1)
	}

	if *load > 0 {
		runLoad(*url, *load)
		return
	}

	ok := true
	for _, letter := range sortedLetters() {
		ok = checkPredict(*url, letter, sampleData[letter]) && ok
	}
	ok = checkStats(*url) && ok

	if !ok {
		fmt.Println("some checks failed")
		os.Exit(1)
	}
	fmt.Println("all checks passed")
}

func sortedLetters() []string {
	letters := make([]string, 0, len(sampleData))
	for l := range sampleData {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	return letters
}

func checkHealth(base string) bool {
	var resp struct {
		Status            string  `json:"status"`
		ModelName         string  `json:"model_name"`
		DatabaseConnected bool    `json:"database_connected"`
		UptimeSeconds     float64 `json:"uptime_seconds"`
	}
	if err := getJSON(base+"/health", &resp); err != nil {
		fmt.Printf("health check failed: %v\n", err)
		return false
	}
	fmt.Printf("health: %s, model=%s, db=%v, uptime=%.1fs\n",
		resp.Status, resp.ModelName, resp.DatabaseConnected, resp.UptimeSeconds)
	return true
}

func checkPredict(base, expected string, sensors []float64) bool {
	resp, latency, err := predict(base, sensors, "test-client")
	if err != nil {
		fmt.Printf("predict %s failed: %v\n", expected, err)
		return false
	}

	match := ""
	if resp.Letter != expected {
		match = fmt.Sprintf(" (sample labelled %s)", expected)
	}
	fmt.Printf("predict: %s %.1f%% in %.2fms (latency %.2fms)%s\n",
		resp.Letter, resp.Confidence*100, resp.ProcessingTimeMS, latency, match)

	for _, p := range topN(resp.AllProbabilities, 3) {
		fmt.Printf("  %s: %5.1f%%\n", p.letter, p.prob*100)
	}
	return true
}

type predictResponse struct {
	Letter           string             `json:"letter"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
}

func predict(base string, sensors []float64, deviceID string) (predictResponse, float64, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"flex_sensors": sensors,
		"device_id":    deviceID,
	})
	if err != nil {
		return predictResponse{}, 0, err
	}

	start := time.Now()
	httpResp, err := client.Post(base+"/predict", "application/json", bytes.NewReader(payload))
	if err != nil {
		return predictResponse{}, 0, err
	}
	defer httpResp.Body.Close()
	latency := float64(time.Since(start)) / float64(time.Millisecond)

	if httpResp.StatusCode != http.StatusOK {
		return predictResponse{}, latency, fmt.Errorf("status %d", httpResp.StatusCode)
	}

	var resp predictResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return predictResponse{}, latency, err
	}
	return resp, latency, nil
}

func checkStats(base string) bool {
	var resp struct {
		TotalPredictions int64   `json:"total_predictions"`
		AvgConfidence    float64 `json:"last_24h_avg_confidence"`
		AvgProcessingMS  float64 `json:"last_1h_avg_processing_ms"`
		TopLetters       []struct {
			Letter string `json:"letter"`
			Count  int64  `json:"count"`
		} `json:"top_letters_24h"`
	}
	if err := getJSON(base+"/stats", &resp); err != nil {
		fmt.Printf("stats failed: %v\n", err)
		return false
	}

	fmt.Printf("stats: total=%d avg_confidence=%.1f%% avg_processing=%.2fms\n",
		resp.TotalPredictions, resp.AvgConfidence*100, resp.AvgProcessingMS)
	for i, item := range resp.TopLetters {
		if i >= 5 {
			break
		}
		fmt.Printf("  %s: %d predictions\n", item.Letter, item.Count)
	}
	return true
}

func runLoad(base string, iterations int) {
	letters := sortedLetters()
	latencies := make([]float64, 0, iterations)

	for i := 0; i < iterations; i++ {
		sensors := sampleData[letters[i%len(letters)]]
		_, latency, err := predict(base, sensors, "load-test")
		if err != nil {
			fmt.Printf("request %d failed: %v\n", i+1, err)
			continue
		}
		latencies = append(latencies, latency)
	}

	if len(latencies) == 0 {
		log.Fatal("load test: no successful requests")
	}

	minL, maxL, sum := latencies[0], latencies[0], 0.0
	for _, l := range latencies {
		if l < minL {
			minL = l
		}
		if l > maxL {
			maxL = l
		}
		sum += l
	}
	avg := sum / float64(len(latencies))

	fmt.Printf("load: %d/%d ok, avg=%.2fms min=%.2fms max=%.2fms, %.1f req/s\n",
		len(latencies), iterations, avg, minL, maxL, 1000/avg)
}

type letterProb struct {
	letter string
	prob   float64
}

func topN(probs map[string]float64, n int) []letterProb {
	ranked := make([]letterProb, 0, len(probs))
	for l, p := range probs {
		ranked = append(ranked, letterProb{l, p})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].prob > ranked[j].prob })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func getJSON(url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
