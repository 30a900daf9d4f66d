// Benchmark drives the analysis engine with repeated requests and reports
// latency percentiles. It runs entirely against the simulated market-data
// provider, so the numbers measure the engine itself.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finsight-dev/finsight"
	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/agents"
	"github.com/finsight-dev/finsight/pkg/config"
)

// defaultAgents is the analyst subset: every computation stage, none of the
// file writers, so a long run does not fill the disk with charts.
const defaultAgents = "data_collector,technical_analyst,fundamental_analyst,risk_assessor,sentiment_analyzer"

func main() {
	var (
		symbols      = flag.String("symbols", "AAPL,MSFT,GOOG,TSLA", "Comma-separated symbols to rotate through")
		agentNames   = flag.String("agents", defaultAgents, "Comma-separated agents to run per request")
		requests     = flag.Int("requests", 100, "Total number of requests")
		concurrency  = flag.Int("concurrency", 4, "Requests in flight at once")
		timeout      = flag.Duration("timeout", 5*time.Minute, "Overall benchmark timeout")
		outputFormat = flag.String("format", "text", "Output format: text, json")
	)
	flag.Parse()

	if err := run(*symbols, *agentNames, *requests, *concurrency, *timeout, *outputFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type report struct {
	Requests    int           `json:"requests"`
	Failed      int           `json:"failed"`
	Concurrency int           `json:"concurrency"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	PerSecond   float64       `json:"requests_per_second"`
	P50         time.Duration `json:"p50_ns"`
	P95         time.Duration `json:"p95_ns"`
	P99         time.Duration `json:"p99_ns"`
	Max         time.Duration `json:"max_ns"`
}

func run(symbols, agentNames string, requests, concurrency int, timeout time.Duration, outputFormat string) error {
	if requests <= 0 {
		return fmt.Errorf("requests must be positive")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	subjects := splitList(symbols)
	if len(subjects) == 0 {
		return fmt.Errorf("no symbols given")
	}
	selection := splitList(agentNames)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	eng, err := buildEngine()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		_ = eng.Close(context.Background())
	}()
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	latencies := make([]time.Duration, requests)
	failures := make([]error, requests)
	jobs := make(chan int)
	var wg sync.WaitGroup

	started := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				req := agent.NewRequest(subjects[i%len(subjects)])
				if len(selection) > 0 {
					req = req.WithAgents(selection...)
				}
				t0 := time.Now()
				agg, err := eng.Analyze(ctx, req)
				latencies[i] = time.Since(t0)
				if err != nil {
					failures[i] = err
				} else if agg.Overall == agent.OverallFailed {
					failures[i] = fmt.Errorf("request failed outright")
				}
			}
		}()
	}

	submitted := 0
submit:
	for i := 0; i < requests; i++ {
		select {
		case jobs <- i:
			submitted++
		case <-ctx.Done():
			break submit
		}
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(started)
	if submitted < requests {
		return fmt.Errorf("benchmark timed out after %d of %d requests", submitted, requests)
	}

	failed := 0
	for _, err := range failures {
		if err != nil {
			failed++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	rep := report{
		Requests:    requests,
		Failed:      failed,
		Concurrency: concurrency,
		Elapsed:     elapsed,
		PerSecond:   float64(requests) / elapsed.Seconds(),
		P50:         percentile(latencies, 0.50),
		P95:         percentile(latencies, 0.95),
		P99:         percentile(latencies, 0.99),
		Max:         latencies[len(latencies)-1],
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "text":
		printReport(rep)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", outputFormat)
	}
}

// buildEngine runs the default pipeline with its file writers pointed at a
// throwaway directory, in case the agent selection includes them.
func buildEngine() (*finsight.Engine, error) {
	cfg := config.Default()
	dir, err := os.MkdirTemp("", "finsight-bench-")
	if err != nil {
		return nil, err
	}
	for name, ac := range cfg.Agents {
		switch ac.Type {
		case agents.TypeVisualizer, agents.TypeReportGenerator:
			params := make(map[string]any, len(ac.Params)+1)
			for k, v := range ac.Params {
				params[k] = v
			}
			params["output_dir"] = filepath.Join(dir, name)
			ac.Params = params
			cfg.Agents[name] = ac
		}
	}
	return finsight.New(cfg)
}

func printReport(rep report) {
	fmt.Printf("requests:     %d (%d failed)\n", rep.Requests, rep.Failed)
	fmt.Printf("concurrency:  %d\n", rep.Concurrency)
	fmt.Printf("elapsed:      %s\n", rep.Elapsed.Round(time.Millisecond))
	fmt.Printf("throughput:   %.1f req/s\n", rep.PerSecond)
	fmt.Printf("latency p50:  %s\n", rep.P50.Round(time.Microsecond))
	fmt.Printf("latency p95:  %s\n", rep.P95.Round(time.Microsecond))
	fmt.Printf("latency p99:  %s\n", rep.P99.Round(time.Microsecond))
	fmt.Printf("latency max:  %s\n", rep.Max.Round(time.Microsecond))
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
