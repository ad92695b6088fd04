// callstorm-sim runs a staged load scenario against a callstorm-d and
// reports whether its invariants held.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/callstorm/callstorm/pkg/client"
	"github.com/callstorm/callstorm/pkg/scenario"
)

func main() {
	var (
		scenarioFile string
		apiURL       string
		jsonOutput   bool
		outputFile   string
	)

	flag.StringVar(&scenarioFile, "scenario", "", "Path to scenario JSON file")
	flag.StringVar(&apiURL, "api", "http://127.0.0.1:8090", "Base URL of callstorm-d API")
	flag.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	flag.StringVar(&outputFile, "out", "", "Write output to file instead of stdout")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var s scenario.Scenario
	if scenarioFile != "" {
		data, err := os.ReadFile(scenarioFile)
		if err != nil {
			log.Error("failed to read scenario file", "error", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &s); err != nil {
			log.Error("failed to parse scenario file", "error", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintln(os.Stderr, "No scenario file provided, running default demo scenario...")
		s = scenario.Scenario{
			Name:        "Default Demo",
			Description: "Short ramp from 10 to 30 cps",
			Steps: []scenario.Step{
				{Name: "warmup", Rate: 10, Limit: 50, Hold: 5 * time.Second},
				{Name: "ramp", Rate: 30, Limit: 50, Hold: 10 * time.Second},
			},
			SettleTime: 2 * time.Second,
			Invariants: []scenario.Invariant{
				{Metric: "total_offered", Condition: ">", Value: 0},
				{Metric: "peak_sessions", Condition: "<=", Value: 50},
			},
		}
	}

	c := client.NewClient(apiURL)
	ctx := context.Background()
	if err := c.WaitReady(ctx, 5); err != nil {
		log.Error("daemon not reachable", "api", apiURL, "error", err)
		os.Exit(1)
	}

	result, err := scenario.Run(ctx, s, c, log)
	if err != nil {
		log.Error("scenario run failed", "error", err)
		os.Exit(1)
	}

	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			log.Error("failed to create output file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Error("failed to encode result", "error", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintf(out, "Scenario: %s\n", result.ScenarioName)
		fmt.Fprintf(out, "Duration: %s\n", result.Duration.Round(time.Millisecond))
		fmt.Fprintf(out, "Offered: %d  Answered: %d  Peak sessions: %d\n",
			result.TotalOffered, result.TotalAnswered, result.PeakSessions)
		for _, inv := range result.Invariants {
			mark := "PASS"
			if !inv.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(out, "  [%s] %s %s (actual %s)\n", mark, inv.Metric, inv.Expected, inv.Actual)
		}
	}

	if !result.Success {
		os.Exit(1)
	}
}
