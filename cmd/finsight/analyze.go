package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsight-dev/finsight"
	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/pkg/config"
)

var (
	analyzeAgents  []string
	analyzeTimeout time.Duration
	analyzeJSON    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL [SYMBOL...]",
	Short: "Run the analysis pipeline over one or more symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringSliceVar(&analyzeAgents, "agents", nil,
		"restrict the run to these agents; their dependencies are added automatically")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 5*time.Minute,
		"overall request deadline")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false,
		"print the full aggregate as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := finsight.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	ctx, cancel := context.WithTimeout(cmd.Context(), analyzeTimeout)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	req := agent.NewRequest(args...)
	if len(analyzeAgents) > 0 {
		selected, err := withDependencies(cfg, analyzeAgents)
		if err != nil {
			return err
		}
		req = req.WithAgents(selected...)
	}

	agg, err := eng.Analyze(ctx, req)
	if err != nil {
		return err
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agg)
	}
	printAggregate(agg)
	return nil
}

// withDependencies expands a selection to include every mandatory
// dependency, transitively, so "analyze --agents report_generator" pulls in
// the whole chain it needs.
func withDependencies(cfg *config.Config, names []string) ([]string, error) {
	selected := make(map[string]bool)
	var add func(name string) error
	add = func(name string) error {
		if selected[name] {
			return nil
		}
		ac, ok := cfg.Agents[name]
		if !ok {
			return fmt.Errorf("unknown agent: %s", name)
		}
		selected[name] = true
		for _, dep := range ac.DependsOn {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := add(name); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(selected))
	for name := range selected {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func printAggregate(agg *agent.Aggregate) {
	fmt.Printf("Request %s: %s (%d ok, %d total)\n",
		agg.RequestID, agg.Overall, agg.Count(agent.StatusOK), agg.Total())

	names := make([]string, 0, len(agg.Results))
	for name := range agg.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		bySubject := agg.Results[name]
		subjects := make([]string, 0, len(bySubject))
		for subject := range bySubject {
			subjects = append(subjects, subject)
		}
		sort.Strings(subjects)

		for _, subject := range subjects {
			res := bySubject[subject]
			fmt.Printf("\n%s / %s: %s", name, subject, res.Status)
			if res.Status != agent.StatusOK {
				if res.Reason != "" {
					fmt.Printf(" (%s)", res.Reason)
				}
				fmt.Println()
				continue
			}
			fmt.Printf(" (confidence %.2f)\n", res.Confidence)
			for _, sig := range res.Signals {
				fmt.Printf("  %-4s %.2f  %s\n", sig.Kind, sig.Confidence, sig.Rationale)
			}
			if rec, ok := res.Payload["recommendation"].(string); ok {
				fmt.Printf("  recommendation: %s\n", rec)
			}
		}
	}

	fmt.Printf("\nCompleted in %s\n", agg.FinishedAt.Sub(agg.StartedAt).Round(time.Millisecond))
}
