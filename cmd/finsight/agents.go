package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/agents"
	"github.com/finsight-dev/finsight/internal/graph"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured pipeline and its execution order",
	RunE:  runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	descs := cfg.Descriptors()
	fmt.Println("Configured agents:")
	for _, d := range descs {
		ac := cfg.Agents[d.Name]
		state := "enabled"
		if !d.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-20s type=%-20s priority=%d timeout=%-6s %s\n",
			d.Name, ac.Type, d.Priority, d.Timeout, state)
		if len(d.DependsOn) > 0 {
			fmt.Printf("  %-20s depends on: %s\n", "", strings.Join(d.DependsOn, ", "))
		}
		if len(d.Optional) > 0 {
			fmt.Printf("  %-20s optional: %s\n", "", strings.Join(d.Optional, ", "))
		}
	}

	enabled := make([]agent.Descriptor, 0, len(descs))
	for _, d := range descs {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	levels, err := graph.Resolve(enabled)
	if err != nil {
		return fmt.Errorf("resolve execution order: %w", err)
	}
	fmt.Println("\nExecution levels:")
	for i, level := range levels {
		fmt.Printf("  %d: %s\n", i, strings.Join(level, ", "))
	}

	fmt.Printf("\nRegistered agent types: %s\n", strings.Join(agents.Types(), ", "))
	return nil
}
