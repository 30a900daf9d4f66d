package agents

import (
	"time"

	"github.com/finsight-dev/finsight/agent"
)

// PipelineEntry pairs an agent type with the descriptor it runs under.
type PipelineEntry struct {
	Type string
	Desc agent.Descriptor
}

// DefaultPipeline returns the standard analysis graph: collect, fan out to
// the four analysts, then visualize and report. Parameter defaults live in
// each agent's Initialize, so Params stays empty here.
func DefaultPipeline() []PipelineEntry {
	return []PipelineEntry{
		{
			Type: TypeDataCollector,
			Desc: agent.Descriptor{
				Name:     TypeDataCollector,
				Priority: 1,
				Timeout:  60 * time.Second,
				Enabled:  true,
			},
		},
		{
			Type: TypeTechnicalAnalyst,
			Desc: agent.Descriptor{
				Name:      TypeTechnicalAnalyst,
				DependsOn: []string{TypeDataCollector},
				Priority:  2,
				Timeout:   30 * time.Second,
				Enabled:   true,
			},
		},
		{
			Type: TypeFundamentalAnalyst,
			Desc: agent.Descriptor{
				Name:      TypeFundamentalAnalyst,
				DependsOn: []string{TypeDataCollector},
				Priority:  2,
				Timeout:   30 * time.Second,
				Enabled:   true,
			},
		},
		{
			Type: TypeRiskAssessor,
			Desc: agent.Descriptor{
				Name:      TypeRiskAssessor,
				DependsOn: []string{TypeDataCollector},
				Priority:  2,
				Timeout:   30 * time.Second,
				Enabled:   true,
			},
		},
		{
			Type: TypeSentimentAnalyzer,
			Desc: agent.Descriptor{
				Name:      TypeSentimentAnalyzer,
				DependsOn: []string{TypeDataCollector},
				Priority:  2,
				Timeout:   45 * time.Second,
				Enabled:   true,
			},
		},
		{
			Type: TypeVisualizer,
			Desc: agent.Descriptor{
				Name:      TypeVisualizer,
				DependsOn: []string{TypeTechnicalAnalyst, TypeFundamentalAnalyst},
				Priority:  3,
				Timeout:   60 * time.Second,
				Enabled:   true,
			},
		},
		{
			Type: TypeReportGenerator,
			Desc: agent.Descriptor{
				Name: TypeReportGenerator,
				DependsOn: []string{
					TypeTechnicalAnalyst,
					TypeFundamentalAnalyst,
					TypeRiskAssessor,
					TypeSentimentAnalyzer,
				},
				Priority: 4,
				Timeout:  90 * time.Second,
				Enabled:  true,
			},
		},
	}
}
