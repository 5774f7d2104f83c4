package replay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
)

// GenerateReport строит текстовый отчет по сессии в markdown.
func (e *Engine) GenerateReport(sessionID string) (string, error) {
	session, err := e.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	results := session.Results
	successRate := 0.0
	if results.TotalSignals > 0 {
		successRate = float64(results.SuccessfulSignals) / float64(results.TotalSignals) * 100
	}

	completed := "In Progress"
	if session.CompletedAt != nil {
		completed = session.CompletedAt.Format(time.RFC3339)
	}

	var b strings.Builder
	b.WriteString("# Signal Replay Report\n\n")

	b.WriteString("## Session Information\n")
	fmt.Fprintf(&b, "- **Session ID**: %s\n", session.ID)
	fmt.Fprintf(&b, "- **Name**: %s\n", session.Name)
	fmt.Fprintf(&b, "- **Status**: %s\n", session.Status)
	fmt.Fprintf(&b, "- **Created**: %s\n", session.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Completed**: %s\n\n", completed)

	b.WriteString("## Replay Results\n")
	fmt.Fprintf(&b, "- **Total Signals**: %d\n", results.TotalSignals)
	fmt.Fprintf(&b, "- **Successful**: %d\n", results.SuccessfulSignals)
	fmt.Fprintf(&b, "- **Failed**: %d\n", results.FailedSignals)
	fmt.Fprintf(&b, "- **Skipped**: %d\n", results.SkippedSignals)
	fmt.Fprintf(&b, "- **Success Rate**: %.1f%%\n", successRate)
	fmt.Fprintf(&b, "- **Total Duration**: %.2fs\n", results.TotalDuration.Seconds())
	fmt.Fprintf(&b, "- **Average Signal Delay**: %.2fms\n\n", results.AverageSignalDelay)

	b.WriteString("## Settings\n")
	fmt.Fprintf(&b, "- **Speed**: %s\n", session.Settings.Speed)
	fmt.Fprintf(&b, "- **Simulate Responses**: %t\n", session.Settings.SimulateResponses)
	fmt.Fprintf(&b, "- **Include Breaks**: %t\n", session.Settings.IncludeBreaks)
	fmt.Fprintf(&b, "- **Auto-pause on Errors**: %t\n\n", session.Settings.AutoPauseOnErrors)

	b.WriteString("## Agent Response Statistics\n")
	agents := make([]string, 0, len(results.AgentStats))
	for agent := range results.AgentStats {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	for _, agent := range agents {
		stats := results.AgentStats[agent]
		fmt.Fprintf(&b, "- **%s**: %d calls, %d successes, %d failures, %.2fms avg\n",
			agent, stats.Calls, stats.Successes, stats.Failures, stats.AvgResponseTime)
	}

	b.WriteString("\n## Errors\n")
	if len(results.Errors) == 0 {
		b.WriteString("No errors recorded\n")
	} else {
		for _, errMsg := range results.Errors {
			fmt.Fprintf(&b, "- %s\n", errMsg)
		}
	}

	return b.String(), nil
}

// Export выгружает сессию вместе с отчетом.
func (e *Engine) Export(sessionID string) (*domain.ReplayExport, error) {
	session, err := e.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	report, err := e.GenerateReport(sessionID)
	if err != nil {
		return nil, err
	}

	return &domain.ReplayExport{
		Session:    session,
		Report:     report,
		ExportedAt: time.Now(),
	}, nil
}
