// Package report renders evaluation results as colored text for terminals or
// as JSON for pipelines. All output goes through an io.Writer so the CLI and
// tests share the same path.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/fpt/go-trackeval/internal/evaluate"
	"github.com/fpt/go-trackeval/internal/runner"
	"github.com/fpt/go-trackeval/internal/scenario"
)

// Format selects the output rendering.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case Text, JSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Reporter writes evaluation output.
type Reporter struct {
	w      io.Writer
	format Format
}

// New builds a reporter for a writer and format.
func New(w io.Writer, format Format) *Reporter {
	return &Reporter{w: w, format: format}
}

var (
	header  = color.New(color.FgWhite, color.Bold)
	pass    = color.New(color.FgGreen, color.Bold)
	fail    = color.New(color.FgRed, color.Bold)
	name    = color.New(color.FgCyan)
	dim     = color.New(color.Faint)
	warning = color.New(color.FgYellow)
)

const ruleWidth = 60

func rule(ch string) string { return strings.Repeat(ch, ruleWidth) }

// Evaluation renders one scenario's evaluation, with session metadata when a
// session result is available.
func (r *Reporter) Evaluation(res *evaluate.Result, session *runner.Result) error {
	if r.format == JSON {
		return r.writeJSON(evaluationJSON(res, session))
	}

	fmt.Fprintf(r.w, "\n%s\n", rule("═"))
	fmt.Fprintf(r.w, "%s\n", header.Sprint("EVALUATION RESULTS"))
	fmt.Fprintf(r.w, "%s\n", rule("═"))

	status := fail.Sprint("FAIL")
	if res.Success {
		status = pass.Sprint("PASS")
	}
	fmt.Fprintf(r.w, "\n%s: %s - %s\n",
		header.Sprint("Scenario"), name.Sprint(res.ScenarioName), status)

	fmt.Fprintf(r.w, "%s: %d/%d (%.0f%%)\n",
		header.Sprint("Score"), res.Score, res.MaxScore, res.ScorePercent)

	optimal := "N/A"
	if res.OptimalCalls > 0 {
		optimal = fmt.Sprintf("%d", res.OptimalCalls)
	}
	fmt.Fprintf(r.w, "%s: %d (optimal: %s)\n",
		header.Sprint("Commands"), res.TotalCalls, optimal)

	if session != nil {
		fmt.Fprintf(r.w, "%s: %d\n", header.Sprint("Turns used"), session.TurnsUsed)
		if session.InputTokens > 0 || session.OutputTokens > 0 {
			fmt.Fprintf(r.w, "%s: %d in / %d out\n",
				header.Sprint("Tokens"), session.InputTokens, session.OutputTokens)
		}
	}

	fmt.Fprintf(r.w, "%s: %s\n", header.Sprint("Efficiency"), res.Efficiency)

	fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Expected Outcomes"))
	for _, outcome := range res.Outcomes {
		icon := fail.Sprint("✗")
		if outcome.Achieved {
			icon = pass.Sprint("✓")
		}
		fmt.Fprintf(r.w, "  %s %s\n", icon, outcome.Name)
		if !outcome.Achieved {
			fmt.Fprintf(r.w, "    Expected: %s\n", dim.Sprint(outcome.Expected))
			fmt.Fprintf(r.w, "    Actual:   %s\n", warning.Sprint(outcome.Actual))
		}
	}

	r.breakdown(&res.Breakdown)

	if len(res.Suggestions) > 0 {
		fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Suggestions"))
		for _, s := range res.Suggestions {
			fmt.Fprintf(r.w, "  • %s\n", warning.Sprint(s))
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Warnings"))
		for _, w := range res.Warnings {
			fmt.Fprintf(r.w, "  • %s\n", warning.Sprint(w))
		}
	}

	fmt.Fprintln(r.w)
	return nil
}

func (r *Reporter) breakdown(b *evaluate.Breakdown) {
	if len(b.Penalties) == 0 && len(b.Bonuses) == 0 {
		return
	}

	fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Score Breakdown"))
	fmt.Fprintf(r.w, "  Base: %d\n", b.Base)
	for _, adj := range b.Bonuses {
		fmt.Fprintf(r.w, "  %s %s\n",
			pass.Sprintf("%+d", adj.Points), describeAdjustment(adj))
	}
	for _, adj := range b.Penalties {
		fmt.Fprintf(r.w, "  %s %s\n",
			fail.Sprintf("%+d", adj.Points), describeAdjustment(adj))
	}
}

func describeAdjustment(adj evaluate.Adjustment) string {
	if adj.Count > 1 {
		return fmt.Sprintf("%s (x%d)", adj.Reason, adj.Count)
	}
	return adj.Reason
}

func evaluationJSON(res *evaluate.Result, session *runner.Result) map[string]any {
	out := map[string]any{
		"scenario":        res.ScenarioName,
		"success":         res.Success,
		"score":           res.Score,
		"max_score":       res.MaxScore,
		"score_percent":   res.ScorePercent,
		"total_calls":     res.TotalCalls,
		"efficiency":      res.Efficiency,
		"outcomes":        res.Outcomes,
		"score_breakdown": res.Breakdown,
	}
	if res.OptimalCalls > 0 {
		out["optimal_calls"] = res.OptimalCalls
	}
	if len(res.Suggestions) > 0 {
		out["suggestions"] = res.Suggestions
	}
	if len(res.Warnings) > 0 {
		out["warnings"] = res.Warnings
	}
	if session != nil {
		out["turns_used"] = session.TurnsUsed
		out["duration_ms"] = session.Duration.Milliseconds()
		if session.InputTokens > 0 || session.OutputTokens > 0 {
			out["input_tokens"] = session.InputTokens
			out["output_tokens"] = session.OutputTokens
		}
	}
	return out
}

// RunOutcome is one row of a batch run summary.
type RunOutcome struct {
	Scenario     string  `json:"scenario"`
	Passed       bool    `json:"passed"`
	Score        int     `json:"score"`
	ScorePercent float64 `json:"score_percent"`
	TotalCalls   int     `json:"total_calls"`
	TurnsUsed    int     `json:"turns_used"`
	Error        string  `json:"error,omitempty"`
}

// RunStart announces a scenario in a batch run. JSON mode stays quiet until
// the summary.
func (r *Reporter) RunStart(scenarioName string) {
	if r.format != Text {
		return
	}
	fmt.Fprintf(r.w, "\n%s %s...\n", name.Sprint("Running:"), header.Sprint(scenarioName))
}

// RunOutcomeLine prints one scenario's result within a batch run.
func (r *Reporter) RunOutcomeLine(o RunOutcome) {
	if r.format != Text {
		return
	}
	if o.Error != "" {
		fmt.Fprintf(r.w, "  %s %s\n", fail.Sprint("Error:"), o.Error)
		return
	}
	status := fail.Sprint("FAIL")
	if o.Passed {
		status = pass.Sprint("PASS")
	}
	fmt.Fprintf(r.w, "  %s - %.0f%% (%d calls, %d turns)\n",
		status, o.ScorePercent, o.TotalCalls, o.TurnsUsed)
}

// Summary prints the batch run totals.
func (r *Reporter) Summary(outcomes []RunOutcome) error {
	passed := 0
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
	}
	allPassed := passed == len(outcomes)

	if r.format == JSON {
		return r.writeJSON(map[string]any{
			"all_passed": allPassed,
			"total":      len(outcomes),
			"passed":     passed,
			"failed":     len(outcomes) - passed,
			"results":    outcomes,
		})
	}

	fmt.Fprintf(r.w, "\n%s\n", rule("─"))
	icon := fail.Sprint("✗")
	if allPassed {
		icon = pass.Sprint("✓")
	}
	fmt.Fprintf(r.w, "  %s %d/%d scenarios passed\n\n", icon, passed, len(outcomes))
	return nil
}

// ScenarioEntry pairs a loaded scenario with its directory for listings.
type ScenarioEntry struct {
	Path     string
	Scenario *scenario.Scenario
}

// List prints the available scenarios.
func (r *Reporter) List(entries []ScenarioEntry) error {
	if r.format == JSON {
		items := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			items = append(items, map[string]any{
				"name":        e.Scenario.Meta.Name,
				"description": e.Scenario.Meta.Description,
				"difficulty":  e.Scenario.Meta.Difficulty,
				"tags":        e.Scenario.Meta.Tags,
				"path":        e.Path,
			})
		}
		return r.writeJSON(map[string]any{"scenarios": items})
	}

	fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Available Scenarios"))
	for _, e := range entries {
		fmt.Fprintf(r.w, "\n  %s (%s)\n",
			name.Sprint(e.Scenario.Meta.Name), dim.Sprint(e.Scenario.Meta.Difficulty))
		fmt.Fprintf(r.w, "    %s\n", e.Scenario.Meta.Description)
		fmt.Fprintf(r.w, "    Path: %s\n", dim.Sprint(e.Path))
	}
	fmt.Fprintln(r.w)
	return nil
}

// Show prints one scenario in full: prompt, context, outcomes and scoring.
func (r *Reporter) Show(s *scenario.Scenario) error {
	if r.format == JSON {
		return r.writeJSON(s)
	}

	fmt.Fprintf(r.w, "\n%s: %s\n",
		header.Sprint("Scenario"), name.Sprint(s.Meta.Name))
	fmt.Fprintf(r.w, "%s\n", rule("═"))
	fmt.Fprintf(r.w, "%s\n", s.Meta.Description)

	fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Agent Prompt"))
	fmt.Fprintf(r.w, "%s\n", rule("─"))
	fmt.Fprintln(r.w, strings.TrimRight(s.Setup.Prompt, "\n"))
	fmt.Fprintf(r.w, "%s\n", rule("─"))

	if s.Setup.Context != "" {
		fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Additional Context"))
		for _, line := range strings.Split(strings.TrimRight(s.Setup.Context, "\n"), "\n") {
			fmt.Fprintf(r.w, "  %s\n", dim.Sprint(line))
		}
	}

	fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Expected Outcomes"))
	for _, n := range sortedOutcomeNames(s) {
		fmt.Fprintf(r.w, "  • %s\n", n)
	}

	fmt.Fprintf(r.w, "\n%s:\n", header.Sprint("Scoring"))
	if s.Scoring.OptimalCommands > 0 {
		fmt.Fprintf(r.w, "  Optimal commands: %s\n",
			pass.Sprintf("%d", s.Scoring.OptimalCommands))
	}
	if s.Scoring.MaxCommands > 0 {
		fmt.Fprintf(r.w, "  Max commands: %d\n", s.Scoring.MaxCommands)
	}
	fmt.Fprintf(r.w, "  Base score: %d\n", s.Scoring.BaseScore)
	fmt.Fprintln(r.w)
	return nil
}

func sortedOutcomeNames(s *scenario.Scenario) []string {
	names := make([]string, 0, len(s.ExpectedOutcomes))
	for n := range s.ExpectedOutcomes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Reporter) writeJSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
