// Package evaluate scores a completed scenario run from its call log. The
// call log is the only ground truth: whatever route the commands took to the
// provider, scoring reads nothing else.
package evaluate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fpt/go-trackeval/internal/mock"
	"github.com/fpt/go-trackeval/internal/scenario"
)

// Rating grades command-count efficiency.
type Rating string

const (
	// Excellent means fewer commands than optimal.
	Excellent Rating = "excellent"
	// Optimal means exactly the optimal command count.
	Optimal Rating = "optimal"
	// Acceptable means over optimal but within the allowed maximum.
	Acceptable Rating = "acceptable"
	// Inefficient means over the allowed maximum.
	Inefficient Rating = "inefficient"
)

// Penalty applied per unmet expected outcome.
const unmetOutcomePenalty = -25

// Options tune the pass/fail gate.
type Options struct {
	// MinScore is the score below which the run fails.
	MinScore int
	// Strict additionally requires every expected outcome to be achieved.
	Strict bool
}

// Result is the full evaluation of one scenario run.
type Result struct {
	ScenarioName string          `json:"scenario_name"`
	Success      bool            `json:"success"`
	Score        int             `json:"score"`
	MaxScore     int             `json:"max_score"`
	ScorePercent float64         `json:"score_percent"`
	TotalCalls   int             `json:"total_calls"`
	OptimalCalls int             `json:"optimal_calls,omitempty"`
	Efficiency   Rating          `json:"efficiency"`
	Outcomes     []OutcomeResult `json:"outcomes"`
	Breakdown    Breakdown       `json:"score_breakdown"`
	Suggestions  []string        `json:"suggestions,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// OutcomeResult records one expected outcome check.
type OutcomeResult struct {
	Name     string `json:"name"`
	Achieved bool   `json:"achieved"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Breakdown itemizes how the score was reached.
type Breakdown struct {
	Base           int          `json:"base"`
	Penalties      []Adjustment `json:"penalties,omitempty"`
	Bonuses        []Adjustment `json:"bonuses,omitempty"`
	TotalPenalties int          `json:"total_penalties"`
	TotalBonuses   int          `json:"total_bonuses"`
}

// Adjustment is one scoring line item. Points are negative for penalties.
type Adjustment struct {
	Reason string `json:"reason"`
	Points int    `json:"points"`
	Count  int    `json:"count"`
}

// Evaluator scores call logs against one scenario.
type Evaluator struct {
	scenario *scenario.Scenario
	opts     Options

	// vocabulary is the set of methods the manifest declares; calls outside
	// it are surfaced as warnings, not failures.
	vocabulary map[string]bool
}

// New builds an evaluator for a scenario.
func New(s *scenario.Scenario, opts Options) *Evaluator {
	return &Evaluator{scenario: s, opts: opts}
}

// WithVocabulary enables consistency warnings for methods outside the
// manifest's declared vocabulary.
func (e *Evaluator) WithVocabulary(methods map[string]bool) *Evaluator {
	e.vocabulary = methods
	return e
}

// Evaluate scores the call log.
func (e *Evaluator) Evaluate(calls []mock.CallLogEntry) *Result {
	scoring := &e.scenario.Scoring

	outcomes := e.checkOutcomes(calls)
	allMet := true
	for _, o := range outcomes {
		if !o.Achieved {
			allMet = false
			break
		}
	}

	breakdown := e.scoreBreakdown(calls, outcomes, allMet)

	score := scoring.BaseScore + breakdown.TotalBonuses + breakdown.TotalPenalties
	if score < 0 {
		score = 0
	}

	percent := float64(score) / float64(scoring.BaseScore) * 100
	if percent > 100 {
		percent = 100
	}

	efficiency := e.efficiency(len(calls))

	success := score >= e.opts.MinScore
	if e.opts.Strict {
		success = success && allMet
	}

	return &Result{
		ScenarioName: e.scenario.Meta.Name,
		Success:      success,
		Score:        score,
		MaxScore:     scoring.BaseScore,
		ScorePercent: percent,
		TotalCalls:   len(calls),
		OptimalCalls: scoring.OptimalCommands,
		Efficiency:   efficiency,
		Outcomes:     outcomes,
		Breakdown:    breakdown,
		Suggestions:  e.suggestions(calls, outcomes, efficiency),
		Warnings:     e.vocabularyWarnings(calls),
	}
}

func (e *Evaluator) checkOutcomes(calls []mock.CallLogEntry) []OutcomeResult {
	names := make([]string, 0, len(e.scenario.ExpectedOutcomes))
	for name := range e.scenario.ExpectedOutcomes {
		names = append(names, name)
	}
	// Map iteration order is random; keep reports stable.
	sort.Strings(names)

	results := make([]OutcomeResult, 0, len(names))
	for _, name := range names {
		outcome := e.scenario.ExpectedOutcomes[name]
		results = append(results, e.checkOutcome(name, &outcome, calls))
	}
	return results
}

func (e *Evaluator) checkOutcome(name string, outcome *scenario.Outcome, calls []mock.CallLogEntry) OutcomeResult {
	switch outcome.Kind {
	case scenario.OutcomeBool:
		achieved := (len(calls) > 0) == outcome.Bool
		return OutcomeResult{
			Name:     name,
			Achieved: achieved,
			Expected: fmt.Sprintf("calls made: %t", outcome.Bool),
			Actual:   fmt.Sprintf("calls made: %t", len(calls) > 0),
		}

	case scenario.OutcomeString:
		found := false
		for i := range calls {
			if anyArgContains(&calls[i], outcome.String) {
				found = true
				break
			}
		}
		actual := "not found"
		if found {
			actual = fmt.Sprintf("found %q", outcome.String)
		}
		return OutcomeResult{
			Name:     name,
			Achieved: found,
			Expected: fmt.Sprintf("reference to %q", outcome.String),
			Actual:   actual,
		}

	default:
		return e.checkComplexOutcome(name, &outcome.Complex, calls)
	}
}

// checkComplexOutcome evaluates a structured outcome. When a method is named,
// the issue and contains criteria must hold on a single call to that method;
// a matching comment on the wrong issue does not count.
func (e *Evaluator) checkComplexOutcome(name string, c *scenario.Complex, calls []mock.CallLogEntry) OutcomeResult {
	passed := true
	var expected, actual []string

	candidates := calls
	if c.MethodCalled != "" {
		candidates = filterByMethod(calls, c.MethodCalled)
		expected = append(expected, fmt.Sprintf("method %q called", c.MethodCalled))

		if len(candidates) > 0 {
			actual = append(actual, fmt.Sprintf("%q called %d times", c.MethodCalled, len(candidates)))
		} else {
			actual = append(actual, fmt.Sprintf("%q not called", c.MethodCalled))
			passed = false
		}

		if c.MinCalls > 0 && len(candidates) < c.MinCalls {
			expected = append(expected, fmt.Sprintf("at least %d calls", c.MinCalls))
			actual = append(actual, fmt.Sprintf("only %d calls", len(candidates)))
			passed = false
		}
		if c.MaxCalls > 0 && len(candidates) > c.MaxCalls {
			expected = append(expected, fmt.Sprintf("at most %d calls", c.MaxCalls))
			actual = append(actual, fmt.Sprintf("%d calls (exceeds max)", len(candidates)))
			passed = false
		}
	}

	if c.Issue != "" {
		expected = append(expected, fmt.Sprintf("issue %q", c.Issue))
		matched := filterByIssue(candidates, c.Issue)
		if len(matched) > 0 {
			actual = append(actual, fmt.Sprintf("issue %q referenced", c.Issue))
			candidates = matched
		} else {
			actual = append(actual, fmt.Sprintf("issue %q not referenced", c.Issue))
			passed = false
			candidates = nil
		}
	}

	if c.Field != "" && c.Value != "" {
		expected = append(expected, fmt.Sprintf("%s = %q", c.Field, c.Value))
		if fieldValueSet(calls, c.Issue, c.Field, c.Value) {
			actual = append(actual, fmt.Sprintf("update set %s = %q", c.Field, c.Value))
		} else {
			actual = append(actual, fmt.Sprintf("no update setting %s = %q", c.Field, c.Value))
			passed = false
		}
	}

	if c.Contains != "" {
		expected = append(expected, e.containsExpectation(c))
		if containsInScope(candidates, c.MethodCalled, c.Contains) {
			actual = append(actual, fmt.Sprintf("found text with %q", c.Contains))
		} else {
			actual = append(actual, fmt.Sprintf("no matching text for %q", c.Contains))
			passed = false
		}
	}

	return OutcomeResult{
		Name:     name,
		Achieved: passed,
		Expected: strings.Join(expected, ", "),
		Actual:   strings.Join(actual, ", "),
	}
}

func (e *Evaluator) containsExpectation(c *scenario.Complex) string {
	if c.MethodCalled == "create_issue" {
		return fmt.Sprintf("issue summary containing %q", c.Contains)
	}
	return fmt.Sprintf("comment containing %q", c.Contains)
}

// containsInScope checks the contains criterion, scoped by method: creation
// checks the summary field, comments check the text field, everything else
// checks all string arguments.
func containsInScope(calls []mock.CallLogEntry, method, contains string) bool {
	needle := strings.ToLower(contains)

	for i := range calls {
		call := &calls[i]
		switch method {
		case "create_issue":
			if call.Method == "create_issue" &&
				strings.Contains(strings.ToLower(call.Args["summary"]), needle) {
				return true
			}
		case "add_comment", "add_article_comment", "":
			if (call.Method == "add_comment" || call.Method == "add_article_comment") &&
				strings.Contains(strings.ToLower(call.Args["text"]), needle) {
				return true
			}
		default:
			for _, v := range call.Args {
				if strings.Contains(strings.ToLower(v), needle) {
					return true
				}
			}
		}
	}
	return false
}

// fieldValueSet reports whether some update_issue call set the field to the
// value. Updated fields appear as lower-cased argument keys in the log.
func fieldValueSet(calls []mock.CallLogEntry, issue, field, value string) bool {
	key := strings.ToLower(field)
	for i := range calls {
		call := &calls[i]
		if call.Method != "update_issue" {
			continue
		}
		if issue != "" && !referencesIssue(call, issue) {
			continue
		}
		if strings.EqualFold(call.Args[key], value) {
			return true
		}
	}
	return false
}

func filterByMethod(calls []mock.CallLogEntry, method string) []mock.CallLogEntry {
	var out []mock.CallLogEntry
	for i := range calls {
		if calls[i].Method == method {
			out = append(out, calls[i])
		}
	}
	return out
}

func filterByIssue(calls []mock.CallLogEntry, issue string) []mock.CallLogEntry {
	var out []mock.CallLogEntry
	for i := range calls {
		if referencesIssue(&calls[i], issue) {
			out = append(out, calls[i])
		}
	}
	return out
}

func referencesIssue(call *mock.CallLogEntry, issue string) bool {
	for _, v := range call.Args {
		if v == issue {
			return true
		}
	}
	return false
}

func anyArgContains(call *mock.CallLogEntry, needle string) bool {
	for _, v := range call.Args {
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}

func (e *Evaluator) efficiency(totalCalls int) Rating {
	scoring := &e.scenario.Scoring

	if scoring.OptimalCommands > 0 {
		if totalCalls < scoring.OptimalCommands {
			return Excellent
		}
		if totalCalls == scoring.OptimalCommands {
			return Optimal
		}
	}
	if scoring.MaxCommands == 0 || totalCalls <= scoring.MaxCommands {
		return Acceptable
	}
	return Inefficient
}

func (e *Evaluator) scoreBreakdown(calls []mock.CallLogEntry, outcomes []OutcomeResult, allMet bool) Breakdown {
	scoring := &e.scenario.Scoring
	breakdown := Breakdown{Base: scoring.BaseScore}

	failed := 0
	for _, o := range outcomes {
		if !o.Achieved {
			failed++
		}
	}
	if failed > 0 {
		penalty := failed * unmetOutcomePenalty
		breakdown.Penalties = append(breakdown.Penalties, Adjustment{
			Reason: "Failed expected outcomes",
			Points: penalty,
			Count:  failed,
		})
		breakdown.TotalPenalties += penalty
	}

	if scoring.MaxCommands > 0 && len(calls) > scoring.MaxCommands {
		extra := len(calls) - scoring.MaxCommands
		penalty := extra * scoring.Penalties.ExtraCommand
		breakdown.Penalties = append(breakdown.Penalties, Adjustment{
			Reason: fmt.Sprintf("Extra commands (%d over max %d)", extra, scoring.MaxCommands),
			Points: penalty,
			Count:  extra,
		})
		breakdown.TotalPenalties += penalty
	}

	if redundant := countRedundantFetches(calls); redundant > 0 {
		penalty := redundant * scoring.Penalties.RedundantFetch
		breakdown.Penalties = append(breakdown.Penalties, Adjustment{
			Reason: "Redundant fetches (same resource fetched multiple times)",
			Points: penalty,
			Count:  redundant,
		})
		breakdown.TotalPenalties += penalty
	}

	errorCount := 0
	for i := range calls {
		if calls[i].IsError() {
			errorCount++
		}
	}
	if errorCount > 0 {
		penalty := errorCount * scoring.Penalties.CommandError
		breakdown.Penalties = append(breakdown.Penalties, Adjustment{
			Reason: "Command errors",
			Points: penalty,
			Count:  errorCount,
		})
		breakdown.TotalPenalties += penalty
	}

	if allMet && scoring.OptimalCommands > 0 &&
		len(calls) < scoring.OptimalCommands && scoring.Bonuses.UnderOptimal > 0 {
		saved := scoring.OptimalCommands - len(calls)
		bonus := saved * scoring.Bonuses.UnderOptimal
		breakdown.Bonuses = append(breakdown.Bonuses, Adjustment{
			Reason: fmt.Sprintf("Under optimal (%d commands saved)", saved),
			Points: bonus,
			Count:  saved,
		})
		breakdown.TotalBonuses += bonus
	}

	if e.scenario.Setup.CacheAvailable && scoring.Bonuses.CacheUse > 0 && cacheUsed(calls) {
		breakdown.Bonuses = append(breakdown.Bonuses, Adjustment{
			Reason: "Effective cache usage",
			Points: scoring.Bonuses.CacheUse,
			Count:  1,
		})
		breakdown.TotalBonuses += scoring.Bonuses.CacheUse
	}

	return breakdown
}

func cacheUsed(calls []mock.CallLogEntry) bool {
	for i := range calls {
		if strings.Contains(calls[i].Method, "cache") {
			return true
		}
	}
	return false
}

// countRedundantFetches counts repeated successful get_* calls for the same
// resource. A mutating call clears the slate: fetches after a mutation may
// legitimately re-read state the mutation changed.
func countRedundantFetches(calls []mock.CallLogEntry) int {
	seen := make(map[string]bool)
	redundant := 0

	for i := range calls {
		call := &calls[i]

		if isMutation(call.Method) {
			seen = make(map[string]bool)
			continue
		}
		if !strings.HasPrefix(call.Method, "get_") || call.IsError() {
			continue
		}

		id := call.Args["id"]
		if id == "" {
			id = call.Args["issue_id"]
		}
		if id == "" {
			continue
		}

		key := call.Method + ":" + id
		if seen[key] {
			redundant++
		} else {
			seen[key] = true
		}
	}

	return redundant
}

func isMutation(method string) bool {
	for _, prefix := range []string{"create_", "update_", "delete_", "add_", "link_"} {
		if strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}

func (e *Evaluator) suggestions(calls []mock.CallLogEntry, outcomes []OutcomeResult, efficiency Rating) []string {
	var suggestions []string

	for _, o := range outcomes {
		if !o.Achieved {
			suggestions = append(suggestions, fmt.Sprintf(
				"Outcome %q was not achieved: expected %s, got %s", o.Name, o.Expected, o.Actual))
		}
	}

	switch efficiency {
	case Inefficient:
		suggestions = append(suggestions,
			"Consider using the cache system to reduce API calls",
			"Avoid fetching the same resource multiple times")
	case Acceptable:
		suggestions = append(suggestions,
			"Good job! Consider combining operations where possible for optimal efficiency")
	}

	if redundant := countRedundantFetches(calls); redundant > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"Found %d redundant fetch(es). Store results for reuse instead of re-fetching.", redundant))
	}

	errorCount := 0
	for i := range calls {
		if calls[i].IsError() {
			errorCount++
		}
	}
	if errorCount > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"%d command(s) resulted in errors. Check arguments and resource existence.", errorCount))
	}

	return suggestions
}

func (e *Evaluator) vocabularyWarnings(calls []mock.CallLogEntry) []string {
	if e.vocabulary == nil {
		return nil
	}

	var warnings []string
	reported := make(map[string]bool)
	for i := range calls {
		method := calls[i].Method
		if e.vocabulary[method] || reported[method] {
			continue
		}
		reported[method] = true
		warnings = append(warnings, fmt.Sprintf(
			"call log references method %q not declared in the manifest", method))
	}
	return warnings
}
