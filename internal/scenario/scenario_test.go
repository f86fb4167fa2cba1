package scenario

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScenario = `
[scenario]
name = "basic-workflow"
description = "Test basic issue workflow"
backend = "youtrack"
difficulty = "easy"
tags = ["issues", "comments"]

[setup]
prompt = "Find issue DEMO-1 and add a comment"
default_project = "DEMO"
cache_available = true

[expected_outcomes]
issue_fetched = "DEMO-1"
comment_added = { issue = "DEMO-1", contains = "test" }
any_activity = true

[scoring]
min_commands = 2
max_commands = 5
optimal_commands = 3
base_score = 100

[scoring.penalties]
extra_command = -5
redundant_fetch = -10

[scoring.bonuses]
cache_use = 10
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "scenario.toml"), []byte(content), 0644)
	require.NoError(t, err)
	return dir
}

func TestLoadFromDir(t *testing.T) {
	dir := writeScenario(t, sampleScenario)

	s, err := LoadFromDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "basic-workflow", s.Meta.Name)
	assert.Equal(t, "youtrack", s.Meta.Backend)
	assert.Equal(t, []string{"issues", "comments"}, s.Meta.Tags)
	assert.True(t, s.Setup.CacheAvailable)
	assert.Equal(t, "DEMO", s.Setup.DefaultProject)
	assert.Equal(t, 2, s.Scoring.MinCommands)
	assert.Equal(t, 5, s.Scoring.MaxCommands)
	assert.Equal(t, 100, s.Scoring.BaseScore)

	fetched := s.ExpectedOutcomes["issue_fetched"]
	assert.Equal(t, OutcomeString, fetched.Kind)
	assert.Equal(t, "DEMO-1", fetched.String)

	added := s.ExpectedOutcomes["comment_added"]
	assert.Equal(t, OutcomeComplex, added.Kind)
	assert.Equal(t, "DEMO-1", added.Complex.Issue)
	assert.Equal(t, "test", added.Complex.Contains)

	activity := s.ExpectedOutcomes["any_activity"]
	assert.Equal(t, OutcomeBool, activity.Kind)
	assert.True(t, activity.Bool)
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := writeScenario(t, sampleScenario)

	a, err := LoadFromDir(dir)
	require.NoError(t, err)
	b, err := LoadFromDir(dir)
	require.NoError(t, err)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("two loads of the same scenario differ:\n%+v\n%+v", a, b)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := writeScenario(t, `
[scenario]
name = "minimal"
description = "minimal scenario"

[setup]
prompt = "do something"

[expected_outcomes]
done = true
`)

	s, err := LoadFromDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "any", s.Meta.Backend)
	assert.Equal(t, "medium", s.Meta.Difficulty)
	assert.Equal(t, 100, s.Scoring.BaseScore)
	assert.Equal(t, -5, s.Scoring.Penalties.ExtraCommand)
	assert.Equal(t, -10, s.Scoring.Penalties.RedundantFetch)
	assert.Equal(t, -15, s.Scoring.Penalties.CommandError)
	assert.Equal(t, 10, s.Scoring.Bonuses.CacheUse)
}

func TestLoadRejectsMaxBelowMin(t *testing.T) {
	dir := writeScenario(t, `
[scenario]
name = "broken"
description = "bad scoring bounds"

[setup]
prompt = "do something"

[expected_outcomes]
done = true

[scoring]
min_commands = 5
max_commands = 2
`)

	_, err := LoadFromDir(dir)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "max_commands")
}

func TestLoadRejectsMissingPrompt(t *testing.T) {
	dir := writeScenario(t, `
[scenario]
name = "no-prompt"
description = "missing prompt"

[setup]
default_project = "DEMO"
`)

	_, err := LoadFromDir(dir)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoadRejectsNoOutcomes(t *testing.T) {
	dir := writeScenario(t, `
[scenario]
name = "empty"
description = "nothing to check"

[setup]
prompt = "do something"
`)

	_, err := LoadFromDir(dir)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "expected outcome")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromDir(t.TempDir())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestCompatibleWith(t *testing.T) {
	s := &Scenario{Meta: Meta{Backend: "any"}}
	assert.True(t, s.CompatibleWith("youtrack"))
	assert.True(t, s.CompatibleWith("jira"))

	s.Meta.Backend = "YouTrack"
	assert.True(t, s.CompatibleWith("youtrack"))
	assert.False(t, s.CompatibleWith("jira"))
}

func TestList(t *testing.T) {
	root := t.TempDir()

	for _, name := range []string{"zeta", "alpha"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		content := `
[scenario]
name = "` + name + `"
description = "test"

[setup]
prompt = "do something"

[expected_outcomes]
done = true
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario.toml"), []byte(content), 0644))
	}

	// A directory without scenario.toml is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-scenario"), 0755))

	entries, err := List(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].Scenario.Meta.Name)
	assert.Equal(t, "zeta", entries[1].Scenario.Meta.Name)
}

func TestLoadSuite(t *testing.T) {
	root := t.TempDir()
	suiteYAML := `
provider: anthropic
model: claude-sonnet-4-20250514
max_turns: 15
min_score: 80
parallel: 4
fail_fast: true
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "suite.yaml"), []byte(suiteYAML), 0644))

	suite, err := LoadSuite(root)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", suite.Provider)
	assert.Equal(t, 15, suite.MaxTurns)
	assert.Equal(t, 80, suite.MinScore)
	assert.Equal(t, 4, suite.Parallel)
	assert.True(t, suite.FailFast)
}

func TestLoadSuiteMissing(t *testing.T) {
	suite, err := LoadSuite(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &Suite{}, suite)
}
