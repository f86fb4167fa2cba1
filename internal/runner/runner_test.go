package runner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpt/go-trackeval/internal/scenario"
)

func TestParseTrackInput(t *testing.T) {
	args, err := ParseTrackInput(json.RawMessage(`{"args": ["issue", "get", "DEMO-1"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"issue", "get", "DEMO-1"}, args)
}

func TestParseTrackInputWithFlags(t *testing.T) {
	args, err := ParseTrackInput(json.RawMessage(`{"args": ["issue", "comment", "DEMO-1", "-m", "Hello world"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"issue", "comment", "DEMO-1", "-m", "Hello world"}, args)
}

func TestParseTrackInputMissingArgs(t *testing.T) {
	_, err := ParseTrackInput(json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'args' field")
}

func TestParseTrackInputMalformed(t *testing.T) {
	_, err := ParseTrackInput(json.RawMessage(`{"args": "not an array"}`))
	require.Error(t, err)
}

func TestParseTrackInputEmptyArgs(t *testing.T) {
	args, err := ParseTrackInput(json.RawMessage(`{"args": []}`))
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestTrackInputSchema(t *testing.T) {
	schema := trackInputSchema()
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "args")
}

func TestIsTrackCommand(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"track issue get DEMO-1", true},
		{"track", true},
		{"  track project list", true},
		{"/usr/local/bin/track issue get DEMO-1", true},
		{"./bin/track tags list", true},
		{"/usr/local/bin/track", true},
		{"ls -la", false},
		{"cat track.log", false},
		{"backtrack issue get", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTrackCommand(tt.cmd), "cmd: %q", tt.cmd)
	}
}

func TestParseTrackArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"issue", "get", "DEMO-1"},
		ParseTrackArgs("track issue get DEMO-1"))

	assert.Equal(t,
		[]string{"issue", "get", "DEMO-1", "-o", "json"},
		ParseTrackArgs("/usr/local/bin/track issue get DEMO-1 -o json"))
}

func TestParseTrackArgsQuoted(t *testing.T) {
	assert.Equal(t,
		[]string{"issue", "comment", "DEMO-1", "-m", "Hello world"},
		ParseTrackArgs(`track issue comment DEMO-1 -m "Hello world"`))
}

func TestParseTrackArgsNoTrack(t *testing.T) {
	assert.Nil(t, ParseTrackArgs("ls -la"))
}

const sampleStream = `{"type":"system","subtype":"init","session_id":"abc123"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Let me fetch the issue."},{"type":"tool_use","id":"tu_1","name":"Bash","input":{"command":"track issue get DEMO-1"}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu_1","content":"Issue: DEMO-1"}]}}
{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tu_2","name":"Bash","input":{"command":"ls -la"}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu_2","content":"denied","is_error":true}]}}
{"type":"unknown_future_event","data":"ignored"}
not json at all
{"type":"result","result":"Done. I fetched DEMO-1.","num_turns":2}
`

func TestParseEventStream(t *testing.T) {
	events, err := ParseEventStream(strings.NewReader(sampleStream), nil)
	require.NoError(t, err)

	// Unknown types and malformed lines are dropped.
	require.Len(t, events, 6)
	assert.Equal(t, "system", events[0].Type)
	assert.Equal(t, "abc123", events[0].SessionID)
	assert.Equal(t, "result", events[5].Type)
}

func TestParseEventStreamCallback(t *testing.T) {
	var seen []string
	_, err := ParseEventStream(strings.NewReader(sampleStream), func(e *Event) {
		seen = append(seen, e.Type)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"system", "assistant", "user", "assistant", "user", "result"}, seen)
}

func TestExtractCommands(t *testing.T) {
	events, err := ParseEventStream(strings.NewReader(sampleStream), nil)
	require.NoError(t, err)

	commands := ExtractCommands(events)

	// Only the track invocation is in the trace; ls is not a track command.
	require.Len(t, commands, 1)
	assert.Equal(t, []string{"issue", "get", "DEMO-1"}, commands[0].Args)
	assert.Equal(t, "Issue: DEMO-1", commands[0].Output)
	assert.False(t, commands[0].IsError)
}

func TestExtractCommandsBlockContent(t *testing.T) {
	stream := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tu_1","name":"Bash","input":{"command":"track project list"}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu_1","content":[{"type":"text","text":"Projects:"},{"type":"text","text":"DEMO"}]}]}}
`
	events, err := ParseEventStream(strings.NewReader(stream), nil)
	require.NoError(t, err)

	commands := ExtractCommands(events)
	require.Len(t, commands, 1)
	assert.Equal(t, "Projects:\nDEMO", commands[0].Output)
}

func TestCountTurns(t *testing.T) {
	events, err := ParseEventStream(strings.NewReader(sampleStream), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, CountTurns(events))
}

func TestFinalResult(t *testing.T) {
	events, err := ParseEventStream(strings.NewReader(sampleStream), nil)
	require.NoError(t, err)
	assert.Equal(t, "Done. I fetched DEMO-1.", FinalResult(events))

	assert.Equal(t, "", FinalResult(nil))
}

func TestStripFrontmatter(t *testing.T) {
	content := "---\nname: track\ndescription: CLI skill\n---\n\n# Track CLI\n\nUsage."
	assert.Equal(t, "# Track CLI\n\nUsage.", stripFrontmatter(content))
}

func TestStripFrontmatterAbsent(t *testing.T) {
	content := "# Track CLI\n\nUsage."
	assert.Equal(t, content, stripFrontmatter(content))
}

func TestStripFrontmatterUnclosed(t *testing.T) {
	content := "---\nname: track\nno closing fence"
	assert.Equal(t, content, stripFrontmatter(content))
}

func testRunnerScenario() *scenario.Scenario {
	s := &scenario.Scenario{}
	s.Setup.Prompt = "Fetch DEMO-1 and add a comment."
	s.Setup.Context = "You are working on the DEMO project."
	return s
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(testRunnerScenario())

	assert.Contains(t, prompt, "# Evaluation Mode")
	assert.Contains(t, prompt, "## Context")
	assert.Contains(t, prompt, "You are working on the DEMO project.")
	assert.Contains(t, prompt, "correctness AND efficiency")
	// Task prompt belongs to the user message, not the system prompt.
	assert.NotContains(t, prompt, "Fetch DEMO-1")
}

func TestBuildTaskMessage(t *testing.T) {
	msg := BuildTaskMessage(testRunnerScenario())

	assert.Contains(t, msg, "## Your Task")
	assert.Contains(t, msg, "Fetch DEMO-1 and add a comment.")
}

func TestBuildSubprocessSystemPrompt(t *testing.T) {
	prompt := buildSubprocessSystemPrompt(testRunnerScenario())

	assert.Contains(t, prompt, "## Constraints")
	assert.Contains(t, prompt, "ONLY use the `track` CLI via Bash")
	assert.Contains(t, prompt, "## Scenario Context")
}

func TestDetectInputPrompt(t *testing.T) {
	assert.True(t, detectInputPrompt("What would you like to do?\n"))
	assert.True(t, detectInputPrompt("Please enter a command:\n"))
	assert.True(t, detectInputPrompt("Select an option:\n"))
	assert.False(t, detectInputPrompt("Fetching issue DEMO-1...\n"))
	assert.False(t, detectInputPrompt("Is this a rhetorical aside?\n"))
}

func TestExtractSuggestion(t *testing.T) {
	assert.Equal(t, "track issue get DEMO-1",
		extractSuggestion("Here is what I would run:\n  $ track issue get DEMO-1\nShall I proceed?"))
	assert.Equal(t, "track project list",
		extractSuggestion("Suggestion: track project list"))
	assert.Equal(t, "track tags list",
		extractSuggestion("track tags list"))
	assert.Equal(t, "", extractSuggestion("No command here."))
}

func TestTransportError(t *testing.T) {
	inner := json.Unmarshal([]byte("{"), &struct{}{})
	err := &TransportError{Op: "claude session", Err: inner}

	assert.Contains(t, err.Error(), "transport failure during claude session")
	assert.Equal(t, inner, err.Unwrap())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefghij", 5))
}

func TestToolResultBlock(t *testing.T) {
	block := toolResultBlock("toolu_123", "Projects:\nDEMO", true)

	require.NotNil(t, block.OfToolResult)
	assert.Equal(t, "toolu_123", block.OfToolResult.ToolUseID)
	assert.Equal(t, anthropic.Bool(true), block.OfToolResult.IsError)

	require.Len(t, block.OfToolResult.Content, 1)
	require.NotNil(t, block.OfToolResult.Content[0].OfText)
	assert.Equal(t, "Projects:\nDEMO", block.OfToolResult.Content[0].OfText.Text)
}

func TestClaudeCodeRejectsEmptyEventStream(t *testing.T) {
	// An agent binary that exits cleanly without writing a single event must
	// fail the run instead of producing a scoreable empty session.
	strat := &ClaudeCodeStrategy{Binary: "true"}
	session := &Session{
		Scenario:    testRunnerScenario(),
		ScenarioDir: t.TempDir(),
	}

	_, err := strat.Run(context.Background(), session)
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, errNoEvents)
}
