package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fpt/go-trackeval/internal/scenario"
)

var errNoEvents = errors.New("agent exited without emitting any events")

// TrackMockDirEnv redirects the track binary's network layer to the mock
// provider for the scenario directory it names.
const TrackMockDirEnv = "TRACK_MOCK_DIR"

// ClaudeCodeStrategy runs the claude CLI as a subprocess, restricted to the
// track binary, and reconstructs its command trace from the stream-json
// output. The spawned track binary writes the call log itself.
type ClaudeCodeStrategy struct {
	// Binary is the agent CLI to spawn. Defaults to "claude".
	Binary string
	// TrackBin is the track binary path handed to the agent. Defaults to
	// whatever "track" resolves to on PATH.
	TrackBin string
	// Deadline caps the session wall clock. Defaults to DefaultDeadline.
	Deadline time.Duration
}

func (s *ClaudeCodeStrategy) Name() string { return "claude-code" }

func (s *ClaudeCodeStrategy) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return "claude"
}

func (s *ClaudeCodeStrategy) deadline() time.Duration {
	if s.Deadline > 0 {
		return s.Deadline
	}
	return DefaultDeadline
}

// FindTrackBinary locates the track binary: an explicit path, a build tree
// sibling, then PATH.
func FindTrackBinary(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, candidate := range []string{"./bin/track", "./track"} {
		if abs, err := filepath.Abs(candidate); err == nil {
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
	}
	return "track"
}

// Run spawns the agent, streams its events, and waits for exit or the
// deadline. A hung agent is killed via the context.
func (s *ClaudeCodeStrategy) Run(ctx context.Context, session *Session) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.deadline())
	defer cancel()

	trackBin := FindTrackBinary(s.TrackBin)
	systemPrompt := buildSubprocessSystemPrompt(session.Scenario)
	taskPrompt := buildSubprocessTaskPrompt(session.Scenario)

	cmd := exec.CommandContext(ctx, s.binary(),
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--allowedTools", fmt.Sprintf("Bash(%s *)", trackBin),
		"--append-system-prompt", systemPrompt,
		"--dangerously-skip-permissions",
		"--max-turns", strconv.Itoa(session.maxTurns()),
		taskPrompt,
	)
	cmd.Env = subprocessEnv(session.ScenarioDir, trackBin)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Op: "claude stdout pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Op: "spawn claude", Err: err}
	}

	var onEvent func(*Event)
	if session.Verbose {
		onEvent = func(e *Event) { logEvent(session, e) }
	}

	events, streamErr := ParseEventStream(stdout, onEvent)
	waitErr := cmd.Wait()

	if streamErr != nil {
		return nil, &TransportError{Op: "claude event stream", Err: streamErr}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &TransportError{Op: "claude session", Err: ctx.Err()}
	}
	if waitErr != nil && len(events) == 0 {
		// Exit failure without any events means the CLI never got going.
		return nil, &TransportError{Op: "claude session", Err: waitErr}
	}
	if len(events) == 0 {
		// A clean exit with no events is still not a session; scoring an
		// empty log would mean the agent silently passed on doing nothing.
		return nil, &TransportError{Op: "claude event stream", Err: errNoEvents}
	}

	commands := ExtractCommands(events)

	if session.Verbose {
		session.log().Info("session complete",
			"commands", len(commands), "turns", CountTurns(events))
	}

	return &Result{
		TurnsUsed: CountTurns(events),
		Commands:  commands,
		FinalText: FinalResult(events),
		Duration:  time.Since(start),
	}, nil
}

// subprocessEnv builds the child environment: the mock redirect plus the
// track binary directory prepended to PATH.
func subprocessEnv(scenarioDir, trackBin string) []string {
	env := os.Environ()
	env = append(env, TrackMockDirEnv+"="+scenarioDir)

	if dir := filepath.Dir(trackBin); dir != "" && dir != "." {
		env = append(env, "PATH="+dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	return env
}

func logEvent(session *Session, e *Event) {
	switch e.Type {
	case "system":
		if e.Subtype == "init" {
			session.log().Info("agent session started", "session_id", e.SessionID)
		}
	case "assistant":
		if e.Message == nil {
			return
		}
		for _, block := range e.Message.Content {
			switch block.Type {
			case "text":
				session.log().Info("agent", "text", truncate(block.Text, 500))
			case "tool_use":
				if block.Name == "Bash" {
					session.log().Info("executing", "input", truncate(string(block.Input), 300))
				}
			}
		}
	case "user":
		if e.Message == nil {
			return
		}
		for _, block := range e.Message.Content {
			if block.Type == "tool_result" {
				session.log().Info("tool result",
					"is_error", block.IsError,
					"output", truncate(block.ResultContent(), 300))
			}
		}
	case "result":
		session.log().Info("final result", "text", truncate(e.Result, 500))
	}
}

// buildSubprocessSystemPrompt is the system prompt for external agent CLIs:
// the agent drives the real track binary over Bash, so the constraints differ
// from the in-process tool surface.
func buildSubprocessSystemPrompt(s *scenario.Scenario) string {
	var b strings.Builder

	b.WriteString("# Evaluation Mode\n\n")
	b.WriteString("You are being evaluated on your ability to use the `track` CLI efficiently and correctly.\n\n")

	b.WriteString("## Constraints\n\n")
	b.WriteString("- You can ONLY use the `track` CLI via Bash\n")
	b.WriteString("- Do NOT use any other tools, commands, or file operations\n")
	b.WriteString("- Minimize the number of commands you execute\n")
	b.WriteString("- Use `-o json` when you need to parse output programmatically\n\n")

	if skill := loadSkillFile(); skill != "" {
		b.WriteString("---\n\n")
		b.WriteString(skill)
		b.WriteString("\n---\n\n")
	}

	if s.Setup.Context != "" {
		b.WriteString("## Scenario Context\n\n")
		b.WriteString(s.Setup.Context)
		b.WriteString("\n\n")
	}

	b.WriteString("When you have completed all tasks, respond with a brief summary of what you did.\n")

	return b.String()
}

// buildSubprocessTaskPrompt is the task argument handed to the agent CLI.
func buildSubprocessTaskPrompt(s *scenario.Scenario) string {
	return fmt.Sprintf(
		"## Your Task\n\n%s\n\nPlease complete this task using the track CLI.",
		s.Setup.Prompt)
}
