package runner

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fpt/go-trackeval/internal/scenario"
)

// CopilotStrategy drives an interactive agent CLI over stdin/stdout: it sends
// the task as a prompt, watches the output for suggested commands, confirms
// track commands and rejects everything else. Far less structured than the
// stream-json strategies; the call log still comes from the track binary.
type CopilotStrategy struct {
	// Binary is the agent CLI to spawn. Defaults to "copilot".
	Binary string
	// Args are extra CLI arguments, e.g. {"copilot", "suggest"} modes.
	Args []string
	// TrackBin is the track binary path. Defaults to PATH lookup.
	TrackBin string
	// Deadline caps the session wall clock. Defaults to DefaultDeadline.
	Deadline time.Duration
}

func (s *CopilotStrategy) Name() string { return "copilot" }

func (s *CopilotStrategy) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return "copilot"
}

func (s *CopilotStrategy) deadline() time.Duration {
	if s.Deadline > 0 {
		return s.Deadline
	}
	return DefaultDeadline
}

// interaction is one prompt/response exchange with the agent.
type interaction struct {
	response  string
	suggested string
	confirmed bool
}

// Run spawns the agent, feeds it the combined prompt, and auto-answers its
// questions until EOF, the turn ceiling, or the deadline.
func (s *CopilotStrategy) Run(ctx context.Context, session *Session) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.deadline())
	defer cancel()

	trackBin := FindTrackBinary(s.TrackBin)
	prompt := buildCopilotPrompt(session.Scenario)

	cmd := exec.CommandContext(ctx, s.binary(), s.Args...)
	cmd.Env = subprocessEnv(session.ScenarioDir, trackBin)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Op: "copilot stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Op: "copilot stdout pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Op: "spawn copilot", Err: err}
	}

	interactions, sessionErr := s.interactiveSession(session, stdin, stdout, prompt)
	waitErr := cmd.Wait()

	if sessionErr != nil {
		return nil, &TransportError{Op: "copilot session", Err: sessionErr}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &TransportError{Op: "copilot session", Err: ctx.Err()}
	}
	if waitErr != nil && len(interactions) == 0 {
		return nil, &TransportError{Op: "copilot session", Err: waitErr}
	}

	var commands []CommandExecution
	var finalText string
	for _, it := range interactions {
		finalText = it.response
		if it.confirmed && it.suggested != "" {
			commands = append(commands, CommandExecution{
				Args:   ParseTrackArgs(it.suggested),
				Output: it.response,
			})
		}
	}

	if session.Verbose {
		session.log().Info("session complete",
			"commands", len(commands), "turns", len(interactions))
	}

	return &Result{
		TurnsUsed: len(interactions),
		Commands:  commands,
		FinalText: strings.TrimSpace(finalText),
		Duration:  time.Since(start),
	}, nil
}

func (s *CopilotStrategy) interactiveSession(session *Session, stdin io.WriteCloser, stdout io.Reader, prompt string) ([]interaction, error) {
	defer stdin.Close()

	if _, err := io.WriteString(stdin, prompt+"\n"); err != nil {
		return nil, err
	}

	reader := bufio.NewReader(stdout)
	var interactions []interaction
	var current strings.Builder
	turns := 0

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			current.WriteString(line)

			if detectInputPrompt(line) {
				turns++
				if turns > session.maxTurns() {
					session.log().Warn("maximum turns reached", "max_turns", session.maxTurns())
					break
				}

				output := current.String()
				suggested := extractSuggestion(output)

				switch {
				case suggested != "" && IsTrackCommand(suggested):
					interactions = append(interactions, interaction{
						response:  output,
						suggested: suggested,
						confirmed: true,
					})
					if _, werr := io.WriteString(stdin, "yes\n"); werr != nil {
						return interactions, werr
					}
				case suggested != "":
					// Only the track CLI is allowed.
					interactions = append(interactions, interaction{
						response:  output,
						suggested: suggested,
					})
					if _, werr := io.WriteString(stdin, "no\n"); werr != nil {
						return interactions, werr
					}
				default:
					if _, werr := io.WriteString(stdin, "Yes, please proceed with the track CLI command.\n"); werr != nil {
						return interactions, werr
					}
				}

				current.Reset()
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return interactions, err
		}
	}

	if current.Len() > 0 {
		interactions = append(interactions, interaction{response: current.String()})
	}

	return interactions, nil
}

// detectInputPrompt heuristically spots lines where the agent is waiting for
// user input.
func detectInputPrompt(line string) bool {
	lower := strings.ToLower(strings.TrimRight(line, "\n"))

	if strings.Contains(lower, "?") {
		for _, w := range []string{"what", "how", "would you", "do you", "select", "choose"} {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(lower, ":") {
		for _, w := range []string{"please", "describe", "enter", "type", "select", "choose"} {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// extractSuggestion pulls a suggested shell command out of agent output.
func extractSuggestion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)

		if cmd, ok := strings.CutPrefix(trimmed, "$ "); ok {
			return strings.TrimSpace(cmd)
		}
		if cmd, ok := strings.CutPrefix(trimmed, "Suggestion:"); ok {
			return strings.TrimSpace(cmd)
		}
		if strings.HasPrefix(trimmed, "track ") {
			return trimmed
		}
	}
	return ""
}

// buildCopilotPrompt folds system guidance and the task into one prompt,
// since interactive CLIs have no separate system channel.
func buildCopilotPrompt(s *scenario.Scenario) string {
	var b strings.Builder

	b.WriteString("# Evaluation Mode\n\n")
	b.WriteString("You are being evaluated on your ability to use the `track` CLI efficiently and correctly.\n\n")

	b.WriteString("## Constraints\n\n")
	b.WriteString("- You can ONLY use the `track` CLI\n")
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

	b.WriteString("## Your Task\n\n")
	b.WriteString(s.Setup.Prompt)
	b.WriteString("\n\nComplete this task using ONLY track CLI commands. When done, summarize what you did.\n")

	return b.String()
}
