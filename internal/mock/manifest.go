// Package mock implements the mock capability provider. It stands in for a
// real tracker backend: every operation call is resolved against a declarative
// response manifest and appended to an immutable call log, which is the sole
// ground truth the evaluator scores from.
package mock

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Exhaustion policies for sequence responses.
const (
	// ExhaustError makes a call past the end of a sequence fail. The default.
	ExhaustError = "error"
	// ExhaustRepeat keeps serving the last element once the sequence ends.
	ExhaustRepeat = "repeat"
)

// Manifest defines request-to-response mappings for a scenario. Entries are
// evaluated top-down in declaration order; first match wins.
type Manifest struct {
	Responses []ResponseMapping `toml:"responses"`
}

// ResponseMapping maps one request pattern to a response file or sequence.
type ResponseMapping struct {
	// Method is the capability method name (e.g. "get_issue").
	Method string `toml:"method"`

	// Args are per-field matchers. A value of "*" matches anything;
	// undeclared fields are ignored.
	Args map[string]string `toml:"args"`

	// File is the response payload, relative to the responses/ directory.
	File string `toml:"file"`

	// Sequence serves files one per matching call, advancing a cursor
	// tracked per request signature.
	Sequence []string `toml:"sequence"`

	// OnExhausted controls sequence behavior past the last element:
	// "error" (default) or "repeat".
	OnExhausted string `toml:"on_exhausted"`

	// Status simulates an HTTP status code; >= 400 injects an error.
	Status int `toml:"status"`

	// When adds conditional matching on the request body.
	When *Condition `toml:"when"`

	// DelayMS simulates backend latency before responding.
	DelayMS int64 `toml:"delay_ms"`
}

// Condition guards a mapping on properties of the request body.
type Condition struct {
	BodyContains string `toml:"body_contains"`
}

// UnmatchedError reports a call no manifest entry matched. It is logged as a
// failed call and scored, never silently turned into a success.
type UnmatchedError struct {
	Method string
	Args   map[string]string
}

func (e *UnmatchedError) Error() string {
	return fmt.Sprintf("no matching response for method %q with args %s",
		e.Method, formatArgs(e.Args))
}

// SequenceExhaustedError reports a sequence consumed past its last element
// without an explicit repeat policy.
type SequenceExhaustedError struct {
	Method string
	Key    string
	Length int
}

func (e *SequenceExhaustedError) Error() string {
	return fmt.Sprintf("response sequence for %q exhausted after %d calls (signature %s)",
		e.Method, e.Length, e.Key)
}

// LoadManifest parses and validates manifest.toml from the given path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", path)
	}

	for i := range m.Responses {
		r := &m.Responses[i]
		if r.Status == 0 {
			r.Status = 200
		}
		if r.Method == "" {
			return nil, errors.Errorf("manifest %s: responses[%d] has no method", path, i)
		}
		if r.File == "" && len(r.Sequence) == 0 {
			return nil, errors.Errorf("manifest %s: responses[%d] (%s) has neither file nor sequence", path, i, r.Method)
		}
		switch r.OnExhausted {
		case "", ExhaustError, ExhaustRepeat:
		default:
			return nil, errors.Errorf("manifest %s: responses[%d] (%s) has invalid on_exhausted %q",
				path, i, r.Method, r.OnExhausted)
		}
	}

	return &m, nil
}

// Methods returns the set of method names the manifest declares. The
// evaluator uses it to flag call log entries outside the vocabulary.
func (m *Manifest) Methods() map[string]bool {
	set := make(map[string]bool, len(m.Responses))
	for _, r := range m.Responses {
		set[r.Method] = true
	}
	return set
}

// FindResponse scans entries in declaration order and returns the first
// mapping that matches the call, along with the resolved response file.
// counts carries the per-signature sequence cursors.
func (m *Manifest) FindResponse(method string, args map[string]string, body string, counts map[string]int) (*ResponseMapping, string, error) {
	key := RequestKey(method, args)

	for i := range m.Responses {
		r := &m.Responses[i]
		if r.Method != method {
			continue
		}
		if !argsMatch(r.Args, args) {
			continue
		}
		if r.When != nil && r.When.BodyContains != "" {
			if body == "" || !strings.Contains(body, r.When.BodyContains) {
				continue
			}
		}

		if len(r.Sequence) > 0 {
			idx := counts[key]
			if idx >= len(r.Sequence) {
				if r.OnExhausted == ExhaustRepeat {
					return r, r.Sequence[len(r.Sequence)-1], nil
				}
				return r, "", &SequenceExhaustedError{
					Method: method,
					Key:    key,
					Length: len(r.Sequence),
				}
			}
			return r, r.Sequence[idx], nil
		}

		return r, r.File, nil
	}

	return nil, "", &UnmatchedError{Method: method, Args: args}
}

func argsMatch(declared map[string]string, call map[string]string) bool {
	for field, pattern := range declared {
		value, ok := call[field]
		if !ok {
			return false
		}
		if pattern != "*" && pattern != value {
			return false
		}
	}
	return true
}

// RequestKey builds the unique signature of a request: the method name plus
// its arguments with sorted keys. Sequence cursors are tracked per key so
// unrelated calls never share a cursor.
func RequestKey(method string, args map[string]string) string {
	if len(args) == 0 {
		return method
	}
	return method + ":" + formatArgs(args)
}

func formatArgs(args map[string]string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+args[k])
	}
	return strings.Join(parts, ",")
}
