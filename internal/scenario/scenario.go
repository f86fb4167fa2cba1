// Package scenario loads and validates evaluation scenarios from disk.
//
// A scenario directory holds scenario.toml (task prompt, expected outcomes,
// scoring config), manifest.toml (mock response mappings), and responses/
// with the canned payload bodies.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Scenario is a complete evaluation unit: task prompt, expected outcomes,
// and scoring configuration. Immutable once loaded.
type Scenario struct {
	Meta             Meta               `toml:"scenario"`
	Setup            Setup              `toml:"setup"`
	ExpectedOutcomes map[string]Outcome `toml:"expected_outcomes"`
	Scoring          Scoring            `toml:"scoring"`
}

// Meta holds scenario identity and categorization.
type Meta struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Backend     string   `toml:"backend"`
	Difficulty  string   `toml:"difficulty"`
	Tags        []string `toml:"tags"`
}

// Setup holds the agent-facing task configuration.
type Setup struct {
	Prompt         string `toml:"prompt"`
	DefaultProject string `toml:"default_project"`
	Context        string `toml:"context"`
	CacheAvailable bool   `toml:"cache_available"`
}

// OutcomeKind discriminates the forms an expected outcome can take.
type OutcomeKind int

const (
	// OutcomeBool asserts whether any calls were made at all.
	OutcomeBool OutcomeKind = iota
	// OutcomeString asserts some call argument references a value.
	OutcomeString
	// OutcomeComplex combines method, issue, field and text criteria.
	OutcomeComplex
)

// Outcome is one expected outcome. In TOML it is either a bare bool, a bare
// string, or a table of criteria; the three forms decode into one value.
type Outcome struct {
	Kind    OutcomeKind
	Bool    bool
	String  string
	Complex Complex
}

// Complex is the table form of an outcome with multiple criteria.
// Zero-valued fields are not checked.
type Complex struct {
	Issue        string
	Field        string
	Value        string
	Contains     string
	MethodCalled string
	MinCalls     int
	MaxCalls     int
}

// UnmarshalTOML decodes the untagged outcome union.
func (o *Outcome) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case bool:
		o.Kind = OutcomeBool
		o.Bool = val
	case string:
		o.Kind = OutcomeString
		o.String = val
	case map[string]any:
		o.Kind = OutcomeComplex
		if s, ok := val["issue"].(string); ok {
			o.Complex.Issue = s
		}
		if s, ok := val["field"].(string); ok {
			o.Complex.Field = s
		}
		if s, ok := val["value"].(string); ok {
			o.Complex.Value = s
		}
		if s, ok := val["contains"].(string); ok {
			o.Complex.Contains = s
		}
		if s, ok := val["method_called"].(string); ok {
			o.Complex.MethodCalled = s
		}
		if n, ok := val["min_calls"].(int64); ok {
			o.Complex.MinCalls = int(n)
		}
		if n, ok := val["max_calls"].(int64); ok {
			o.Complex.MaxCalls = int(n)
		}
	default:
		return fmt.Errorf("expected outcome must be a bool, string, or table, got %T", v)
	}
	return nil
}

// Scoring configures how a run is scored. Penalty values are negative point
// deltas, bonus values positive; both are added to the base score as-is.
type Scoring struct {
	MinCommands     int       `toml:"min_commands"`
	MaxCommands     int       `toml:"max_commands"`
	OptimalCommands int       `toml:"optimal_commands"`
	BaseScore       int       `toml:"base_score"`
	Penalties       Penalties `toml:"penalties"`
	Bonuses         Bonuses   `toml:"bonuses"`
}

// Penalties holds per-occurrence point deductions (negative values).
type Penalties struct {
	ExtraCommand    int `toml:"extra_command"`
	RedundantFetch  int `toml:"redundant_fetch"`
	UnnecessaryList int `toml:"unnecessary_list"`
	CommandError    int `toml:"command_error"`
}

// Bonuses holds per-occurrence point additions (positive values).
type Bonuses struct {
	CacheUse     int `toml:"cache_use"`
	UnderOptimal int `toml:"under_optimal"`
	JSONOutput   int `toml:"json_output"`
}

// LoadError reports a scenario that could not be loaded or validated.
// Fatal to that run only.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load scenario %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load parses and validates a scenario from a TOML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var s Scenario
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, &LoadError{Path: path, Err: errors.Wrap(err, "parse")}
	}

	applyDefaults(&s)

	if err := s.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	return &s, nil
}

// LoadFromDir loads a scenario from a directory containing scenario.toml.
func LoadFromDir(dir string) (*Scenario, error) {
	return Load(filepath.Join(dir, "scenario.toml"))
}

func applyDefaults(s *Scenario) {
	if s.Meta.Backend == "" {
		s.Meta.Backend = "any"
	}
	if s.Meta.Difficulty == "" {
		s.Meta.Difficulty = "medium"
	}
	if s.Scoring.BaseScore == 0 {
		s.Scoring.BaseScore = 100
	}
	if s.Scoring.Penalties.ExtraCommand == 0 {
		s.Scoring.Penalties.ExtraCommand = -5
	}
	if s.Scoring.Penalties.RedundantFetch == 0 {
		s.Scoring.Penalties.RedundantFetch = -10
	}
	if s.Scoring.Penalties.CommandError == 0 {
		s.Scoring.Penalties.CommandError = -15
	}
	if s.Scoring.Bonuses.CacheUse == 0 {
		s.Scoring.Bonuses.CacheUse = 10
	}
}

// Validate checks structural invariants of the loaded scenario.
func (s *Scenario) Validate() error {
	if s.Meta.Name == "" {
		return errors.New("scenario name is required")
	}
	if s.Setup.Prompt == "" {
		return errors.New("setup prompt is required")
	}
	if len(s.ExpectedOutcomes) == 0 {
		return errors.New("at least one expected outcome is required")
	}
	if s.Scoring.BaseScore <= 0 {
		return errors.New("base_score must be positive")
	}
	if s.Scoring.MinCommands > 0 && s.Scoring.MaxCommands > 0 &&
		s.Scoring.MaxCommands < s.Scoring.MinCommands {
		return fmt.Errorf("max_commands (%d) must not be less than min_commands (%d)",
			s.Scoring.MaxCommands, s.Scoring.MinCommands)
	}
	if s.Scoring.OptimalCommands > 0 && s.Scoring.MaxCommands > 0 &&
		s.Scoring.OptimalCommands > s.Scoring.MaxCommands {
		return fmt.Errorf("optimal_commands (%d) must not exceed max_commands (%d)",
			s.Scoring.OptimalCommands, s.Scoring.MaxCommands)
	}
	for name, p := range map[string]int{
		"extra_command":    s.Scoring.Penalties.ExtraCommand,
		"redundant_fetch":  s.Scoring.Penalties.RedundantFetch,
		"unnecessary_list": s.Scoring.Penalties.UnnecessaryList,
		"command_error":    s.Scoring.Penalties.CommandError,
	} {
		if p > 0 {
			return fmt.Errorf("penalty %s must be zero or negative, got %d", name, p)
		}
	}
	return nil
}

// CompatibleWith reports whether this scenario targets a given backend.
func (s *Scenario) CompatibleWith(backend string) bool {
	return s.Meta.Backend == "any" || strings.EqualFold(s.Meta.Backend, backend)
}

// Entry pairs a scenario with the directory it was loaded from.
type Entry struct {
	Dir      string
	Scenario *Scenario
}

// List loads every scenario directory under root, sorted by name.
// Directories without a scenario.toml are skipped; directories with a
// malformed one are returned as errors so batch runs fail loudly.
func List(root string) ([]Entry, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read scenarios directory %s", root)
	}

	var entries []Entry
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(root, d.Name())
		if _, err := os.Stat(filepath.Join(dir, "scenario.toml")); err != nil {
			continue
		}
		s, err := LoadFromDir(dir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Dir: dir, Scenario: s})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Scenario.Meta.Name < entries[j].Scenario.Meta.Name
	})

	return entries, nil
}
