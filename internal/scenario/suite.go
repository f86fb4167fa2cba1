package scenario

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Suite holds batch-run defaults loaded from suite.yaml at the scenarios
// root. All fields are optional; CLI flags override them.
type Suite struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	MaxTurns int    `yaml:"max_turns"`
	MinScore int    `yaml:"min_score"`
	Parallel int    `yaml:"parallel"`
	FailFast bool   `yaml:"fail_fast"`
}

// LoadSuite reads suite.yaml from the scenarios root. A missing file is not
// an error; it returns an empty Suite.
func LoadSuite(root string) (*Suite, error) {
	path := filepath.Join(root, "suite.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Suite{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read suite file %s", path)
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, errors.Wrapf(err, "failed to parse suite file %s", path)
	}
	return &suite, nil
}
