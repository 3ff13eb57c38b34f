package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a chain described as data: the calls to queue, the value to
// start with and what the run must produce.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Initial is the value the chain starts with.
	Initial any `yaml:"initial,omitempty"`

	// Manifests lists CUE manifest files or directories applied on top of
	// the ops library. Relative paths are resolved against the scenario
	// file's directory by LoadScenario.
	Manifests []string `yaml:"manifests,omitempty"`

	// Steps are the calls, in order. Block markers are ordinary steps.
	Steps []Step `yaml:"steps"`

	// Expect checks the terminal outcome. Nil skips the check.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions check the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step queues one call.
type Step struct {
	Call string `yaml:"call"`
	Args []any  `yaml:"args,omitempty"`
}

// Expect describes the terminal outcome of a run.
type Expect struct {
	// Result is compared after IR snapshotting, so 1 and 1.0 are equal.
	// An absent result is not checked; `result: null` expects nil.
	Result yaml.Node `yaml:"result"`

	// Error is the expected error text. Empty expects success.
	Error string `yaml:"error,omitempty"`
}

// HasResult reports whether the scenario declares an expected result.
func (e *Expect) HasResult() bool {
	return e.Result.Kind != 0
}

// ResultValue decodes the expected result.
func (e *Expect) ResultValue() (any, error) {
	var v any
	if err := e.Result.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode expected result: %w", err)
	}
	return v, nil
}

// Assertion checks a property of the recorded trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Method is the operation name (call_count).
	Method string `yaml:"method,omitempty"`

	// Methods is an ordered method list (call_order, skipped).
	Methods []string `yaml:"methods,omitempty"`

	// Count is the expected number of occurrences (call_count, chain_count).
	Count int `yaml:"count,omitempty"`

	// Depth is the expected maximum nesting depth (max_depth).
	Depth int `yaml:"depth,omitempty"`

	// Status is the expected stored run status (run_status).
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertCallOrder  = "call_order"
	AssertSkipped    = "skipped"
	AssertCallCount  = "call_count"
	AssertChainCount = "chain_count"
	AssertMaxDepth   = "max_depth"
	AssertRunStatus  = "run_status"
)

// LoadScenario reads and parses a scenario YAML file. Manifest paths are
// resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving manifest paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, m := range scenario.Manifests {
		if !filepath.IsAbs(m) && basePath != "" {
			scenario.Manifests[i] = filepath.Join(basePath, m)
		}
	}
	for _, m := range scenario.Manifests {
		if _, err := os.Stat(m); err != nil {
			return nil, fmt.Errorf("invalid scenario: manifest not found: %s", m)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. Manifest paths are
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Call == "" {
			return fmt.Errorf("steps[%d]: call is required", i)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCallOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for call_order", index)
		}
	case AssertSkipped:
		// An empty list asserts that nothing was skipped.
	case AssertCallCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertChainCount:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be at least 1 for chain_count", index)
		}
	case AssertMaxDepth:
		if a.Depth < 0 {
			return fmt.Errorf("assertions[%d]: depth must be non-negative for max_depth", index)
		}
	case AssertRunStatus:
		switch a.Status {
		case "ok", "error":
		default:
			return fmt.Errorf("assertions[%d]: status must be \"ok\" or \"error\" for run_status", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
