package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"code-judge/internal/judge"
)

// caseEntry accepts inputs and outputs written as plain YAML values, so
// `input: [1, 2]` works as well as `input: "[1, 2]"`.
type caseEntry struct {
	Input    yaml.Node `yaml:"input"`
	Output   yaml.Node `yaml:"output"`
	IsHidden bool      `yaml:"is_hidden"`
}

// loadCases reads test cases from a YAML or JSON file holding either a list
// of cases or a mapping with a test_cases key.
func loadCases(path string) ([]judge.TestCase, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading test cases: %w", err)
	}
	return parseCases(data)
}

func parseCases(data []byte) ([]judge.TestCase, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing test cases: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("parsing test cases: empty document")
	}

	var entries []caseEntry
	node := doc.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		err := node.Decode(&entries)
		if err != nil {
			return nil, fmt.Errorf("parsing test cases: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			TestCases []caseEntry `yaml:"test_cases"`
		}
		if err := node.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("parsing test cases: %w", err)
		}
		entries = wrapped.TestCases
	default:
		return nil, fmt.Errorf("parsing test cases: want a list or a test_cases mapping")
	}

	cases := make([]judge.TestCase, len(entries))
	for i, e := range entries {
		input, err := nodeText(&e.Input)
		if err != nil {
			return nil, fmt.Errorf("test case %d input: %w", i+1, err)
		}
		output, err := nodeText(&e.Output)
		if err != nil {
			return nil, fmt.Errorf("test case %d output: %w", i+1, err)
		}
		cases[i] = judge.TestCase{Input: input, Output: output, IsHidden: e.IsHidden}
	}
	return cases, nil
}

// nodeText keeps scalars verbatim and re-encodes collections as compact
// JSON, the encoding harnesses parse inputs from.
func nodeText(n *yaml.Node) (string, error) {
	switch n.Kind {
	case 0:
		return "", nil
	case yaml.ScalarNode:
		return n.Value, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
