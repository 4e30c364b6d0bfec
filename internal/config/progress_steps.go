package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed progress_steps.yaml
var defaultProgressSteps []byte

type ProgressStep struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

// ProgressSteps is the fixed, ordered step configuration.
type ProgressSteps struct {
	Steps []ProgressStep `yaml:"steps" json:"steps"`
}

// LoadProgressSteps reads the step order from path, or the embedded default when path is empty.
func LoadProgressSteps(path string) (*ProgressSteps, error) {
	raw := defaultProgressSteps
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read progress steps %s: %w", path, err)
		}
		raw = b
	}
	return ParseProgressSteps(raw)
}

func ParseProgressSteps(raw []byte) (*ProgressSteps, error) {
	var ps ProgressSteps
	if err := yaml.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("parse progress steps: %w", err)
	}
	if len(ps.Steps) == 0 {
		return nil, fmt.Errorf("progress steps: at least one step is required")
	}
	seen := make(map[string]bool, len(ps.Steps))
	for i, s := range ps.Steps {
		key := strings.TrimSpace(s.Key)
		if key == "" {
			return nil, fmt.Errorf("progress steps: step %d has empty key", i)
		}
		if seen[key] {
			return nil, fmt.Errorf("progress steps: duplicate key %q", key)
		}
		seen[key] = true
		ps.Steps[i].Key = key
		if ps.Steps[i].Label == "" {
			ps.Steps[i].Label = key
		}
	}
	return &ps, nil
}

func (p *ProgressSteps) Keys() []string {
	keys := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		keys[i] = s.Key
	}
	return keys
}

// Index returns the position of key, or -1.
func (p *ProgressSteps) Index(key string) int {
	for i, s := range p.Steps {
		if s.Key == key {
			return i
		}
	}
	return -1
}

// Next returns the key following key; ok is false at the last step or for unknown keys.
func (p *ProgressSteps) Next(key string) (string, bool) {
	i := p.Index(key)
	if i < 0 || i+1 >= len(p.Steps) {
		return "", false
	}
	return p.Steps[i+1].Key, true
}

func (p *ProgressSteps) First() string {
	return p.Steps[0].Key
}

// Label returns the display label of key, or key itself when unknown.
func (p *ProgressSteps) Label(key string) string {
	if i := p.Index(key); i >= 0 {
		return p.Steps[i].Label
	}
	return key
}
