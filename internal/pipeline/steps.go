package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ppexec/internal/domain"
)

// Format is the encoding of a step list document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers a document format from its extension. Anything that
// is not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// LoadSteps reads a step list from path.
func LoadSteps(path string) ([]domain.Step, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("read steps: %w", err)
	}
	steps, err := ParseSteps(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return steps, nil
}

// ParseSteps decodes a step list. The document is either a list of steps or
// an object with a "steps" list. YAML documents are normalized to JSON first
// so both formats share the argument decoding rules.
func ParseSteps(data []byte, format Format) ([]domain.Step, error) {
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		var err error
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("normalize yaml: %w", err)
		}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty step list")
	}

	var steps []domain.Step
	if data[0] == '{' {
		var doc struct {
			Steps []domain.Step `json:"steps"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse steps: %w", err)
		}
		steps = doc.Steps
	} else if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse steps: %w", err)
	}

	if err := validateSteps(steps, ""); err != nil {
		return nil, err
	}
	return steps, nil
}

func validateSteps(steps []domain.Step, prefix string) error {
	for i, s := range steps {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("step %s%d: name is required", prefix, i)
		}
		for name, bindings := range s.Arguments {
			for _, b := range bindings {
				if b.Type == domain.ArgumentTypeSubsearch {
					if err := validateSteps(b.Subsearch, fmt.Sprintf("%s%d.%s.", prefix, i, name)); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
