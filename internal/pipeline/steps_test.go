package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppexec/internal/domain"
)

const stepsJSON = `[
  {"name": "sys_read_interproc", "arguments": {
    "path": [{"key": "path", "value": "input_data"}],
    "storage_type": [{"key": "storage_type", "value": "INTERPROCESSING"}]}},
  {"name": "join", "arguments": {
    "field": [{"value": "a"}],
    "jdf": [{"type": "subsearch", "value": [
      {"name": "sys_read_interproc", "arguments": {"path": [{"value": "join_data"}]}}
    ]}]}},
  {"name": "head", "arguments": {"count": [{"value": 2}]}}
]`

const stepsYAML = `
steps:
  - name: sys_read_interproc
    arguments:
      path: [{key: path, value: input_data}]
      storage_type: [{key: storage_type, value: INTERPROCESSING}]
  - name: join
    arguments:
      field: [{value: a}]
      jdf:
        - type: subsearch
          value:
            - name: sys_read_interproc
              arguments:
                path: [{value: join_data}]
  - name: head
    arguments:
      count: [{value: 2}]
`

func TestParseSteps(t *testing.T) {
	for _, tc := range []struct {
		name   string
		data   string
		format Format
	}{
		{"json list", stepsJSON, FormatJSON},
		{"yaml document", stepsYAML, FormatYAML},
	} {
		t.Run(tc.name, func(t *testing.T) {
			steps, err := ParseSteps([]byte(tc.data), tc.format)
			require.NoError(t, err)
			require.Len(t, steps, 3)

			assert.Equal(t, "sys_read_interproc", steps[0].Name)
			assert.Equal(t, "input_data", steps[0].Arguments["path"][0].Value)

			jdf := steps[1].Arguments["jdf"][0]
			assert.Equal(t, domain.ArgumentTypeSubsearch, jdf.Type)
			require.Len(t, jdf.Subsearch, 1)
			assert.Equal(t, "join_data", jdf.Subsearch[0].Arguments["path"][0].Value)

			assert.Equal(t, json.Number("2"), steps[2].Arguments["count"][0].Value)
		})
	}
}

func TestParseSteps_Errors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		data   string
		format Format
	}{
		{"empty", "  ", FormatJSON},
		{"bad json", "[{", FormatJSON},
		{"bad yaml", "steps: [", FormatYAML},
		{"missing name", `[{"arguments": {}}]`, FormatJSON},
		{"missing nested name", `[{"name": "join", "arguments": {"jdf": [{"type": "subsearch", "value": [{}]}]}}]`, FormatJSON},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSteps([]byte(tc.data), tc.format)
			assert.Error(t, err)
		})
	}
}

func TestLoadSteps(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "p.yml")
	require.NoError(t, os.WriteFile(yml, []byte(stepsYAML), 0o600))
	steps, err := LoadSteps(yml)
	require.NoError(t, err)
	assert.Len(t, steps, 3)

	_, err = LoadSteps(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	assert.Equal(t, FormatYAML, FormatFromPath("a/B.YAML"))
	assert.Equal(t, FormatJSON, FormatFromPath("steps.txt"))
}
