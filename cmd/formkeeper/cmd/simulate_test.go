package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/formkeeper/internal/form"
	"github.com/solatis/formkeeper/internal/types"
)

const drivingDoc = `
sections:
  - elements:
      - name: age
        fieldType: number
        onChangeReset: carModel
        rules:
          - {type: min, params: {value: 0}, label: Age cannot be negative}
      - name: hasLicense
        fieldType: bool
      - name: carModel
        fieldType: text
        existsIf: [canDrive]
conditionalFields:
  - name: canDrive
    when:
      anyOf:
        - allOf:
            - {field: age, op: gte, type: number, value: 18}
            - {field: hasLicense, op: eq, type: bool, value: true}
`

func TestSimulate(t *testing.T) {
	steps := []step{
		{Key: "age", Value: 20},
		{Key: "hasLicense", Value: true},
		{Key: "carModel", Value: "Volvo"},
		{Key: "age", Value: -1},
		{Blur: "age"},
	}

	var buf bytes.Buffer
	err := simulate(&buf, []byte(drivingDoc), types.State{"age": 16, "hasLicense": false}, steps, form.WithDebounce(time.Hour))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	state := out["snapshot"].(map[string]any)["state"].(map[string]any)
	assert.Equal(t, float64(-1), state["age"])
	assert.Equal(t, false, state["canDrive"])
	assert.NotContains(t, state, "carModel", "reset by age and hidden again")

	fb := out["feedback"].(map[string]any)["age"].(map[string]any)
	assert.Equal(t, "Age cannot be negative", fb["label"])
	assert.Equal(t, false, out["canSubmit"])
	assert.Len(t, out["sections"], 1)
}

func TestSimulate_BadStep(t *testing.T) {
	err := simulate(&bytes.Buffer{}, []byte(drivingDoc), types.State{}, []step{{}})
	assert.ErrorContains(t, err, "step 0")
}

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}
	spec := write("form.yaml", drivingDoc)
	initial := write("initial.json", `{"age": 30, "hasLicense": true}`)
	edits := write("edits.yaml", "- {key: carModel, value: Saab}\n")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"simulate", "--log-level", "error", "--spec", spec, "--initial", initial, "--edits", edits})
	require.NoError(t, rootCmd.Execute())

	var out simulation
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.True(t, out.CanSubmit)
	assert.Equal(t, "Saab", out.Snapshot.State["carModel"])
	assert.Equal(t, true, out.Snapshot.State["canDrive"])
}
