package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/solatis/formkeeper/internal/form"
	"github.com/solatis/formkeeper/internal/specdoc"
	"github.com/solatis/formkeeper/internal/types"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a form locally through a sequence of edits and print the result",
	Long: `simulate mounts a document on an initial state, applies each step of the
edits file in order (flushing the debounce after every step) and prints the
snapshot, feedback, submittability and rendered descriptors as JSON.

Initial state and edits may be JSON or YAML. Each step is either
{"key": "age", "value": 20} or {"blur": "age"}.`,
	RunE: runSimulate,
}

var (
	simulateSpec    string
	simulateInitial string
	simulateEdits   string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simulateSpec, "spec", "", "form document (YAML or JSON)")
	simulateCmd.Flags().StringVar(&simulateInitial, "initial", "", "initial state file")
	simulateCmd.Flags().StringVar(&simulateEdits, "edits", "", "edits file")
	simulateCmd.MarkFlagRequired("spec")
}

// step is one simulated user action.
type step struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
	Blur  string `yaml:"blur"`
}

// simulation is the printed outcome.
type simulation struct {
	Snapshot  types.Snapshot            `json:"snapshot"`
	Feedback  map[string]types.Feedback `json:"feedback"`
	CanSubmit bool                      `json:"canSubmit"`
	Sections  []any                     `json:"sections"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	document, err := os.ReadFile(simulateSpec)
	if err != nil {
		return fmt.Errorf("failed to read spec: %w", err)
	}

	initial := types.State{}
	if simulateInitial != "" {
		if err := decodeFile(simulateInitial, &initial); err != nil {
			return err
		}
	}

	var steps []step
	if simulateEdits != "" {
		if err := decodeFile(simulateEdits, &steps); err != nil {
			return err
		}
	}

	opts := append(cfg.Engine.Options(), form.WithLogger(logger))
	return simulate(cmd.OutOrStdout(), document, initial, steps, opts...)
}

func simulate(w io.Writer, document []byte, initial types.State, steps []step, opts ...form.Option) error {
	spec, err := specdoc.NewBinder(logger, nil, nil).Load(document)
	if err != nil {
		return err
	}

	opts = append(opts, form.WithRenderers(form.DescriptorRenderers(spec)))
	c, err := form.New(spec, initial, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	for i, s := range steps {
		switch {
		case s.Blur != "":
			err = c.Blur(s.Blur)
		case s.Key != "":
			err = c.Edit(s.Key, s.Value)
		default:
			err = fmt.Errorf("step %d: needs key or blur", i)
		}
		if err != nil {
			return err
		}
		c.Flush()
	}

	views, err := c.Render()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(simulation{
		Snapshot:  c.Snapshot(),
		Feedback:  c.AllFeedback(),
		CanSubmit: c.CanSubmit(),
		Sections:  form.DescribeSections(views),
	})
}

func decodeFile(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
