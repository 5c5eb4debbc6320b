package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/preempt-sim/fifo"
)

// defaultsDoc is the YAML document printed by `preempt-sim defaults`, in the
// shape of a scenario file's poll and features sections.
type defaultsDoc struct {
	Poll     fifo.PollConfig `yaml:"poll"`
	Features fifo.Features   `yaml:"features"`
}

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the default poll tuning as scenario YAML",
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeDefaults(os.Stdout); err != nil {
			logrus.Fatalf("Failed to encode defaults: %v", err)
		}
	},
}

func writeDefaults(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	doc := defaultsDoc{
		Poll:     fifo.DefaultPollConfig(),
		Features: fifo.Features{CoprocMutex: true, Recovery: true},
	}
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
