package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/consolidate"
	"github.com/scrypster/recall/internal/llm"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Distill episodic backlog into semantic facts",
		Long:  "Check the consolidation trigger policy and, when it fires, distill the\nepisodic backlog into semantic records via the configured LLM provider.",
		Args:  cobra.NoArgs,
		RunE:  runConsolidate,
	}

	cmd.Flags().Bool("force", false, "Run even when the trigger policy would skip")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	gen, err := llm.NewTextGenerator(a.cfg.LLM)
	if err != nil {
		return err
	}

	st, err := a.openState()
	if err != nil {
		return err
	}
	defer st.Close()

	runner := consolidate.New(a.eng, gen, st, consolidate.Config{
		MinEpisodic: a.cfg.Consolidate.MinEpisodic,
		MinAge:      time.Duration(a.cfg.Consolidate.MinAgeHours) * time.Hour,
		MaxBatch:    a.cfg.Consolidate.MaxBatch,
	}, a.log)

	report, err := runner.Run(cmd.Context(), force)
	if err != nil {
		return err
	}
	return printJSON(report)
}
