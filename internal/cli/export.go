package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export high-importance memories to a markdown file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	cmd.Flags().Float64("min-importance", 0, "Importance floor (default from config)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if minImportance > 0 {
		a.cfg.Sync.ExportMinImportance = minImportance
	}

	st, err := a.openState()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := a.newSyncer(st).Export(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"exported": n})
}
