package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count this agent's memories",
		Args:  cobra.NoArgs,
		RunE:  runCount,
	}

	cmd.Flags().StringP("type", "t", "", "Comma-separated memory types to include")

	RootCmd.AddCommand(cmd)
}

func runCount(cmd *cobra.Command, _ []string) error {
	typeFlag, _ := cmd.Flags().GetString("type")
	memTypes, err := parseTypes(typeFlag)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.eng.Count(cmd.Context(), memTypes)
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"count": n})
}
