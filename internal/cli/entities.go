package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "entities [tag]...",
		Short: "List memories tagged with any of the given entities",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEntities,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max results")

	RootCmd.AddCommand(cmd)
}

func runEntities(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.eng.ByEntities(cmd.Context(), args, limit)
	if err != nil {
		return err
	}
	return printJSON(records)
}
