package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent memories, newest first",
		Args:  cobra.NoArgs,
		RunE:  runRecent,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().StringP("type", "t", "", "Comma-separated memory types to include")
	cmd.Flags().Int("hours", 0, "Only memories from the last N hours")

	RootCmd.AddCommand(cmd)
}

func runRecent(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	typeFlag, _ := cmd.Flags().GetString("type")
	hours, _ := cmd.Flags().GetInt("hours")

	memTypes, err := parseTypes(typeFlag)
	if err != nil {
		return err
	}
	var since time.Time
	if hours > 0 {
		since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.eng.Recent(cmd.Context(), limit, memTypes, since)
	if err != nil {
		return err
	}
	return printJSON(records)
}
