package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by semantic similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().IntP("limit", "l", 5, "Max results")
	cmd.Flags().StringP("type", "t", "", "Comma-separated memory types to include")
	cmd.Flags().Float64("min-importance", 0, "Importance floor")
	cmd.Flags().StringP("entities", "e", "", "Only memories tagged with any of these entities")
	cmd.Flags().StringP("session", "s", "", "Only memories from this session")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	typeFlag, _ := cmd.Flags().GetString("type")
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")
	entities, _ := cmd.Flags().GetString("entities")
	session, _ := cmd.Flags().GetString("session")

	memTypes, err := parseTypes(typeFlag)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.eng.Search(cmd.Context(), strings.Join(args, " "), engine.SearchOptions{
		Limit:         limit,
		Types:         memTypes,
		MinImportance: minImportance,
		Entities:      splitList(entities),
		SessionID:     session,
	})
	if err != nil {
		return err
	}
	return printJSON(results)
}
