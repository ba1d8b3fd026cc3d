package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a memory",
		Long:  "Embed the given content and store it as a memory record.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runStore,
	}

	cmd.Flags().StringP("type", "t", "semantic", "Memory type: semantic, episodic or working")
	cmd.Flags().Float64P("importance", "i", -1, "Initial importance in [0,1] (default 0.5)")
	cmd.Flags().StringP("entities", "e", "", "Comma-separated entity tags")
	cmd.Flags().StringP("session", "s", "", "Session id")
	cmd.Flags().String("id", "", "Explicit record id (re-storing the same id replaces the record)")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	typeFlag, _ := cmd.Flags().GetString("type")
	importance, _ := cmd.Flags().GetFloat64("importance")
	entities, _ := cmd.Flags().GetString("entities")
	session, _ := cmd.Flags().GetString("session")
	id, _ := cmd.Flags().GetString("id")

	memType, err := types.ParseMemoryType(typeFlag)
	if err != nil {
		return err
	}

	opts := engine.StoreOptions{
		ID:        id,
		Type:      memType,
		Entities:  splitList(entities),
		SessionID: session,
	}
	if importance >= 0 {
		opts.Importance = &importance
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.eng.Store(cmd.Context(), strings.Join(args, " "), opts)
	if err != nil {
		return err
	}
	return printJSON(rec)
}
