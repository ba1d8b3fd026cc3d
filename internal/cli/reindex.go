package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/embedding"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex-colbert",
		Short: "Backfill late-interaction token vectors",
		Long:  "Embed per-token vectors for memories that do not carry them yet and attach\nthem as a named multivector. Requires the qdrant backend.",
		Args:  cobra.NoArgs,
		RunE:  runReindexColbert,
	}

	cmd.Flags().IntP("limit", "l", 100, "Max records to reindex in one run")

	RootCmd.AddCommand(cmd)
}

func runReindexColbert(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	late, ok := a.emb.(embedding.LateEmbedder)
	if !ok {
		return fmt.Errorf("embedding client does not support token vectors")
	}

	n, err := a.eng.ReindexColbert(cmd.Context(), late, limit)
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"reindexed": n})
}
