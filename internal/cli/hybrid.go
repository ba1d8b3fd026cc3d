package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "hybrid [query]",
		Short: "Search combining semantic similarity and keyword overlap",
		Long:  "Rerank dense search results by keyword overlap. Exact terms such as error\ncodes and identifiers rank higher than with embedding similarity alone.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runHybrid,
	}

	cmd.Flags().IntP("limit", "l", 5, "Max results")
	cmd.Flags().Float64("dense-weight", 0, "Dense score weight (default from config)")
	cmd.Flags().Float64("keyword-weight", 0, "Keyword score weight (default from config)")
	cmd.Flags().Bool("keyword-only", false, "Score by keyword overlap alone, skipping the embedding call")

	RootCmd.AddCommand(cmd)
}

func runHybrid(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	denseWeight, _ := cmd.Flags().GetFloat64("dense-weight")
	keywordWeight, _ := cmd.Flags().GetFloat64("keyword-weight")
	keywordOnly, _ := cmd.Flags().GetBool("keyword-only")
	query := strings.Join(args, " ")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if keywordOnly {
		results, err := a.eng.KeywordSearch(cmd.Context(), query, limit)
		if err != nil {
			return err
		}
		return printJSON(results)
	}

	if denseWeight == 0 && keywordWeight == 0 {
		denseWeight = a.cfg.Hybrid.DenseWeight
		keywordWeight = a.cfg.Hybrid.KeywordWeight
	}
	results, err := a.eng.HybridSearch(cmd.Context(), query, engine.HybridOptions{
		Limit:         limit,
		DenseWeight:   denseWeight,
		KeywordWeight: keywordWeight,
	})
	if err != nil {
		return err
	}
	return printJSON(results)
}
