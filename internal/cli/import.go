package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories from a markdown file",
		Long:  "Split a markdown file on \"## \" headings and store each new section as a\nmemory. Already-imported sections are skipped using the local sync state.",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.openState()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := a.newSyncer(st).Import(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(stats)
}
