package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync [file]",
		Short: "Bidirectional markdown sync",
		Long:  "Import new sections from a markdown file, then optionally export\nhigh-importance memories back out. With --watch, keep re-importing on change.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSync,
	}

	cmd.Flags().String("export", "", "Also export to this file after importing")
	cmd.Flags().BoolP("watch", "w", false, "Watch the file and re-import on change (runs until interrupted)")

	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	exportPath, _ := cmd.Flags().GetString("export")
	watch, _ := cmd.Flags().GetBool("watch")

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
	s := a.newSyncer(st)

	if watch {
		return s.Watch(cmd.Context(), args[0])
	}

	stats, err := s.FullSync(cmd.Context(), args[0], exportPath)
	if err != nil {
		return err
	}
	return printJSON(stats)
}
