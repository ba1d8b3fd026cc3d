package cli

import (
	"github.com/spf13/cobra"

	"github.com/scrypster/recall/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "feedback [id] [signal]",
		Short: "Reinforce a memory with a usage signal",
		Long:  "Apply a reinforcement signal (retrieval, utilization or outcome) to a memory,\nraising its importance and updating its usage counters.",
		Args:  cobra.ExactArgs(2),
		RunE:  runFeedback,
	}

	RootCmd.AddCommand(cmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	signal, err := types.ParseSignal(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.eng.Feedback(cmd.Context(), args[0], signal)
	if err != nil {
		return err
	}
	return printJSON(res)
}
