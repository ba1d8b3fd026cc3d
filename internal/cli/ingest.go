package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/ingest"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest conversation turns as episodic memories",
	}

	turn := &cobra.Command{
		Use:   "turn [content]",
		Short: "Ingest a single conversation turn",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngestTurn,
	}
	turn.Flags().StringP("role", "r", "user", "Speaker role: user or assistant")
	turn.Flags().StringP("session", "s", "", "Session id")

	file := &cobra.Command{
		Use:   "file [path]",
		Short: "Ingest a transcript file (JSON array or role-prefixed lines)",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestFile,
	}
	file.Flags().StringP("session", "s", "", "Session id (generated when empty)")

	cmd.AddCommand(turn, file)
	RootCmd.AddCommand(cmd)
}

func (a *app) newIngester() *ingest.Ingester {
	return ingest.New(a.eng, a.cfg.Sync.RatePerSecond, a.log)
}

func runIngestTurn(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	session, _ := cmd.Flags().GetString("session")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.newIngester().IngestTurn(cmd.Context(),
		ingest.Turn{Role: role, Content: strings.Join(args, " ")}, session)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println(`{"skipped": "too short"}`)
		return nil
	}
	return printJSON(rec)
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	session, _ := cmd.Flags().GetString("session")

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, count, err := a.newIngester().IngestTranscript(cmd.Context(), string(raw), session)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"session_id": sessionID, "ingested": count})
}
