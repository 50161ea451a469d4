package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/moodlist/internal/adapters/sqlite"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently delivered playlists from the local archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := sqlite.NewAdapter(cfg.Delivery.SQLitePath)
		if err != nil {
			return err
		}
		defer archive.Close()

		payloads, err := archive.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(payloads) == 0 {
			fmt.Fprintln(out, "no playlists archived yet")
			return nil
		}
		for _, p := range payloads {
			fmt.Fprintf(out, "%s  %s  (%d tracks, session %s)\n", p.CreatedAt.Local().Format("2006-01-02 15:04"), p.PlaylistTitle, len(p.Tracks), p.SessionID)
			if p.MoodSummary != "" {
				fmt.Fprintf(out, "    %s\n", p.MoodSummary)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of playlists to show")
}
