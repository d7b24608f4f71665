package cmd

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"devdiary/internal/store"
)

var showCopy bool

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showCopy, "copy", false, "copy the day's summary to the clipboard")
}

var showCmd = &cobra.Command{
	Use:   "show <session-id> <date>",
	Short: "Show a day's evidence and latest summary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sessionID, date := args[0], args[1]
		day, err := st.GetDay(ctx, sessionID, date)
		if err != nil {
			return fmt.Errorf("no evidence for %s on %s", sessionID, date)
		}
		commits, err := st.CommitsByDay(ctx, sessionID, date)
		if err != nil {
			return err
		}

		fmt.Printf("Day:     %s\n", day.Date)
		fmt.Printf("Status:  %s\n", day.Status)
		fmt.Printf("Commits: %d (+%d/-%d)\n\n", day.CommitCount, day.Additions, day.Deletions)
		for _, c := range commits {
			fmt.Printf("  %s  %s (+%d/-%d)\n", c.Hash[:8], c.Subject, c.Additions, c.Deletions)
		}

		latest, err := st.LatestSummaries(ctx, []string{sessionID})
		if err != nil {
			return err
		}
		sum, ok := latest[store.DayKey{SessionID: sessionID, Date: date}]
		if !ok {
			fmt.Println("\nNo summary yet; run 'devdiary summarize'")
			return nil
		}

		fmt.Printf("\nSummary (created %s):\n%s", sum.CreatedAt.Local().Format("2006-01-02 15:04"), sum.Body)
		if showCopy {
			if err := clipboard.WriteAll(sum.Body); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not copy to clipboard: %v\n", err)
			} else {
				fmt.Println("Summary copied to clipboard!")
			}
		}
		return nil
	},
}
