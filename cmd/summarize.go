package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"devdiary/internal/store"
	"devdiary/internal/summarize"
)

var summarizeDate string

func init() {
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(approveCmd)
	summarizeCmd.Flags().StringVar(&summarizeDate, "date", "", "summarize one date instead of every mined day")
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <session-id>",
	Short: "Generate daily summaries from stored evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.GetSession(args[0])
		if err != nil {
			return fmt.Errorf("session %q not found", args[0])
		}

		days, err := st.DaysInRange(ctx, []string{sess.ID}, summarizeDate, summarizeDate)
		if err != nil {
			return err
		}

		summarizer := summarize.NewBulletSummarizer()
		generated := 0
		for _, day := range days {
			if err := ctx.Err(); err != nil {
				return err
			}
			if summarizeDate == "" && day.Status != store.StatusMined {
				continue
			}

			commits, err := st.CommitsByDay(ctx, sess.ID, day.Date)
			if err != nil {
				return err
			}
			res, err := summarizer.Summarize(ctx, day, commits)
			if err != nil {
				return err
			}
			_, err = st.InsertSummary(ctx, store.DaySummary{
				SessionID:     sess.ID,
				Date:          day.Date,
				ParamsVersion: summarize.ParamsVersion,
				Body:          res.Body,
				InputsHash:    summarize.InputsHash(day, commits),
				Truncated:     res.Truncated,
			})
			if err != nil {
				return err
			}
			generated++
		}

		fmt.Printf("Generated %d summaries\n", generated)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <session-id> <date>",
	Short: "Mark a summarized day as approved",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.AdvanceDayStatus(cmd.Context(), args[0], args[1], store.StatusApproved); err != nil {
			return err
		}
		fmt.Printf("Day %s approved\n", args[1])
		return nil
	},
}
