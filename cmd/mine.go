package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"devdiary/internal/mine"
)

var remineFlag string

func init() {
	rootCmd.AddCommand(mineCmd)
	mineCmd.Flags().StringVar(&remineFlag, "remine", "", "re-mine mode: keep (preserve evidence, downgrade changed days) or reset (delete scope first)")
}

var mineCmd = &cobra.Command{
	Use:   "mine <session-id>",
	Short: "Enumerate commit history into the evidence store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := mine.ModeMine
		switch remineFlag {
		case "":
		case "keep":
			mode = mine.ModeRemineKeep
		case "reset":
			mode = mine.ModeRemineReset
		default:
			return fmt.Errorf("unknown --remine mode %q (want keep or reset)", remineFlag)
		}

		cfg, log, err := setup()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.GetSession(args[0])
		if err != nil {
			return fmt.Errorf("session %q not found", args[0])
		}

		orch := mine.NewOrchestrator(st, guards, cfg.GitBin, loc, log)
		res, err := orch.Run(cmd.Context(), *sess, mode)
		if err != nil {
			if res.Outcome == mine.Canceled {
				return fmt.Errorf("mining canceled: %w", err)
			}
			return err
		}

		fmt.Printf("Mined %d commits (%d new) into %d days", res.CommitsSeen, res.CommitsInserted, res.DaysUpserted)
		if res.DaysDowngraded > 0 {
			fmt.Printf(", %d days downgraded to mined", res.DaysDowngraded)
		}
		fmt.Println()
		return nil
	},
}
