package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"devdiary/internal/diary"
)

var (
	diarySessions     []string
	diaryKind         string
	diaryHidePaths    bool
	diaryPlaceholders bool
)

func init() {
	rootCmd.AddCommand(diaryCmd)
	diaryCmd.AddCommand(diaryCreateCmd)
	diaryCmd.AddCommand(diarySyncCmd)
	diaryCmd.AddCommand(diaryStatusCmd)
	diaryCmd.AddCommand(diaryConvertCmd)

	for _, c := range []*cobra.Command{diaryCreateCmd, diaryConvertCmd} {
		c.Flags().StringArrayVar(&diarySessions, "session", nil, "session to bind (repeatable)")
		c.Flags().StringVar(&diaryKind, "kind", "", "document kind: single or multi (default: inferred)")
		c.Flags().BoolVar(&diaryHidePaths, "hide-paths", false, "omit local repository paths from entries")
		c.Flags().BoolVar(&diaryPlaceholders, "placeholders", true, "emit placeholder text for days without a summary")
	}
}

var diaryCmd = &cobra.Command{
	Use:   "diary",
	Short: "Create and synchronize managed diary documents",
}

func newSynchronizer() (*diary.Synchronizer, func(), error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	sync := diary.NewSynchronizer(st, guards, log, cfg.Placeholder)
	return sync, func() { st.Close() }, nil
}

func diaryOptions() diary.Options {
	return diary.Options{
		HidePaths:    diaryHidePaths,
		Placeholders: diaryPlaceholders,
		Policy:       diary.PolicyLatest,
	}
}

func printDiff(d diary.DiffReport) {
	fmt.Printf("Entries: %d new, %d updated, %d unchanged, %d extra\n", d.New, d.Updated, d.Unchanged, d.Extra)
	for _, k := range d.ExtraKeys {
		fmt.Printf("  extra entry left untouched: %s session=%s\n", k.Date, k.SessionID)
	}
	for _, msg := range d.OutOfOrder {
		fmt.Printf("  out of order (left as found): %s\n", msg)
	}
}

var diaryCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a new managed diary from current evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, done, err := newSynchronizer()
		if err != nil {
			return err
		}
		defer done()

		res, err := sync.Create(cmd.Context(), args[0], diaryKind, diarySessions, diaryOptions())
		if err != nil {
			return err
		}
		fmt.Printf("Created %s\n", res.Path)
		printDiff(res.Diff)
		return nil
	},
}

var diarySyncCmd = &cobra.Command{
	Use:   "sync <path>",
	Short: "Merge current evidence into a managed diary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, done, err := newSynchronizer()
		if err != nil {
			return err
		}
		defer done()

		res, err := sync.Sync(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printDiff(res.Diff)
		if res.Backup != "" {
			fmt.Printf("Previous version backed up to %s\n", filepath.Base(res.Backup))
		}
		return nil
	},
}

var diaryStatusCmd = &cobra.Command{
	Use:   "status <path>",
	Short: "Report staleness and a diff preview without writing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, done, err := newSynchronizer()
		if err != nil {
			return err
		}
		defer done()

		stale, err := sync.Stale(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if stale {
			fmt.Println("Document is stale: summaries are newer than the last sync")
		} else {
			fmt.Println("Document is up to date")
		}

		report, err := sync.Preview(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printDiff(*report)
		return nil
	},
}

var diaryConvertCmd = &cobra.Command{
	Use:   "convert <source> <dest>",
	Short: "Produce a managed diary from an unmanaged document, leaving the original untouched",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, done, err := newSynchronizer()
		if err != nil {
			return err
		}
		defer done()

		res, err := sync.Convert(cmd.Context(), args[0], args[1], diaryKind, diarySessions, diaryOptions())
		if err != nil {
			return err
		}
		fmt.Printf("Converted %s -> %s\n", args[0], res.Path)
		printDiff(res.Diff)
		return nil
	},
}
