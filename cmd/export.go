package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"devdiary/internal/atomicio"
	"devdiary/internal/export"
)

var (
	exportSessions []string
	exportFrom     string
	exportTo       string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringArrayVar(&exportSessions, "session", nil, "session to export (repeatable; default: all)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "inclusive range start (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "inclusive range end (YYYY-MM-DD)")
}

var exportCmd = &cobra.Command{
	Use:   "export <path.json>",
	Short: "Export evidence and summaries as a JSON archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ids := exportSessions
		if len(ids) == 0 {
			sessions, err := st.ListSessions()
			if err != nil {
				return err
			}
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
		}

		archive, err := export.Build(ctx, st, ids, exportFrom, exportTo)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := archive.WriteTo(&buf); err != nil {
			return err
		}
		if _, err := (atomicio.Writer{}).Write(ctx, args[0], buf.Bytes()); err != nil {
			return err
		}

		fmt.Printf("Exported %d sessions, %d commits, %d days, %d summaries to %s\n",
			len(archive.Sessions), len(archive.Commits), len(archive.Days), len(archive.Summaries), args[0])
		return nil
	},
}
