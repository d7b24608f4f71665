package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"devdiary/internal/store"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the evidence store in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}

		dbFile := filepath.Join(dir, ".devdiary", "evidence.db")
		if _, err := os.Stat(dbFile); err == nil {
			fmt.Println("Already initialized: .devdiary/evidence.db exists")
			return nil
		}

		st, err := store.New(dir)
		if err != nil {
			return fmt.Errorf("init failed: %w", err)
		}
		st.Close()

		fmt.Printf("Initialized devdiary in %s\n", dir)
		fmt.Println("Evidence database created at .devdiary/evidence.db")
		return nil
	},
}
