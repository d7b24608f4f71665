package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"devdiary/internal/scope"
	"devdiary/internal/store"
)

var (
	sessRepo    string
	sessName    string
	sessAuthors []string
	sessMerges  bool
	sessFrom    string
	sessTo      string
	sessRefs    string
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionAddCmd)
	sessionCmd.AddCommand(sessionListCmd)

	sessionAddCmd.Flags().StringVar(&sessRepo, "repo", "", "repository path (default: current directory)")
	sessionAddCmd.Flags().StringVar(&sessName, "name", "", "display name for the session")
	sessionAddCmd.Flags().StringArrayVar(&sessAuthors, "author", nil, "author name or email filter (repeatable, OR-matched)")
	sessionAddCmd.Flags().BoolVar(&sessMerges, "merges", false, "include merge commits")
	sessionAddCmd.Flags().StringVar(&sessFrom, "from", "", "inclusive range start (YYYY-MM-DD)")
	sessionAddCmd.Flags().StringVar(&sessTo, "to", "", "inclusive range end (YYYY-MM-DD)")
	sessionAddCmd.Flags().StringVar(&sessRefs, "refs", "local", "ref visibility: local, remotes, or all")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage mining sessions",
}

var sessionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a mining session for a repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		repo := sessRepo
		if repo == "" {
			repo, _ = os.Getwd()
		}
		repo, err = filepath.Abs(repo)
		if err != nil {
			return err
		}

		sess := store.Session{
			RepoPath:      repo,
			Name:          sessName,
			Authors:       sessAuthors,
			IncludeMerges: sessMerges,
			RangeStart:    sessFrom,
			RangeEnd:      sessTo,
			RefMode:       store.RefMode(sessRefs),
		}
		// Reject bad scope before anything is stored.
		if _, err := scope.Resolve(sess, loc); err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := st.CreateSession(sess)
		if err != nil {
			return err
		}
		fmt.Printf("Session %s created for %s\n", created.ID, repo)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mining sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions yet; run 'devdiary session add' first")
			return nil
		}

		fmt.Printf("%-38s %-16s %-10s %s\n", "ID", "NAME", "REFS", "REPO")
		fmt.Println("─────────────────────────────────────────────────────────────────────────")
		for _, s := range sessions {
			rng := ""
			if s.RangeStart != "" || s.RangeEnd != "" {
				rng = fmt.Sprintf(" [%s..%s]", s.RangeStart, s.RangeEnd)
			}
			authors := ""
			if len(s.Authors) > 0 {
				authors = " authors=" + strings.Join(s.Authors, ",")
			}
			fmt.Printf("%-38s %-16s %-10s %s%s%s\n", s.ID, s.Name, s.RefMode, s.RepoPath, rng, authors)
		}
		return nil
	},
}
