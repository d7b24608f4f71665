package store

import "time"

type DayStatus string

const (
	StatusMined      DayStatus = "mined"
	StatusSummarized DayStatus = "summarized"
	StatusApproved   DayStatus = "approved"
)

// statusRank orders the forward progression mined -> summarized -> approved.
func statusRank(s DayStatus) int {
	switch s {
	case StatusMined:
		return 0
	case StatusSummarized:
		return 1
	case StatusApproved:
		return 2
	}
	return -1
}

type RefMode string

const (
	RefsLocal   RefMode = "local"
	RefsRemotes RefMode = "remotes"
	RefsAll     RefMode = "all"
)

// Session is the immutable mining contract: which repository, whose commits,
// over what window. Repo path and author filters never change after creation.
type Session struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	RepoPath      string    `json:"repo_path"`
	Name          string    `json:"name"`
	Authors       []string  `json:"authors"`
	IncludeMerges bool      `json:"include_merges"`
	RangeStart    string    `json:"range_start,omitempty"` // YYYY-MM-DD, inclusive
	RangeEnd      string    `json:"range_end,omitempty"`   // YYYY-MM-DD, inclusive
	RefMode       RefMode   `json:"ref_mode"`
}

type FileChurn struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Commit is one enumerated revision. Unique per (session, hash); inserting
// the same identity twice is a no-op.
type Commit struct {
	SessionID   string      `json:"session_id"`
	Hash        string      `json:"hash"`
	AuthorName  string      `json:"author_name"`
	AuthorEmail string      `json:"author_email"`
	AuthoredAt  time.Time   `json:"authored_at"`
	Subject     string      `json:"subject"`
	Additions   int         `json:"additions"`
	Deletions   int         `json:"deletions"`
	IsMerge     bool        `json:"is_merge"`
	Files       []FileChurn `json:"files,omitempty"`
}

// Day aggregates the commits sharing one author-timestamp calendar date.
// Exactly one row per (session, date); always recomputed, never incremented.
type Day struct {
	SessionID   string    `json:"session_id"`
	Date        string    `json:"date"` // YYYY-MM-DD
	CommitCount int       `json:"commit_count"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
	Status      DayStatus `json:"status"`
}

// DaySummary is narrative text derived from a Day's evidence by the
// summarization collaborator. Keyed by (session, date, params version).
type DaySummary struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Date          string    `json:"date"`
	ParamsVersion int       `json:"params_version"`
	Body          string    `json:"body"`
	InputsHash    string    `json:"inputs_hash"`
	Truncated     bool      `json:"truncated"`
	CreatedAt     time.Time `json:"created_at"`
}

// DayKey addresses a Day or its latest summary across sessions.
type DayKey struct {
	SessionID string
	Date      string
}
