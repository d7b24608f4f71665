// Package diary implements the managed-document format: a one-line manifest,
// a marker grammar of day sections and entries, and the structural merge
// that keeps a document consistent with stored evidence without touching any
// byte the markers do not own.
package diary

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	SchemaVersion = 1

	KindSingle = "single"
	KindMulti  = "multi"

	// PolicyLatest selects the newest summary by creation time. It is the
	// only policy today; the manifest records it so older binaries can
	// refuse documents written under a future one.
	PolicyLatest = "latest"

	// NoSummary is the sentinel summary timestamp for entries generated
	// before any summary existed.
	NoSummary = "none"
)

var (
	ErrNoManifest        = errors.New("document has no manifest")
	ErrMalformedManifest = errors.New("malformed manifest")
	ErrMalformedMarker   = errors.New("malformed marker")
	ErrUnmanagedDocument = errors.New("document is not managed; refusing to synchronize in place")
)

const (
	manifestPrefix = "<!-- devdiary:manifest "
	manifestSuffix = " -->"
)

// Options are the formatting choices recorded in the manifest.
type Options struct {
	HidePaths    bool   `json:"hide_paths"`
	Placeholders bool   `json:"placeholders"`
	Policy       string `json:"policy"`
}

// Manifest is the single structured record on a managed document's first
// line.
type Manifest struct {
	Schema   int       `json:"schema"`
	Kind     string    `json:"kind"`
	Sessions []string  `json:"sessions"`
	Options  Options   `json:"options"`
	Created  time.Time `json:"created"`
	Synced   time.Time `json:"synced"`
}

// ParseManifest parses a document's first line. A line that is not a
// manifest at all yields ErrNoManifest; a manifest that fails structural
// validation yields ErrMalformedManifest.
func ParseManifest(line string) (Manifest, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, manifestPrefix) {
		return Manifest{}, ErrNoManifest
	}
	if !strings.HasSuffix(line, manifestSuffix) {
		return Manifest{}, fmt.Errorf("%w: missing closing comment", ErrMalformedManifest)
	}
	payload := line[len(manifestPrefix) : len(line)-len(manifestSuffix)]

	var m Manifest
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if m.Schema != SchemaVersion {
		return Manifest{}, fmt.Errorf("%w: unsupported schema %d", ErrMalformedManifest, m.Schema)
	}
	if m.Kind != KindSingle && m.Kind != KindMulti {
		return Manifest{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedManifest, m.Kind)
	}
	if len(m.Sessions) == 0 {
		return Manifest{}, fmt.Errorf("%w: no bound sessions", ErrMalformedManifest)
	}
	if m.Options.Policy != PolicyLatest {
		return Manifest{}, fmt.Errorf("%w: unknown summary policy %q", ErrMalformedManifest, m.Options.Policy)
	}
	return m, nil
}

// Line serializes the manifest to its single-line form. Session ids are
// sorted so repeated serialization is deterministic.
func (m Manifest) Line() string {
	sort.Strings(m.Sessions)
	payload, err := json.Marshal(m)
	if err != nil {
		// Manifest fields are all marshalable types.
		panic(err)
	}
	return manifestPrefix + string(payload) + manifestSuffix
}

// NewManifest binds the given sessions with defaults for the current schema.
func NewManifest(kind string, sessionIDs []string, opts Options, now time.Time) Manifest {
	if opts.Policy == "" {
		opts.Policy = PolicyLatest
	}
	ids := append([]string(nil), sessionIDs...)
	sort.Strings(ids)
	return Manifest{
		Schema:   SchemaVersion,
		Kind:     kind,
		Sessions: ids,
		Options:  opts,
		Created:  now.UTC(),
		Synced:   now.UTC(),
	}
}
