package diary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"devdiary/internal/atomicio"
	"devdiary/internal/guard"
	"devdiary/internal/store"
)

// DiffReport classifies every entry key before and after a merge. Extra
// entries are present in the document but not in the ideal set; they are
// reported and never touched. OutOfOrder lists day sections and entries
// that sit outside the document's total order; they are reported and never
// moved.
type DiffReport struct {
	New        int
	Updated    int
	Unchanged  int
	Extra      int
	ExtraKeys  []EntryKey
	OutOfOrder []string
}

type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Canceled  Outcome = "canceled"
	Failed    Outcome = "failed"
)

type SyncResult struct {
	Outcome Outcome
	Diff    DiffReport
	Path    string
	Backup  string
}

// Synchronizer keeps a managed document eventually consistent with stored
// evidence while preserving every byte outside the marked regions.
type Synchronizer struct {
	store       *store.Store
	guards      *guard.Guards
	writer      atomicio.Writer
	log         zerolog.Logger
	placeholder string
	now         func() time.Time
}

func NewSynchronizer(st *store.Store, guards *guard.Guards, log zerolog.Logger, placeholder string) *Synchronizer {
	return &Synchronizer{
		store:       st,
		guards:      guards,
		log:         log,
		placeholder: placeholder,
		now:         time.Now,
	}
}

// Sync merges current evidence into the managed document at path and
// atomically replaces it. An unmanaged or structurally unreadable document
// is refused outright rather than risk corrupting it.
func (s *Synchronizer) Sync(ctx context.Context, path string) (*SyncResult, error) {
	res := &SyncResult{Path: path}

	start := s.now().UTC()
	content, err := os.ReadFile(path)
	if err != nil {
		res.Outcome = Failed
		return res, fmt.Errorf("read document: %w", err)
	}
	doc, err := Parse(string(content))
	if err != nil {
		res.Outcome = Failed
		return res, refuse(path, err)
	}

	release, err := s.guards.TryAcquireAll(doc.Manifest.Sessions)
	if err != nil {
		res.Outcome = Failed
		return res, err
	}
	defer release()

	report, err := s.apply(ctx, doc, start)
	if err != nil {
		res.Outcome = outcomeOf(err)
		return res, err
	}
	res.Diff = *report

	backup, err := s.writer.Write(ctx, path, []byte(doc.Serialize()))
	res.Backup = backup
	if err != nil {
		res.Outcome = outcomeOf(err)
		return res, err
	}

	res.Outcome = Succeeded
	if len(report.OutOfOrder) > 0 {
		s.log.Warn().
			Str("path", path).
			Strs("out_of_order", report.OutOfOrder).
			Msg("document sections are out of order; left as found")
	}
	s.log.Info().
		Str("path", path).
		Int("new", report.New).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("extra", report.Extra).
		Msg("diary synchronized")
	return res, nil
}

// Preview computes the diff report without writing anything.
func (s *Synchronizer) Preview(ctx context.Context, path string) (*DiffReport, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := Parse(string(content))
	if err != nil {
		return nil, refuse(path, err)
	}
	ideal, sessions, err := s.ideal(ctx, doc.Manifest)
	if err != nil {
		return nil, err
	}
	report := classify(doc, ideal)
	report.OutOfOrder = validateOrder(doc, sessions)
	return &report, nil
}

// Create writes a brand-new managed document containing the full ideal set.
// It refuses to overwrite an existing file.
func (s *Synchronizer) Create(ctx context.Context, path, kind string, sessionIDs []string, opts Options) (*SyncResult, error) {
	res := &SyncResult{Path: path}
	if _, err := os.Stat(path); err == nil {
		res.Outcome = Failed
		return res, fmt.Errorf("%s already exists; use sync", path)
	}
	doc, err := s.freshDocument(ctx, kind, sessionIDs, opts, "")
	if err != nil {
		res.Outcome = Failed
		return res, err
	}
	return s.commitNew(ctx, res, doc)
}

// Convert produces a brand-new managed document at dst from the unmanaged
// text at src, carrying the original content verbatim as a preamble. The
// original file is never touched.
func (s *Synchronizer) Convert(ctx context.Context, src, dst, kind string, sessionIDs []string, opts Options) (*SyncResult, error) {
	res := &SyncResult{Path: dst}
	if src == dst {
		res.Outcome = Failed
		return res, errors.New("convert target must differ from the source")
	}
	if _, err := os.Stat(dst); err == nil {
		res.Outcome = Failed
		return res, fmt.Errorf("%s already exists", dst)
	}
	original, err := os.ReadFile(src)
	if err != nil {
		res.Outcome = Failed
		return res, fmt.Errorf("read source: %w", err)
	}
	if _, err := Parse(string(original)); err == nil {
		res.Outcome = Failed
		return res, fmt.Errorf("%s is already managed; use sync", src)
	}

	preamble := string(original)
	if preamble != "" && !strings.HasSuffix(preamble, "\n") {
		preamble += "\n"
	}
	doc, err := s.freshDocument(ctx, kind, sessionIDs, opts, preamble)
	if err != nil {
		res.Outcome = Failed
		return res, err
	}
	return s.commitNew(ctx, res, doc)
}

// Stale reports whether any bound session has a summary newer than the
// manifest's last-synced timestamp. Only the first line is read.
func (s *Synchronizer) Stale(ctx context.Context, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("read document: %w", err)
	}
	defer f.Close()

	line, err := firstLine(f)
	if err != nil {
		return false, fmt.Errorf("read document: %w", err)
	}
	manifest, err := ParseManifest(line)
	if err != nil {
		return false, refuse(path, err)
	}
	newest, ok, err := s.store.MaxSummaryCreatedAt(ctx, manifest.Sessions)
	if err != nil {
		return false, err
	}
	return ok && newest.After(manifest.Synced), nil
}

func (s *Synchronizer) freshDocument(ctx context.Context, kind string, sessionIDs []string, opts Options, preamble string) (*Document, error) {
	if len(sessionIDs) == 0 {
		return nil, errors.New("no sessions given")
	}
	if kind == "" {
		kind = KindMulti
		if len(sessionIDs) == 1 {
			kind = KindSingle
		}
	}
	if kind == KindSingle && len(sessionIDs) != 1 {
		return nil, fmt.Errorf("single-session document cannot bind %d sessions", len(sessionIDs))
	}
	sessions, err := s.store.SessionsByID(sessionIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range sessionIDs {
		if _, ok := sessions[id]; !ok {
			return nil, fmt.Errorf("unknown session %s", id)
		}
	}

	doc := &Document{Manifest: NewManifest(kind, sessionIDs, opts, s.now())}
	if preamble != "" {
		doc.Blocks = append(doc.Blocks, Raw{Text: preamble + "\n"})
	} else {
		doc.Blocks = append(doc.Blocks, Raw{Text: "\n# Development diary\n\n"})
	}
	return doc, nil
}

func (s *Synchronizer) commitNew(ctx context.Context, res *SyncResult, doc *Document) (*SyncResult, error) {
	release, err := s.guards.TryAcquireAll(doc.Manifest.Sessions)
	if err != nil {
		res.Outcome = Failed
		return res, err
	}
	defer release()

	report, err := s.apply(ctx, doc, doc.Manifest.Created)
	if err != nil {
		res.Outcome = outcomeOf(err)
		return res, err
	}
	res.Diff = *report

	backup, err := s.writer.Write(ctx, res.Path, []byte(doc.Serialize()))
	res.Backup = backup
	if err != nil {
		res.Outcome = outcomeOf(err)
		return res, err
	}
	res.Outcome = Succeeded
	return res, nil
}

// apply computes the ideal set, merges it into the document, and stamps the
// manifest with the synchronization start time.
func (s *Synchronizer) apply(ctx context.Context, doc *Document, start time.Time) (*DiffReport, error) {
	ideal, sessions, err := s.ideal(ctx, doc.Manifest)
	if err != nil {
		return nil, err
	}
	report, err := merge(ctx, doc, ideal, sessions)
	if err != nil {
		return nil, err
	}
	doc.Manifest.Synced = start.UTC()
	return &report, nil
}

func (s *Synchronizer) ideal(ctx context.Context, manifest Manifest) ([]IdealEntry, map[string]store.Session, error) {
	sessions, err := s.store.SessionsByID(manifest.Sessions)
	if err != nil {
		return nil, nil, err
	}
	days, err := s.store.DaysInRange(ctx, manifest.Sessions, "", "")
	if err != nil {
		return nil, nil, err
	}
	latest, err := s.store.LatestSummaries(ctx, manifest.Sessions)
	if err != nil {
		return nil, nil, err
	}
	return BuildIdeal(sessions, days, latest, manifest.Options, s.placeholder), sessions, nil
}

// classify compares the ideal set against the document's marked entries.
func classify(doc *Document, ideal []IdealEntry) DiffReport {
	var report DiffReport
	existing := make(map[EntryKey]*Entry)
	for _, e := range doc.Entries() {
		existing[EntryKey{Date: e.Date, SessionID: e.SessionID}] = e
	}

	idealKeys := make(map[EntryKey]bool, len(ideal))
	for _, ie := range ideal {
		idealKeys[ie.Key()] = true
		e, ok := existing[ie.Key()]
		switch {
		case !ok:
			report.New++
		case e.SummaryAt != ie.SummaryAt:
			report.Updated++
		default:
			report.Unchanged++
		}
	}
	for _, e := range doc.Entries() {
		key := EntryKey{Date: e.Date, SessionID: e.SessionID}
		if !idealKeys[key] {
			report.Extra++
			report.ExtraKeys = append(report.ExtraKeys, key)
		}
	}
	return report
}

// merge applies the ideal set to the parsed tree. Updated entries have only
// their body and recorded summary timestamp replaced; new entries and day
// sections are inserted at the position the total order implies; everything
// else is left alone. Cancellation is observed between day sections.
func merge(ctx context.Context, doc *Document, ideal []IdealEntry, sessions map[string]store.Session) (DiffReport, error) {
	report := classify(doc, ideal)
	report.OutOfOrder = validateOrder(doc, sessions)

	existing := make(map[EntryKey]*Entry)
	for _, e := range doc.Entries() {
		existing[EntryKey{Date: e.Date, SessionID: e.SessionID}] = e
	}

	prevDate := ""
	for _, ie := range ideal {
		if ie.Date != prevDate {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			prevDate = ie.Date
		}

		if e, ok := existing[ie.Key()]; ok {
			if e.SummaryAt != ie.SummaryAt {
				e.SummaryAt = ie.SummaryAt
				e.Body = ie.Body
				e.OpenLine = entryOpenLine(e.Date, e.SessionID, e.SummaryAt)
			}
			continue
		}

		day := findDay(doc, ie.Date)
		if day == nil {
			day = insertDaySection(doc, ie.Date)
		}
		entry := &Entry{
			Date:      ie.Date,
			SessionID: ie.SessionID,
			SummaryAt: ie.SummaryAt,
			OpenLine:  entryOpenLine(ie.Date, ie.SessionID, ie.SummaryAt),
			Body:      ie.Body,
			CloseLine: entryCloseLine,
		}
		insertEntry(day, entry, sessions)
		existing[ie.Key()] = entry
	}
	return report, nil
}

// validateOrder checks the document's existing day sections and entries
// against the total order. Violations come from hand reordering; they are
// surfaced so the caller can warn, but the sections are left where the user
// put them.
func validateOrder(doc *Document, sessions map[string]store.Session) []string {
	var out []string
	prevDate := ""
	for _, day := range doc.Days() {
		if prevDate != "" && day.Date < prevDate {
			out = append(out, fmt.Sprintf("day %s appears after %s", day.Date, prevDate))
		}
		prevDate = day.Date

		havePrev := false
		var prevKey orderKey
		var prevID string
		for _, b := range day.Body {
			e, ok := b.(*Entry)
			if !ok {
				continue
			}
			key := sessionOrderKey(sessions, e.SessionID)
			if havePrev && key.less(prevKey) {
				out = append(out, fmt.Sprintf("entry %s session=%s appears after session=%s", e.Date, e.SessionID, prevID))
			}
			havePrev = true
			prevKey = key
			prevID = e.SessionID
		}
	}
	return out
}

func findDay(doc *Document, date string) *DaySection {
	for _, b := range doc.Blocks {
		if day, ok := b.(*DaySection); ok && day.Date == date {
			return day
		}
	}
	return nil
}

// insertDaySection creates an empty day section at the chronologically
// correct position among the existing ones.
func insertDaySection(doc *Document, date string) *DaySection {
	day := &DaySection{
		Date:      date,
		OpenLine:  dayOpenLine(date),
		Body:      []Block{Raw{Text: "\n## " + date + "\n\n"}},
		CloseLine: dayCloseLine,
	}

	at := len(doc.Blocks)
	for i, b := range doc.Blocks {
		if existing, ok := b.(*DaySection); ok && existing.Date > date {
			at = i
			break
		}
	}
	doc.Blocks = append(doc.Blocks[:at], append([]Block{day, Raw{Text: "\n"}}, doc.Blocks[at:]...)...)
	return day
}

// insertEntry places an entry at the position the in-day total order
// implies, between the correct neighboring entries.
func insertEntry(day *DaySection, entry *Entry, sessions map[string]store.Session) {
	key := sessionOrderKey(sessions, entry.SessionID)

	at := len(day.Body)
	for i, b := range day.Body {
		e, ok := b.(*Entry)
		if !ok {
			continue
		}
		if key.less(sessionOrderKey(sessions, e.SessionID)) {
			at = i
			break
		}
	}
	day.Body = append(day.Body[:at], append([]Block{entry, Raw{Text: "\n"}}, day.Body[at:]...)...)
}

// refuse downgrades any parse failure to the safe refuse-in-place outcome.
func refuse(path string, cause error) error {
	return fmt.Errorf("%s: %w: %v", path, ErrUnmanagedDocument, cause)
}

func outcomeOf(err error) Outcome {
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	return Failed
}

func firstLine(f *os.File) (string, error) {
	buf := make([]byte, 64*1024)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return "", err
	}
	s := string(buf[:n])
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s, nil
}
