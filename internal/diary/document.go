package diary

import (
	"fmt"
	"strings"
	"time"
)

const (
	dayOpenPrefix   = "<!-- devdiary:day "
	dayCloseLine    = "<!-- /devdiary:day -->"
	entryOpenPrefix = "<!-- devdiary:entry "
	entryCloseLine  = "<!-- /devdiary:entry -->"
	markerSuffix    = " -->"

	dateLayout = "2006-01-02"
)

// Document is the parsed tree of a managed document. Everything outside
// marker lines is held verbatim in Raw blocks so serialization reproduces
// untouched regions byte for byte.
type Document struct {
	Manifest Manifest
	Blocks   []Block
}

type Block interface{ block() }

// Raw is a run of bytes the synchronizer never interprets or edits.
type Raw struct {
	Text string
}

// DaySection is one marker-delimited day: its heading and any prose live in
// Raw children between the entries.
type DaySection struct {
	Date      string
	OpenLine  string
	Body      []Block
	CloseLine string
}

// Entry is one (day, session) unit. SummaryAt is the summary creation
// timestamp the body reflects, or the NoSummary sentinel.
type Entry struct {
	Date      string
	SessionID string
	SummaryAt string
	OpenLine  string
	Body      string
	CloseLine string
}

func (Raw) block()         {}
func (*DaySection) block() {}
func (*Entry) block()      {}

// EntryKey addresses an entry inside a document.
type EntryKey struct {
	Date      string
	SessionID string
}

func dayOpenLine(date string) string {
	return dayOpenPrefix + date + markerSuffix
}

func entryOpenLine(date, sessionID, summaryAt string) string {
	return entryOpenPrefix + date + " session=" + sessionID + " summary=" + summaryAt + markerSuffix
}

// Parse reads a full document. The first line must be a manifest; otherwise
// the document is unmanaged and ErrNoManifest (or ErrMalformedManifest) is
// returned. Structurally invalid markers fail with ErrMalformedMarker; no
// partial repair is attempted.
func Parse(content string) (*Document, error) {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil, ErrNoManifest
	}
	manifest, err := ParseManifest(lines[0])
	if err != nil {
		return nil, err
	}

	doc := &Document{Manifest: manifest}
	seenDays := make(map[string]bool)
	seenEntries := make(map[EntryKey]bool)

	var raw strings.Builder
	var curDay *DaySection
	var curEntry *Entry

	flushRaw := func() {
		if raw.Len() == 0 {
			return
		}
		if curDay != nil {
			curDay.Body = append(curDay.Body, Raw{Text: raw.String()})
		} else {
			doc.Blocks = append(doc.Blocks, Raw{Text: raw.String()})
		}
		raw.Reset()
	}

	for i, line := range lines[1:] {
		lineNo := i + 2
		trimmed := strings.TrimRight(line, "\r\n")
		if !isMarkerLine(trimmed) {
			if curEntry != nil {
				curEntry.Body += line
			} else {
				raw.WriteString(line)
			}
			continue
		}

		m, err := parseMarker(trimmed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch {
		case m.kind == "day" && !m.closing:
			if curDay != nil {
				return nil, fmt.Errorf("line %d: %w: day section inside day section", lineNo, ErrMalformedMarker)
			}
			if seenDays[m.date] {
				return nil, fmt.Errorf("line %d: %w: duplicate day section %s", lineNo, ErrMalformedMarker, m.date)
			}
			seenDays[m.date] = true
			flushRaw()
			curDay = &DaySection{Date: m.date, OpenLine: trimmed}

		case m.kind == "day" && m.closing:
			if curDay == nil || curEntry != nil {
				return nil, fmt.Errorf("line %d: %w: unexpected day close", lineNo, ErrMalformedMarker)
			}
			flushRaw()
			curDay.CloseLine = trimmed
			doc.Blocks = append(doc.Blocks, curDay)
			curDay = nil

		case m.kind == "entry" && !m.closing:
			if curDay == nil {
				return nil, fmt.Errorf("line %d: %w: entry outside day section", lineNo, ErrMalformedMarker)
			}
			if curEntry != nil {
				return nil, fmt.Errorf("line %d: %w: entry inside entry", lineNo, ErrMalformedMarker)
			}
			if m.date != curDay.Date {
				return nil, fmt.Errorf("line %d: %w: entry date %s inside day %s", lineNo, ErrMalformedMarker, m.date, curDay.Date)
			}
			key := EntryKey{Date: m.date, SessionID: m.sessionID}
			if seenEntries[key] {
				return nil, fmt.Errorf("line %d: %w: duplicate entry for session %s", lineNo, ErrMalformedMarker, m.sessionID)
			}
			seenEntries[key] = true
			flushRaw()
			curEntry = &Entry{Date: m.date, SessionID: m.sessionID, SummaryAt: m.summaryAt, OpenLine: trimmed}

		case m.kind == "entry" && m.closing:
			if curEntry == nil {
				return nil, fmt.Errorf("line %d: %w: unexpected entry close", lineNo, ErrMalformedMarker)
			}
			curEntry.CloseLine = trimmed
			curDay.Body = append(curDay.Body, curEntry)
			curEntry = nil
		}
	}

	if curEntry != nil {
		return nil, fmt.Errorf("%w: unterminated entry for %s", ErrMalformedMarker, curEntry.SessionID)
	}
	if curDay != nil {
		return nil, fmt.Errorf("%w: unterminated day section %s", ErrMalformedMarker, curDay.Date)
	}
	flushRaw()
	return doc, nil
}

// Serialize writes the document back out. Raw blocks and entry bodies are
// emitted verbatim; only marker lines are regenerated, and those are stored
// in canonical form, so untouched regions round-trip byte for byte.
func (d *Document) Serialize() string {
	var sb strings.Builder
	sb.WriteString(d.Manifest.Line())
	sb.WriteString("\n")
	for _, b := range d.Blocks {
		switch blk := b.(type) {
		case Raw:
			sb.WriteString(blk.Text)
		case *DaySection:
			sb.WriteString(blk.OpenLine)
			sb.WriteString("\n")
			for _, child := range blk.Body {
				switch c := child.(type) {
				case Raw:
					sb.WriteString(c.Text)
				case *Entry:
					sb.WriteString(c.OpenLine)
					sb.WriteString("\n")
					sb.WriteString(c.Body)
					sb.WriteString(c.CloseLine)
					sb.WriteString("\n")
				}
			}
			sb.WriteString(blk.CloseLine)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Entries walks the document's marked entries in file order.
func (d *Document) Entries() []*Entry {
	var entries []*Entry
	for _, b := range d.Blocks {
		day, ok := b.(*DaySection)
		if !ok {
			continue
		}
		for _, child := range day.Body {
			if e, ok := child.(*Entry); ok {
				entries = append(entries, e)
			}
		}
	}
	return entries
}

// Days returns the document's day sections in file order.
func (d *Document) Days() []*DaySection {
	var days []*DaySection
	for _, b := range d.Blocks {
		if day, ok := b.(*DaySection); ok {
			days = append(days, day)
		}
	}
	return days
}

type marker struct {
	kind      string // "day" or "entry"
	closing   bool
	date      string
	sessionID string
	summaryAt string
}

func isMarkerLine(line string) bool {
	return strings.HasPrefix(line, "<!-- devdiary:day") ||
		strings.HasPrefix(line, "<!-- /devdiary:day") ||
		strings.HasPrefix(line, "<!-- devdiary:entry") ||
		strings.HasPrefix(line, "<!-- /devdiary:entry")
}

func parseMarker(line string) (marker, error) {
	switch {
	case line == dayCloseLine:
		return marker{kind: "day", closing: true}, nil
	case line == entryCloseLine:
		return marker{kind: "entry", closing: true}, nil

	case strings.HasPrefix(line, dayOpenPrefix):
		if !strings.HasSuffix(line, markerSuffix) {
			return marker{}, fmt.Errorf("%w: unterminated day marker", ErrMalformedMarker)
		}
		date := line[len(dayOpenPrefix) : len(line)-len(markerSuffix)]
		if err := checkDate(date); err != nil {
			return marker{}, err
		}
		return marker{kind: "day", date: date}, nil

	case strings.HasPrefix(line, entryOpenPrefix):
		if !strings.HasSuffix(line, markerSuffix) {
			return marker{}, fmt.Errorf("%w: unterminated entry marker", ErrMalformedMarker)
		}
		attrs := strings.Fields(line[len(entryOpenPrefix) : len(line)-len(markerSuffix)])
		if len(attrs) != 3 ||
			!strings.HasPrefix(attrs[1], "session=") ||
			!strings.HasPrefix(attrs[2], "summary=") {
			return marker{}, fmt.Errorf("%w: bad entry attributes %q", ErrMalformedMarker, line)
		}
		m := marker{
			kind:      "entry",
			date:      attrs[0],
			sessionID: strings.TrimPrefix(attrs[1], "session="),
			summaryAt: strings.TrimPrefix(attrs[2], "summary="),
		}
		if err := checkDate(m.date); err != nil {
			return marker{}, err
		}
		if m.sessionID == "" {
			return marker{}, fmt.Errorf("%w: empty session id", ErrMalformedMarker)
		}
		if m.summaryAt != NoSummary {
			if _, err := time.Parse(time.RFC3339, m.summaryAt); err != nil {
				return marker{}, fmt.Errorf("%w: bad summary timestamp %q", ErrMalformedMarker, m.summaryAt)
			}
		}
		return m, nil
	}
	return marker{}, fmt.Errorf("%w: unrecognized marker %q", ErrMalformedMarker, line)
}

func checkDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("%w: bad date %q", ErrMalformedMarker, date)
	}
	return nil
}

// splitLines keeps each line's terminator attached so raw text round-trips
// exactly, including a missing final newline.
func splitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:idx+1])
		s = s[idx+1:]
	}
	return lines
}
