package logstream

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agenttrust/agenttrust/internal/chain"
	"github.com/agenttrust/agenttrust/internal/store"
)

// entry is implemented by *Claim, *Execution, *Witness: the three concrete
// payload types a Stream[T] can hold. Unlike chain.Hashable this also
// exposes the setters Stream needs to fill in the header before hashing.
type entry interface {
	chain.Hashable
	setID(string)
	setTs(string)
	setV(int)
	setPrevHash(string)
	setHash(string)
}

func (e *Claim) setID(id string)           { e.ID = id }
func (e *Claim) setTs(ts string)           { e.Ts = ts }
func (e *Claim) setV(v int)                { e.V = v }
func (e *Claim) setPrevHash(h string)      { e.PrevHash = h }
func (e *Claim) setHash(h string)          { e.Hash = h }

func (e *Execution) setID(id string)      { e.ID = id }
func (e *Execution) setTs(ts string)      { e.Ts = ts }
func (e *Execution) setV(v int)           { e.V = v }
func (e *Execution) setPrevHash(h string) { e.PrevHash = h }
func (e *Execution) setHash(h string)     { e.Hash = h }

func (e *Witness) setID(id string)      { e.ID = id }
func (e *Witness) setTs(ts string)      { e.Ts = ts }
func (e *Witness) setV(v int)           { e.V = v }
func (e *Witness) setPrevHash(h string) { e.PrevHash = h }
func (e *Witness) setHash(h string)     { e.Hash = h }

// Stream is the generic typed layer over package store: it resolves
// prevHash from the last appended entry (recovered from disk at startup),
// assigns an id/timestamp, computes the hash, and appends the serialized
// line. T is one of *Claim, *Execution, *Witness.
//
// Caches mu + lastHash + store handle, generalized so claims/executions/
// witness share one implementation instead of three copy-pasted ones.
type Stream[T entry] struct {
	mu       sync.Mutex
	st       *store.Store
	idx      *store.Index
	kind     string
	lastHash string
	entropy  *ulid.MonotonicEntropySource
}

// Open creates a Stream rooted at dir for the given kind ("claims",
// "ledger", "witness"), recovering lastHash from the newest on-disk entry
// (or "" for a brand new stream — the canonical genesis prevHash). It also
// opens the SQLite query accelerator described in SPEC_FULL.md §C.7; a
// failure to open the index is logged and the stream still works, falling
// back to a full file scan for every Read (the index is an accelerator,
// never a source of truth).
func Open[T entry](dir, kind string) (*Stream[T], error) {
	st, err := store.New(dir, kind)
	if err != nil {
		return nil, err
	}

	s := &Stream[T]{st: st, kind: kind, entropy: ulid.Monotonic(rand.Reader, 0)}
	last, err := st.TailLast()
	if err != nil {
		return nil, fmt.Errorf("logstream: recovering %s tail: %w", kind, err)
	}
	if last != nil {
		var h struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(last, &h); err != nil {
			return nil, fmt.Errorf("logstream: recovering %s lastHash: %w", kind, err)
		}
		s.lastHash = h.Hash
	}

	idx, err := store.OpenIndex(filepath.Join(dir, kind+".index.db"))
	if err != nil {
		slog.Warn("logstream: index unavailable, Read will fall back to a full scan", "kind", kind, "error", err)
	} else {
		s.idx = idx
	}

	return s, nil
}

// Close releases the stream's SQLite index handle, if one was opened.
// The JSONL files themselves are never held open between calls, so there
// is nothing else to release.
func (s *Stream[T]) Close() error {
	if s.idx == nil {
		return nil
	}
	return s.idx.Close()
}

// tsLayout renders entry timestamps as RFC-3339 UTC with a fixed
// three-digit millisecond fraction.
const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// Append fills in e's header (id, v, ts, prevHash), computes its hash, and
// writes it to today's file. On success it updates the in-memory lastHash
// so the next Append links correctly without re-reading the file.
func (s *Stream[T]) Append(e T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return fmt.Errorf("logstream: generating id: %w", err)
	}
	e.setID(id.String())
	e.setTs(now.Format(tsLayout))
	e.setV(SchemaVersion)
	e.setPrevHash(s.lastHash)

	h, err := chain.HashEntry(e)
	if err != nil {
		return fmt.Errorf("logstream: hashing entry: %w", err)
	}
	e.setHash(h)

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("logstream: marshaling entry: %w", err)
	}
	if err := s.st.Append(now, line); err != nil {
		return err
	}
	s.lastHash = h

	if s.idx != nil {
		if err := s.idx.Upsert(toRow(e, string(line))); err != nil {
			slog.Warn("logstream: index upsert failed, append already committed to disk", "kind", s.kind, "id", entryID(e), "error", err)
		}
	}

	return nil
}

// toRow flattens e into the index's queryable projection, original
// SPEC_FULL.md §C.7.
func toRow(e entry, raw string) store.Row {
	row := store.Row{Raw: raw}
	switch v := any(e).(type) {
	case *Claim:
		row.ID, row.Ts = v.ID, v.Ts
		row.Agent, row.Session = v.Agent, v.Session
		row.ActionType = v.Intent.PlannedAction
		row.Risk = v.Intent.SelfAssessedRisk
	case *Execution:
		row.ID, row.Ts = v.ID, v.Ts
		row.Agent, row.Session = v.Agent, v.Session
		row.ActionType = v.Action.Type
		row.Risk = v.Risk.Score
	case *Witness:
		row.ID, row.Ts = v.ID, v.Ts
		row.Source = v.Source
	}
	return row
}

// LastHash returns the hash of the most recently appended entry, or "" for
// an empty stream.
func (s *Stream[T]) LastHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// Files returns the stream's on-disk files in chronological order.
func (s *Stream[T]) Files() ([]string, error) {
	return s.st.ListFiles()
}

// ReadAll decodes every entry across every file, in chronological order,
// silently skipping any line that fails to unmarshal into T. Used by read
// paths that don't need integrity classification (correlators,
// classifiers); the CLI `verify` and `score` commands run VerifyStream
// when they need that detail.
func (s *Stream[T]) ReadAll() ([]T, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}

	var out []T
	for _, f := range files {
		raws, err := s.st.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, raw := range raws {
			var zero T
			v, err := decodeEntry[T](raw, zero)
			if err != nil {
				continue
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// Filter is the AND-composed predicate set original §4.D names: time
// range, agent, session, action type, risk threshold, labels. Every
// non-zero field narrows the result; fields that don't apply to a given
// stream kind (e.g. ActionType against a Witness) are simply ignored for
// that kind rather than erroring.
type Filter struct {
	Since      *time.Time
	Until      *time.Time
	Agent      string
	Session    string
	ActionType string
	MinRisk    int
	Labels     []string
}

// Read prunes files by Since/Until at the filename level (cheap — no read
// required), then loads each surviving file and applies the in-memory
// predicates, original §4.D "prune files by date range (if given), load
// each, apply in-memory predicates... Order: file-order -> global time
// order" (file order already is chronological per store.ListFiles).
func (s *Stream[T]) Read(filter Filter) ([]T, error) {
	if s.idx != nil && indexCanAccelerate(filter) {
		if out, ok := s.readFromIndex(filter); ok {
			return out, nil
		}
	}
	return s.readFromFiles(filter)
}

// indexCanAccelerate reports whether filter has at least one predicate the
// index can push into SQL (agent, session, action type, time range) —
// worth the round trip even though the result is still re-checked against
// every in-memory predicate below.
func indexCanAccelerate(filter Filter) bool {
	return filter.Agent != "" || filter.Session != "" || filter.ActionType != "" || filter.Since != nil || filter.Until != nil
}

// readFromIndex answers Read via the SQLite projection. ok is false on any
// index error, telling the caller to fall back to the authoritative file
// scan instead of returning a possibly-stale or partial result.
func (s *Stream[T]) readFromIndex(filter Filter) (out []T, ok bool) {
	q := store.IndexQuery{Agent: filter.Agent, Session: filter.Session, ActionType: filter.ActionType}
	var zero T
	if _, isWitness := any(zero).(*Witness); isWitness {
		// Witness rows carry no agent/session/action type; these fields
		// don't apply to the witness kind and are ignored, as in the file scan.
		q.Agent, q.Session, q.ActionType = "", "", ""
	}
	if filter.Since != nil {
		q.Since = filter.Since.UTC().Format(tsLayout)
	}
	if filter.Until != nil {
		q.Until = filter.Until.UTC().Format(tsLayout)
	}

	raws, err := s.idx.Query(q)
	if err != nil {
		slog.Warn("logstream: index query failed, falling back to a full scan", "kind", s.kind, "error", err)
		return nil, false
	}

	for _, raw := range raws {
		var zero T
		v, err := decodeEntry[T](json.RawMessage(raw), zero)
		if err != nil {
			slog.Warn("logstream: index held an undecodable row, falling back to a full scan", "kind", s.kind, "error", err)
			return nil, false
		}
		if matchesFilter(v, filter) {
			out = append(out, v)
		}
	}
	return out, true
}

func (s *Stream[T]) readFromFiles(filter Filter) ([]T, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}

	var out []T
	for _, f := range files {
		if !fileInRange(f, filter.Since, filter.Until) {
			continue
		}
		raws, err := s.st.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, raw := range raws {
			var zero T
			v, err := decodeEntry[T](raw, zero)
			if err != nil {
				continue
			}
			if !matchesFilter(v, filter) {
				continue
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// fileInRange reports whether a day-partitioned file's date could contain
// entries in [since, until]. A file whose name doesn't parse as a date is
// never pruned (conservative: read it and let in-memory filtering decide).
func fileInRange(path string, since, until *time.Time) bool {
	base := filepath.Base(path)
	datePart, _, ok := strings.Cut(base, ".")
	if !ok {
		return true
	}
	day, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return true
	}
	if since != nil && day.Before(truncateDay(*since)) {
		return false
	}
	if until != nil && day.After(*until) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// matchesFilter applies every non-zero Filter field that is meaningful
// for v's concrete kind, AND-composed.
func matchesFilter[T entry](v T, filter Filter) bool {
	var ts time.Time

	switch e := any(v).(type) {
	case *Claim:
		t, _ := e.Timestamp()
		ts = t
		if filter.Agent != "" && e.Agent != filter.Agent {
			return false
		}
		if filter.Session != "" && e.Session != filter.Session {
			return false
		}
		if filter.ActionType != "" && e.Intent.PlannedAction != filter.ActionType {
			return false
		}
		if filter.MinRisk > 0 && e.Intent.SelfAssessedRisk < filter.MinRisk {
			return false
		}
	case *Execution:
		t, _ := e.Timestamp()
		ts = t
		if filter.Agent != "" && e.Agent != filter.Agent {
			return false
		}
		if filter.Session != "" && e.Session != filter.Session {
			return false
		}
		if filter.ActionType != "" && e.Action.Type != filter.ActionType {
			return false
		}
		if filter.MinRisk > 0 && e.Risk.Score < filter.MinRisk {
			return false
		}
		if len(filter.Labels) > 0 && !hasAnyLabel(e.Risk.Labels, filter.Labels) {
			return false
		}
	case *Witness:
		t, _ := e.Timestamp()
		ts = t
	}

	if filter.Since != nil && ts.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && ts.After(*filter.Until) {
		return false
	}
	return true
}

func hasAnyLabel(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func decodeEntry[T entry](raw json.RawMessage, zero T) (T, error) {
	v, err := newEntry(zero)
	if err != nil {
		return zero, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return zero, err
	}
	return v, nil
}

// newEntry allocates a fresh *Claim/*Execution/*Witness to unmarshal into,
// since the zero value of T is a nil pointer.
func newEntry[T entry](zero T) (T, error) {
	switch any(zero).(type) {
	case *Claim:
		return any(&Claim{}).(T), nil
	case *Execution:
		return any(&Execution{}).(T), nil
	case *Witness:
		return any(&Witness{}).(T), nil
	default:
		var z T
		return z, fmt.Errorf("logstream: unsupported entry type %T", zero)
	}
}
