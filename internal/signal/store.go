package signal

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// DefaultLimit is the maximum number of records retained when no explicit
// bound is configured. Oldest records are evicted first.
const DefaultLimit = 500

type entry struct {
	rec Record
	seq uint64
}

// Store is an ordered, deduplicated collection of signal records. Records are
// keyed by server-assigned ID and kept in descending CreatedAt order (ties by
// descending ID). Every insert or update is stamped with a monotonically
// increasing local sequence number; Reconcile uses it to order push-delivered
// updates against full-refresh snapshots without trusting wall clocks.
//
// Store is not safe for concurrent use. The stream client owns one instance
// and mutates it from a single event loop.
type Store struct {
	limit     int
	seq       uint64
	byID      map[int64]*entry
	ordered   []*entry
	evictions uint64
}

// NewStore creates a store bounded to limit records; limit <= 0 selects
// DefaultLimit.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit: limit,
		byID:  make(map[int64]*entry),
	}
}

// Seq returns the sequence number of the most recent mutation. Callers
// capture it before issuing a refresh fetch and hand it back to Reconcile.
func (s *Store) Seq() uint64 { return s.seq }

// Len returns the number of records currently held.
func (s *Store) Len() int { return len(s.ordered) }

// Evictions returns the total number of records dropped by the retention
// bound since the store was created.
func (s *Store) Evictions() uint64 { return s.evictions }

// Apply inserts or updates a record by ID. A later observation of the same ID
// replaces the payload in place (last write wins by arrival order). Returns
// true if the record was newly inserted.
func (s *Store) Apply(rec Record) bool {
	rec.normalize()
	s.seq++

	if e, ok := s.byID[rec.ID]; ok {
		resort := !e.rec.CreatedAt.Equal(rec.CreatedAt)
		e.rec = rec
		e.seq = s.seq
		if resort {
			s.sortEntries()
		}
		return false
	}

	e := &entry{rec: rec, seq: s.seq}
	s.byID[rec.ID] = e
	s.insertSorted(e)
	s.enforceLimit()
	return true
}

// Reconcile merges a full-refresh snapshot fetched from the backend.
// issuedSeq is the store sequence captured when the fetch was issued. For any
// ID present in both, the store copy wins if it was touched after the fetch
// went out (seq > issuedSeq); otherwise the snapshot copy wins. Records absent
// from the snapshot are removed unless they arrived after the fetch was
// issued — the snapshot is stale with respect to those by construction.
func (s *Store) Reconcile(snapshot []Record, issuedSeq uint64) {
	inSnapshot := make(map[int64]struct{}, len(snapshot))
	for _, rec := range snapshot {
		inSnapshot[rec.ID] = struct{}{}
		if e, ok := s.byID[rec.ID]; ok && e.seq > issuedSeq {
			continue
		}
		s.Apply(rec)
	}

	removed := 0
	for id, e := range s.byID {
		if _, ok := inSnapshot[id]; ok {
			continue
		}
		if e.seq > issuedSeq {
			continue
		}
		s.remove(id)
		removed++
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("reconcile dropped stale records")
	}
}

// Snapshot returns an ordered copy of all records. The result is detached
// from the store; callers may not mutate store state through it.
func (s *Store) Snapshot() []Record {
	out := make([]Record, len(s.ordered))
	for i, e := range s.ordered {
		out[i] = e.rec
	}
	return out
}

func (s *Store) insertSorted(e *entry) {
	i := sort.Search(len(s.ordered), func(i int) bool {
		return e.rec.before(s.ordered[i].rec)
	})
	s.ordered = append(s.ordered, nil)
	copy(s.ordered[i+1:], s.ordered[i:])
	s.ordered[i] = e
}

func (s *Store) sortEntries() {
	sort.SliceStable(s.ordered, func(i, j int) bool {
		return s.ordered[i].rec.before(s.ordered[j].rec)
	})
}

func (s *Store) enforceLimit() {
	for len(s.ordered) > s.limit {
		oldest := s.ordered[len(s.ordered)-1]
		s.ordered = s.ordered[:len(s.ordered)-1]
		delete(s.byID, oldest.rec.ID)
		s.evictions++
		log.Debug().Int64("id", oldest.rec.ID).Msg("evicted oldest signal")
	}
}

func (s *Store) remove(id int64) {
	e, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	for i, cur := range s.ordered {
		if cur == e {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}
}
