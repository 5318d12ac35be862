package store

import (
	"sort"

	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/normalize"
)

// Entry is everything known about one normalized ingredient key.
// Record is nil until a full record has been resolved; Assessments is nil
// until at least one concern has been assessed.
type Entry struct {
	Record      *model.IngredientRecord
	Assessments map[model.Concern]model.ConcernAssessment
}

func (e Entry) clone() Entry {
	var out Entry
	if e.Record != nil {
		r := e.Record.Clone()
		out.Record = &r
	}
	if e.Assessments != nil {
		out.Assessments = make(map[model.Concern]model.ConcernAssessment, len(e.Assessments))
		for c, a := range e.Assessments {
			out.Assessments[c] = a
		}
	}
	return out
}

// Snapshot is the unified in-memory dataset shared by every backend.
// Every key passed in is normalized, so duplicate raw spellings always
// land on the same entry.
type Snapshot struct {
	entries map[string]Entry
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[string]Entry)}
}

// Len returns the number of distinct ingredient keys.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Keys returns all normalized keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a deep copy of the entry for rawKey.
func (s *Snapshot) Get(rawKey string) (Entry, bool) {
	e, ok := s.entries[normalize.Key(rawKey)]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// SetRecord stores rec under rawKey unless the entry already has a record.
// Concern notes and assessments on rec are not stored. Returns false when an
// existing record was kept.
func (s *Snapshot) SetRecord(rawKey string, rec model.IngredientRecord) bool {
	key := normalize.Key(rawKey)
	if key == "" {
		return false
	}
	e := s.entries[key]
	if e.Record != nil {
		return false
	}
	stored := rec.Clone()
	stored.ConcernNote = nil
	stored.Assessments = nil
	e.Record = &stored
	s.entries[key] = e
	return true
}

// SetAssessment stores a under (rawKey, concern) unless one already exists.
// Returns false when an existing assessment was kept.
func (s *Snapshot) SetAssessment(rawKey string, concern model.Concern, a model.ConcernAssessment) bool {
	key := normalize.Key(rawKey)
	if key == "" || concern == "" {
		return false
	}
	e := s.entries[key]
	if _, ok := e.Assessments[concern]; ok {
		return false
	}
	if e.Assessments == nil {
		e.Assessments = make(map[model.Concern]model.ConcernAssessment)
	}
	e.Assessments[concern] = a
	s.entries[key] = e
	return true
}

// removeRecord and removeAssessment roll back an in-memory change whose
// flush failed.
func (s *Snapshot) removeRecord(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.Record = nil
	s.put(key, e)
}

func (s *Snapshot) removeAssessment(key string, concern model.Concern) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(e.Assessments, concern)
	if len(e.Assessments) == 0 {
		e.Assessments = nil
	}
	s.put(key, e)
}

func (s *Snapshot) put(key string, e Entry) {
	if e.Record == nil && e.Assessments == nil {
		delete(s.entries, key)
		return
	}
	s.entries[key] = e
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{entries: make(map[string]Entry, len(s.entries))}
	for k, e := range s.entries {
		out.entries[k] = e.clone()
	}
	return out
}
