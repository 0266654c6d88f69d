package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

type TextKind string

const (
	TextTitle  TextKind = "title"
	TextAnswer TextKind = "answer"
)

// CorpusKey is a case-folded question title or answer text.
type CorpusKey struct {
	Kind TextKind
	Text string
}

// Corpus is the index of accepted question content per course.
type Corpus interface {
	// Lookup returns the first of keys already present for the course.
	Lookup(ctx context.Context, courseID int64, keys []CorpusKey) (CorpusKey, bool, error)
	// Add stores all keys or none. When one of them is already present it
	// returns a *ConflictError, which covers writers outside this process
	// that stored the key after Lookup missed it.
	Add(ctx context.Context, courseID int64, keys []CorpusKey) error
}

// ConflictError reports a key that another writer stored first.
type ConflictError struct {
	Key CorpusKey
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("corpus already holds %s %q", e.Key.Kind, e.Key.Text)
}

func foldText(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// corpusKeys returns the distinct keys of rec, title first.
func corpusKeys(rec QuestionRecord) []CorpusKey {
	keys := make([]CorpusKey, 0, 5)
	keys = append(keys, CorpusKey{Kind: TextTitle, Text: foldText(rec.Title)})
	add := func(s string) {
		k := foldText(s)
		if k == "" {
			return
		}
		key := CorpusKey{Kind: TextAnswer, Text: k}
		for _, seen := range keys {
			if seen == key {
				return
			}
		}
		keys = append(keys, key)
	}
	if rec.Kind == KindTrueFalse {
		add(rec.Statement)
		return keys
	}
	for _, a := range rec.Answers {
		add(a.Text)
	}
	return keys
}

// courseLocks hands out one mutex per course so that lookup and append of
// the same course never interleave.
type courseLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newCourseLocks() *courseLocks {
	return &courseLocks{locks: make(map[int64]*sync.Mutex)}
}

func (c *courseLocks) lock(courseID int64) func() {
	c.mu.Lock()
	l, ok := c.locks[courseID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[courseID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

type duplicateDetector struct {
	corpus Corpus
	locks  *courseLocks
}

// accept checks rec against the course corpus and, when nothing matches,
// adds its texts in the same critical section.
func (d duplicateDetector) accept(ctx context.Context, rec QuestionRecord) *rejection {
	keys := corpusKeys(rec)
	unlock := d.locks.lock(rec.CourseID)
	defer unlock()

	hit, found, err := d.corpus.Lookup(ctx, rec.CourseID, keys)
	if err != nil {
		return reject(CatCorpusUnavailable, "duplicate check failed: "+err.Error())
	}
	if found {
		return duplicateOf(hit)
	}
	if err := d.corpus.Add(ctx, rec.CourseID, keys); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return duplicateOf(conflict.Key)
		}
		return reject(CatCorpusUnavailable, "record corpus entry failed: "+err.Error())
	}
	return nil
}

func duplicateOf(k CorpusKey) *rejection {
	if k.Kind == TextTitle {
		return reject(CatDuplicateTitle, MsgTitleExists)
	}
	return reject(CatDuplicateAnswer, MsgAnswerExists)
}

// MemoryCorpus is an in-process Corpus.
type MemoryCorpus struct {
	mu      sync.RWMutex
	courses map[int64]map[CorpusKey]struct{}
}

func NewMemoryCorpus() *MemoryCorpus {
	return &MemoryCorpus{courses: make(map[int64]map[CorpusKey]struct{})}
}

func (m *MemoryCorpus) Lookup(_ context.Context, courseID int64, keys []CorpusKey) (CorpusKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.courses[courseID]
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return k, true, nil
		}
	}
	return CorpusKey{}, false, nil
}

func (m *MemoryCorpus) Add(_ context.Context, courseID int64, keys []CorpusKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.course(courseID)
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return &ConflictError{Key: k}
		}
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return nil
}

// Seed registers already accepted questions, e.g. when warming the index
// from persisted records. Keys shared between seeded records are fine.
func (m *MemoryCorpus) Seed(records ...QuestionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		set := m.course(rec.CourseID)
		for _, k := range corpusKeys(rec) {
			set[k] = struct{}{}
		}
	}
}

// course returns the key set of courseID; m.mu must be held for writing.
func (m *MemoryCorpus) course(courseID int64) map[CorpusKey]struct{} {
	set, ok := m.courses[courseID]
	if !ok {
		set = make(map[CorpusKey]struct{})
		m.courses[courseID] = set
	}
	return set
}
