// Package store holds the latest aggregated articles per category.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/deusflow/topicnews/internal/article"
)

// Section is one category's committed slice together with the logical
// timestamp of the refresh that produced it.
type Section struct {
	Articles   []article.Article `json:"articles"`
	Generation uint64            `json:"generation"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Snapshot is a point-in-time copy of every section.
type Snapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Sections    map[string]Section `json:"sections"`
}

// SectionStore maps category id to its newest committed Section. Slices are
// swapped whole, so readers observe either the old or the new value.
type SectionStore struct {
	mu       sync.RWMutex
	sections map[string]Section
}

func New() *SectionStore {
	return &SectionStore{sections: make(map[string]Section)}
}

// Replace commits articles for one category unless a newer generation is
// already stored. It reports whether the slice was committed.
func (s *SectionStore) Replace(id string, generation uint64, articles []article.Article) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(id, generation, articles, time.Now())
}

// ReplaceAll commits every category of a full refresh under a single lock.
// Categories holding a newer generation keep their data. It returns the ids
// that were committed.
func (s *SectionStore) ReplaceAll(generation uint64, sections map[string][]article.Article) []string {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var committed []string
	for id, articles := range sections {
		if s.replaceLocked(id, generation, articles, now) {
			committed = append(committed, id)
		}
	}
	sort.Strings(committed)
	return committed
}

func (s *SectionStore) replaceLocked(id string, generation uint64, articles []article.Article, now time.Time) bool {
	if cur, ok := s.sections[id]; ok && cur.Generation > generation {
		return false
	}
	s.sections[id] = Section{
		Articles:   append([]article.Article(nil), articles...),
		Generation: generation,
		UpdatedAt:  now,
	}
	return true
}

// Restore loads a previously saved snapshot. Existing sections are kept when
// they are at least as new.
func (s *SectionStore) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sec := range snap.Sections {
		if cur, ok := s.sections[id]; ok && cur.Generation >= sec.Generation {
			continue
		}
		sec.Articles = append([]article.Article(nil), sec.Articles...)
		s.sections[id] = sec
	}
}

// Get returns a copy of one category's articles.
func (s *SectionStore) Get(id string) ([]article.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[id]
	if !ok {
		return nil, false
	}
	return append([]article.Article(nil), sec.Articles...), true
}

// Section returns a copy of one category's committed slice with its metadata.
func (s *SectionStore) Section(id string) (Section, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[id]
	if !ok {
		return Section{}, false
	}
	sec.Articles = append([]article.Article(nil), sec.Articles...)
	return sec, true
}

// Generation returns the generation stored for id, or 0.
func (s *SectionStore) Generation(id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections[id].Generation
}

// Snapshot copies the whole store.
func (s *SectionStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{GeneratedAt: time.Now(), Sections: make(map[string]Section, len(s.sections))}
	for id, sec := range s.sections {
		sec.Articles = append([]article.Article(nil), sec.Articles...)
		out.Sections[id] = sec
	}
	return out
}

// AllSection is the category id whose view shows every section merged.
const AllSection = "latest"

// Search returns the articles of section (every section when section is empty
// or AllSection) whose title, description or source contains query,
// case-insensitively, newest first.
func (s *SectionStore) Search(section, query string) []article.Article {
	var pool []article.Article
	if section == "" || section == AllSection {
		snap := s.Snapshot()
		ids := lo.Keys(snap.Sections)
		sort.Strings(ids)
		for _, id := range ids {
			pool = append(pool, snap.Sections[id].Articles...)
		}
	} else {
		pool, _ = s.Get(section)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := lo.Filter(pool, func(a article.Article, _ int) bool {
		return q == "" || Matches(a, q)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Published.After(out[j].Published)
	})
	return out
}

// Matches reports whether a lower-cased query occurs in the article's
// display fields.
func Matches(a article.Article, lowerQuery string) bool {
	hay := strings.ToLower(a.Title + " " + a.Description + " " + a.Source)
	return strings.Contains(hay, lowerQuery)
}
