// Package elemhide keeps the element hiding emulation filters of the loaded
// subscriptions and answers which of them apply to a page.
package elemhide

import (
	"sync"

	"github.com/bnema/dnr-filters/internal/domains"
	"github.com/bnema/dnr-filters/internal/index"
	"github.com/bnema/dnr-filters/internal/models"
)

// Store holds `#?#` filters and the `#@#` exceptions that cancel them
type Store struct {
	mu         sync.RWMutex
	filters    *index.DomainIndex
	exceptions *index.DomainIndex
	members    map[*models.Filter]struct{}
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		filters:    index.NewDomainIndex(),
		exceptions: index.NewDomainIndex(),
		members:    make(map[*models.Filter]struct{}),
	}
}

// Add stores an emulation filter or an exception. Other kinds are ignored
// and reported as not added.
func (s *Store) Add(f *models.Filter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(f)
}

// AddAll adds a batch of filters, returning how many were stored
func (s *Store) AddAll(filters []*models.Filter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range filters {
		if s.add(f) {
			n++
		}
	}
	return n
}

func (s *Store) add(f *models.Filter) bool {
	if _, ok := s.members[f]; ok {
		return false
	}
	switch f.Kind {
	case models.KindElemHideEmulation:
		s.filters.Add(f)
	case models.KindElemHideException:
		s.exceptions.Add(f)
	default:
		return false
	}
	s.members[f] = struct{}{}
	return true
}

// Remove drops a filter previously added
func (s *Store) Remove(f *models.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(f)
}

// RemoveAll drops a batch of filters
func (s *Store) RemoveAll(filters []*models.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range filters {
		s.remove(f)
	}
}

func (s *Store) remove(f *models.Filter) {
	if _, ok := s.members[f]; !ok {
		return
	}
	delete(s.members, f)
	if f.Kind == models.KindElemHideException {
		s.exceptions.Remove(f)
	} else {
		s.filters.Remove(f)
	}
}

// Len returns the number of stored filters and exceptions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Clear removes every filter and exception
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Clear()
	s.exceptions.Clear()
	s.members = make(map[*models.Filter]struct{})
}

// GetFilters returns the emulation filters active on domain that no active
// exception cancels, in the order the index yields them. A filter found
// through both a concrete and a wildcard domain is returned once; two filters
// sharing a selector are both returned.
func (s *Store) GetFilters(domain string) []*models.Filter {
	domain = domains.Canonicalize(domain)

	s.mu.RLock()
	defer s.mu.RUnlock()

	excepted := make(map[string]bool)
	for _, f := range active(s.exceptions, domain, true) {
		excepted[f.Selector] = true
	}

	var result []*models.Filter
	for _, f := range active(s.filters, domain, false) {
		if !excepted[f.Selector] {
			result = append(result, f)
		}
	}
	return result
}

// active walks domain and its parents, most specific first. The first level
// naming a filter decides whether it applies.
func active(x *index.DomainIndex, domain string, includeBlank bool) []*models.Filter {
	var out []*models.Filter
	decided := make(map[*models.Filter]bool)
	for suffix := range domains.Suffixes(domain, includeBlank) {
		entry := x.Get(suffix)
		for f, include := range entry.All() {
			if decided[f] {
				continue
			}
			decided[f] = true
			if include {
				out = append(out, f)
			}
		}
	}
	return out
}
