// Package index holds the domain-keyed filter containers used for runtime
// lookups.
package index

import (
	"container/list"
	"iter"

	"github.com/bnema/dnr-filters/internal/models"
)

type mapEntry struct {
	filter  *models.Filter
	include bool
}

// FilterMap maps filters to an inclusion flag and iterates in insertion
// order. Updating an existing filter keeps its position.
type FilterMap struct {
	items map[*models.Filter]*list.Element
	order *list.List
}

// NewFilterMap creates an empty FilterMap
func NewFilterMap() *FilterMap {
	return &FilterMap{
		items: make(map[*models.Filter]*list.Element),
		order: list.New(),
	}
}

// Len returns the number of filters
func (m *FilterMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.items)
}

// Get returns the inclusion flag of f
func (m *FilterMap) Get(f *models.Filter) (include, ok bool) {
	if m == nil {
		return false, false
	}
	el, ok := m.items[f]
	if !ok {
		return false, false
	}
	return el.Value.(*mapEntry).include, true
}

// Has reports whether f is in the map
func (m *FilterMap) Has(f *models.Filter) bool {
	_, ok := m.Get(f)
	return ok
}

// Set inserts f or updates its flag in place
func (m *FilterMap) Set(f *models.Filter, include bool) {
	if el, ok := m.items[f]; ok {
		el.Value.(*mapEntry).include = include
		return
	}
	m.items[f] = m.order.PushBack(&mapEntry{filter: f, include: include})
}

// Delete removes f, reporting whether it was present
func (m *FilterMap) Delete(f *models.Filter) bool {
	el, ok := m.items[f]
	if !ok {
		return false
	}
	m.order.Remove(el)
	delete(m.items, f)
	return true
}

// All yields filters and their flags in insertion order
func (m *FilterMap) All() iter.Seq2[*models.Filter, bool] {
	return func(yield func(*models.Filter, bool) bool) {
		if m == nil {
			return
		}
		for el := m.order.Front(); el != nil; el = el.Next() {
			e := el.Value.(*mapEntry)
			if !yield(e.filter, e.include) {
				return
			}
		}
	}
}

// Keys returns the filters in insertion order
func (m *FilterMap) Keys() []*models.Filter {
	keys := make([]*models.Filter, 0, m.Len())
	for f := range m.All() {
		keys = append(keys, f)
	}
	return keys
}

// Clone copies the map, order included
func (m *FilterMap) Clone() *FilterMap {
	c := NewFilterMap()
	for f, include := range m.All() {
		c.Set(f, include)
	}
	return c
}
