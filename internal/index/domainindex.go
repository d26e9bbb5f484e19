package index

import (
	"iter"
	"sort"
	"sync"

	"github.com/bnema/dnr-filters/internal/domains"
	"github.com/bnema/dnr-filters/internal/models"
)

// EntryKind tags what a bucket holds
type EntryKind int

const (
	EntryEmpty EntryKind = iota
	// EntrySingle is the common case: one filter, included
	EntrySingle
	EntryMany
)

// Entry is the content of one domain bucket
type Entry struct {
	kind   EntryKind
	filter *models.Filter
	many   *FilterMap
}

func single(f *models.Filter) Entry { return Entry{kind: EntrySingle, filter: f} }
func many(m *FilterMap) Entry       { return Entry{kind: EntryMany, many: m} }

// Kind returns the entry tag
func (e Entry) Kind() EntryKind { return e.kind }

// Filter returns the lone filter of an EntrySingle
func (e Entry) Filter() *models.Filter { return e.filter }

// Map returns the filters of an EntryMany
func (e Entry) Map() *FilterMap { return e.many }

// Len returns the number of filters in the entry
func (e Entry) Len() int {
	switch e.kind {
	case EntrySingle:
		return 1
	case EntryMany:
		return e.many.Len()
	}
	return 0
}

// Get returns the inclusion flag of f in this entry
func (e Entry) Get(f *models.Filter) (include, ok bool) {
	switch e.kind {
	case EntrySingle:
		return true, e.filter == f
	case EntryMany:
		return e.many.Get(f)
	}
	return false, false
}

// All yields filters and their flags in insertion order
func (e Entry) All() iter.Seq2[*models.Filter, bool] {
	return func(yield func(*models.Filter, bool) bool) {
		switch e.kind {
		case EntrySingle:
			yield(e.filter, true)
		case EntryMany:
			for f, include := range e.many.All() {
				if !yield(f, include) {
					return
				}
			}
		}
	}
}

func (e Entry) clone() Entry {
	if e.kind == EntryMany {
		return many(e.many.Clone())
	}
	return e
}

// DomainEntry pairs a bucket with its domain key
type DomainEntry struct {
	Domain string
	Entry  Entry
}

// DomainIndex maps domains to the filters restricted to them. Concrete
// domains, the generic "" bucket and `label.*` wildcard domains are kept
// apart; Size and Entries only cover the first two.
//
// Reads take a shared lock and return copies, so lookups never observe a
// batch update halfway through.
type DomainIndex struct {
	mu       sync.RWMutex
	concrete map[string]Entry
	generic  Entry
	wildcard map[string]Entry
	order    map[*models.Filter]uint64 // first insertion, orders wildcard results
	next     uint64
}

// NewDomainIndex creates an empty DomainIndex
func NewDomainIndex() *DomainIndex {
	return &DomainIndex{
		concrete: make(map[string]Entry),
		wildcard: make(map[string]Entry),
		order:    make(map[*models.Filter]uint64),
	}
}

// defaultDomains is used for filters without a domain restriction
var defaultDomains = []domains.Entry{{Domain: "", Include: true}}

func domainEntries(f *models.Filter) []domains.Entry {
	if f.Domains == nil {
		return defaultDomains
	}
	return f.Domains.Entries()
}

// Add indexes f under every domain of its domain list
func (x *DomainIndex) Add(f *models.Filter) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.add(f)
}

// AddAll indexes a batch of filters under one exclusive lock
func (x *DomainIndex) AddAll(filters []*models.Filter) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, f := range filters {
		x.add(f)
	}
}

func (x *DomainIndex) add(f *models.Filter) {
	if _, ok := x.order[f]; !ok {
		x.order[f] = x.next
		x.next++
	}
	for _, d := range domainEntries(f) {
		if d.Domain == "" && !d.Include {
			continue
		}
		x.store(d.Domain, insert(x.load(d.Domain), f, d.Include))
	}
}

func insert(e Entry, f *models.Filter, include bool) Entry {
	switch e.kind {
	case EntryEmpty:
		if include {
			return single(f)
		}
		m := NewFilterMap()
		m.Set(f, false)
		return many(m)
	case EntrySingle:
		if e.filter == f {
			return e
		}
		m := NewFilterMap()
		m.Set(e.filter, true)
		m.Set(f, include)
		return many(m)
	default:
		e.many.Set(f, include)
		return e
	}
}

// Remove drops f from every bucket it was added to
func (x *DomainIndex) Remove(f *models.Filter) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.remove(f)
}

// RemoveAll drops a batch of filters under one exclusive lock
func (x *DomainIndex) RemoveAll(filters []*models.Filter) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, f := range filters {
		x.remove(f)
	}
}

func (x *DomainIndex) remove(f *models.Filter) {
	if _, ok := x.order[f]; !ok {
		return
	}
	delete(x.order, f)
	for _, d := range domainEntries(f) {
		x.store(d.Domain, without(x.load(d.Domain), f))
	}
}

func without(e Entry, f *models.Filter) Entry {
	switch e.kind {
	case EntrySingle:
		if e.filter == f {
			return Entry{}
		}
	case EntryMany:
		e.many.Delete(f)
		switch e.many.Len() {
		case 0:
			return Entry{}
		case 1:
			for last, include := range e.many.All() {
				if include {
					return single(last)
				}
			}
		}
	}
	return e
}

func (x *DomainIndex) load(domain string) Entry {
	switch {
	case domain == "":
		return x.generic
	case domains.IsWildcard(domain):
		return x.wildcard[domain]
	default:
		return x.concrete[domain]
	}
}

func (x *DomainIndex) store(domain string, e Entry) {
	switch {
	case domain == "":
		x.generic = e
	case domains.IsWildcard(domain):
		if e.kind == EntryEmpty {
			delete(x.wildcard, domain)
		} else {
			x.wildcard[domain] = e
		}
	default:
		if e.kind == EntryEmpty {
			delete(x.concrete, domain)
		} else {
			x.concrete[domain] = e
		}
	}
}

// Get returns the filters for domain: the concrete bucket in insertion order
// followed by every matching wildcard bucket, ordered by when each filter was
// first added. A filter present in several buckets keeps the flag of the most
// specific one. The empty domain returns the generic bucket.
func (x *DomainIndex) Get(domain string) Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.get(domain)
}

func (x *DomainIndex) get(domain string) Entry {
	if domain == "" {
		return x.generic.clone()
	}
	concrete := x.concrete[domain]

	var matched []Entry
	if len(x.wildcard) > 0 {
		for _, key := range domains.WildcardKeys(domain) {
			if e, ok := x.wildcard[key]; ok {
				matched = append(matched, e)
			}
		}
	}
	if len(matched) == 0 {
		return concrete.clone()
	}

	type hit struct {
		filter  *models.Filter
		include bool
	}
	var hits []hit
	seen := make(map[*models.Filter]bool)
	for f := range concrete.All() {
		seen[f] = true
	}
	for _, e := range matched {
		for f, include := range e.All() {
			if !seen[f] {
				seen[f] = true
				hits = append(hits, hit{f, include})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return x.order[hits[i].filter] < x.order[hits[j].filter]
	})

	out := NewFilterMap()
	for f, include := range concrete.All() {
		out.Set(f, include)
	}
	for _, h := range hits {
		out.Set(h.filter, h.include)
	}
	if out.Len() == 1 {
		for f, include := range out.All() {
			if include {
				return single(f)
			}
		}
	}
	return many(out)
}

// Has reports whether Get(domain) would return any filter
func (x *DomainIndex) Has(domain string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if domain == "" {
		return x.generic.kind != EntryEmpty
	}
	if _, ok := x.concrete[domain]; ok {
		return true
	}
	if len(x.wildcard) == 0 {
		return false
	}
	for _, key := range domains.WildcardKeys(domain) {
		if _, ok := x.wildcard[key]; ok {
			return true
		}
	}
	return false
}

// Size counts the non-empty concrete and generic buckets
func (x *DomainIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := len(x.concrete)
	if x.generic.kind != EntryEmpty {
		n++
	}
	return n
}

// Entries returns the concrete and generic buckets sorted by domain, the
// generic bucket first under the "" key.
func (x *DomainIndex) Entries() []DomainEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	keys := make([]string, 0, len(x.concrete))
	for k := range x.concrete {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]DomainEntry, 0, len(keys)+1)
	if x.generic.kind != EntryEmpty {
		out = append(out, DomainEntry{Domain: "", Entry: x.generic.clone()})
	}
	for _, k := range keys {
		out = append(out, DomainEntry{Domain: k, Entry: x.concrete[k].clone()})
	}
	return out
}

// Clear empties every bucket
func (x *DomainIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.concrete = make(map[string]Entry)
	x.generic = Entry{}
	x.wildcard = make(map[string]Entry)
	x.order = make(map[*models.Filter]uint64)
	x.next = 0
}
