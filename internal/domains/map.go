package domains

import (
	"sort"
	"strings"
	"sync"
)

// Entry is one domain of a filter's domain list. The blank domain carries the
// filter's genericness.
type Entry struct {
	Domain  string
	Include bool
}

// Map is the ordered, read-only domain restriction of a filter. Maps are
// shared between filters with equal domain lists, never mutate one.
type Map struct {
	key     string
	entries []Entry
	index   map[string]bool
}

// Parse builds a Map from a domain list using sep between entries. It returns
// nil for a list without any domain.
//
// The generic entry "" is true when no domain is included, so a purely
// exclusion based list still applies everywhere else.
func Parse(list, sep string) *Map {
	index := make(map[string]bool)
	var order []string
	hasIncludes := false
	for _, d := range strings.Split(list, sep) {
		d = Canonicalize(d)
		include := true
		if strings.HasPrefix(d, "~") {
			include = false
			d = d[1:]
		}
		if d == "" {
			continue
		}
		if include {
			hasIncludes = true
		}
		if _, seen := index[d]; !seen {
			order = append(order, d)
		}
		index[d] = include
	}
	if len(order) == 0 {
		return nil
	}

	sort.Strings(order)
	m := &Map{
		entries: make([]Entry, 0, len(order)+1),
		index:   index,
	}
	index[""] = !hasIncludes
	m.entries = append(m.entries, Entry{Domain: "", Include: !hasIncludes})

	var key strings.Builder
	for _, d := range order {
		m.entries = append(m.entries, Entry{Domain: d, Include: index[d]})
		if key.Len() > 0 {
			key.WriteByte(',')
		}
		if !index[d] {
			key.WriteByte('~')
		}
		key.WriteString(d)
	}
	m.key = key.String()
	return m
}

// Key is the normalized sorted list this map was built from
func (m *Map) Key() string {
	if m == nil {
		return ""
	}
	return m.key
}

// Len returns the number of entries including the generic one
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns the entries, generic entry first. The slice must not be modified.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Get returns the inclusion flag for an exact domain key
func (m *Map) Get(domain string) (include, ok bool) {
	if m == nil {
		return false, false
	}
	include, ok = m.index[domain]
	return include, ok
}

// Generic reports the flag of the blank entry; a nil map is generic
func (m *Map) Generic() bool {
	if m == nil {
		return true
	}
	return m.index[""]
}

// Included returns the included domains, wildcards included
func (m *Map) Included() []string {
	return m.filter(true)
}

// Excluded returns the excluded domains, wildcards included
func (m *Map) Excluded() []string {
	return m.filter(false)
}

func (m *Map) filter(include bool) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, e := range m.entries {
		if e.Domain != "" && e.Include == include {
			out = append(out, e.Domain)
		}
	}
	return out
}

// HasWildcard reports whether any entry is a `label.*` wildcard
func (m *Map) HasWildcard() bool {
	if m == nil {
		return false
	}
	for _, e := range m.entries {
		if IsWildcard(e.Domain) {
			return true
		}
	}
	return false
}

// IsActiveOn resolves whether the list applies to domain. The most specific
// suffix with an entry decides, a concrete entry before a wildcard one at the
// same level. An empty domain resolves to the generic entry.
func (m *Map) IsActiveOn(domain string) bool {
	if m == nil {
		return true
	}
	domain = Canonicalize(domain)
	if domain == "" {
		return m.index[""]
	}
	for suffix := range Suffixes(domain, false) {
		if include, ok := m.index[suffix]; ok {
			return include
		}
		if key := WildcardKey(suffix); key != "" {
			if include, ok := m.index[key]; ok {
				return include
			}
		}
	}
	return m.index[""]
}

// Interner shares one Map between all filters with the same domain list.
// It is safe for concurrent use.
type Interner struct {
	mu    sync.RWMutex
	known map[string]*Map
}

// NewInterner creates an empty Interner
func NewInterner() *Interner {
	return &Interner{known: make(map[string]*Map)}
}

// Intern parses list and returns the shared Map for its normalized form
func (in *Interner) Intern(list, sep string) *Map {
	m := Parse(list, sep)
	if m == nil {
		return nil
	}

	in.mu.RLock()
	shared, ok := in.known[m.key]
	in.mu.RUnlock()
	if ok {
		return shared
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if shared, ok := in.known[m.key]; ok {
		return shared
	}
	in.known[m.key] = m
	return m
}

// Len returns the number of distinct maps held
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.known)
}
