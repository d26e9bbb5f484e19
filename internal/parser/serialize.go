package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/dnr-filters/internal/models"
)

// FilterHeader opens a serialized filter block
const FilterHeader = "[Filter]"

// Serialize writes the key=value lines persisting a filter. Only the text
// and the activity fields are stored; everything else is reparsed.
func Serialize(f *models.Filter) []string {
	lines := []string{FilterHeader, "text=" + f.Text}
	if f.Disabled {
		lines = append(lines, "disabled=true")
	}
	if len(f.DisabledBySubscription) > 0 {
		ids := make([]string, 0, len(f.DisabledBySubscription))
		for id := range f.DisabledBySubscription {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		lines = append(lines, "disabledSubscriptions="+strings.Join(ids, " "))
	}
	if f.HitCount > 0 {
		lines = append(lines, "hitCount="+strconv.Itoa(f.HitCount))
	}
	if !f.LastHit.IsZero() {
		lines = append(lines, "lastHit="+strconv.FormatInt(f.LastHit.UnixMilli(), 10))
	}
	return lines
}

// Deserialize rebuilds a filter from Serialize output using c, so the
// returned filter is the shared instance for its text.
func Deserialize(c *Cache, lines []string) (*models.Filter, error) {
	if len(lines) == 0 || lines[0] != FilterHeader {
		return nil, fmt.Errorf("missing %s header", FilterHeader)
	}

	fields := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		fields[key] = value
	}

	text, ok := fields["text"]
	if !ok {
		return nil, fmt.Errorf("missing text")
	}
	f := c.FromText(text)

	f.Disabled = fields["disabled"] == "true"
	if ids := fields["disabledSubscriptions"]; ids != "" {
		for _, id := range strings.Fields(ids) {
			f.DisableFor(id)
		}
	}
	if v, ok := fields["hitCount"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid hitCount %q", v)
		}
		f.HitCount = n
	}
	if v, ok := fields["lastHit"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid lastHit %q: %w", v, err)
		}
		f.LastHit = time.UnixMilli(ms)
	}
	return f, nil
}
