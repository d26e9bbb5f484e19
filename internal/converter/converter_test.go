package converter

import (
	"strings"
	"testing"

	"github.com/bnema/dnr-filters/internal/models"
	"github.com/bnema/dnr-filters/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestConverterBatch(t *testing.T) {
	list := strings.Join([]string{
		"[Adblock Plus 2.0]",
		"! Title: test list",
		"-ad-300x600px.",
		"@@||example.com^$document",
		"foo$sitekey=bar",
		"example.com##.ad-banner",
		"||example.com^$popup",
		`/banner(?=\.gif)/`,
		"||exämple.com^",
		"||ads.net^$document,script,domain=a.com",
	}, "\n")

	p := parser.New()
	filters, err := p.Parse(strings.NewReader(list))
	require.NoError(t, err)

	// The parser drops invalid filters, feed one back to check the stats
	filters = append(filters, parser.Parse("foo$sitekey=bar"))

	c := NewWithOptions(Options{Capabilities: DefaultCapabilities(), Workers: 4})
	rules, err := c.Convert(filters)

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)

	require.Len(t, rules, 4)
	assert.Equal(t, "-ad-300x600px.", rules[0].Condition.URLFilter)
	assert.Equal(t, models.ActionAllowAllRequests, rules[1].Action.Type)
	assert.Equal(t, []string{"main_frame"}, rules[2].Condition.ResourceTypes)
	assert.Equal(t, []string{"script"}, rules[3].Condition.ResourceTypes)

	stats := c.Stats()
	assert.Equal(t, len(filters), stats.Filters)
	assert.Equal(t, 3, stats.Converted)
	assert.Equal(t, 4, stats.Rules)
	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 1, stats.SkipReasons[string(models.ReasonInvalidRegexp)])
	assert.Equal(t, 1, stats.SkipReasons[string(models.ReasonInvalidEncoding)])
	assert.Equal(t, 1, stats.SkipReasons[string(models.ReasonUnknownOption)])
	assert.Equal(t, 1, stats.SkipReasons[SkipContentFilter])
	assert.Equal(t, 1, stats.SkipReasons[SkipNoRules])
	assert.Equal(t, stats.Filters, stats.Converted+stats.Skipped)
}

func TestConverterNoErrors(t *testing.T) {
	c := New()
	rules, err := c.Convert([]*models.Filter{
		parser.Parse("||ads.example.com^"),
		parser.Parse("||tracker.example.org^$script"),
	})
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestConverterPreservesOrder(t *testing.T) {
	var filters []*models.Filter
	for i := 0; i < 200; i++ {
		filters = append(filters, parser.Parse("||ads"+strings.Repeat("x", i%7)+".example"+string(rune('a'+i%26))+".com^"))
	}

	rules, err := NewWithOptions(Options{Workers: 8}).Convert(filters)
	require.NoError(t, err)
	require.Len(t, rules, len(filters))
	for i, f := range filters {
		assert.Equal(t, f.Pattern, rules[i].Condition.URLFilter)
	}
}
