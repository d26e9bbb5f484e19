package parser

import (
	"strings"
	"testing"

	"github.com/bnema/dnr-filters/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineKinds(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind models.Kind
	}{
		{"comment", "! Title: EasyList", models.KindComment},
		{"comment with hashes", "! example.com##.ad", models.KindComment},
		{"blocking", "-ad-300x600px.", models.KindBlocking},
		{"allowing", "@@||example.com^$document", models.KindAllowing},
		{"elemhide", "example.com##.ad", models.KindElemHide},
		{"elemhide exception", "example.com#@#.ad", models.KindElemHideException},
		{"elemhide emulation", "example.com#?#div:-abp-has(.ad)", models.KindElemHideEmulation},
		{"snippet", "example.com#$#log hello", models.KindSnippet},
		{"localhost emulation", "localhost#?#div:-abp-has(.ad)", models.KindElemHideEmulation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse(tt.line)
			assert.Equal(t, tt.kind, f.Kind, "reason: %s", f.Reason)
		})
	}
}

func TestParseLineInvalid(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason models.Reason
		option string
	}{
		{"empty", "   ", models.ReasonEmpty, ""},
		{"sitekey unsupported", "foo$sitekey=bar", models.ReasonUnknownOption, "sitekey"},
		{"unknown option", "||example.com^$foo", models.ReasonUnknownOption, "foo"},
		{"domain without value", "||example.com^$domain=", models.ReasonUnknownOption, "domain"},
		{"type with value", "||example.com^$script=1", models.ReasonUnknownOption, "script"},
		{"blocking csp without value", "||example.com^$csp", models.ReasonInvalidCSP, "csp"},
		{"unsafe csp", "||example.com^$csp=report-uri https://x", models.ReasonInvalidCSP, "csp"},
		{"blocking header without value", "||example.com^$header", models.ReasonInvalidHeader, "header"},
		{"header bad name", "||example.com^$header=x:y", models.ReasonInvalidHeader, "header"},
		{"header empty value", "||example.com^$header=x-foo=", models.ReasonInvalidHeader, "header"},
		{"rewrite not a resource", "||example.com^$rewrite=http://x.com,domain=a.com", models.ReasonInvalidRewrite, "rewrite"},
		{"rewrite generic", "||example.com^$rewrite=abp-resource:blank-js", models.ReasonInvalidRewrite, "rewrite"},
		{"rewrite unanchored", "example.com/ad.js$rewrite=abp-resource:blank-js,domain=a.com", models.ReasonInvalidRewrite, "rewrite"},
		{"rewrite on allowing", "@@||example.com^$rewrite=abp-resource:blank-js", models.ReasonInvalidRewrite, "rewrite"},
		{"mid wildcard", "||ads.com^$domain=a.*.b", models.ReasonInvalidWildcard, "domain"},
		{"double wildcard", "a.**##.ad", models.ReasonInvalidWildcard, ""},
		{"bare wildcard", "*##.ad", models.ReasonInvalidWildcard, ""},
		{"blank domain", "a.com,,b.com##.ad", models.ReasonInvalidDomain, ""},
		{"blank excluded domain", "a.com,~##.ad", models.ReasonInvalidDomain, ""},
		{"generic emulation", "#?#div:-abp-has(.ad)", models.ReasonElemHideEmulationNoDomain, ""},
		{"exclusion only emulation", "~example.com#?#div:-abp-has(.ad)", models.ReasonElemHideEmulationNoDomain, ""},
		{"generic snippet", "#$#log hello", models.ReasonSnippetNoDomain, ""},
		{"short generic selector", "##a", models.ReasonElemHideNotSpecificEnough, ""},
		{"braces in selector", "example.com##div {display: none}", models.ReasonElemHideInvalidSelector, ""},
		{"short url", "||ab^", models.ReasonURLNotSpecificEnough, ""},
		{"short url with exclusions", "ads$domain=~example.com", models.ReasonURLNotSpecificEnough, ""},
		{"broken regexp", "/ads[/", models.ReasonInvalidRegexp, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse(tt.line)
			require.Equal(t, models.KindInvalid, f.Kind)
			assert.Equal(t, tt.reason, f.Reason)
			assert.Equal(t, tt.option, f.Option)
			assert.Equal(t, Normalize(tt.line), f.Text)
		})
	}
}

func TestParseRequestOptions(t *testing.T) {
	f := Parse("||ads.example.com^$script,image,third-party,match-case,domain=Example.com|~www.example.com")
	require.Equal(t, models.KindBlocking, f.Kind)

	assert.Equal(t, "||ads.example.com^", f.Pattern)
	assert.Empty(t, f.Regexp)
	assert.Equal(t, models.ContentScript|models.ContentImage, f.ContentType)
	require.NotNil(t, f.ThirdParty)
	assert.True(t, *f.ThirdParty)
	assert.True(t, f.MatchCase)
	assert.Equal(t, []string{"example.com"}, f.Domains.Included())
	assert.Equal(t, []string{"www.example.com"}, f.Domains.Excluded())
	assert.False(t, f.IsGeneric())
}

func TestParseContentTypeDefaults(t *testing.T) {
	assert.Equal(t, models.ContentResourceTypes, Parse("||ads.example.com^").ContentType)
	assert.Equal(t, models.ContentResourceTypes&^models.ContentScript, Parse("||ads.example.com^$~script").ContentType)
	assert.Equal(t, models.ContentDocument, Parse("@@||example.com^$document").ContentType)
	assert.Equal(t, models.ContentXMLHTTPRequest, Parse("||ads.example.com^$XHR").ContentType)
	assert.Equal(t, models.ContentPopup, Parse("||ads.example.com^$popup").ContentType)
}

func TestParseThirdParty(t *testing.T) {
	tests := []struct {
		line string
		want *bool
	}{
		{"||ads.example.com^", nil},
		{"||ads.example.com^$third-party", boolPtr(true)},
		{"||ads.example.com^$3p", boolPtr(true)},
		{"||ads.example.com^$~third-party", boolPtr(false)},
		{"||ads.example.com^$first-party", boolPtr(false)},
		{"||ads.example.com^$~1p", boolPtr(true)},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.line).ThirdParty)
		})
	}
}

func TestParseCSP(t *testing.T) {
	f := Parse("||example.com^$csp=script-src  'self'   'unsafe-inline'")
	require.Equal(t, models.KindBlocking, f.Kind)
	assert.Equal(t, "script-src 'self' 'unsafe-inline'", f.CSP)
	assert.Equal(t, models.ContentCSP, f.ContentType)
	assert.True(t, f.HasCSP())

	allow := Parse("@@||example.com^$csp")
	require.Equal(t, models.KindAllowing, allow.Kind)
	assert.True(t, allow.HasCSP())
	assert.Empty(t, allow.CSP)
}

func TestParseHeader(t *testing.T) {
	f := Parse(`||example.com^$header=X-Frame-Options=deny\x2cnone`)
	require.Equal(t, models.KindBlocking, f.Kind)
	require.NotNil(t, f.Header)
	assert.Equal(t, "x-frame-options", f.Header.Name)
	assert.Equal(t, "deny,none", f.Header.Value)
	assert.Equal(t, models.ContentHeader, f.ContentType)

	allow := Parse("@@||example.com^$header")
	require.Equal(t, models.KindAllowing, allow.Kind)
	assert.Nil(t, allow.Header)
}

func TestParseRewrite(t *testing.T) {
	tests := []string{
		"||example.com/ad.js$rewrite=abp-resource:blank-js,domain=foo.com",
		"*/ads/script.js$rewrite=abp-resource:blank-js,~third-party",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			f := Parse(line)
			require.Equal(t, models.KindBlocking, f.Kind, "reason: %s", f.Reason)
			assert.Equal(t, "blank-js", f.Rewrite)
		})
	}
}

func TestParseRegexp(t *testing.T) {
	f := Parse(`/banner\d+\.gif/$image`)
	require.Equal(t, models.KindBlocking, f.Kind)
	assert.Equal(t, `banner\d+\.gif`, f.Regexp)
	assert.Empty(t, f.Pattern)

	lookahead := Parse(`/ads(?=\.js)/`)
	assert.Equal(t, models.KindBlocking, lookahead.Kind)
}

func TestParseWildcardDomains(t *testing.T) {
	f := Parse("||ads.example.net^$domain=example.*|~images.example.*")
	require.Equal(t, models.KindBlocking, f.Kind)
	assert.Equal(t, []string{"example.*"}, f.Domains.Included())
	assert.Equal(t, []string{"images.example.*"}, f.Domains.Excluded())

	e := Parse("example.*#?#:-abp-properties(foo)")
	require.Equal(t, models.KindElemHideEmulation, e.Kind)
	assert.Equal(t, ":-abp-properties(foo)", e.Selector)
}

func TestParseSitekeysWhenEnabled(t *testing.T) {
	p := NewWithOptions(Options{Sitekeys: true})
	f := p.ParseLine("foo$sitekey=abc|def")
	require.Equal(t, models.KindBlocking, f.Kind)
	assert.Equal(t, []string{"ABC", "DEF"}, f.Sitekeys)
}

func TestParseInlineCSS(t *testing.T) {
	p := NewWithOptions(Options{InlineCSS: true})

	f := p.ParseLine("example.com#?#div.ad {remove: true;}")
	require.Equal(t, models.KindElemHideEmulation, f.Kind)
	assert.Equal(t, "div.ad", f.Selector)
	assert.True(t, f.Remove)
	assert.Empty(t, f.InlineCSS)

	f = p.ParseLine("example.com#?#div.ad {display: none !important; opacity: 0}")
	require.Equal(t, models.KindElemHideEmulation, f.Kind)
	assert.Equal(t, []models.Declaration{
		{Property: "display", Value: "none !important"},
		{Property: "opacity", Value: "0"},
	}, f.InlineCSS)

	invalidBlocks := []string{
		"example.com#?#div {background: url(https://x/y.png)}",
		"example.com#?#div {--custom: 1}",
		`example.com#?#div {content: "x"}`,
		"example.com#?#div {display}",
		"example.com#?#div {}",
		"example.com#?#div {remove: false}",
	}
	for _, line := range invalidBlocks {
		t.Run(line, func(t *testing.T) {
			f := p.ParseLine(line)
			require.Equal(t, models.KindInvalid, f.Kind)
			assert.Equal(t, models.ReasonElemHideInvalidInlineCSS, f.Reason)
		})
	}

	disabled := Parse("example.com#?#div {remove: true;}")
	assert.Equal(t, models.ReasonElemHideInvalidSelector, disabled.Reason)
}

func TestDomainMapsAreShared(t *testing.T) {
	p := New()
	a := p.ParseLine("example.com,foo.org##.ad-banner")
	b := p.ParseLine("foo.org,example.com##.other-banner")
	c := p.ParseLine("||ads.net^$domain=example.com|foo.org")

	assert.Same(t, a.Domains, b.Domains)
	assert.Same(t, a.Domains, c.Domains)
}

func TestSeparatorSpacingFallback(t *testing.T) {
	f := Parse("example.com# ?##sel")
	assert.Equal(t, "example.com#?##sel", f.Text)
	require.Equal(t, models.KindElemHideEmulation, f.Kind)
	assert.Equal(t, "#sel", f.Selector)
}

func TestParserStats(t *testing.T) {
	list := strings.Join([]string{
		"[Adblock Plus 2.0]",
		"! Title: test",
		"||ads.example.com^",
		"@@||example.com^$document",
		"example.com##.ad",
		"foo$sitekey=bar",
		"##a",
		"",
	}, "\n")

	p := New()
	filters, err := p.Parse(strings.NewReader(list))
	require.NoError(t, err)
	assert.Len(t, filters, 3)

	stats := p.Stats()
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 1, stats.Comments)
	assert.Equal(t, 1, stats.Blocking)
	assert.Equal(t, 1, stats.Allowing)
	assert.Equal(t, 1, stats.Content)
	assert.Equal(t, 2, stats.Invalid)
	assert.Equal(t, 1, stats.SkipReasons[models.ReasonUnknownOption])
	assert.Equal(t, 1, stats.SkipReasons[models.ReasonElemHideNotSpecificEnough])
	assert.Len(t, stats.Rejected, 2)
}

func TestCacheDeduplicates(t *testing.T) {
	c := NewCache(nil)
	a := c.FromText("||ads.example.com^")
	b := c.FromText("  ||ads.example.com^ ")
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Len())

	c.Forget(a)
	assert.NotSame(t, a, c.FromText("||ads.example.com^"))
}

func boolPtr(b bool) *bool { return &b }
