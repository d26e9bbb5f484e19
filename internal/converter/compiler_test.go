package converter

import (
	"errors"
	"testing"

	"github.com/bnema/dnr-filters/internal/models"
	"github.com/bnema/dnr-filters/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func compileLine(t *testing.T, line string) []models.Rule {
	t.Helper()
	rules, err := Compile(parser.Parse(line), DefaultCapabilities())
	require.NoError(t, err)
	return rules
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []models.Rule
	}{
		{
			name: "plain generic block",
			line: "-ad-300x600px.",
			expected: []models.Rule{{
				Priority:  GenericPriority,
				Condition: models.Condition{URLFilter: "-ad-300x600px.", IsURLFilterCaseSensitive: boolPtr(false)},
				Action:    models.Action{Type: models.ActionBlock},
			}},
		},
		{
			name: "document allowlisting",
			line: "@@||example.com^$document",
			expected: []models.Rule{{
				Priority: SpecificAllowAllPriority,
				Condition: models.Condition{
					URLFilter:                "||example.com^",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"main_frame", "sub_frame"},
				},
				Action: models.Action{Type: models.ActionAllowAllRequests},
			}},
		},
		{
			name: "genericblock raises to generic allow all",
			line: "@@||example.com^$genericblock",
			expected: []models.Rule{{
				Priority: GenericAllowAllPriority,
				Condition: models.Condition{
					URLFilter:                "||example.com^",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"main_frame", "sub_frame"},
				},
				Action: models.Action{Type: models.ActionAllowAllRequests},
			}},
		},
		{
			name: "specific script block uses initiator domains",
			line: "||ads.net^$script,domain=a.com|~b.a.com",
			expected: []models.Rule{{
				Priority: SpecificPriority,
				Condition: models.Condition{
					URLFilter:                "||ads.net^",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"script"},
					InitiatorDomains:         []string{"a.com"},
					ExcludedInitiatorDomains: []string{"b.a.com"},
				},
				Action: models.Action{Type: models.ActionBlock},
			}},
		},
		{
			name: "exclusion only stays generic",
			line: "||ads.net^$image,domain=~a.com",
			expected: []models.Rule{{
				Priority: GenericPriority,
				Condition: models.Condition{
					URLFilter:                "||ads.net^",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"image"},
					ExcludedInitiatorDomains: []string{"a.com"},
				},
				Action: models.Action{Type: models.ActionBlock},
			}},
		},
		{
			name: "document and other types split on domains",
			line: "||ads.net^$document,script,domain=a.com",
			expected: []models.Rule{
				{
					Priority: SpecificPriority,
					Condition: models.Condition{
						URLFilter:                "||ads.net^",
						IsURLFilterCaseSensitive: boolPtr(false),
						ResourceTypes:            []string{"main_frame"},
						RequestDomains:           []string{"a.com"},
					},
					Action: models.Action{Type: models.ActionBlock},
				},
				{
					Priority: SpecificPriority,
					Condition: models.Condition{
						URLFilter:                "||ads.net^",
						IsURLFilterCaseSensitive: boolPtr(false),
						ResourceTypes:            []string{"script"},
						InitiatorDomains:         []string{"a.com"},
					},
					Action: models.Action{Type: models.ActionBlock},
				},
			},
		},
		{
			name: "document only uses request domains",
			line: "||ads.net^$document,domain=a.com",
			expected: []models.Rule{{
				Priority: SpecificPriority,
				Condition: models.Condition{
					URLFilter:                "||ads.net^",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"main_frame"},
					RequestDomains:           []string{"a.com"},
				},
				Action: models.Action{Type: models.ActionBlock},
			}},
		},
		{
			name: "document allowlisting with remaining types",
			line: "@@||example.com^$document,image",
			expected: []models.Rule{
				{
					Priority: SpecificAllowAllPriority,
					Condition: models.Condition{
						URLFilter:                "||example.com^",
						IsURLFilterCaseSensitive: boolPtr(false),
						ResourceTypes:            []string{"main_frame", "sub_frame"},
					},
					Action: models.Action{Type: models.ActionAllowAllRequests},
				},
				{
					Priority: GenericPriority,
					Condition: models.Condition{
						URLFilter:                "||example.com^",
						IsURLFilterCaseSensitive: boolPtr(false),
						ResourceTypes:            []string{"image"},
					},
					Action: models.Action{Type: models.ActionAllow},
				},
			},
		},
		{
			name: "genericblock on a domain splits allow all",
			line: "@@||example.com^$genericblock,domain=a.com",
			expected: []models.Rule{
				{
					Priority: GenericAllowAllPriority,
					Condition: models.Condition{
						URLFilter:                "||example.com^",
						IsURLFilterCaseSensitive: boolPtr(false),
						ResourceTypes:            []string{"main_frame"},
						RequestDomains:           []string{"a.com"},
					},
					Action: models.Action{Type: models.ActionAllowAllRequests},
				},
				{
					Priority: GenericAllowAllPriority,
					Condition: models.Condition{
						URLFilter:                "||example.com^",
						IsURLFilterCaseSensitive: boolPtr(false),
						ResourceTypes:            []string{"sub_frame"},
						InitiatorDomains:         []string{"a.com"},
					},
					Action: models.Action{Type: models.ActionAllowAllRequests},
				},
			},
		},
		{
			name: "blocking csp appends header",
			line: "||example.com^$csp=script-src 'none'",
			expected: []models.Rule{{
				Priority: GenericPriority,
				Condition: models.Condition{
					URLFilter:                "||example.com^",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"main_frame", "sub_frame"},
				},
				Action: models.Action{
					Type: models.ActionModifyHeaders,
					ResponseHeaders: []models.HeaderInfo{{
						Header:    "Content-Security-Policy",
						Operation: models.HeaderAppend,
						Value:     "script-src 'none'",
					}},
				},
			}},
		},
		{
			name: "allowing csp allows frames",
			line: "@@||example.com^$csp",
			expected: []models.Rule{{
				Priority: GenericPriority,
				Condition: models.Condition{
					URLFilter:                "||example.com^",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"main_frame", "sub_frame"},
				},
				Action: models.Action{Type: models.ActionAllow},
			}},
		},
		{
			name: "rewrite redirects to resource",
			line: "||cdn.example.com/ads.js$script,rewrite=abp-resource:blank-js,domain=example.com",
			expected: []models.Rule{{
				Priority: SpecificPriority,
				Condition: models.Condition{
					URLFilter:                "||cdn.example.com/ads.js",
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"script"},
					InitiatorDomains:         []string{"example.com"},
				},
				Action: models.Action{
					Type:     models.ActionRedirect,
					Redirect: &models.Redirect{URL: "data:application/javascript,"},
				},
			}},
		},
		{
			name: "regex filter",
			line: `/banner\d+\.gif/$image,match-case`,
			expected: []models.Rule{{
				Priority: GenericPriority,
				Condition: models.Condition{
					RegexFilter:              `banner\d+\.gif`,
					IsURLFilterCaseSensitive: boolPtr(true),
					ResourceTypes:            []string{"image"},
				},
				Action: models.Action{Type: models.ActionBlock},
			}},
		},
		{
			name: "party conditions",
			line: "||tracker.net^$third-party,other",
			expected: []models.Rule{{
				Priority: GenericPriority,
				Condition: models.Condition{
					URLFilter:                "||tracker.net^",
					IsURLFilterCaseSensitive: boolPtr(false),
					DomainType:               models.DomainThirdParty,
					ResourceTypes:            []string{"other", "csp_report"},
				},
				Action: models.Action{Type: models.ActionBlock},
			}},
		},
		{
			name: "leading hostname wildcard is dropped",
			line: "||*/ads/banner$image,~third-party",
			expected: []models.Rule{{
				Priority: GenericPriority,
				Condition: models.Condition{
					URLFilter:                "/ads/banner",
					IsURLFilterCaseSensitive: boolPtr(false),
					DomainType:               models.DomainFirstParty,
					ResourceTypes:            []string{"image"},
				},
				Action: models.Action{Type: models.ActionBlock},
			}},
		},
		{
			name: "match anything pattern omits url filter",
			line: "*$image,domain=example.com",
			expected: []models.Rule{{
				Priority: SpecificPriority,
				Condition: models.Condition{
					IsURLFilterCaseSensitive: boolPtr(false),
					ResourceTypes:            []string{"image"},
					InitiatorDomains:         []string{"example.com"},
				},
				Action: models.Action{Type: models.ActionBlock},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parser.Parse(tt.line)
			require.False(t, f.IsInvalid(), "reason: %s", f.Reason)
			assert.Equal(t, tt.expected, compileLine(t, tt.line))
		})
	}
}

func TestCompileZeroRules(t *testing.T) {
	lines := []string{
		"||example.com^$popup",
		"||example.com^$webrtc",
		"||example.com/ads.js$script,rewrite=abp-resource:unknown-key,domain=example.com",
		"||ads.net^$domain=example.*",
		"||example.com^$header=x-ad-frame",
		"example.com##.ad",
		"example.com#?#div:-abp-has(.ad)",
		"! comment",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			assert.Empty(t, compileLine(t, line))
		})
	}
}

func TestCompileInvalidFilterHasNoRules(t *testing.T) {
	f := parser.Parse("foo$sitekey=bar")
	require.True(t, f.IsInvalid())
	assert.Equal(t, models.ReasonUnknownOption, f.Reason)
	assert.Equal(t, "foo$sitekey=bar", f.Text)

	rules, err := Compile(f, DefaultCapabilities())
	assert.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCompileSitekeyFilterHasNoRules(t *testing.T) {
	f := parser.NewWithOptions(parser.Options{Sitekeys: true}).ParseLine("foo$sitekey=bar")
	require.False(t, f.IsInvalid())

	rules, err := Compile(f, DefaultCapabilities())
	assert.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCompileRejections(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason models.Reason
	}{
		{"lookahead regex", `/banner(?=\.gif)/`, models.ReasonInvalidRegexp},
		{"backreference regex", `/(ad)\1banner/`, models.ReasonInvalidRegexp},
		{"non-ASCII pattern", "||exämple.com^", models.ReasonInvalidEncoding},
		{"non-ASCII domain", "||ads.net^$domain=exämple.com", models.ReasonInvalidEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parser.Parse(tt.line)
			require.False(t, f.IsInvalid(), "reason: %s", f.Reason)

			rules, err := Compile(f, DefaultCapabilities())
			require.Error(t, err)
			assert.Empty(t, rules)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.reason, ce.Reason)
			assert.Equal(t, f.Text, ce.Text)
		})
	}
}

func TestCompileRegexCapability(t *testing.T) {
	f := parser.Parse(`/banner\d+/`)

	_, err := Compile(f, Capabilities{IsRegexSupported: NoRegexSupported})
	assert.Error(t, err)

	var seen string
	caps := Capabilities{IsRegexSupported: func(source string, matchCase bool) bool {
		seen = source
		return true
	}}
	rules, err := Compile(f, caps)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, `banner\d+`, seen)
	assert.Equal(t, `banner\d+`, rules[0].Condition.RegexFilter)

	lookahead := parser.Parse(`/banner(?=\.gif)/`)
	rules, err = Compile(lookahead, Capabilities{IsRegexSupported: AllRegexSupported})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestCompileURLHint(t *testing.T) {
	f := parser.Parse("||example.com^$image")
	rules, err := CompileURL(f, DefaultCapabilities(), "||example.com/ads/")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "||example.com/ads/", rules[0].Condition.URLFilter)
}

func TestCompileRewriteExtensionPath(t *testing.T) {
	caps := DefaultCapabilities()
	caps.Resources["blank-js"] = "/resources/blank.js"

	rules, err := Compile(parser.Parse("||cdn.net/ads.js$script,rewrite=abp-resource:blank-js,domain=example.com"), caps)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, &models.Redirect{ExtensionPath: "/resources/blank.js"}, rules[0].Action.Redirect)
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, GenericPriority, GenericAllowAllPriority)
	assert.Less(t, GenericAllowAllPriority, SpecificPriority)
	assert.Less(t, SpecificPriority, SpecificAllowAllPriority)

	block := compileLine(t, "||ads.example.net^")
	exception := compileLine(t, "@@||x.com^$genericblock,domain=x.com")
	require.Len(t, block, 1)
	require.NotEmpty(t, exception)
	for _, r := range exception {
		assert.Greater(t, r.Priority, block[0].Priority)
	}
}
