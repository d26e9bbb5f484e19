package parser

import (
	"bufio"
	"io"
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/bnema/dnr-filters/internal/domains"
	"github.com/bnema/dnr-filters/internal/models"
)

// Minimum lengths below which a generic filter matches too much
const (
	MinURLPatternLength = 4
	MinSelectorLength   = 3
)

// Options toggles parser features the host may not support
type Options struct {
	InlineCSS bool // `#?#sel {prop: value}` emulation filters
	Sitekeys  bool // $sitekey, unknown option when disabled
}

// Parser parses ABP filter lines into filter records
type Parser struct {
	opts     Options
	interner *domains.Interner
	stats    Stats
}

// Stats tracks parsing statistics
type Stats struct {
	Total       int
	Blocking    int
	Allowing    int
	Content     int
	Comments    int
	Invalid     int
	SkipReasons map[models.Reason]int // invalid filters by reason
	Rejected    []*models.Filter      // invalid filters, for diagnostics
}

// New creates a new parser with default options
func New() *Parser {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a parser with the given feature toggles
func NewWithOptions(opts Options) *Parser {
	return &Parser{
		opts:     opts,
		interner: domains.NewInterner(),
		stats: Stats{
			SkipReasons: make(map[models.Reason]int),
		},
	}
}

var defaultParser = New()

// Parse parses one filter line with the default options. It never fails:
// malformed input yields a KindInvalid filter carrying the reason.
func Parse(text string) *models.Filter {
	return defaultParser.ParseLine(text)
}

// Stats returns parsing statistics
func (p *Parser) Stats() Stats {
	return p.stats
}

// Parse reads a filter list and returns its usable filters. Comments and
// list headers are dropped, invalid filters are recorded in the stats.
func (p *Parser) Parse(r io.Reader) ([]*models.Filter, error) {
	var filters []*models.Filter
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}

		filter := p.ParseLine(line)
		p.stats.Total++

		switch filter.Kind {
		case models.KindComment:
			p.stats.Comments++
			continue
		case models.KindInvalid:
			p.stats.Invalid++
			p.stats.SkipReasons[filter.Reason]++
			p.stats.Rejected = append(p.stats.Rejected, filter)
			continue
		case models.KindBlocking:
			p.stats.Blocking++
		case models.KindAllowing:
			p.stats.Allowing++
		default:
			p.stats.Content++
		}

		filters = append(filters, filter)
	}

	return filters, scanner.Err()
}

// ParseLine parses a single filter line. It is safe for concurrent use.
func (p *Parser) ParseLine(text string) *models.Filter {
	text = Normalize(text)
	if text == "" {
		return invalid(text, models.ReasonEmpty, "")
	}

	if strings.Contains(text, "#") {
		if m := reContent.FindStringSubmatch(text); m != nil {
			return p.parseContent(text, m[1], m[2], m[3])
		}
	}

	if text[0] == '!' {
		return &models.Filter{Kind: models.KindComment, Text: text}
	}

	return p.parseRequest(text)
}

func invalid(text string, reason models.Reason, option string) *models.Filter {
	return &models.Filter{Kind: models.KindInvalid, Text: text, Reason: reason, Option: option}
}

var (
	// a domain list naming at least one concrete or wildcard domain
	reActiveDomain = regexp.MustCompile(`,[^~][^,.]*\.[^,]`)
)

// parseContent parses an element hiding, emulation or snippet filter
func (p *Parser) parseContent(text, domainList, typ, body string) *models.Filter {
	if domainList != "" && domains.HasBlankEntry(domainList, domains.ContentSeparator) {
		return invalid(text, models.ReasonInvalidDomain, "")
	}
	for _, d := range strings.Split(domainList, domains.ContentSeparator) {
		if !domains.ValidWildcard(domains.Canonicalize(d)) {
			return invalid(text, models.ReasonInvalidWildcard, "")
		}
	}

	f := &models.Filter{
		Text:    text,
		Domains: p.interner.Intern(domainList, domains.ContentSeparator),
	}

	switch typ {
	case "@":
		f.Kind = models.KindElemHideException
		f.Selector = body
	case "?", "$":
		// Emulation and snippet filters are expensive, only allow them
		// where they name an active domain.
		list := "," + domainList
		if !reActiveDomain.MatchString(list) && !strings.Contains(list+",", ",localhost,") {
			if typ == "?" {
				return invalid(text, models.ReasonElemHideEmulationNoDomain, "")
			}
			return invalid(text, models.ReasonSnippetNoDomain, "")
		}
		if typ == "$" {
			f.Kind = models.KindSnippet
			f.Script = body
			return f
		}
		f.Kind = models.KindElemHideEmulation
		f.Selector = body
		if p.opts.InlineCSS {
			if selector, block, ok := splitInlineCSS(body); ok {
				decls, remove, valid := parseInlineCSS(block)
				if !valid {
					return invalid(text, models.ReasonElemHideInvalidInlineCSS, "")
				}
				f.Selector, f.InlineCSS, f.Remove = selector, decls, remove
			}
		}
	default:
		f.Kind = models.KindElemHide
		f.Selector = body
		if f.IsGeneric() && len(body) < MinSelectorLength {
			return invalid(text, models.ReasonElemHideNotSpecificEnough, "")
		}
	}

	if strings.ContainsAny(f.Selector, "{}") {
		return invalid(text, models.ReasonElemHideInvalidSelector, "")
	}
	return f
}

// parseRequest parses a blocking or allowing (@@) filter
func (p *Parser) parseRequest(text string) *models.Filter {
	blocking := true
	pattern := text
	if strings.HasPrefix(pattern, "@@") {
		blocking = false
		pattern = pattern[2:]
	}

	var opts requestOptions
	if strings.Contains(pattern, "$") {
		if loc := reOptions.FindStringSubmatchIndex(pattern); loc != nil {
			block := pattern[loc[2]:loc[3]]
			pattern = pattern[:loc[0]]
			for _, raw := range strings.Split(block, ",") {
				o := lookupOption(raw)
				if reason := opts.apply(o, blocking, p.opts.Sitekeys); reason != "" {
					return invalid(text, reason, o.name)
				}
			}
		}
	}

	f := &models.Filter{
		Text:       text,
		Kind:       models.KindBlocking,
		MatchCase:  opts.matchCase,
		ThirdParty: opts.thirdParty,
		Sitekeys:   opts.sitekeys,
		CSP:        opts.csp,
		Header:     opts.header,
		Rewrite:    opts.rewrite,
	}
	if !blocking {
		f.Kind = models.KindAllowing
	}
	if opts.domains != "" {
		f.Domains = p.interner.Intern(opts.domains, domains.URLSeparator)
	}

	f.ContentType = models.ContentResourceTypes
	if opts.hasContentType {
		f.ContentType = opts.contentType
	}

	if len(pattern) > 2 && pattern[0] == '/' && pattern[len(pattern)-1] == '/' {
		f.Regexp = pattern[1 : len(pattern)-1]
		if !validRegexp(f.Regexp) {
			return invalid(text, models.ReasonInvalidRegexp, "")
		}
	} else {
		f.Pattern = pattern
		if f.IsGeneric() && len(f.Sitekeys) == 0 && len(trimAnchors(pattern)) < MinURLPatternLength {
			return invalid(text, models.ReasonURLNotSpecificEnough, "")
		}
	}

	if opts.hasRewrite && !validRewriteScope(pattern, f) {
		return invalid(text, models.ReasonInvalidRewrite, "rewrite")
	}

	return f
}

// trimAnchors strips the anchors and wildcards that do not add specificity
func trimAnchors(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "||")
	pattern = strings.TrimPrefix(pattern, "|")
	pattern = strings.TrimSuffix(pattern, "|")
	return strings.Trim(pattern, "*^")
}

// validRewriteScope: rewrites must be anchored (|| or *) and limited to
// named domains or first party requests.
func validRewriteScope(pattern string, f *models.Filter) bool {
	if !strings.HasPrefix(pattern, "||") && !strings.HasPrefix(pattern, "*") {
		return false
	}
	if f.ThirdParty != nil && !*f.ThirdParty {
		return true
	}
	return !f.IsGeneric()
}

// validRegexp rejects regex sources that cannot be parsed at all. Lookaround
// is valid filter syntax the host may still support, it is left to the
// compiler's capability probe.
func validRegexp(source string) bool {
	_, err := syntax.Parse(source, syntax.Perl)
	if err == nil {
		return true
	}
	if se, ok := err.(*syntax.Error); ok {
		switch se.Code {
		case syntax.ErrInvalidPerlOp, syntax.ErrInvalidNamedCapture, syntax.ErrInvalidEscape:
			return true
		}
	}
	return false
}
