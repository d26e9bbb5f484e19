package converter

import (
	"errors"
	"runtime"

	"github.com/charmbracelet/log"
	conciter "github.com/sourcegraph/conc/iter"
	"go.uber.org/multierr"

	"github.com/bnema/dnr-filters/internal/models"
)

// Converter compiles parsed filters into declarative rules in bulk
type Converter struct {
	caps    Capabilities
	workers int
	logger  *log.Logger
	stats   Stats
}

// Stats tracks conversion statistics
type Stats struct {
	Filters     int
	Converted   int
	Rules       int
	Skipped     int
	Rejected    int
	SkipReasons map[string]int
}

// Skip reason constants
const (
	SkipContentFilter = "content-filter"
	SkipNoRules       = "no-rules"
)

// Options configures a Converter
type Options struct {
	Capabilities Capabilities
	Workers      int // parallel compile workers, 0 means GOMAXPROCS
	Logger       *log.Logger
}

// New creates a converter for the default host capabilities
func New() *Converter {
	return NewWithOptions(Options{Capabilities: DefaultCapabilities()})
}

// NewWithOptions creates a converter
func NewWithOptions(opts Options) *Converter {
	if opts.Capabilities.IsRegexSupported == nil {
		opts.Capabilities.IsRegexSupported = ChromeRegexSupport
	}
	if opts.Capabilities.Resources == nil {
		opts.Capabilities.Resources = DefaultResources()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Converter{
		caps:    opts.Capabilities,
		workers: workers,
		logger:  opts.Logger,
		stats: Stats{
			SkipReasons: make(map[string]int),
		},
	}
}

// skip records a skipped filter with reason
func (c *Converter) skip(reason string) {
	c.stats.Skipped++
	c.stats.SkipReasons[reason]++
}

// Stats returns conversion statistics
func (c *Converter) Stats() Stats {
	return c.stats
}

type compiled struct {
	rules []models.Rule
	err   error
}

// Convert compiles filters in parallel and returns their rules in filter
// order. A rejected filter never aborts the batch: the rejections are
// returned together as one multierr error next to the rules of every other
// filter.
func (c *Converter) Convert(filters []*models.Filter) ([]models.Rule, error) {
	mapper := conciter.Mapper[*models.Filter, compiled]{MaxGoroutines: c.workers}
	results := mapper.Map(filters, func(f **models.Filter) compiled {
		rules, err := Compile(*f, c.caps)
		return compiled{rules: rules, err: err}
	})

	var rules []models.Rule
	var errs error
	for i, res := range results {
		f := filters[i]
		c.stats.Filters++

		switch {
		case res.err != nil:
			c.stats.Rejected++
			reason := res.err.Error()
			var ce *CompileError
			if errors.As(res.err, &ce) {
				reason = string(ce.Reason)
			}
			c.skip(reason)
			errs = multierr.Append(errs, res.err)
			if c.logger != nil {
				c.logger.Debug("Filter rejected", "filter", f.Text, "err", res.err)
			}
		case f.IsInvalid():
			c.skip(string(f.Reason))
		case !f.IsRequestFilter():
			c.skip(SkipContentFilter)
		case len(res.rules) == 0:
			c.skip(SkipNoRules)
			if c.logger != nil {
				c.logger.Debug("Filter has no rule equivalent", "filter", f.Text)
			}
		default:
			c.stats.Converted++
			c.stats.Rules += len(res.rules)
			rules = append(rules, res.rules...)
		}
	}

	return rules, errs
}
