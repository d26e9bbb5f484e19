package models

import "time"

// Config represents the main configuration
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Output   OutputConfig   `mapstructure:"output"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Lists    []FilterList   `mapstructure:"lists"`
}

// HTTPConfig contains HTTP client settings
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// OutputConfig contains output settings
type OutputConfig struct {
	MaxRulesPerFile  int    `mapstructure:"max_rules_per_file"`
	GenerateCombined bool   `mapstructure:"generate_combined"`
	GenerateManifest bool   `mapstructure:"generate_manifest"`
	Format           string `mapstructure:"format"` // json or yaml
}

// CompilerConfig controls parsing and rule compilation
type CompilerConfig struct {
	RegexSupport  string   `mapstructure:"regex_support"` // chrome, all or none
	InlineCSS     bool     `mapstructure:"inline_css"`
	Sitekeys      bool     `mapstructure:"sitekeys"`
	ResourcesFile string   `mapstructure:"resources_file"`
	FirstRuleID   int      `mapstructure:"first_rule_id"`
	Workers       int      `mapstructure:"workers"`
	SkipReasons   []string `mapstructure:"skip_reasons"` // reasons hidden from the summary
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// FilterList represents a single filter list configuration
type FilterList struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"` // http(s) URL or local path
	Enabled bool   `mapstructure:"enabled"`
}

// EnabledLists returns only enabled filter lists
func (c *Config) EnabledLists() []FilterList {
	var enabled []FilterList
	for _, l := range c.Lists {
		if l.Enabled {
			enabled = append(enabled, l)
		}
	}
	return enabled
}
