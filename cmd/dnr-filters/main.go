package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/dnr-filters/internal/converter"
	"github.com/bnema/dnr-filters/internal/models"
	"github.com/bnema/dnr-filters/internal/parser"
)

const defaultConfigPath = "./configs/dnr_filters.toml"

var (
	cfgFile string
	verbose bool
	cfg     models.Config
	logger  *log.Logger
	appFs   = afero.NewOsFs()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dnr-filters",
	Short: "Compile Adblock Plus filter lists to declarativeNetRequest rulesets",
	Long: `A tool that parses Adblock Plus filter lists and compiles their request
filters into declarativeNetRequest static rulesets for browser extensions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := log.InfoLevel
		if cfg.Logging.Level != "" {
			parsed, err := log.ParseLevel(cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("invalid logging.level: %w", err)
			}
			level = parsed
		}
		if verbose {
			level = log.DebugLevel
		}
		logger = log.NewWithOptions(os.Stderr, log.Options{
			Level:           level,
			ReportTimestamp: true,
		})
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured filter lists",
	RunE:  runList,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	RunE:  runInit,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: "+defaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(convertCmd, checkCmd, queryCmd, watchCmd, listCmd, initCmd)
}

func initConfig() {
	// A missing .env is fine, it only feeds the environment overrides
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dnr_filters")
		viper.SetConfigType("toml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("DNR_FILTERS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("http.timeout", "30s")
	viper.SetDefault("http.retries", 3)
	viper.SetDefault("output.max_rules_per_file", converter.MaxRulesPerFile)
	viper.SetDefault("output.generate_combined", true)
	viper.SetDefault("output.generate_manifest", true)
	viper.SetDefault("output.format", "json")
	viper.SetDefault("compiler.regex_support", "chrome")
	viper.SetDefault("compiler.first_rule_id", 1)
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(&cfg, hooks); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing config: %v\n", err)
	}
}

// newParser builds a parser with the configured feature toggles
func newParser() *parser.Parser {
	return parser.NewWithOptions(parser.Options{
		InlineCSS: cfg.Compiler.InlineCSS,
		Sitekeys:  cfg.Compiler.Sitekeys,
	})
}

// capabilities resolves the host capabilities from the compiler section
func capabilities() (converter.Capabilities, error) {
	supported, err := converter.RegexSupportByName(cfg.Compiler.RegexSupport)
	if err != nil {
		return converter.Capabilities{}, err
	}

	resources := converter.DefaultResources()
	if cfg.Compiler.ResourcesFile != "" {
		resources, err = converter.LoadResources(appFs, cfg.Compiler.ResourcesFile)
		if err != nil {
			return converter.Capabilities{}, err
		}
	}

	return converter.Capabilities{IsRegexSupported: supported, Resources: resources}, nil
}

func runList(cmd *cobra.Command, args []string) error {
	fmt.Println("Configured filter lists:")
	fmt.Println()
	for _, list := range cfg.Lists {
		status := "enabled"
		if !list.Enabled {
			status = "disabled"
		}
		fmt.Printf("  [%s] %s\n", status, list.Name)
		fmt.Printf("         %s\n\n", list.URL)
	}
	return nil
}

const defaultConfig = `# Adblock Plus to declarativeNetRequest compiler configuration

# HTTP client settings
[http]
timeout = "30s"
retries = 3

# Output settings
[output]
max_rules_per_file = 30000
generate_combined = true
generate_manifest = true
format = "json" # json or yaml

# Compiler settings
[compiler]
regex_support = "chrome" # chrome, all or none
inline_css = false
sitekeys = false
resources_file = ""
first_rule_id = 1
workers = 0
skip_reasons = []

[logging]
level = "info"

# Filter lists to compile, url may be a local path
# Set enabled = false to skip a list

[[lists]]
name = "easylist"
url = "https://easylist-downloads.adblockplus.org/easylist.txt"
enabled = true

[[lists]]
name = "easyprivacy"
url = "https://easylist-downloads.adblockplus.org/easyprivacy.txt"
enabled = true

[[lists]]
name = "abp-filters-anti-cv"
url = "https://easylist-downloads.adblockplus.org/abp-filters-anti-cv.txt"
enabled = true

[[lists]]
name = "exceptionrules"
url = "https://easylist-downloads.adblockplus.org/exceptionrules.txt"
enabled = false
`

func runInit(cmd *cobra.Command, args []string) error {
	configPath := defaultConfigPath
	if cfgFile != "" {
		configPath = cfgFile
	}

	if exists, _ := afero.Exists(appFs, configPath); exists {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := appFs.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	if err := afero.WriteFile(appFs, configPath, []byte(defaultConfig), 0644); err != nil {
		return err
	}

	fmt.Printf("Created config file: %s\n", configPath)
	return nil
}
