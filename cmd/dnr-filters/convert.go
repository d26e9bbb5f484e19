package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/bnema/dnr-filters/internal/converter"
	"github.com/bnema/dnr-filters/internal/fetcher"
	"github.com/bnema/dnr-filters/internal/models"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Compile filter lists to declarativeNetRequest rulesets",
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringP("output", "o", "./output", "output directory")
	convertCmd.Flags().Bool("dry-run", false, "parse and convert without writing files")
	convertCmd.Flags().Bool("combined", true, "generate combined output file")
	convertCmd.Flags().String("format", "", "output format, json or yaml (default from config)")
}

// convertOptions are the flags shared by convert and watch
type convertOptions struct {
	outputDir string
	dryRun    bool
	combined  bool
	format    string
}

func convertFlags(cmd *cobra.Command) convertOptions {
	outputDir, _ := cmd.Flags().GetString("output")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	combined, _ := cmd.Flags().GetBool("combined")
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.Output.Format
	}
	return convertOptions{
		outputDir: outputDir,
		dryRun:    dryRun,
		combined:  combined && cfg.Output.GenerateCombined,
		format:    format,
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	return convertLists(cmd.Context(), convertFlags(cmd))
}

func convertLists(ctx context.Context, opts convertOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.format != "json" && opts.format != "yaml" {
		return fmt.Errorf("unknown output format %q (want json or yaml)", opts.format)
	}

	enabledLists := cfg.EnabledLists()
	if len(enabledLists) == 0 {
		return fmt.Errorf("no enabled filter lists found in config")
	}

	caps, err := capabilities()
	if err != nil {
		return err
	}

	fmt.Printf("Converting %d filter lists...\n", len(enabledLists))
	if opts.dryRun {
		fmt.Println("[DRY RUN] No files will be written")
	}

	f := fetcher.New(cfg.HTTP, fetcher.WithFs(appFs), fetcher.WithLogger(logger))
	splitter := converter.NewSplitter(cfg.Output.MaxRulesPerFile)

	var allRules []models.Rule
	results := make(map[string]ListResult)
	var rulesets []RuleResource

	// Aggregate skip reasons across all lists
	totalSkips := make(map[string]int)

	for _, list := range enabledLists {
		fmt.Printf("\n  Processing %s...\n", list.Name)

		// Fetch
		data, err := f.Fetch(ctx, list.URL)
		if err != nil {
			fmt.Printf("    ERROR: %v\n", err)
			continue
		}
		fmt.Printf("    Downloaded: %d bytes\n", len(data))

		// Parse (fresh parser per list for accurate stats)
		p := newParser()
		filters, err := p.Parse(bytes.NewReader(data))
		if err != nil {
			fmt.Printf("    ERROR parsing: %v\n", err)
			continue
		}
		pStats := p.Stats()

		// Convert (fresh converter per list for accurate stats)
		c := converter.NewWithOptions(converter.Options{
			Capabilities: caps,
			Workers:      cfg.Compiler.Workers,
			Logger:       logger,
		})
		rules, convErr := c.Convert(filters)
		cStats := c.Stats()
		rejected := multierr.Errors(convErr)
		for _, e := range rejected {
			logger.Debug("Rejected filter", "list", list.Name, "err", e)
		}

		totalSkipped := pStats.Invalid + cStats.Skipped
		fmt.Printf("    Converted: %d filters into %d rules (skipped: %d, rejected: %d)\n",
			cStats.Converted, len(rules), totalSkipped, len(rejected))

		if verbose {
			fmt.Printf("    Parsed: %d total, %d blocking, %d allowing, %d content, %d comments\n",
				pStats.Total, pStats.Blocking, pStats.Allowing, pStats.Content, pStats.Comments)
		}
		for reason, count := range pStats.SkipReasons {
			totalSkips[string(reason)] += count
		}
		for reason, count := range cStats.SkipReasons {
			totalSkips[reason] += count
		}
		if verbose {
			printSkips("    ", pStats.SkipReasons, cStats.SkipReasons)
		}

		rules = converter.Deduplicate(rules)
		converter.AssignIDs(rules, cfg.Compiler.FirstRuleID)

		results[list.Name] = ListResult{
			Name:          list.Name,
			URL:           list.URL,
			RulesCount:    len(rules),
			SkippedCount:  totalSkipped,
			RejectedCount: len(rejected),
		}

		if !opts.dryRun {
			// Split and write
			parts := splitter.Split(rules, list.Name)
			for _, name := range sortedKeys(parts) {
				file, err := writeRuleset(appFs, opts.outputDir, name, opts.format, parts[name])
				if err != nil {
					fmt.Printf("    ERROR writing %s: %v\n", name, err)
					continue
				}
				rulesets = append(rulesets, RuleResource{ID: name, Enabled: !opts.combined, Path: file})
			}
		}

		allRules = append(allRules, rules...)
	}

	// Show skip summary
	if len(totalSkips) > 0 {
		fmt.Printf("\nSkipped filters summary:\n")
		for _, reason := range sortedKeys(totalSkips) {
			if slices.Contains(cfg.Compiler.SkipReasons, reason) {
				continue
			}
			fmt.Printf("  %s: %d\n", reason, totalSkips[reason])
		}
	}

	var combinedFiles []string
	if opts.combined && len(allRules) > 0 {
		fmt.Printf("\nGenerating combined output...\n")
		allRules = converter.Deduplicate(allRules)
		converter.AssignIDs(allRules, cfg.Compiler.FirstRuleID)
		fmt.Printf("  Total rules: %d (after deduplication)\n", len(allRules))

		if !opts.dryRun {
			parts := splitter.Split(allRules, "combined")
			for _, name := range sortedKeys(parts) {
				file, err := writeRuleset(appFs, opts.outputDir, name, opts.format, parts[name])
				if err != nil {
					fmt.Printf("  ERROR writing %s: %v\n", name, err)
					continue
				}
				combinedFiles = append(combinedFiles, file)
				rulesets = append(rulesets, RuleResource{ID: name, Enabled: true, Path: file})
			}
		}
	}

	// Write manifest
	if !opts.dryRun && cfg.Output.GenerateManifest && len(results) > 0 {
		now := time.Now()
		manifest := Manifest{
			Version:     now.Format("2006.01.02"),
			GeneratedAt: now.UTC().Format(time.RFC3339),
			Lists:       results,
			Combined: CombinedInfo{
				TotalRules: len(allRules),
				Files:      combinedFiles,
			},
			DeclarativeNetRequest: DNRManifest{RuleResources: rulesets},
		}
		if _, err := writeDocument(appFs, opts.outputDir, "manifest", "json", manifest); err != nil {
			fmt.Printf("  ERROR writing manifest: %v\n", err)
		}
	}

	fmt.Println("\nDone!")
	return nil
}

func printSkips(indent string, parse map[models.Reason]int, convert map[string]int) {
	if len(parse) > 0 {
		fmt.Printf("%sParse skips:\n", indent)
		for reason, count := range parse {
			fmt.Printf("%s  - %s: %d\n", indent, reason, count)
		}
	}
	if len(convert) > 0 {
		fmt.Printf("%sConvert skips:\n", indent)
		for _, reason := range sortedKeys(convert) {
			fmt.Printf("%s  - %s: %d\n", indent, reason, convert[reason])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeRuleset writes one ruleset and returns its file name
func writeRuleset(fs afero.Fs, dir, name, format string, rules []models.Rule) (string, error) {
	return writeDocument(fs, dir, name, format, rules)
}

func writeDocument(fs afero.Fs, dir, name, format string, data any) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	var (
		buf      []byte
		err      error
		filename string
	)
	switch format {
	case "yaml":
		filename = name + ".yaml"
		buf, err = yaml.Marshal(data)
	default:
		filename = name + ".json"
		buf, err = json.MarshalIndent(data, "", "  ")
		buf = append(buf, '\n')
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", filename, err)
	}

	if err := afero.WriteFile(fs, filepath.Join(dir, filename), buf, 0644); err != nil {
		return "", err
	}
	return filename, nil
}

// ListResult contains conversion results for a single list
type ListResult struct {
	Name          string `json:"name"`
	URL           string `json:"source_url"`
	RulesCount    int    `json:"rules_count"`
	SkippedCount  int    `json:"skipped_count"`
	RejectedCount int    `json:"rejected_count"`
}

// Manifest contains metadata about the conversion
type Manifest struct {
	Version               string                `json:"version"`
	GeneratedAt           string                `json:"generated_at"`
	Lists                 map[string]ListResult `json:"lists"`
	Combined              CombinedInfo          `json:"combined"`
	DeclarativeNetRequest DNRManifest           `json:"declarative_net_request"`
}

// CombinedInfo contains combined file info
type CombinedInfo struct {
	TotalRules int      `json:"total_rules"`
	Files      []string `json:"files"`
}

// DNRManifest is the extension manifest fragment registering the rulesets
type DNRManifest struct {
	RuleResources []RuleResource `json:"rule_resources"`
}

// RuleResource is one static ruleset entry of the extension manifest
type RuleResource struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
