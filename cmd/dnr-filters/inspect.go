package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/dnr-filters/internal/converter"
	"github.com/bnema/dnr-filters/internal/domains"
	"github.com/bnema/dnr-filters/internal/elemhide"
	"github.com/bnema/dnr-filters/internal/fetcher"
	"github.com/bnema/dnr-filters/internal/index"
	"github.com/bnema/dnr-filters/internal/models"
	"github.com/bnema/dnr-filters/internal/parser"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report filters that cannot be applied, grouped by reason",
	RunE:  runCheck,
}

var queryCmd = &cobra.Command{
	Use:   "query <domain>",
	Short: "Show the filters that apply to a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	checkCmd.Flags().Int("examples", 3, "example filters shown per reason")

	queryCmd.Flags().String("url", "", "also report request filters matching this URL")
	queryCmd.Flags().Bool("serialize", false, "print matched filters in the [Filter] line format")
}

func runCheck(cmd *cobra.Command, args []string) error {
	examples, _ := cmd.Flags().GetInt("examples")

	caps, err := capabilities()
	if err != nil {
		return err
	}

	f := fetcher.New(cfg.HTTP, fetcher.WithFs(appFs), fetcher.WithLogger(logger))
	for _, list := range cfg.EnabledLists() {
		data, err := f.Fetch(cmdContext(cmd), list.URL)
		if err != nil {
			logger.Error("Fetch failed", "list", list.Name, "err", err)
			continue
		}

		p := newParser()
		filters, err := p.Parse(bytes.NewReader(data))
		if err != nil {
			logger.Error("Parse failed", "list", list.Name, "err", err)
			continue
		}
		stats := p.Stats()

		byReason := make(map[string][]string)
		for _, rejected := range stats.Rejected {
			byReason[string(rejected.Reason)] = append(byReason[string(rejected.Reason)], rejected.Text)
		}
		for _, filter := range filters {
			_, err := converter.Compile(filter, caps)
			var ce *converter.CompileError
			if errors.As(err, &ce) {
				byReason[string(ce.Reason)] = append(byReason[string(ce.Reason)], filter.Text)
			}
		}

		fmt.Printf("%s: %d filters, %d invalid at parse time\n", list.Name, stats.Total-stats.Comments, stats.Invalid)
		for _, reason := range sortedKeys(byReason) {
			texts := byReason[reason]
			fmt.Printf("  %s: %d\n", reason, len(texts))
			for i := 0; i < len(texts) && i < examples; i++ {
				fmt.Printf("      %s\n", texts[i])
			}
		}
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	domain := domains.Canonicalize(args[0])
	rawURL, _ := cmd.Flags().GetString("url")
	serialize, _ := cmd.Flags().GetBool("serialize")

	requests := index.NewDomainIndex()
	emulation := elemhide.NewStore()
	cache := parser.NewCache(newParser())

	f := fetcher.New(cfg.HTTP, fetcher.WithFs(appFs), fetcher.WithLogger(logger))
	for _, list := range cfg.EnabledLists() {
		data, err := f.Fetch(cmdContext(cmd), list.URL)
		if err != nil {
			logger.Error("Fetch failed", "list", list.Name, "err", err)
			continue
		}

		var batch []*models.Filter
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "[") {
				continue
			}
			filter := cache.FromText(line)
			if filter.IsRequestFilter() {
				batch = append(batch, filter)
			} else if filter.IsContentFilter() {
				emulation.Add(filter)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read %s: %w", list.Name, err)
		}
		requests.AddAll(batch)
	}
	logger.Debug("Lists loaded", "filters", cache.Len(), "domains", requests.Size(), "emulation", emulation.Len())

	var active []*models.Filter
	for suffix := range domains.Suffixes(domain, true) {
		for filter, include := range requests.Get(suffix).All() {
			if include && filter.IsActiveOn(domain) && !containsFilter(active, filter) {
				active = append(active, filter)
			}
		}
	}

	fmt.Printf("Request filters active on %s: %d\n", domain, len(active))
	if rawURL != "" {
		if _, err := url.Parse(rawURL); err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		for _, filter := range active {
			if parser.MatchURL(filter, rawURL) {
				printFilter(filter, serialize)
			}
		}
	} else if verbose {
		for _, filter := range active {
			printFilter(filter, serialize)
		}
	}

	emulated := emulation.GetFilters(domain)
	fmt.Printf("Element hiding emulation filters for %s: %d\n", domain, len(emulated))
	for _, filter := range emulated {
		printFilter(filter, serialize)
	}
	return nil
}

func printFilter(f *models.Filter, serialize bool) {
	if !serialize {
		fmt.Printf("  [%s] %s\n", f.Kind, f.Text)
		return
	}
	for _, line := range parser.Serialize(f) {
		fmt.Println(line)
	}
}

func containsFilter(filters []*models.Filter, f *models.Filter) bool {
	for _, existing := range filters {
		if existing == f {
			return true
		}
	}
	return false
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
