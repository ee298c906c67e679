package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docutag/scout"
	"github.com/docutag/scout/models"
)

var (
	scanFile        string
	scanConcurrency int
	scanJSON        bool
)

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Run one live search and print the threads found",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [keyword]",
	Short: "Print the stored analysis for a keyword, computing it on a miss",
	Long: `Returns the newest stored analysis for the exact keyword. When none exists a
live search is run, the niche is classified and the result is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var scanCmd = &cobra.Command{
	Use:   "scan [keywords...]",
	Short: "Analyse many keywords concurrently and print a summary table",
	Long: `Analyses every keyword given as an argument or listed in --file (one per
line, # starts a comment). Keywords already analysed are served from the store.

Example:
  scout scan "yoga mats" "standing desks" --concurrency 2`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFile, "file", "f", "", "File with one keyword per line")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 3, "Keywords analysed in parallel")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print full records as JSON")

	rootCmd.AddCommand(searchCmd, analyzeCmd, scanCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	keyword := args[0]
	threads, err := a.Scout.Search(ctx, keyword)
	if err != nil && !errors.Is(err, scout.ErrNoResultsFound) {
		return fmt.Errorf("search failed: %w", err)
	}
	if threads == nil {
		threads = []models.Thread{}
	}

	return printJSON(cmd.OutOrStdout(), models.SearchResponse{
		Keyword: keyword,
		Results: threads,
		Count:   len(threads),
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	record, err := a.Analysis.GetOrCompute(ctx, args[0])
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), record)
}

func runScan(cmd *cobra.Command, args []string) error {
	keywords := args
	if scanFile != "" {
		fromFile, err := readKeywords(scanFile)
		if err != nil {
			return err
		}
		keywords = append(keywords, fromFile...)
	}
	if len(keywords) == 0 {
		return errors.New("no keywords given")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records := make([]*models.AnalysisRecord, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(scanConcurrency, 1))
	for i, keyword := range keywords {
		g.Go(func() error {
			record, err := a.Analysis.GetOrCompute(gctx, keyword)
			if err != nil {
				return fmt.Errorf("failed to analyse %q: %w", keyword, err)
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if scanJSON {
		return printJSON(cmd.OutOrStdout(), records)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEYWORD\tLEVEL\tCOUNT\tCONFIDENCE\tLIVE\tCACHED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%t\n", r.Keyword, r.Level, r.Count, r.ConfidenceValue(), r.LiveData, r.Cached)
	}
	return w.Flush()
}

// readKeywords reads one keyword per line, skipping blanks and # comments
func readKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword file: %w", err)
	}
	defer f.Close()

	var keywords []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}
	return keywords, nil
}
