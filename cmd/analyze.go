package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listing-intel/internal/intel"
	"github.com/sells-group/listing-intel/internal/model"
)

var analyzeConcurrency int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>...",
	Short: "Analyze one or more listing URLs and print the results as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initIntel(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		results := analyzeAll(cmd.Context(), env.Orchestrator, args, analyzeConcurrency)
		return writeResults(os.Stdout, results)
	},
}

// analyzeResult is one line of analyze output.
type analyzeResult struct {
	URL         string                 `json:"url"`
	Opportunity *model.LeadOpportunity `json:"opportunity,omitempty"`
	Error       string                 `json:"error,omitempty"`
	ErrorKind   string                 `json:"error_kind,omitempty"`
}

type urlAnalyzer interface {
	AnalyzeLeadFromURL(ctx context.Context, url string) (*model.LeadOpportunity, error)
}

// analyzeAll runs the URLs with bounded concurrency, preserving input order.
// A failing URL never stops the others.
func analyzeAll(ctx context.Context, a urlAnalyzer, urls []string, concurrency int) []analyzeResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]analyzeResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() error {
			res := analyzeResult{URL: u}
			opp, err := a.AnalyzeLeadFromURL(gctx, u)
			if err != nil {
				zap.L().Warn("analyze failed", zap.String("url", u), zap.Error(err))
				res.Error = err.Error()
				res.ErrorKind = string(intel.KindOf(err))
			} else {
				res.Opportunity = opp
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func writeResults(w io.Writer, results []analyzeResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 4, "number of URLs analyzed at once")
	rootCmd.AddCommand(analyzeCmd)
}
