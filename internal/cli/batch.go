package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/worker"
)

var (
	concurrency  int
	batchOutput  string
	batchService string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Fact-check multiple claims from a file in parallel",
	Long: `Batch fact-checks claims concurrently:
- Read claims from input file (one per line, optional "speaker<TAB>claim")
- Check claims in parallel with configurable worker count
- Outbound requests share the per-host rate limiter
- Write all results to a single JSON file

Example:
  claimstream batch claims.txt
  claimstream batch claims.txt --concurrency 8 --output results.json
  claimstream batch claims.txt --service database --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&batchOutput, "output", "factchecks.json", "output JSON path")
	batchCmd.Flags().StringVar(&batchService, "service", "", "source selector (overrides factcheck.default_service)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
}

type batchEntry struct {
	Claim   string                 `json:"claim"`
	Speaker string                 `json:"speaker,omitempty"`
	Result  *model.FactCheckResult `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, batchTimeout)
	defer cancelTimeout()

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	service := batchService
	if service == "" {
		service = a.cfg.FactCheck.DefaultService
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  claimstream Batch Fact Check\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Service:      %s\n", service)
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", batchOutput)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)
	results, err := processor.ProcessFile(ctx, file, service)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	entries := make([]batchEntry, 0, len(results))
	successCount, failureCount, withResults := 0, 0, 0
	for _, result := range results {
		entry := batchEntry{Claim: result.Request.Claim, Speaker: result.Request.Speaker}
		if result.Error != nil {
			failureCount++
			entry.Error = result.Error.Error()
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Request.Claim, result.Error)
			entries = append(entries, entry)
			continue
		}

		successCount++
		entry.Result = result.Result
		if len(result.Result.Results) > 0 {
			withResults++
		}
		fmt.Fprintf(os.Stderr, "✓ %s (%d results)\n", result.Request.Claim, len(result.Result.Results))
		entries = append(entries, entry)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(batchOutput, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:         %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Checked:       %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  With results:  %d\n", withResults)
	fmt.Fprintf(os.Stderr, "  Failures:      %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
