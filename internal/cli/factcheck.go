package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimstream/internal/model"
)

var (
	fcSpeaker string
	fcService string
	fcJSON    bool
	fcTimeout time.Duration
)

// factcheckCmd represents the factcheck command
var factcheckCmd = &cobra.Command{
	Use:   "factcheck <claim>",
	Short: "Fact-check a single claim",
	Long: `Factcheck runs a claim through the source cascade:
- the local fact-check database
- published fact checks (Google Fact Check Tools)
- web and news search, ranked by source authority and reviewed by the LLM

Services: database, google, search, any (stop at the first source with
results), all (default).

Example:
  claimstream factcheck "Unemployment fell to 3 percent"
  claimstream factcheck "I cut taxes" --speaker "Jane Doe" --service google --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFactCheck,
}

func init() {
	rootCmd.AddCommand(factcheckCmd)

	factcheckCmd.Flags().StringVar(&fcSpeaker, "speaker", "", "who made the claim")
	factcheckCmd.Flags().StringVar(&fcService, "service", "", "source selector (overrides factcheck.default_service)")
	factcheckCmd.Flags().BoolVar(&fcJSON, "json", false, "print the raw JSON result")
	factcheckCmd.Flags().DurationVar(&fcTimeout, "timeout", 2*time.Minute, "overall timeout")
}

func runFactCheck(cmd *cobra.Command, args []string) error {
	claim := strings.Join(args, " ")

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, fcTimeout)
	defer cancelTimeout()

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Checking: %s\n\n", claim)
	}

	res, err := a.pipeline.FactCheck(ctx, claim, fcSpeaker, fcService)
	if err != nil {
		return fmt.Errorf("fact check failed: %w", err)
	}

	if fcJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printFactCheck(res)
	return nil
}

func printFactCheck(res *model.FactCheckResult) {
	fmt.Printf("Claim: %s\n", res.CheckedClaim)
	if len(res.Results) == 0 {
		fmt.Println("No fact checks or evidence found.")
		return
	}
	fmt.Printf("Source: %s\n\n", res.Source)
	for i, r := range res.Results {
		rating := r.Rating
		if rating == "" {
			rating = "unrated"
		}
		fmt.Printf("%d. [%s] %s\n", i+1, rating, firstNonEmpty(r.Title, r.Claim))
		if r.Publisher != "" {
			fmt.Printf("   %s\n", r.Publisher)
		}
		if r.URL != "" {
			fmt.Printf("   %s\n", r.URL)
		}
		if r.Summary != "" {
			fmt.Printf("   %s\n", r.Summary)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
