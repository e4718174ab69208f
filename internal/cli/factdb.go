package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimstream/internal/model"
)

var factdbCmd = &cobra.Command{
	Use:   "factdb",
	Short: "Manage the local fact-check database",
}

var factdbImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Load curated fact checks into the database",
	Long: `Import reads a YAML list of fact checks:

  - claim: "Unemployment is at a 50 year low"
    claimant: "Jane Doe"
    rating: "Mostly true"
    summary: "The rate hit 3.5 percent, the lowest since 1969."
    url: "https://example.org/checks/unemployment"
    publisher: "Example Checks"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readFactChecks(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			for i, entry := range entries {
				if _, err := a.store.AddFactCheck(ctx, entry); err != nil {
					return fmt.Errorf("entry %d: %w", i+1, err)
				}
			}
			fmt.Fprintf(os.Stderr, "✓ Imported %d fact checks\n", len(entries))
			return nil
		})
	},
}

// readFactChecks parses and validates a fact-check YAML file
func readFactChecks(path string) ([]model.FactCheckEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fact checks: %w", err)
	}
	var entries []model.FactCheckEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse fact checks: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Claim) == "" || strings.TrimSpace(e.Rating) == "" {
			return nil, fmt.Errorf("entry %d: claim and rating are required", i+1)
		}
	}
	return entries, nil
}

func init() {
	rootCmd.AddCommand(factdbCmd)
	factdbCmd.AddCommand(factdbImportCmd)
}
