package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimstream/internal/model"
)

// Version is set at build time via -ldflags "-X github.com/ppiankov/claimstream/internal/cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimstream",
	Short: "claimstream - continuity pipeline for streamed speech-to-text",
	Long: `claimstream turns a stream of independently transcribed audio segments
into one coherent, numbered sentence transcript, detects checkable claims
in each sentence and fact-checks them against a cascade of sources.

It does not decide what is true. Fact-check results are references to
published reviews and evidence, ranked by source authority.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("claimstream %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.claimstream/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// configDir returns ~/.claimstream
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	return filepath.Join(home, ".claimstream"), nil
}

// secretKeys are omitted from the seeded defaults, so they are bound explicitly
var secretKeys = []string{
	"llm.api_key",
	"llm.base_url",
	"factcheck.google_api_key",
	"factcheck.search_engine_id",
	"factcheck.newscatcher_api_key",
	"factcheck.http_proxy",
	"factcheck.https_proxy",
	"factcheck.no_proxy",
	"transcription.api_key",
}

// initConfig reads in config file and ENV variables
func initConfig() {
	// Seed every key with its default so CLAIMSTREAM_* overrides reach all of them
	viper.SetConfigType("yaml")
	if defaults, err := yaml.Marshal(model.DefaultConfig()); err == nil {
		_ = viper.ReadConfig(bytes.NewReader(defaults))
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CLAIMSTREAM_*
	viper.SetEnvPrefix("CLAIMSTREAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range secretKeys {
		_ = viper.BindEnv(key)
	}

	// If a config file is found, merge it over the defaults
	err := viper.MergeInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	case errors.As(err, &notFound):
	default:
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
	}
}

// loadConfig resolves the effective configuration: flags, env, file, defaults
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyCredentials(&cfg)
	if verbose && cfg.Log.Level == "info" {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// applyCredentials fills secrets from the well-known provider env vars when
// the config does not carry them
func applyCredentials(cfg *model.Config) {
	setIfEmpty := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		setIfEmpty(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "anthropic", "claude":
		setIfEmpty(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "ollama":
		// Ollama doesn't need an API key
		setIfEmpty(&cfg.LLM.BaseURL, "OLLAMA_BASE_URL")
	}

	setIfEmpty(&cfg.FactCheck.GoogleAPIKey, "GOOGLE_API_KEY")
	setIfEmpty(&cfg.FactCheck.SearchEngineID, "GOOGLE_SEARCH_ENGINE_ID")
	setIfEmpty(&cfg.FactCheck.NewscatcherAPIKey, "NEWSCATCHER_API_KEY")
	setIfEmpty(&cfg.FactCheck.HTTPProxy, "HTTP_PROXY")
	setIfEmpty(&cfg.FactCheck.HTTPSProxy, "HTTPS_PROXY")
	setIfEmpty(&cfg.FactCheck.NoProxy, "NO_PROXY")
	setIfEmpty(&cfg.Transcription.APIKey, "ASSEMBLYAI_API_KEY")
}
