package model

import "time"

// Config is the complete claimstream configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Queue         QueueConfig         `yaml:"queue" mapstructure:"queue"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	FactCheck     FactCheckConfig     `yaml:"factcheck" mapstructure:"factcheck"`
	Transcription TranscriptionConfig `yaml:"transcription" mapstructure:"transcription"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Authority     AuthorityConfig     `yaml:"authority" mapstructure:"authority"`
	Watch         WatchConfig         `yaml:"watch" mapstructure:"watch"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP boundary
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	PublicURL       string        `yaml:"public_url" mapstructure:"public_url"` // Base for transcription webhooks
}

// StoreConfig configures the persistent store
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // SQLite file, ":memory:" for ephemeral
}

// PipelineConfig holds the stitching and segmentation tunables
type PipelineConfig struct {
	SegmentSeconds    int           `yaml:"segment_seconds" mapstructure:"segment_seconds"`
	TailThresholdMs   int           `yaml:"tail_threshold_ms" mapstructure:"tail_threshold_ms"`
	HeadThresholdMs   int           `yaml:"head_threshold_ms" mapstructure:"head_threshold_ms"`
	GarbageStartMs    int           `yaml:"garbage_start_ms" mapstructure:"garbage_start_ms"`
	GarbageConfidence float64       `yaml:"garbage_confidence" mapstructure:"garbage_confidence"`
	HoldBackTerminal  bool          `yaml:"hold_back_terminal" mapstructure:"hold_back_terminal"`
	ContextSentences  int           `yaml:"context_sentences" mapstructure:"context_sentences"`
	MinClaimWords     int           `yaml:"min_claim_words" mapstructure:"min_claim_words"` // Sentences with this many words or fewer are skipped
	RecentSentences   int           `yaml:"recent_sentences" mapstructure:"recent_sentences"`
	NotReadyWindow    time.Duration `yaml:"not_ready_window" mapstructure:"not_ready_window"`
}

// QueueConfig configures the work queue and redelivery policy
type QueueConfig struct {
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	MaxAttempts  int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	DeferDelay   time.Duration `yaml:"defer_delay" mapstructure:"defer_delay"`
	MaxDeferrals int           `yaml:"max_deferrals" mapstructure:"max_deferrals"`
	ClaimDelay   time.Duration `yaml:"claim_delay" mapstructure:"claim_delay"`
}

// LLMConfig configures the language model used for claim extraction and review
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	StrictEvidence bool   `yaml:"strict_evidence" mapstructure:"strict_evidence"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FactCheckConfig configures the fact-check cascade and its external sources
type FactCheckConfig struct {
	DefaultService     string        `yaml:"default_service" mapstructure:"default_service"`
	GoogleAPIKey       string        `yaml:"google_api_key,omitempty" mapstructure:"google_api_key"`
	SearchEngineID     string        `yaml:"search_engine_id,omitempty" mapstructure:"search_engine_id"`
	NewscatcherAPIKey  string        `yaml:"newscatcher_api_key,omitempty" mapstructure:"newscatcher_api_key"`
	GoogleFactCheckURL string        `yaml:"google_factcheck_url" mapstructure:"google_factcheck_url"`
	CustomSearchURL    string        `yaml:"custom_search_url" mapstructure:"custom_search_url"`
	NewscatcherURL     string        `yaml:"newscatcher_url" mapstructure:"newscatcher_url"`
	MaxResults         int           `yaml:"max_results" mapstructure:"max_results"`
	MinSimilarity      float64       `yaml:"min_similarity" mapstructure:"min_similarity"`
	ReviewPages        int           `yaml:"review_pages" mapstructure:"review_pages"`
	RequestsPerSecond  float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst              int           `yaml:"burst" mapstructure:"burst"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent          string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxPageBytes       int64         `yaml:"max_page_bytes" mapstructure:"max_page_bytes"`
	RespectRobotsTxt   bool          `yaml:"respect_robots_txt" mapstructure:"respect_robots_txt"`
	HTTPProxy          string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy         string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy            string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// TranscriptionConfig configures the speech-to-text provider
type TranscriptionConfig struct {
	APIKey  string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"` // seconds
}

// CacheConfig configures the fact-check response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// AuthorityConfig configures evidence source classification
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"`
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty" mapstructure:"path_patterns"`
}

// PathPattern maps a URL path regexp to an authority tier
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Tier    string `yaml:"tier" mapstructure:"tier"`
}

// WatchConfig configures the drop folder
type WatchConfig struct {
	Dir    string        `yaml:"dir" mapstructure:"dir"`
	Settle time.Duration `yaml:"settle" mapstructure:"settle"` // Wait after a write before reading
}

// LogConfig configures structured logging
type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
	Development bool   `yaml:"development" mapstructure:"development"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path: "claimstream.db",
		},
		Pipeline: PipelineConfig{
			SegmentSeconds:    10,
			TailThresholdMs:   9000,
			HeadThresholdMs:   2000,
			GarbageStartMs:    8000,
			GarbageConfidence: 0.6,
			HoldBackTerminal:  true,
			ContextSentences:  4,
			MinClaimWords:     3,
			RecentSentences:   5,
			NotReadyWindow:    10 * time.Second,
		},
		Queue: QueueConfig{
			Workers:      4,
			MaxAttempts:  5,
			RetryDelay:   2 * time.Second,
			DeferDelay:   2 * time.Second,
			MaxDeferrals: 30,
			ClaimDelay:   time.Second,
		},
		LLM: LLMConfig{
			Provider:       "", // Disabled by default
			Timeout:        30,
			StrictEvidence: true,
			MaxTokens:      1000,
		},
		FactCheck: FactCheckConfig{
			DefaultService:     "all",
			GoogleFactCheckURL: "https://factchecktools.googleapis.com/v1alpha1/claims:search",
			CustomSearchURL:    "https://www.googleapis.com/customsearch/v1",
			NewscatcherURL:     "https://v3-api.newscatcherapi.com/api/search",
			MaxResults:         5,
			MinSimilarity:      0.3,
			ReviewPages:        3,
			RequestsPerSecond:  2,
			Burst:              4,
			Timeout:            20 * time.Second,
			UserAgent:          "claimstream/0.1 (+https://github.com/ppiankov/claimstream)",
			MaxPageBytes:       2 << 20,
			RespectRobotsTxt:   true,
		},
		Transcription: TranscriptionConfig{
			BaseURL: "https://api.assemblyai.com",
			Timeout: 30,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".claimstream-cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"ons.gov.uk",
				"legislation.gov.uk",
				"census.gov",
				"bls.gov",
				"europa.eu",
				"who.int",
				"doi.org",
			},
			SecondaryDomains: []string{
				"fullfact.org",
				"politifact.com",
				"factcheck.org",
				"snopes.com",
				"reuters.com",
				"apnews.com",
				"bbc.co.uk",
			},
			PathPatterns: []PathPattern{
				{Pattern: `(?i)/fact-?check`, Tier: "secondary"},
			},
		},
		Watch: WatchConfig{
			Dir:    "inbox",
			Settle: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
