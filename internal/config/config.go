package config

import (
	"reflect"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	GCP        GCPConfig        `yaml:"gcp" mapstructure:"gcp"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	DocumentAI DocumentAIConfig `yaml:"document_ai" mapstructure:"document_ai"`
	DLP        DLPConfig        `yaml:"dlp" mapstructure:"dlp"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PathsConfig holds the base directories of the on-disk artifact trees.
type PathsConfig struct {
	EventsDir       string `yaml:"events_dir" mapstructure:"events_dir"`
	RawDir          string `yaml:"raw_dir" mapstructure:"raw_dir"`
	RedactedDir     string `yaml:"redacted_dir" mapstructure:"redacted_dir"`
	GeneralDir      string `yaml:"general_dir" mapstructure:"general_dir"`
	AnalysisDir     string `yaml:"analysis_dir" mapstructure:"analysis_dir"`
	SensitiveFolder string `yaml:"sensitive_folder" mapstructure:"sensitive_folder"`
	GeneralFolder   string `yaml:"general_folder" mapstructure:"general_folder"`
}

// GCPConfig holds Google Cloud project and credential settings shared by
// Document AI and DLP.
type GCPConfig struct {
	ProjectID       string `yaml:"project_id" mapstructure:"project_id"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath     string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey        string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel      string  `yaml:"mistral_model" mapstructure:"mistral_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// DocumentAIConfig holds Document AI processor settings.
type DocumentAIConfig struct {
	Location    string `yaml:"location" mapstructure:"location"`
	ProcessorID string `yaml:"processor_id" mapstructure:"processor_id"`
	MimeType    string `yaml:"mime_type" mapstructure:"mime_type"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
}

// DLPConfig holds Cloud DLP de-identification settings.
type DLPConfig struct {
	Location           string  `yaml:"location" mapstructure:"location"`
	DeidentifyTemplate string  `yaml:"deidentify_template" mapstructure:"deidentify_template"`
	InspectTemplate    string  `yaml:"inspect_template" mapstructure:"inspect_template"`
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond  float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// GenerationConfig selects the language-model backend.
type GenerationConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnalysisConfig holds the built-in prompt/model used when no prompt
// template is active.
type AnalysisConfig struct {
	DefaultPrompt string `yaml:"default_prompt" mapstructure:"default_prompt"`
	DefaultModel  string `yaml:"default_model" mapstructure:"default_model"`
}

// PipelineConfig configures per-file retry and service circuit breakers.
type PipelineConfig struct {
	RetryMaxAttempts        int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs   int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs       int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetTimeoutSecs int `yaml:"circuit_reset_timeout_secs" mapstructure:"circuit_reset_timeout_secs"`
}

// ArchiveConfig configures the optional S3-compatible artifact mirror.
// The mirror is disabled when Endpoint is empty.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// BatchConfig configures multi-event processing.
type BatchConfig struct {
	MaxConcurrentEvents int `yaml:"max_concurrent_events" mapstructure:"max_concurrent_events"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// PricingConfig holds per-model token pricing keyed by model ID.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// MonitoringConfig configures failure and cost alerts. Alerts are only
// sent when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinDocuments         int     `yaml:"min_documents" mapstructure:"min_documents"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, reflect.TypeOf(Config{}), "")

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// bindEnv registers every leaf key of t with viper. Unmarshal only consults
// the environment for keys viper already knows, and most credentials have
// no default.
func bindEnv(v *viper.Viper, t reflect.Type, prefix string) {
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		switch f.Type.Kind() {
		case reflect.Struct:
			bindEnv(v, f.Type, key)
		case reflect.Map:
			// pricing.models comes from the config file only
		default:
			_ = v.BindEnv(key)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "claims.db")
	v.SetDefault("paths.events_dir", "poistne_udalosti")
	v.SetDefault("paths.raw_dir", "raw_ocr_output")
	v.SetDefault("paths.redacted_dir", "anonymized_output")
	v.SetDefault("paths.general_dir", "general_output")
	v.SetDefault("paths.analysis_dir", "analysis_output")
	v.SetDefault("paths.sensitive_folder", "citlive_dokumenty")
	v.SetDefault("paths.general_folder", "vseobecne_dokumenty")
	v.SetDefault("ocr.provider", "documentai")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_model", "pixtral-large-latest")
	v.SetDefault("document_ai.location", "eu")
	v.SetDefault("document_ai.mime_type", "application/pdf")
	v.SetDefault("dlp.location", "europe-west3")
	v.SetDefault("generation.provider", "anthropic")
	v.SetDefault("generation.max_tokens", 8192)
	v.SetDefault("analysis.default_prompt", "Summarize the key points of the following insurance claim documents.")
	v.SetDefault("analysis.default_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("pipeline.retry_max_attempts", 1)
	v.SetDefault("pipeline.retry_initial_backoff_ms", 1000)
	v.SetDefault("pipeline.retry_max_backoff_ms", 30000)
	v.SetDefault("pipeline.circuit_failure_threshold", 5)
	v.SetDefault("pipeline.circuit_reset_timeout_secs", 60)
	v.SetDefault("archive.bucket", "claims-artifacts")
	v.SetDefault("archive.use_ssl", true)
	v.SetDefault("batch.max_concurrent_events", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.min_documents", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.models", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 0.80, "output": 4.00},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.00, "output": 15.00},
		"gpt-4o":                     map[string]any{"input": 2.50, "output": 10.00},
		"gpt-4o-mini":                map[string]any{"input": 0.15, "output": 0.60},
	})
}

// Validate checks that the settings required by the given mode are present.
// Modes: "process", "analyze", "run", "batch", "serve", "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "process":
		errs = append(errs, c.validateProcess()...)
	case "analyze":
		errs = append(errs, c.validateAnalyze()...)
	case "run":
		errs = append(errs, c.validateProcess()...)
		errs = append(errs, c.validateAnalyze()...)
	case "batch":
		errs = append(errs, c.validateProcess()...)
		errs = append(errs, c.validateAnalyze()...)
		if c.Batch.MaxConcurrentEvents < 1 || c.Batch.MaxConcurrentEvents > 16 {
			errs = append(errs, "batch.max_concurrent_events must be between 1 and 16")
		}
	case "serve":
		errs = append(errs, c.validateProcess()...)
		errs = append(errs, c.validateAnalyze()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, "store.driver must be one of sqlite, postgres, mysql")
	}
	if c.Store.Driver != "sqlite" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateProcess() []string {
	var errs []string
	switch c.OCR.Provider {
	case "documentai", "":
		if c.GCP.ProjectID == "" {
			errs = append(errs, "gcp.project_id is required")
		}
		if c.DocumentAI.ProcessorID == "" {
			errs = append(errs, "document_ai.processor_id is required")
		}
	case "mistral":
		if c.OCR.MistralKey == "" {
			errs = append(errs, "ocr.mistral_api_key is required")
		}
	case "local":
	default:
		errs = append(errs, "ocr.provider must be one of documentai, local, mistral")
	}
	if c.GCP.ProjectID == "" && c.OCR.Provider != "documentai" && c.OCR.Provider != "" {
		errs = append(errs, "gcp.project_id is required")
	}
	if c.DLP.DeidentifyTemplate == "" {
		errs = append(errs, "dlp.deidentify_template is required")
	}
	return errs
}

func (c *Config) validateAnalyze() []string {
	switch c.Generation.Provider {
	case "anthropic", "":
		if c.Anthropic.Key == "" {
			return []string{"anthropic.key is required"}
		}
	case "openai":
		if c.OpenAI.Key == "" {
			return []string{"openai.key is required"}
		}
	default:
		return []string{"generation.provider must be one of anthropic, openai"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
