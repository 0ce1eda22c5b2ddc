package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Port           string           `yaml:"port"`
	DatabaseURL    string           `yaml:"database_url"`
	DBMaxOpenConns int              `yaml:"db_max_open_conns"`
	LogLevel       string           `yaml:"log_level"`
	LogFormat      string           `yaml:"log_format"` // text or json
	JWTSecret      string           `yaml:"jwt_secret"`
	PublicBaseURL  string           `yaml:"public_base_url"`
	ReconcileEvery time.Duration    `yaml:"reconcile_interval"`
	Storage        StorageConfig    `yaml:"storage"`
	Extraction     ExtractionConfig `yaml:"extraction"`
	PDF            PDFConfig        `yaml:"pdf"`
	TitleSequence  string           `yaml:"title_sequence"` // postgres or redis
	RedisURL       string           `yaml:"redis_url"`
}

// StorageConfig selects where uploads are kept.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // local, s3 or gcs
	UploadDir  string `yaml:"upload_dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	GCSBucket  string `yaml:"gcs_bucket"`
	MaxBytes   int64  `yaml:"max_upload_bytes"`
	MaxFiles   int    `yaml:"max_files_per_request"`
}

// ExtractionConfig selects and tunes the model provider.
type ExtractionConfig struct {
	Provider       string        `yaml:"provider"` // openai or vertex
	OpenAIAPIKey   string        `yaml:"openai_api_key"`
	OpenAIModel    string        `yaml:"openai_model"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	VertexProject  string        `yaml:"vertex_project"`
	VertexLocation string        `yaml:"vertex_location"`
	VertexModel    string        `yaml:"vertex_model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RPS            float64       `yaml:"rps"`
}

// PDFConfig tunes PDF rendering.
type PDFConfig struct {
	PdftoppmPath string        `yaml:"pdftoppm_path"`
	DPI          int           `yaml:"render_dpi"`
	JPEGQuality  int           `yaml:"jpeg_quality"`
	Timeout      time.Duration `yaml:"conversion_timeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:           "8080",
		DBMaxOpenConns: 25,
		LogLevel:       "info",
		LogFormat:      "text",
		ReconcileEvery: 5 * time.Minute,
		Storage: StorageConfig{
			Backend:   "local",
			UploadDir: "./uploads",
			MaxBytes:  100 << 20,
			MaxFiles:  5,
		},
		Extraction: ExtractionConfig{
			Provider:       "openai",
			OpenAIModel:    "gpt-4o",
			VertexLocation: "us-central1",
			VertexModel:    "gemini-1.5-pro",
			Timeout:        60 * time.Second,
			MaxRetries:     3,
			RPS:            2,
		},
		PDF: PDFConfig{
			PdftoppmPath: "pdftoppm",
			DPI:          150,
			JPEGQuality:  80,
			Timeout:      60 * time.Second,
		},
		TitleSequence: "postgres",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.setString("PORT", &c.Port)
	e.setString("DATABASE_URL", &c.DatabaseURL)
	e.setInt("DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns)
	e.setString("LOG_LEVEL", &c.LogLevel)
	e.setString("LOG_FORMAT", &c.LogFormat)
	e.setString("JWT_SECRET", &c.JWTSecret)
	e.setString("PUBLIC_BASE_URL", &c.PublicBaseURL)
	e.setDuration("RECONCILE_INTERVAL", &c.ReconcileEvery)

	e.setString("STORAGE_BACKEND", &c.Storage.Backend)
	e.setString("UPLOAD_DIR", &c.Storage.UploadDir)
	e.setString("S3_BUCKET", &c.Storage.S3Bucket)
	e.setString("S3_REGION", &c.Storage.S3Region)
	e.setString("S3_ENDPOINT", &c.Storage.S3Endpoint)
	e.setString("GCS_BUCKET", &c.Storage.GCSBucket)
	e.setInt64("MAX_UPLOAD_BYTES", &c.Storage.MaxBytes)
	e.setInt("MAX_FILES_PER_REQUEST", &c.Storage.MaxFiles)

	e.setString("EXTRACTION_PROVIDER", &c.Extraction.Provider)
	e.setString("OPENAI_API_KEY", &c.Extraction.OpenAIAPIKey)
	e.setString("OPENAI_MODEL", &c.Extraction.OpenAIModel)
	e.setString("OPENAI_BASE_URL", &c.Extraction.OpenAIBaseURL)
	e.setString("VERTEX_PROJECT", &c.Extraction.VertexProject)
	e.setString("VERTEX_LOCATION", &c.Extraction.VertexLocation)
	e.setString("VERTEX_MODEL", &c.Extraction.VertexModel)
	e.setDuration("EXTRACTION_TIMEOUT", &c.Extraction.Timeout)
	e.setInt("EXTRACTION_MAX_RETRIES", &c.Extraction.MaxRetries)
	e.setFloat("EXTRACTION_RPS", &c.Extraction.RPS)

	e.setString("PDFTOPPM_PATH", &c.PDF.PdftoppmPath)
	e.setInt("PDF_RENDER_DPI", &c.PDF.DPI)
	e.setInt("JPEG_QUALITY", &c.PDF.JPEGQuality)
	e.setDuration("CONVERSION_TIMEOUT", &c.PDF.Timeout)

	e.setString("TITLE_SEQUENCE", &c.TitleSequence)
	e.setString("REDIS_URL", &c.RedisURL)

	return errors.Join(e.errs...)
}

// Validate checks settings that do not depend on which command runs.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 backend"))
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be local, s3 or gcs, got %q", c.Storage.Backend))
	}
	switch c.Extraction.Provider {
	case "openai", "vertex":
	default:
		errs = append(errs, fmt.Errorf("EXTRACTION_PROVIDER must be openai or vertex, got %q", c.Extraction.Provider))
	}
	switch c.TitleSequence {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis title sequence"))
		}
	default:
		errs = append(errs, fmt.Errorf("TITLE_SEQUENCE must be postgres or redis, got %q", c.TitleSequence))
	}
	if c.Storage.MaxBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Storage.MaxFiles <= 0 {
		errs = append(errs, errors.New("MAX_FILES_PER_REQUEST must be positive"))
	}
	if c.ReconcileEvery <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// RequireDatabase reports a missing DATABASE_URL for commands that need one.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// ParseLevel maps LOG_LEVEL onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
}

// Logger builds the process logger described by the config.
func (c *Config) Logger() *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}
