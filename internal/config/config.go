// ABOUTME: Configuration loading and parsing for voyage-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by store.backend and queue.backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendSQS      = "sqs"
)

// Planner names accepted by agents.planner.
const (
	PlannerLocal  = "local"
	PlannerOpenAI = "openai"
)

// Config represents the complete voyage-gateway configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	Queue        QueueConfig        `yaml:"queue"`
	Worker       WorkerConfig       `yaml:"worker"`
	Stream       StreamConfig       `yaml:"stream"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Agents       AgentsConfig       `yaml:"agents"`
	AWS          AWSConfig          `yaml:"aws"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`

	// Diagnostic exposes internal error detail in error events.
	Diagnostic bool `yaml:"diagnostic"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the session store
type StoreConfig struct {
	Backend string `yaml:"backend"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// Table is the DynamoDB table name.
	Table string `yaml:"table"`

	// SessionTTL ages out idle DynamoDB sessions. Zero keeps them.
	SessionTTL    time.Duration `yaml:"-"`
	SessionTTLRaw string        `yaml:"session_ttl"`
}

// QueueConfig selects and configures the task queue
type QueueConfig struct {
	Backend    string        `yaml:"backend"`
	URL        string        `yaml:"url"`
	DLQURL     string        `yaml:"dlq_url"`
	WaitTime   time.Duration `yaml:"-"`
	Visibility time.Duration `yaml:"-"`

	WaitTimeRaw   string `yaml:"wait_time"`
	VisibilityRaw string `yaml:"visibility_timeout"`
}

// WorkerConfig tunes the worker pool
type WorkerConfig struct {
	// Embedded runs the pool inside serve. Required with the memory queue.
	Embedded    bool `yaml:"embedded"`
	Slots       int  `yaml:"slots"`
	MaxAttempts int  `yaml:"max_attempts"`
	// SearchRate is search calls per second across the process.
	SearchRate float64 `yaml:"search_rate"`

	BackoffInitial time.Duration `yaml:"-"`
	BackoffMax     time.Duration `yaml:"-"`
	TaskTimeout    time.Duration `yaml:"-"`
	EffectTTL      time.Duration `yaml:"-"`

	BackoffInitialRaw string `yaml:"backoff_initial"`
	BackoffMaxRaw     string `yaml:"backoff_max"`
	TaskTimeoutRaw    string `yaml:"task_timeout"`
	EffectTTLRaw      string `yaml:"effect_ttl"`
}

// StreamConfig bounds each turn's event stream
type StreamConfig struct {
	Buffer int `yaml:"buffer"`

	TurnTimeout    time.Duration `yaml:"-"`
	TurnTimeoutRaw string        `yaml:"turn_timeout"`
}

// OrchestratorConfig tunes turn handling
type OrchestratorConfig struct {
	HistoryLimit int `yaml:"history_limit"`

	PollInterval    time.Duration `yaml:"-"`
	PollIntervalRaw string        `yaml:"poll_interval"`
}

// AgentsConfig holds collaborator adapter configuration
type AgentsConfig struct {
	// Planner is "local" (rule based) or "openai".
	Planner  string         `yaml:"planner"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Naver    NaverConfig    `yaml:"naver"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Calendar CalendarConfig `yaml:"calendar"`
}

// OpenAIConfig holds chat completion settings
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	MaxRetries int    `yaml:"max_retries"`
}

// NaverConfig holds local search API credentials. Empty credentials fall
// back to the built-in place list.
type NaverConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Endpoint     string `yaml:"endpoint"`
}

// SMTPConfig holds outbound mail settings. An empty host disables mail.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// CalendarConfig holds Google Calendar settings. An empty credentials file
// disables registration.
type CalendarConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TimeZone        string `yaml:"time_zone"`
}

// AWSConfig overrides the SDK's default resolution
type AWSConfig struct {
	Region string `yaml:"region"`
	// Endpoint points both SQS and DynamoDB at a local emulator.
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given: everything
// in memory with the rule-based agents.
func Default() *Config {
	cfg := &Config{
		Server:  ServerConfig{HTTPAddr: "localhost:8080"},
		Store:   StoreConfig{Backend: BackendMemory},
		Queue:   QueueConfig{Backend: BackendMemory},
		Worker:  WorkerConfig{Embedded: true},
		Agents:  AgentsConfig{Planner: PlannerLocal},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration already read into memory.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarRe.FindStringSubmatch(match)[1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = BackendMemory
	}
	if cfg.Agents.Planner == "" {
		cfg.Agents.Planner = PlannerLocal
	}
	if cfg.Stream.TurnTimeout <= 0 {
		cfg.Stream.TurnTimeout = 2 * time.Minute
	}
	if cfg.Worker.EffectTTL <= 0 {
		cfg.Worker.EffectTTL = 10 * time.Minute
	}
	if cfg.Worker.SearchRate <= 0 {
		cfg.Worker.SearchRate = 10
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the sqlite backend")
		}
	case BackendDynamoDB:
		if c.Store.Table == "" {
			return errors.New("store.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, sqlite, dynamodb", c.Store.Backend)
	}

	switch c.Queue.Backend {
	case BackendMemory:
		// Producers and consumers must share the process.
		if !c.Worker.Embedded {
			return errors.New("worker.embedded must be true with the memory queue")
		}
	case BackendSQS:
		if c.Queue.URL == "" {
			return errors.New("queue.url is required for the sqs backend")
		}
	default:
		return fmt.Errorf("queue.backend %q is not one of memory, sqs", c.Queue.Backend)
	}

	switch c.Agents.Planner {
	case PlannerLocal:
	case PlannerOpenAI:
		if c.Agents.OpenAI.APIKey == "" {
			return errors.New("agents.openai.api_key is required for the openai planner")
		}
	default:
		return fmt.Errorf("agents.planner %q is not one of local, openai", c.Agents.Planner)
	}

	if c.Worker.Slots < 0 || c.Worker.MaxAttempts < 0 {
		return errors.New("worker.slots and worker.max_attempts must not be negative")
	}
	if c.Worker.BackoffMax > 0 && c.Worker.BackoffInitial > c.Worker.BackoffMax {
		return errors.New("worker.backoff_initial must not exceed worker.backoff_max")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"store.session_ttl", cfg.Store.SessionTTLRaw, &cfg.Store.SessionTTL},
		{"queue.wait_time", cfg.Queue.WaitTimeRaw, &cfg.Queue.WaitTime},
		{"queue.visibility_timeout", cfg.Queue.VisibilityRaw, &cfg.Queue.Visibility},
		{"worker.backoff_initial", cfg.Worker.BackoffInitialRaw, &cfg.Worker.BackoffInitial},
		{"worker.backoff_max", cfg.Worker.BackoffMaxRaw, &cfg.Worker.BackoffMax},
		{"worker.task_timeout", cfg.Worker.TaskTimeoutRaw, &cfg.Worker.TaskTimeout},
		{"worker.effect_ttl", cfg.Worker.EffectTTLRaw, &cfg.Worker.EffectTTL},
		{"stream.turn_timeout", cfg.Stream.TurnTimeoutRaw, &cfg.Stream.TurnTimeout},
		{"orchestrator.poll_interval", cfg.Orchestrator.PollIntervalRaw, &cfg.Orchestrator.PollInterval},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
