// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
  shutdown_timeout: "15s"

store:
  backend: sqlite
  path: "./sessions.db"

queue:
  backend: sqs
  url: "https://sqs.ap-northeast-2.amazonaws.com/123/voyage-tasks"
  dlq_url: "https://sqs.ap-northeast-2.amazonaws.com/123/voyage-dlq"
  wait_time: "10s"
  visibility_timeout: "2m"

worker:
  slots: 8
  max_attempts: 5
  backoff_initial: "500ms"
  backoff_max: "30s"
  task_timeout: "90s"

stream:
  buffer: 32
  turn_timeout: "45s"

agents:
  planner: openai
  openai:
    api_key: "sk-test"
    model: "gpt-4o"
  naver:
    client_id: "id"
    client_secret: "secret"
  smtp:
    host: "smtp.example.com"
    from: "plans@example.com"
  calendar:
    credentials_file: "/etc/voyage/gcal.json"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"

diagnostic: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 15s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.Path != "./sessions.db" {
		t.Errorf("Store = %+v, want sqlite at ./sessions.db", cfg.Store)
	}
	if cfg.Queue.Backend != BackendSQS || cfg.Queue.WaitTime != 10*time.Second || cfg.Queue.Visibility != 2*time.Minute {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Worker.Slots != 8 || cfg.Worker.MaxAttempts != 5 {
		t.Errorf("Worker slots/attempts = %d/%d, want 8/5", cfg.Worker.Slots, cfg.Worker.MaxAttempts)
	}
	if cfg.Worker.BackoffInitial != 500*time.Millisecond || cfg.Worker.BackoffMax != 30*time.Second {
		t.Errorf("Worker backoff = %v..%v", cfg.Worker.BackoffInitial, cfg.Worker.BackoffMax)
	}
	if cfg.Worker.TaskTimeout != 90*time.Second {
		t.Errorf("Worker.TaskTimeout = %v, want 90s", cfg.Worker.TaskTimeout)
	}
	if cfg.Stream.Buffer != 32 || cfg.Stream.TurnTimeout != 45*time.Second {
		t.Errorf("Stream = %+v", cfg.Stream)
	}
	if cfg.Agents.Planner != PlannerOpenAI || cfg.Agents.OpenAI.Model != "gpt-4o" {
		t.Errorf("Agents = %+v", cfg.Agents)
	}
	if cfg.Agents.Calendar.CredentialsFile != "/etc/voyage/gcal.json" {
		t.Errorf("Agents.Calendar.CredentialsFile = %q", cfg.Agents.Calendar.CredentialsFile)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Diagnostic {
		t.Error("Diagnostic = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_addr: "localhost:9000"
worker:
  embedded: true
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Queue.Backend != BackendMemory {
		t.Errorf("Queue.Backend = %q, want memory", cfg.Queue.Backend)
	}
	if cfg.Agents.Planner != PlannerLocal {
		t.Errorf("Agents.Planner = %q, want local", cfg.Agents.Planner)
	}
	if cfg.Stream.TurnTimeout != 2*time.Minute {
		t.Errorf("Stream.TurnTimeout = %v, want 2m", cfg.Stream.TurnTimeout)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("VOYAGE_TEST_OPENAI_KEY", "sk-from-env")
	t.Setenv("VOYAGE_TEST_ADDR", "127.0.0.1:8181")

	cfg, err := Load(writeConfig(t, `
server:
  http_addr: "${VOYAGE_TEST_ADDR}"
worker:
  embedded: true
agents:
  planner: openai
  openai:
    api_key: "${VOYAGE_TEST_OPENAI_KEY}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8181" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8181")
	}
	if cfg.Agents.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("Agents.OpenAI.APIKey = %q, want %q", cfg.Agents.OpenAI.APIKey, "sk-from-env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  http_addr: "localhost:8080"
worker:
  embedded: true
  backoff_max: "soon"
`))
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "worker.backoff_max") {
		t.Errorf("error %q should name the field", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid default", func(*Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"sqlite without path", func(c *Config) { c.Store.Backend = BackendSQLite }, "store.path"},
		{"dynamodb without table", func(c *Config) { c.Store.Backend = BackendDynamoDB }, "store.table"},
		{"unknown store", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"sqs without url", func(c *Config) { c.Queue.Backend = BackendSQS }, "queue.url"},
		{"memory queue without embedded worker", func(c *Config) { c.Worker.Embedded = false }, "worker.embedded"},
		{"sqs with standalone worker", func(c *Config) {
			c.Queue.Backend = BackendSQS
			c.Queue.URL = "https://sqs.example/q"
			c.Worker.Embedded = false
		}, ""},
		{"openai without key", func(c *Config) { c.Agents.Planner = PlannerOpenAI }, "agents.openai.api_key"},
		{"unknown planner", func(c *Config) { c.Agents.Planner = "oracle" }, "agents.planner"},
		{"backoff inverted", func(c *Config) {
			c.Worker.BackoffInitial = time.Minute
			c.Worker.BackoffMax = time.Second
		}, "backoff_initial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("VOYAGE_TEST_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"${VOYAGE_TEST_A}", "alpha"},
		{"pre-${VOYAGE_TEST_A}-post", "pre-alpha-post"},
		{"${VOYAGE_TEST_UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
