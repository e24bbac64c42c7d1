package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SYMSTATE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SYMSTATE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

// CoreOptions is the read-only configuration surface consumed by the core.
type CoreOptions struct {
	ContextBudget    int             `validate:"gt=0"`
	VerifiedBonus    float64         `validate:"gt=0"`
	ConfidenceFloor  float64         `validate:"gte=0,lte=1"`
	VerifierTimeout  time.Duration   `validate:"gt=0"`
	SnapshotBackend  string          `validate:"required"`
	EnabledVerifiers map[string]bool `validate:"-"`
	RecencyDecay     float64         `validate:"gte=0"`
	ReviewInterval   time.Duration   `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Core assembles and validates the core options from the environment.
func Core() (CoreOptions, error) {
	opts := CoreOptions{
		ContextBudget:    ContextBudget(),
		VerifiedBonus:    VerifiedBonus(),
		ConfidenceFloor:  ConfidenceFloor(),
		VerifierTimeout:  VerifierTimeout(),
		SnapshotBackend:  SnapshotBackend(),
		EnabledVerifiers: EnabledVerifiers(),
		RecencyDecay:     RecencyDecay(),
		ReviewInterval:   ReviewInterval(),
	}
	if err := validate.Struct(opts); err != nil {
		return CoreOptions{}, fmt.Errorf("invalid core configuration: %w", err)
	}
	return opts, nil
}

// ContextBudget returns the token budget for compressed context.
// Defaults to 2000 if not set.
func ContextBudget() int {
	return envInt("CONTEXT_BUDGET", 2000)
}

// VerifiedBonus returns the significance bonus applied to verified symbols.
// Defaults to 0.5 if not set.
func VerifiedBonus() float64 {
	return envFloat("VERIFIED_BONUS", 0.5)
}

// ConfidenceFloor returns the confidence above which verified symbols are
// always retained first. Defaults to 0.5 if not set.
func ConfidenceFloor() float64 {
	return envFloat("CONFIDENCE_FLOOR", 0.5)
}

// VerifierTimeout defaults to 30 seconds.
func VerifierTimeout() time.Duration {
	return time.Duration(envInt("VERIFIER_TIMEOUT_SECONDS", 30)) * time.Second
}

// SnapshotBackend selects the durable store: a postgres:// URL, a sqlite:
// path (or *.db file), or a YAML/JSON document path.
func SnapshotBackend() string {
	b := os.Getenv("SNAPSHOT_BACKEND")
	if b == "" {
		return "symstate.yaml"
	}
	return b
}

// EnabledVerifiers parses a comma separated list.
// Defaults to z3, lean4 and datalog.
func EnabledVerifiers() map[string]bool {
	raw := os.Getenv("ENABLED_VERIFIERS")
	if raw == "" {
		raw = "z3,lean4,datalog"
	}
	out := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out[name] = true
		}
	}
	return out
}

// ExternalVerifiers parses EXTERNAL_VERIFIERS ("name=/path/to/bin,...") into
// subprocess verifiers speaking the JSON result contract.
func ExternalVerifiers() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv("EXTERNAL_VERIFIERS"), ",") {
		name, path, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || path == "" {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(path)
	}
	return out
}

// RecencyDecay is the per-snapshot exponential decay used in significance
// scoring. Defaults to 0.1.
func RecencyDecay() float64 {
	return envFloat("RECENCY_DECAY", 0.1)
}

// ReviewInterval is how long an in-progress target may go without a drift
// review before alignment checks flag it. 0 disables the check.
func ReviewInterval() time.Duration {
	return time.Duration(envInt("REVIEW_INTERVAL_HOURS", 0)) * time.Hour
}

// MultiFramework makes symbol upserts that collide with another framework
// register under term@framework instead of failing with a conflict.
func MultiFramework() bool {
	v, err := strconv.ParseBool(os.Getenv("MULTI_FRAMEWORK"))
	return err == nil && v
}

// DatalogFactLimit caps derived facts per datalog evaluation.
// Defaults to 100000.
func DatalogFactLimit() int {
	return envInt("DATALOG_FACT_LIMIT", 100000)
}

func Z3Path() string {
	return os.Getenv("Z3_PATH")
}

func LeanPath() string {
	return os.Getenv("LEAN_PATH")
}

func ServerPort() int {
	return envInt("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// APIKey protects the /v1 routes. Empty disables authentication.
func APIKey() string {
	return os.Getenv("API_KEY")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "local" if not set.
// Valid values: openai, local
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "local"
	}
	return p
}

// EmbeddingDimensions defaults to 256.
func EmbeddingDimensions() int {
	return envInt("EMBEDDING_DIM", 256)
}

// Tokenizer selects the token counter used for context budgets.
// Valid values: chars (default), or a tiktoken encoding such as cl100k_base.
func Tokenizer() string {
	t := os.Getenv("TOKENIZER")
	if t == "" {
		return "chars"
	}
	return t
}

// FlushInterval defaults to 60 seconds.
func FlushInterval() time.Duration {
	return time.Duration(envInt("FLUSH_INTERVAL_SECONDS", 60)) * time.Second
}

// PersistMaxRetries is the number of retries after the first failed
// durable write. Defaults to 3.
func PersistMaxRetries() int {
	return envInt("PERSIST_MAX_RETRIES", 3)
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps := envFloat("RATE_LIMIT_RPS", 100)
	if rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst := envInt("RATE_LIMIT_BURST", 20)
	if burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}
