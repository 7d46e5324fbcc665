package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends and credential sources.
const (
	StoreCSV      = "csv"
	StoreDynamoDB = "dynamodb"

	CredentialsEnv = "env"
	CredentialsSSM = "ssm"
)

// Config holds all runtime settings. Values come from the environment, with
// an optional .env file loaded first.
type Config struct {
	Port string

	OpenAIKey         string
	OpenRouterKey     string
	OpenAIBaseURL     string
	OpenRouterBaseURL string

	PrefillModel    string
	UpstreamTimeout time.Duration

	StoreBackend string
	CSVPath      string
	InvoiceTable string

	CredentialSource string
	ParamPrefix      string
}

// Load reads configuration from the environment. A missing .env file is not
// an error; API keys may legitimately be absent and then fail at call time.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Config{
		Port:              envOr("PORT", "8090"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenRouterKey:     os.Getenv("OPENROUTER_API_KEY"),
		OpenAIBaseURL:     envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenRouterBaseURL: envOr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		PrefillModel:      envOr("PREFILL_MODEL", "gpt-5-mini"),
		UpstreamTimeout:   time.Duration(envInt("UPSTREAM_TIMEOUT_SECONDS", 60)) * time.Second,
		StoreBackend:      envOr("STORE_BACKEND", StoreCSV),
		CSVPath:           envOr("CSV_PATH", "data.csv"),
		InvoiceTable:      os.Getenv("INVOICE_TABLE"),
		CredentialSource:  envOr("CREDENTIAL_SOURCE", CredentialsEnv),
		ParamPrefix:       os.Getenv("PARAM_PREFIX"),
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.StoreBackend {
	case StoreCSV:
	case StoreDynamoDB:
		if cfg.InvoiceTable == "" {
			return fmt.Errorf("config: INVOICE_TABLE is required when STORE_BACKEND=%s", StoreDynamoDB)
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.CredentialSource {
	case CredentialsEnv:
	case CredentialsSSM:
		if cfg.ParamPrefix == "" {
			return fmt.Errorf("config: PARAM_PREFIX is required when CREDENTIAL_SOURCE=%s", CredentialsSSM)
		}
	default:
		return fmt.Errorf("config: unknown CREDENTIAL_SOURCE %q", cfg.CredentialSource)
	}

	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("config: UPSTREAM_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
