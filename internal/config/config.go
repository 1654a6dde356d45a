// Package config loads the gateway's environment-driven configuration,
// following the same cleanenv + godotenv + validator pattern the rest of
// this codebase's lineage uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/vsnation/beamgate/internal/logging"
)

// Config is the full process configuration, loaded once at startup.
type Config struct {
	NodeRPCURL string `env:"BEAMGATE_NODE_RPC_URL" env-default:"http://127.0.0.1:10000/api/wallet"`

	DatabaseDriver string `env:"BEAMGATE_DATABASE_DRIVER" env-default:"postgres"`
	DatabaseDSN    string `env:"BEAMGATE_DATABASE_URL" env-default:""`
	DatabaseSchema string `env:"BEAMGATE_DATABASE_SCHEMA" env-default:""`

	ConfirmationThreshold int `env:"BEAMGATE_CONFIRMATION_THRESHOLD" env-default:"80" validate:"min=1"`

	NativePriceURL string `env:"BEAMGATE_NATIVE_PRICE_URL" env-default:""`

	WebhookURLsRaw      string `env:"BEAMGATE_WEBHOOK_URLS" env-default:""`
	VerifiedAssetIDsRaw string `env:"BEAMGATE_VERIFIED_ASSET_IDS" env-default:""`
	SpamAssetIDsRaw     string `env:"BEAMGATE_SPAM_ASSET_IDS" env-default:""`

	DEXContractID string `env:"BEAMGATE_DEX_CONTRACT_ID" env-default:""`

	TelegramBotToken  string `env:"BEAMGATE_TELEGRAM_BOT_TOKEN" env-default:""`
	TelegramChannelID string `env:"BEAMGATE_TELEGRAM_CHANNEL_ID" env-default:""`

	FastLoopInterval    time.Duration `env:"BEAMGATE_FAST_LOOP_INTERVAL" env-default:"5s"`
	SlowLoopInterval    time.Duration `env:"BEAMGATE_SLOW_LOOP_INTERVAL" env-default:"120s"`
	WebhookLoopInterval time.Duration `env:"BEAMGATE_WEBHOOK_LOOP_INTERVAL" env-default:"10s"`

	MaxWebhookRetries int `env:"BEAMGATE_WEBHOOK_MAX_RETRIES" env-default:"5" validate:"min=1"`

	LogLevel  logging.Level `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string        `env:"LOG_FORMAT" env-default:"logfmt"`

	MetricsAddr string `env:"BEAMGATE_METRICS_ADDR" env-default:":9090"`
}

// WebhookURLs splits the comma-separated BEAMGATE_WEBHOOK_URLS value.
func (c Config) WebhookURLs() []string { return splitCSV(c.WebhookURLsRaw) }

// VerifiedAssetIDs parses the comma-separated verified asset allow-list.
func (c Config) VerifiedAssetIDs() map[int64]struct{} { return parseIDSet(c.VerifiedAssetIDsRaw) }

// SpamAssetIDs parses the comma-separated spam asset deny-list.
func (c Config) SpamAssetIDs() map[int64]struct{} { return parseIDSet(c.SpamAssetIDsRaw) }

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDSet(raw string) map[int64]struct{} {
	ids := splitCSV(raw)
	set := make(map[int64]struct{}, len(ids))
	for _, s := range ids {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Load reads .env (if present), then environment variables into Config,
// and validates the result.
func Load() (Config, error) {
	var cfg Config

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("loading .env: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}
