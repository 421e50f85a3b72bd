// Package config loads the OMS process configuration: a config.json
// file naming the instrument catalog and exchange subscriptions, plus
// per-exchange API credentials from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/errs"
)

// ExecutionConfig names which API and feed adapter a subscription uses.
// FeedURL is the WebSocket endpoint the named feed adapter dials; empty
// means the subscription has no live feed (paper-only instruments).
type ExecutionConfig struct {
	API     string `json:"api"`
	Feed    string `json:"feed"`
	FeedURL string `json:"feed_url,omitempty"`
}

// SubscriptionConfig is one exchange/product-type group of symbols to
// trade, as listed in config.json's subscriptions array.
type SubscriptionConfig struct {
	Exchange    string          `json:"exchange"`
	ProductType string          `json:"product_type"`
	Symbols     []string        `json:"symbols"`
	Execution   ExecutionConfig `json:"execution"`
}

// QuotingConfig is the optional per-instance quoting override a symbol
// may carry in config.json. Zero-valued fields fall back to whatever
// default the caller applies.
type QuotingConfig struct {
	Symbol       string          `json:"symbol"`
	BidSpreadBps decimal.Decimal `json:"bid_spread_bps"`
	AskSpreadBps decimal.Decimal `json:"ask_spread_bps"`
	SkewBps      decimal.Decimal `json:"skew_bps"`
	Size         decimal.Decimal `json:"size"`
	PostOnly     bool            `json:"post_only"`
	Depth        int             `json:"depth"`
	QuoterType   string          `json:"quoter_type"`
	MaxPosition  decimal.Decimal `json:"max_position"`

	// HedgeSymbol, if set, names another instrument in the same data
	// folder's catalog that this instance's fills should be hedged
	// into (e.g. a linear perpetual quoting instance hedged onto its
	// underlying spot).
	HedgeSymbol    string          `json:"hedge_symbol,omitempty"`
	HedgeSliceSize decimal.Decimal `json:"hedge_slice_size,omitempty"`
}

// PersistenceConfig configures the fills store. The backend is chosen
// from DSN alone: a postgres:// or postgresql:// URL selects Postgres,
// anything else is a SQLite file path. Driver defaults to "sqlite" and
// does not select the backend.
type PersistenceConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ControlConfig configures the OMS control-protocol WebSocket server.
type ControlConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// fileConfig is the exact on-disk shape of config.json.
type fileConfig struct {
	OMSIdentifier string               `json:"oms_identifier"`
	DataFolder    string               `json:"data_folder"`
	Subscriptions []SubscriptionConfig `json:"subscriptions"`
	Quoting       []QuotingConfig      `json:"quoting,omitempty"`
	Persistence   PersistenceConfig    `json:"persistence"`
	Control       ControlConfig        `json:"control"`
}

// Credential is one exchange/API's key pair, read from
// <EXCHANGE>_<API>_API_KEY / <EXCHANGE>_<API>_API_SECRET.
type Credential struct {
	APIKey    string
	APISecret string
}

// Config is the fully loaded OMS configuration: config.json plus
// environment-derived credentials and logging settings.
type Config struct {
	OMSIdentifier string
	DataFolder    string
	Subscriptions []SubscriptionConfig
	Quoting       []QuotingConfig
	Persistence   PersistenceConfig
	Control       ControlConfig

	// Credentials is keyed by credentialKey(exchange, api).
	Credentials map[string]Credential

	LogLevel  string
	LogPretty bool

	TelegramBotToken string
	TelegramChatID   int64
}

// InstrumentCSVPath is the conventional instruments.csv location inside
// DataFolder.
func (c *Config) InstrumentCSVPath() string {
	return c.DataFolder + "/instruments.csv"
}

// CredentialFor looks up the credential for a subscription's
// exchange/api pair.
func (c *Config) CredentialFor(exchange, api string) (Credential, bool) {
	cred, ok := c.Credentials[credentialKey(exchange, api)]
	return cred, ok
}

// Load reads path (config.json) and layers environment-derived
// credentials and runtime settings on top. Any missing or malformed
// required field is wrapped in errs.ErrConfiguration, which callers
// should treat as fatal.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w: %v", path, errs.ErrConfiguration, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w: %v", path, errs.ErrConfiguration, err)
	}

	if fc.OMSIdentifier == "" {
		return nil, fmt.Errorf("config: oms_identifier is required: %w", errs.ErrConfiguration)
	}
	if fc.DataFolder == "" {
		return nil, fmt.Errorf("config: data_folder is required: %w", errs.ErrConfiguration)
	}
	if len(fc.Subscriptions) == 0 {
		return nil, fmt.Errorf("config: at least one subscription is required: %w", errs.ErrConfiguration)
	}
	if fc.Persistence.Driver == "" {
		fc.Persistence.Driver = "sqlite"
	}
	if fc.Persistence.DSN == "" {
		fc.Persistence.DSN = fc.DataFolder + "/fills.db"
	}
	if fc.Control.ListenAddr == "" {
		fc.Control.ListenAddr = ":8787"
	}

	cfg := &Config{
		OMSIdentifier:    fc.OMSIdentifier,
		DataFolder:       fc.DataFolder,
		Subscriptions:    fc.Subscriptions,
		Quoting:          fc.Quoting,
		Persistence:      fc.Persistence,
		Control:          fc.Control,
		Credentials:      make(map[string]Credential),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvBool("LOG_PRETTY", false),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	for _, sub := range fc.Subscriptions {
		key := credentialKey(sub.Exchange, sub.Execution.API)
		apiKey := os.Getenv(key + "_API_KEY")
		apiSecret := os.Getenv(key + "_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			return nil, fmt.Errorf("config: missing %s_API_KEY/%s_API_SECRET: %w", key, key, errs.ErrConfiguration)
		}
		cfg.Credentials[key] = Credential{APIKey: apiKey, APISecret: apiSecret}
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TELEGRAM_CHAT_ID: %w: %v", errs.ErrConfiguration, err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

func credentialKey(exchange, api string) string {
	return strings.ToUpper(exchange) + "_" + strings.ToUpper(api)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
