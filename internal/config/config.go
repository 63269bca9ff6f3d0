package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/haoxu/ivarb/pkg/models"
	"github.com/haoxu/ivarb/pkg/secrets"
)

type Config struct {
	Server      ServerConfig                `mapstructure:"server"`
	Monitor     MonitorConfig               `mapstructure:"monitor"`
	Telegram    TelegramConfig              `mapstructure:"telegram"`
	Positions   PositionsConfig             `mapstructure:"positions"`
	Instruments map[string]InstrumentConfig `mapstructure:"instruments"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	GCP         GCPConfig                   `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MonitorConfig struct {
	IntervalSeconds  int     `mapstructure:"interval_seconds"`
	DedupSeconds     int     `mapstructure:"dedup_seconds"`
	DedupBand        float64 `mapstructure:"dedup_band"`
	DaysBeforeExpiry int     `mapstructure:"days_before_expiry"`
	MaxHoldingDays   int     `mapstructure:"max_holding_days"`
	USDCNYRate       float64 `mapstructure:"usd_cny_rate"`
	TradingHoursOnly bool    `mapstructure:"trading_hours_only"`
	MaxForeignLots   int     `mapstructure:"max_foreign_lots"`
}

func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

func (m MonitorConfig) DedupWindow() time.Duration {
	return time.Duration(m.DedupSeconds) * time.Second
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type PositionsConfig struct {
	Path string `mapstructure:"path"`
}

type MarketConfig struct {
	Exchange    string  `mapstructure:"exchange"`
	Symbol      string  `mapstructure:"symbol"`
	QuoteSymbol string  `mapstructure:"quote_symbol"`
	Unit        string  `mapstructure:"unit"`
	BaseUnit    string  `mapstructure:"base_unit"`
	LotSize     float64 `mapstructure:"lot_size"`
	StrikeStep  float64 `mapstructure:"strike_step"`
	StrikeScale float64 `mapstructure:"strike_scale"`
}

type InstrumentConfig struct {
	Name              string       `mapstructure:"name"`
	Enabled           bool         `mapstructure:"enabled"`
	Domestic          MarketConfig `mapstructure:"domestic"`
	Foreign           MarketConfig `mapstructure:"foreign"`
	AltForeignSymbols []string     `mapstructure:"alt_foreign_symbols"`
	MinIVDiff         float64      `mapstructure:"min_iv_diff"`
	OpenThreshold     float64      `mapstructure:"open_threshold"`
	CloseThreshold    float64      `mapstructure:"close_threshold"`
	StopLoss          float64      `mapstructure:"stop_loss"`
	VegaPerLot        float64      `mapstructure:"vega_per_lot"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ivarb")
	}

	v.SetEnvPrefix("IVARB")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

// EnabledInstruments converts the config table into domain specs, sorted by
// key so every run walks the catalogue in the same order.
func (c *Config) EnabledInstruments() []models.InstrumentSpec {
	keys := make([]string, 0, len(c.Instruments))
	for key, inst := range c.Instruments {
		if inst.Enabled {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	specs := make([]models.InstrumentSpec, 0, len(keys))
	for _, key := range keys {
		specs = append(specs, c.Instruments[key].toSpec(key))
	}
	return specs
}

func (ic InstrumentConfig) toSpec(key string) models.InstrumentSpec {
	return models.InstrumentSpec{
		Key:               key,
		Name:              ic.Name,
		Enabled:           ic.Enabled,
		Domestic:          ic.Domestic.toSpec(),
		Foreign:           ic.Foreign.toSpec(),
		AltForeignSymbols: ic.AltForeignSymbols,
		MinIVDiff:         ic.MinIVDiff,
		OpenThreshold:     ic.OpenThreshold,
		CloseThreshold:    ic.CloseThreshold,
		StopLoss:          ic.StopLoss,
		VegaPerLot:        ic.VegaPerLot,
	}
}

func (mc MarketConfig) toSpec() models.MarketSpec {
	return models.MarketSpec{
		Exchange:    mc.Exchange,
		Symbol:      mc.Symbol,
		QuoteSymbol: mc.QuoteSymbol,
		Unit:        mc.Unit,
		BaseUnit:    mc.BaseUnit,
		LotSize:     mc.LotSize,
		StrikeStep:  mc.StrikeStep,
		StrikeScale: mc.StrikeScale,
	}
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)

	// Monitor defaults
	v.SetDefault("monitor.interval_seconds", 300)
	v.SetDefault("monitor.dedup_seconds", 1800)
	v.SetDefault("monitor.dedup_band", 2.0)
	v.SetDefault("monitor.days_before_expiry", 7)
	v.SetDefault("monitor.max_holding_days", 21)
	v.SetDefault("monitor.usd_cny_rate", 7.20)
	v.SetDefault("monitor.trading_hours_only", true)
	v.SetDefault("monitor.max_foreign_lots", 10)

	// Positions defaults
	v.SetDefault("positions.path", "./data/positions.json")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.telegram_bot_token", secretNames.TelegramBotToken)
	v.SetDefault("gcp.secret_names.telegram_chat_id", secretNames.TelegramChatID)

	setInstrumentDefaults(v)
}

// setInstrumentDefaults seeds the four-commodity catalogue. Any field can be
// overridden per-instrument in the config file; an instrument missing from
// the file is monitored with these values.
func setInstrumentDefaults(v *viper.Viper) {
	v.SetDefault("instruments.copper.name", "Copper")
	v.SetDefault("instruments.copper.enabled", true)
	v.SetDefault("instruments.copper.domestic.exchange", "SHFE")
	v.SetDefault("instruments.copper.domestic.symbol", "CU")
	v.SetDefault("instruments.copper.domestic.quote_symbol", "CU0")
	v.SetDefault("instruments.copper.domestic.unit", "CNY/tonne")
	v.SetDefault("instruments.copper.domestic.base_unit", "tonne")
	v.SetDefault("instruments.copper.domestic.lot_size", 5.0)
	v.SetDefault("instruments.copper.domestic.strike_step", 1000.0)
	v.SetDefault("instruments.copper.domestic.strike_scale", 1.0)
	v.SetDefault("instruments.copper.foreign.exchange", "CME")
	v.SetDefault("instruments.copper.foreign.symbol", "HG")
	v.SetDefault("instruments.copper.foreign.quote_symbol", "HG=F")
	v.SetDefault("instruments.copper.foreign.unit", "USD/pound")
	v.SetDefault("instruments.copper.foreign.base_unit", "pound")
	v.SetDefault("instruments.copper.foreign.lot_size", 25000.0)
	v.SetDefault("instruments.copper.foreign.strike_step", 1.0)
	v.SetDefault("instruments.copper.foreign.strike_scale", 100.0)
	v.SetDefault("instruments.copper.alt_foreign_symbols", []string{"CPER"})
	v.SetDefault("instruments.copper.min_iv_diff", 3.0)
	v.SetDefault("instruments.copper.open_threshold", 8.0)
	v.SetDefault("instruments.copper.close_threshold", 5.0)
	v.SetDefault("instruments.copper.stop_loss", 18.0)
	v.SetDefault("instruments.copper.vega_per_lot", 800.0)

	v.SetDefault("instruments.gold.name", "Gold")
	v.SetDefault("instruments.gold.enabled", true)
	v.SetDefault("instruments.gold.domestic.exchange", "SHFE")
	v.SetDefault("instruments.gold.domestic.symbol", "AU")
	v.SetDefault("instruments.gold.domestic.quote_symbol", "AU0")
	v.SetDefault("instruments.gold.domestic.unit", "CNY/gram")
	v.SetDefault("instruments.gold.domestic.base_unit", "gram")
	v.SetDefault("instruments.gold.domestic.lot_size", 1000.0)
	v.SetDefault("instruments.gold.domestic.strike_step", 10.0)
	v.SetDefault("instruments.gold.domestic.strike_scale", 1.0)
	v.SetDefault("instruments.gold.foreign.exchange", "CME")
	v.SetDefault("instruments.gold.foreign.symbol", "GC")
	v.SetDefault("instruments.gold.foreign.quote_symbol", "GC=F")
	v.SetDefault("instruments.gold.foreign.unit", "USD/ounce")
	v.SetDefault("instruments.gold.foreign.base_unit", "ounce")
	v.SetDefault("instruments.gold.foreign.lot_size", 100.0)
	v.SetDefault("instruments.gold.foreign.strike_step", 10.0)
	v.SetDefault("instruments.gold.foreign.strike_scale", 1.0)
	v.SetDefault("instruments.gold.alt_foreign_symbols", []string{"GLD"})
	v.SetDefault("instruments.gold.min_iv_diff", 2.0)
	v.SetDefault("instruments.gold.open_threshold", 6.0)
	v.SetDefault("instruments.gold.close_threshold", 4.0)
	v.SetDefault("instruments.gold.stop_loss", 15.0)
	v.SetDefault("instruments.gold.vega_per_lot", 500.0)

	v.SetDefault("instruments.silver.name", "Silver")
	v.SetDefault("instruments.silver.enabled", true)
	v.SetDefault("instruments.silver.domestic.exchange", "SHFE")
	v.SetDefault("instruments.silver.domestic.symbol", "AG")
	v.SetDefault("instruments.silver.domestic.quote_symbol", "AG0")
	v.SetDefault("instruments.silver.domestic.unit", "CNY/kilogram")
	v.SetDefault("instruments.silver.domestic.base_unit", "kilogram")
	v.SetDefault("instruments.silver.domestic.lot_size", 15.0)
	v.SetDefault("instruments.silver.domestic.strike_step", 100.0)
	v.SetDefault("instruments.silver.domestic.strike_scale", 1.0)
	v.SetDefault("instruments.silver.foreign.exchange", "CME")
	v.SetDefault("instruments.silver.foreign.symbol", "SI")
	v.SetDefault("instruments.silver.foreign.quote_symbol", "SI=F")
	v.SetDefault("instruments.silver.foreign.unit", "USD/ounce")
	v.SetDefault("instruments.silver.foreign.base_unit", "ounce")
	v.SetDefault("instruments.silver.foreign.lot_size", 5000.0)
	v.SetDefault("instruments.silver.foreign.strike_step", 50.0)
	v.SetDefault("instruments.silver.foreign.strike_scale", 100.0)
	v.SetDefault("instruments.silver.alt_foreign_symbols", []string{"SLV"})
	v.SetDefault("instruments.silver.min_iv_diff", 3.0)
	v.SetDefault("instruments.silver.open_threshold", 8.0)
	v.SetDefault("instruments.silver.close_threshold", 5.0)
	v.SetDefault("instruments.silver.stop_loss", 18.0)
	v.SetDefault("instruments.silver.vega_per_lot", 600.0)

	v.SetDefault("instruments.crude_oil.name", "Crude Oil")
	v.SetDefault("instruments.crude_oil.enabled", true)
	v.SetDefault("instruments.crude_oil.domestic.exchange", "INE")
	v.SetDefault("instruments.crude_oil.domestic.symbol", "SC")
	v.SetDefault("instruments.crude_oil.domestic.quote_symbol", "SC0")
	v.SetDefault("instruments.crude_oil.domestic.unit", "CNY/barrel")
	v.SetDefault("instruments.crude_oil.domestic.base_unit", "barrel")
	v.SetDefault("instruments.crude_oil.domestic.lot_size", 1000.0)
	v.SetDefault("instruments.crude_oil.domestic.strike_step", 10.0)
	v.SetDefault("instruments.crude_oil.domestic.strike_scale", 1.0)
	v.SetDefault("instruments.crude_oil.foreign.exchange", "CME")
	v.SetDefault("instruments.crude_oil.foreign.symbol", "CL")
	v.SetDefault("instruments.crude_oil.foreign.quote_symbol", "CL=F")
	v.SetDefault("instruments.crude_oil.foreign.unit", "USD/barrel")
	v.SetDefault("instruments.crude_oil.foreign.base_unit", "barrel")
	v.SetDefault("instruments.crude_oil.foreign.lot_size", 1000.0)
	v.SetDefault("instruments.crude_oil.foreign.strike_step", 1.0)
	v.SetDefault("instruments.crude_oil.foreign.strike_scale", 1.0)
	v.SetDefault("instruments.crude_oil.alt_foreign_symbols", []string{"USO"})
	v.SetDefault("instruments.crude_oil.min_iv_diff", 3.0)
	v.SetDefault("instruments.crude_oil.open_threshold", 8.0)
	v.SetDefault("instruments.crude_oil.close_threshold", 5.0)
	v.SetDefault("instruments.crude_oil.stop_loss", 18.0)
	v.SetDefault("instruments.crude_oil.vega_per_lot", 700.0)
}

func overrideFromEnv(config *Config) {
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Telegram.BotToken = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		config.Telegram.ChatID = chatID
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets that are not already set
	if config.Telegram.BotToken == "" {
		config.Telegram.BotToken = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.TelegramBotToken, "")
	}
	if config.Telegram.ChatID == "" {
		config.Telegram.ChatID = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.TelegramChatID, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
