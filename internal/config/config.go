package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Database   Database   `mapstructure:"database"`
	Logger     Logger     `mapstructure:"logger"`
	MarketData MarketData `mapstructure:"market_data"`
	Platform   Platform   `mapstructure:"platform"`
	Backfill   Backfill   `mapstructure:"backfill"`
}

// Database holds the configuration for the ledger store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MarketData holds the configuration for the daily-bars price oracle.
type MarketData struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	CallsPerMinute float64 `mapstructure:"calls_per_minute"`
	LookbackDays   int     `mapstructure:"lookback_days"`
}

// Platform holds the configuration for the trading-platform HTTP API.
type Platform struct {
	BaseURL string `mapstructure:"base_url"`
}

// BotSpec describes one synthetic bot to seed.
type BotSpec struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Email       string `mapstructure:"email"`
	Persona     string `mapstructure:"persona"`
}

// Backfill holds the tuning knobs for schedule synthesis and seeding.
type Backfill struct {
	Symbols       []string  `mapstructure:"symbols"`
	Bots          []BotSpec `mapstructure:"bots"`
	DaysBack      int       `mapstructure:"days_back"`
	TradingDays   int       `mapstructure:"trading_days"`
	TradeTarget   int       `mapstructure:"trade_target"`
	ExtremaWindow int       `mapstructure:"extrema_window"`
	MaxExtrema    int       `mapstructure:"max_extrema"`
	MaxSymbols    int       `mapstructure:"max_symbols"`
	MinHistory    int       `mapstructure:"min_history"`
	MinGapDays    int       `mapstructure:"min_gap_days"`
	Seed          int64     `mapstructure:"seed"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("database.dsn", "tradershub.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("market_data.calls_per_minute", 200) // provider's published ceiling
	viper.SetDefault("market_data.lookback_days", 3)
	viper.SetDefault("backfill.days_back", 365)
	viper.SetDefault("backfill.trading_days", 252)
	viper.SetDefault("backfill.trade_target", 100)
	viper.SetDefault("backfill.extrema_window", 5)
	viper.SetDefault("backfill.max_extrema", 10)
	viper.SetDefault("backfill.max_symbols", 15)
	viper.SetDefault("backfill.min_history", 20)
	viper.SetDefault("backfill.min_gap_days", 5)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
