package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server    `mapstructure:"server"`
	Database Database  `mapstructure:"database"`
	Logger   Logger    `mapstructure:"logger"`
	Market   Market    `mapstructure:"market"`
	Ledger   Ledger    `mapstructure:"ledger"`
	Feed     Feed      `mapstructure:"feed"`
	Accounts []Account `mapstructure:"accounts"`
}

// Server holds the configuration for the desk and history web servers.
type Server struct {
	Port   int `mapstructure:"port"`
	UIPort int `mapstructure:"ui_port"`
	// AllowedOrigins lists the browser origins that may open the price
	// stream besides the desk itself. "*" allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Market holds the configuration for the simulated price feed.
type Market struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Seed         int64         `mapstructure:"seed"`
	Instruments  []Instrument  `mapstructure:"instruments"`
}

// Instrument describes one simulated pair and its seed price.
type Instrument struct {
	Symbol     string  `mapstructure:"symbol"`
	Price      float64 `mapstructure:"price"`
	Volatility float64 `mapstructure:"volatility"`
	Precision  int32   `mapstructure:"precision"`
}

// Ledger holds the trading rules applied to every session.
type Ledger struct {
	MinStake        int64   `mapstructure:"min_stake"`
	StakeStep       int64   `mapstructure:"stake_step"`
	FloorPayout     bool    `mapstructure:"floor_payout"`
	StartingBalance float64 `mapstructure:"starting_balance"`
	Journal         bool    `mapstructure:"journal"`
}

// Feed holds the configuration for the reference-rate API used to seed prices.
type Feed struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// Account is a demo account created on first start.
type Account struct {
	Username string  `mapstructure:"username"`
	Balance  float64 `mapstructure:"balance"`
}

// DefaultInstruments is the market used when the config file lists none.
func DefaultInstruments() []Instrument {
	return []Instrument{
		{Symbol: "EUR/USD", Price: 1.0750, Volatility: 0.0005, Precision: 4},
		{Symbol: "GBP/USD", Price: 1.2650, Volatility: 0.0005, Precision: 4},
		{Symbol: "AUD/USD", Price: 0.6600, Volatility: 0.0005, Precision: 4},
		{Symbol: "USD/JPY", Price: 157.50, Volatility: 0.05, Precision: 2},
	}
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}

	if len(config.Market.Instruments) == 0 {
		config.Market.Instruments = DefaultInstruments()
	}
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ui_port", 8081)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.dsn", "desk.db")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("market.tick_interval", time.Second)
	v.SetDefault("market.seed", 0) // 0 seeds from the clock

	v.SetDefault("ledger.min_stake", 100)
	v.SetDefault("ledger.stake_step", 50)
	v.SetDefault("ledger.floor_payout", true)
	v.SetDefault("ledger.starting_balance", 1000)
	v.SetDefault("ledger.journal", true)

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.base_url", "https://api.frankfurter.app")
	v.SetDefault("feed.timeout", 5*time.Second)
	v.SetDefault("feed.rate_limit", 5)       // requests per second
	v.SetDefault("feed.rate_limit_burst", 1) // burst size
}
