/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string  `mapstructure:"SERVER_PORT"`
	DatabaseURL             string  `mapstructure:"DATABASE_URL"`
	RedisURL                string  `mapstructure:"REDIS_URL"`
	RabbitMQURL             string  `mapstructure:"RABBITMQ_URL"`
	BillStatusQueue         string  `mapstructure:"BILL_STATUS_QUEUE"`
	LiquidityReconcileQueue string  `mapstructure:"LIQUIDITY_RECONCILE_QUEUE"`
	ProviderAPIBaseURL      string  `mapstructure:"PROVIDER_API_BASE_URL"`
	ProviderAPIKey          string  `mapstructure:"PROVIDER_API_KEY"`
	PriceOracleBaseURL      string  `mapstructure:"PRICE_ORACLE_BASE_URL"`
	PriceOracleAPIKey       string  `mapstructure:"PRICE_ORACLE_API_KEY"`
	InternalAPIKey          string  `mapstructure:"INTERNAL_API_KEY"`
	QuoteTTLSeconds         int     `mapstructure:"QUOTE_TTL_SECONDS"`
	QuoteMarkdownPercent    float64 `mapstructure:"QUOTE_MARKDOWN_PERCENT"`
	PurchaseStaleAfterMin   int     `mapstructure:"PURCHASE_STALE_AFTER_MINUTES"`
	SweepSchedule           string  `mapstructure:"SWEEP_SCHEDULE"`
	AuditBufferSize         int     `mapstructure:"AUDIT_BUFFER_SIZE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("BILL_STATUS_QUEUE", "settlement_service.bill_status")
	viper.SetDefault("LIQUIDITY_RECONCILE_QUEUE", "settlement_service.liquidity_reconcile")
	viper.SetDefault("QUOTE_TTL_SECONDS", 15)
	viper.SetDefault("QUOTE_MARKDOWN_PERCENT", 1.0)
	viper.SetDefault("PURCHASE_STALE_AFTER_MINUTES", 30)
	viper.SetDefault("SWEEP_SCHEDULE", "* * * * *")
	viper.SetDefault("AUDIT_BUFFER_SIZE", 256)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SETTLEMENT_REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BILL_STATUS_QUEUE")
	_ = viper.BindEnv("LIQUIDITY_RECONCILE_QUEUE")
	_ = viper.BindEnv("PROVIDER_API_BASE_URL")
	_ = viper.BindEnv("PROVIDER_API_KEY")
	_ = viper.BindEnv("PRICE_ORACLE_BASE_URL")
	_ = viper.BindEnv("PRICE_ORACLE_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "SETTLEMENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("QUOTE_TTL_SECONDS")
	_ = viper.BindEnv("QUOTE_MARKDOWN_PERCENT")
	_ = viper.BindEnv("PURCHASE_STALE_AFTER_MINUTES")
	_ = viper.BindEnv("SWEEP_SCHEDULE")
	_ = viper.BindEnv("AUDIT_BUFFER_SIZE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("SETTLEMENT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)

	if config.QuoteTTLSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive quote ttl configured; using default\" seconds=%d", config.QuoteTTLSeconds)
		config.QuoteTTLSeconds = 15
	}
	if config.QuoteMarkdownPercent < 0 || config.QuoteMarkdownPercent >= 100 {
		log.Printf("level=warn component=config msg=\"quote markdown out of range; coercing to zero\" percent=%f", config.QuoteMarkdownPercent)
		config.QuoteMarkdownPercent = 0
	}
	if config.PurchaseStaleAfterMin <= 0 {
		config.PurchaseStaleAfterMin = 30
	}

	return
}
