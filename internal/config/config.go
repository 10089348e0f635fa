package config

import "github.com/spf13/viper"

type Config struct {
	Port           string `mapstructure:"PORT"`
	TickIntervalMS int    `mapstructure:"TICK_INTERVAL_MS"`
	Symbols        string `mapstructure:"SYMBOLS"` // "SYMBOL:initial_price" pairs, comma separated
	FeedSeed       int64  `mapstructure:"FEED_SEED"`
	NatsURL        string `mapstructure:"NATS_URL"` // empty disables the NATS bridge
	DB_DSN         string `mapstructure:"DB_DSN"`   // empty disables the fill archiver
	JWTSecret      string `mapstructure:"JWT_SECRET"`
}

func LoadConfig() (config Config, err error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("app")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("TICK_INTERVAL_MS", 2000)
	viper.SetDefault("SYMBOLS", "BTC:45000,ETH:2800,SOL:150,DOGE:0.12,LINK:18")
	viper.SetDefault("FEED_SEED", 0)
	viper.SetDefault("NATS_URL", "")
	viper.SetDefault("DB_DSN", "")
	viper.SetDefault("JWT_SECRET", "dev-secret-change-me")

	err = viper.ReadInConfig()
	// If config file not found, we can still use env vars
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	}

	if err != nil {
		return Config{}, err
	}
	err = viper.Unmarshal(&config)
	return
}
