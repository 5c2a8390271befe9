package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Databricks DatabricksConfig `json:"databricks"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Database    string `json:"database"`
	SSLMode     string `json:"sslmode"`
	PoolSize    int    `json:"pool_size"`
	MaxOverflow int    `json:"max_overflow"`
	PoolTimeout int    `json:"pool_timeout"` // seconds to wait for a connection
	PoolRecycle int    `json:"pool_recycle"` // seconds before an idle connection is recycled
}

type DatabricksConfig struct {
	Host         string `json:"host"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	SpaceID      string `json:"space_id"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on process environment")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "geniechat")
	viper.SetDefault("database.sslmode", "require")
	viper.SetDefault("database.pool_size", 5)
	viper.SetDefault("database.max_overflow", 10)
	viper.SetDefault("database.pool_timeout", 30)
	viper.SetDefault("database.pool_recycle", 1800)

	// Read config file if present; env overrides carry the rest
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	// The warehouse authenticates service principals by client id, so the
	// database user defaults to it unless set explicitly.
	if cfg.Database.User == "" {
		cfg.Database.User = cfg.Databricks.ClientID
	}

	return &cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Database overrides
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Database = dbName
	}
	if sslMode := os.Getenv("DB_SSLMODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	// Databricks overrides
	if host := os.Getenv("DATABRICKS_HOST"); host != "" {
		cfg.Databricks.Host = host
	}
	if id := os.Getenv("DATABRICKS_CLIENT_ID"); id != "" {
		cfg.Databricks.ClientID = id
	}
	if secret := os.Getenv("DATABRICKS_CLIENT_SECRET"); secret != "" {
		cfg.Databricks.ClientSecret = secret
	}
	if space := os.Getenv("SPACE_ID"); space != "" {
		cfg.Databricks.SpaceID = space
	}
}
