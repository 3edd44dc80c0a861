package config

import (
	"errors"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds the runtime settings of the service. Every key can be set in
// docflow.yml or as an upper case environment variable, e.g. DB_DSN.
type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	GrpcPort string `mapstructure:"grpc_port"`
	HttpPort string `mapstructure:"http_port"`

	// Store selects the repository backend: gorm, badger or firestore.
	Store            string `mapstructure:"store"`
	DbDriver         string `mapstructure:"db_driver"`
	DbDsn            string `mapstructure:"db_dsn"`
	BadgerPath       string `mapstructure:"badger_path"`
	FirestoreProject string `mapstructure:"firestore_project"`
	Compression      string `mapstructure:"compression"`

	// BlobBucket stores file payloads in GCS when set, in memory otherwise.
	BlobBucket string `mapstructure:"blob_bucket"`
	RedisAddr  string `mapstructure:"redis_addr"`

	KafkaBrokers        string `mapstructure:"kafka_brokers"`
	KafkaTopic          string `mapstructure:"kafka_topic"`
	AuditExportSchedule string `mapstructure:"audit_export_schedule"`
	StatsSchedule       string `mapstructure:"stats_schedule"`

	ShareBaseURL string `mapstructure:"share_base_url"`
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

var defaults = map[string]any{
	"env":                   "development",
	"log_level":             "info",
	"grpc_port":             "4020",
	"http_port":             "4021",
	"store":                 "gorm",
	"db_driver":             "sqlite",
	"db_dsn":                ".tmp/docflow.db",
	"badger_path":           ".tmp/badger",
	"firestore_project":     "",
	"compression":           "gzip",
	"blob_bucket":           "",
	"redis_addr":            "",
	"kafka_brokers":         "",
	"kafka_topic":           "docflow.audit",
	"audit_export_schedule": "@every 30s",
	"stats_schedule":        "@every 5m",
	"share_base_url":        "http://localhost:4021",
}

// LoadConfig reads docflow.yml from the working directory or ./config when
// present, then overlays the environment.
func LoadConfig() *Config {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetConfigName("docflow")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logrus.Warnf("failed to read config file: %v", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logrus.Fatalf("failed to decode config: %v", err)
	}

	SetupLogger(cfg)

	return cfg
}

// SetupLogger applies the configured level and switches to json output in
// production.
func SetupLogger(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// SqliteDSN makes writers take the database lock when their transaction
// begins and wait for it instead of failing with SQLITE_BUSY. Parameters
// already present in dsn win.
func SqliteDSN(dsn string) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000"}
	for _, p := range params {
		key, _, _ := strings.Cut(p, "=")
		if strings.Contains(dsn, key+"=") {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

// GetDb opens the relational database named by the config.
func GetDb(cfg *Config) *gorm.DB {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if cfg.LogLevel == "debug" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.DbDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DbDsn)
	case "sqlite", "":
		path, _, _ := strings.Cut(cfg.DbDsn, "?")
		if i := strings.LastIndex(path, "/"); i > 0 {
			if err := os.MkdirAll(path[:i], 0o755); err != nil {
				logrus.Fatalf("failed to create database directory: %v", err)
			}
		}
		dialector = sqlite.Open(SqliteDSN(cfg.DbDsn))
	default:
		logrus.Fatalf("unsupported db driver %q", cfg.DbDriver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err)
	}

	return db
}
