package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database     *dbConfig
	Service      *svcConfig
	Orchestrator *orchConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"audit"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`

	MigrationFolder string `envconfig:"WEBSITE_AUDIT_MIGRATIONS_FOLDER" default:""`
}

type svcConfig struct {
	Address        string `envconfig:"WEBSITE_AUDIT_ADDRESS" default:":3443"`
	MetricsAddress string `envconfig:"WEBSITE_AUDIT_METRICS_ADDRESS" default:":8080"`
	BaseUrl        string `envconfig:"WEBSITE_AUDIT_BASE_URL" default:"https://localhost:3443"`
	LogLevel       string `envconfig:"WEBSITE_AUDIT_LOG_LEVEL" default:"info"`
	Kafka          kafkaConfig
}

type kafkaConfig struct {
	Brokers  []string `envconfig:"WEBSITE_AUDIT_KAFKA_BROKERS" default:""`
	Topic    string   `envconfig:"WEBSITE_AUDIT_KAFKA_TOPIC" default:""`
	ClientID string   `envconfig:"WEBSITE_AUDIT_KAFKA_CLIENT_ID" default:""`
}

type orchConfig struct {
	MaxConcurrency   int           `envconfig:"WEBSITE_AUDIT_MAX_CONCURRENCY" default:"3"`
	MaxRetries       int           `envconfig:"WEBSITE_AUDIT_MAX_RETRIES" default:"2"`
	MaxJobDuration   time.Duration `envconfig:"WEBSITE_AUDIT_MAX_JOB_DURATION" default:"30m"`
	ActivityLogCap   int           `envconfig:"WEBSITE_AUDIT_ACTIVITY_LOG_CAP" default:"1000"`
	SkipPlanning     bool          `envconfig:"WEBSITE_AUDIT_SKIP_PLANNING" default:"true"`
	EnableEvaluation bool          `envconfig:"WEBSITE_AUDIT_ENABLE_EVALUATION" default:"false"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config suitable for tests: in-memory sqlite and
// small orchestration budgets.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{Type: "sqlite", Name: ":memory:"},
		Service:  &svcConfig{Address: ":3443", MetricsAddress: ":8080", LogLevel: "info"},
		Orchestrator: &orchConfig{
			MaxConcurrency: 3,
			MaxRetries:     2,
			MaxJobDuration: 30 * time.Minute,
			ActivityLogCap: 1000,
			SkipPlanning:   true,
		},
	}
}
