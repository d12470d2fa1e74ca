package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration for a single party node.
type Config struct {
	Addr string

	// Party is the identity this node acts as on the network.
	Party string

	// PostgresDSN selects the durable ledger store; empty means in-memory.
	PostgresDSN string

	// ScheduleDSN selects the durable transfer-trigger store; defaults to
	// PostgresDSN when empty.
	ScheduleDSN string

	Redis RedisConfig

	// KafkaBrokers selects the inter-party transport; empty means in-process.
	KafkaBrokers []string

	// TitleAPIBaseURL points at the external title data source.
	TitleAPIBaseURL string

	TitleAPITimeout time.Duration
}

// RedisConfig holds connection settings for the title lookup cache.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TitleCacheTTL enforces retention for cached title documents.
var TitleCacheTTL = 5 * time.Minute

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("CONVEYANCE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	party := os.Getenv("CONVEYANCE_PARTY")
	if party == "" {
		party = "HMLR"
	}

	titleAPI := os.Getenv("TITLE_API_URL")
	if titleAPI == "" {
		titleAPI = "http://localhost:8005"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = strings.Split(v, ",")
	}

	return Config{
		Addr:        addr,
		Party:       party,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		ScheduleDSN: os.Getenv("SCHEDULE_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  2 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
		},
		KafkaBrokers:    brokers,
		TitleAPIBaseURL: titleAPI,
		TitleAPITimeout: 5 * time.Second,
	}
}
