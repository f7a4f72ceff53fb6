package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Postgres struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	SSLMode  string
	Schema   string
	Migrate  bool
}

type Kafka struct {
	Brokers     []string
	Topic       string
	Group       string
	Workers     int
	Partitions  int
	Replication int
}

// Enabled is false when no brokers are configured; order changes then
// invalidate the export cache in-process.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type Cache struct {
	Backend  string // "memory" or "redis"
	Cap      int
	TTL      time.Duration
	RedisURL string
	Prefix   string
	WarmSize int
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Retry struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

type Config struct {
	HTTPAddr        string
	LogLevel        string
	Env             string
	ShutdownTimeout time.Duration

	MediaRoot  string
	StagingDir string

	Pg      Postgres
	Cache   Cache
	Kafka   Kafka
	Breaker Breaker
	Retry   Retry
}

// Load fatals on error, it is meant to be called once from main().
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")

	cfg := Config{
		HTTPAddr:        envDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envDefault("LOG_LEVEL", "info"),
		Env:             envDefault("APP_ENV", "production"),
		ShutdownTimeout: envDurationMS("SHUTDOWN_TIMEOUT", 10*time.Second),

		MediaRoot:  envDefault("MEDIA_ROOT", "media"),
		StagingDir: strings.TrimSpace(os.Getenv("STAGING_DIR")),

		Pg: Postgres{
			Host:     strings.TrimSpace(os.Getenv("PG_HOST")),
			Port:     strings.TrimSpace(envDefault("PG_PORT", "5432")),
			DB:       strings.TrimSpace(os.Getenv("PG_DB")),
			User:     strings.TrimSpace(os.Getenv("PG_USER")),
			Password: strings.TrimSpace(os.Getenv("PG_PASSWORD")),
			SSLMode:  strings.TrimSpace(envDefault("PG_SSLMODE", "disable")),
			Schema:   strings.TrimSpace(envDefault("DB_SCHEMA", "shop")),
			Migrate:  envBool("DB_MIGRATE", true),
		},

		Cache: Cache{
			Backend:  strings.ToLower(envDefault("CACHE_BACKEND", "memory")),
			Cap:      envInt("CACHE_CAP", 1000),
			TTL:      envDurationMS("EXPORT_CACHE_TTL", 300*time.Second),
			RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
			Prefix:   envDefault("CACHE_PREFIX", "shop"),
			WarmSize: envInt("CACHE_WARM", 0),
		},

		Kafka: Kafka{
			Brokers:     splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
			Topic:       envDefault("KAFKA_TOPIC", "shop.orders.changed"),
			Group:       envDefault("KAFKA_GROUP", "shop-export-cache"),
			Workers:     envInt("KAFKA_WORKERS", 4),
			Partitions:  envInt("KAFKA_PARTITIONS", 3),
			Replication: envInt("KAFKA_REPLICATION", 1),
		},

		Breaker: Breaker{
			Threshold:   envUint32("BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS("BREAKER_OPENTIMEOUT", 10*time.Second),
			MaxHalfOpen: envUint32("BREAKER_MAXHALFOPEN", 3),
		},

		Retry: Retry{
			Attempts:     envInt("RETRY_ATTEMPTS", 5),
			Base:         envDurationMS("RETRY_BASE", 100*time.Millisecond),
			Max:          envDurationMS("RETRY_MAX", 5*time.Second),
			JitterFactor: envFloat64("RETRY_JITTERFACTOR", 0.3),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	req := map[string]string{
		"PG_HOST":     c.Pg.Host,
		"PG_DB":       c.Pg.DB,
		"PG_USER":     c.Pg.User,
		"PG_PASSWORD": c.Pg.Password,
	}
	if c.Cache.Backend == "redis" {
		req["REDIS_URL"] = c.Cache.RedisURL
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}
	return nil
}

func (c *Config) normalize() {
	if c.Cache.Cap <= 0 {
		log.Printf("CACHE_CAP is %d, adjusting to 1", c.Cache.Cap)
		c.Cache.Cap = 1
	}
	if c.Cache.TTL <= 0 {
		log.Printf("EXPORT_CACHE_TTL is %v, adjusting to 300s", c.Cache.TTL)
		c.Cache.TTL = 300 * time.Second
	}
	if c.Retry.Attempts < 1 {
		log.Printf("RETRY_ATTEMPTS is %d, adjusting to 1", c.Retry.Attempts)
		c.Retry.Attempts = 1
	}
	if c.Retry.Base <= 0 {
		log.Printf("RETRY_BASE is %v, adjusting to 100ms", c.Retry.Base)
		c.Retry.Base = 100 * time.Millisecond
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
		c.Retry.Max = c.Retry.Base
	}
	if c.Kafka.Workers < 1 {
		c.Kafka.Workers = 1
	}
	if c.Kafka.Partitions < 1 {
		c.Kafka.Partitions = 1
	}
	if c.Kafka.Replication < 1 {
		c.Kafka.Replication = 1
	}
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

// DSN builds a proper Postgres URL, safely escaping user/pass and query.
func (c Config) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Pg.User, c.Pg.Password),
		Host:   net.JoinHostPort(c.Pg.Host, c.Pg.Port),
		Path:   "/" + c.Pg.DB,
	}
	q := url.Values{}
	if c.Pg.SSLMode != "" {
		q.Set("sslmode", c.Pg.SSLMode)
	}
	if c.Pg.Schema != "" {
		q.Set("search_path", c.Pg.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %t: %v", k, v, def, err)
		return def
	}
	return b
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
