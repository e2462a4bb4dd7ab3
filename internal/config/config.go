package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret      string
	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	GracePeriod  time.Duration
	TimerCadence time.Duration
	SeedDir      string // YAML/JSON assessment definitions loaded at boot

	PrereqBaseURL    string // empty = every prerequisite is satisfied
	PrereqTimeout    time.Duration
	PrereqMaxRetries uint64

	LockDriver string // local|redis
	RedisAddr  string
	RedisPwd   string
	RedisDB    int
	LockTTL    time.Duration

	AMQPURL      string // empty = events only go to the audit log
	AMQPExchange string
	SiteID       string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env: %v", err)
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		AuthSecret:         envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://lms.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010,http://localhost:3020"),

		GracePeriod:  time.Duration(envInt("GRACE_PERIOD_SEC", 5)) * time.Second,
		TimerCadence: time.Duration(envInt("TIMER_CADENCE_MS", 1000)) * time.Millisecond,
		SeedDir:      os.Getenv("ASSESSMENT_SEED_DIR"),

		PrereqBaseURL:    os.Getenv("PREREQ_BASE_URL"),
		PrereqTimeout:    time.Duration(envInt("PREREQ_TIMEOUT_MS", 2000)) * time.Millisecond,
		PrereqMaxRetries: uint64(envInt("PREREQ_MAX_RETRIES", 3)),

		LockDriver: envOr("LOCK_DRIVER", "local"),
		RedisAddr:  envOr("REDIS_ADDR", "localhost:6379"),
		RedisPwd:   os.Getenv("REDIS_PWD"),
		RedisDB:    envInt("REDIS_DB", 0),
		LockTTL:    time.Duration(envInt("LOCK_TTL_MS", 10000)) * time.Millisecond,

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: envOr("AMQP_EXCHANGE", "assessment.events"),
		SiteID:       envOr("SITE_ID", "local"),
	}
}

// CORSOrigins returns the allow-list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("config: ignoring %s=%q", k, v)
		return def
	}
	return n
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
