package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Policy   PolicyConfig
	Solver   SolverConfig
	Runs     RunsConfig
	Exports  ExportsConfig
	Cache    CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	Issuer      string
	TokenExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PolicyConfig holds the default capacity policy. File, when set, points at
// a YAML document that replaces the env values.
type PolicyConfig struct {
	MaxChoices   int
	MinOccupancy int
	MaxOccupancy int
	FirstSlot    int
	LastSlot     int
	File         string
}

// SolverConfig selects and tunes the engine.
type SolverConfig struct {
	Engine             string
	TimeLimit          time.Duration
	Gap                float64
	CBCPath            string
	WorkDir            string
	ScoreScale         float64
	ObjectiveTolerance float64
	BoundMaxVars       int
	ScoreTable         string
}

// RunsConfig configures asynchronous solve runs.
type RunsConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
	ResultTTL         time.Duration
	CleanupInterval   time.Duration
}

// ExportsConfig configures submission and report downloads.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// CacheConfig toggles caching of synchronous solve outcomes.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if _, err := os.Stat(".env"); err == nil {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:      v.GetString("JWT_SECRET"),
		Issuer:      v.GetString("JWT_ISSUER"),
		TokenExpiry: parseDuration(v.GetString("JWT_TOKEN_EXPIRY"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Policy = PolicyConfig{
		MaxChoices:   v.GetInt("POLICY_MAX_CHOICES"),
		MinOccupancy: v.GetInt("POLICY_MIN_OCCUPANCY"),
		MaxOccupancy: v.GetInt("POLICY_MAX_OCCUPANCY"),
		FirstSlot:    v.GetInt("POLICY_FIRST_SLOT"),
		LastSlot:     v.GetInt("POLICY_LAST_SLOT"),
		File:         v.GetString("POLICY_FILE"),
	}

	cfg.Solver = SolverConfig{
		Engine:             v.GetString("SOLVER_ENGINE"),
		TimeLimit:          parseDuration(v.GetString("SOLVER_TIME_LIMIT"), 450*time.Second),
		Gap:                v.GetFloat64("SOLVER_GAP"),
		CBCPath:            v.GetString("SOLVER_CBC_PATH"),
		WorkDir:            v.GetString("SOLVER_WORK_DIR"),
		ScoreScale:         v.GetFloat64("SOLVER_SCORE_SCALE"),
		ObjectiveTolerance: v.GetFloat64("SOLVER_OBJECTIVE_TOLERANCE"),
		BoundMaxVars:       v.GetInt("SOLVER_BOUND_MAX_VARS"),
		ScoreTable:         v.GetString("SCORE_TABLE"),
	}

	cfg.Runs = RunsConfig{
		Enabled:           v.GetBool("ENABLE_RUNS"),
		WorkerConcurrency: v.GetInt("RUNS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("RUNS_WORKER_RETRIES"),
		ResultTTL:         parseDuration(v.GetString("RUNS_RESULT_TTL"), 7*24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("RUNS_CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_SOLVE_CACHE"),
		TTL:     parseDuration(v.GetString("SOLVE_CACHE_TTL"), 30*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "workshop_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "workshop-scheduler")
	v.SetDefault("JWT_TOKEN_EXPIRY", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("POLICY_MAX_CHOICES", 10)
	v.SetDefault("POLICY_MIN_OCCUPANCY", 100)
	v.SetDefault("POLICY_MAX_OCCUPANCY", 300)
	v.SetDefault("POLICY_FIRST_SLOT", 1)
	v.SetDefault("POLICY_LAST_SLOT", 100)
	v.SetDefault("POLICY_FILE", "")

	v.SetDefault("SOLVER_ENGINE", "gophersat")
	v.SetDefault("SOLVER_TIME_LIMIT", "450s")
	v.SetDefault("SOLVER_GAP", 0.01)
	v.SetDefault("SOLVER_CBC_PATH", "cbc")
	v.SetDefault("SOLVER_WORK_DIR", "")
	v.SetDefault("SOLVER_SCORE_SCALE", 1)
	v.SetDefault("SOLVER_OBJECTIVE_TOLERANCE", 1e-6)
	v.SetDefault("SOLVER_BOUND_MAX_VARS", 1000)
	v.SetDefault("SCORE_TABLE", "100,90,85,80,75,70,60,50,40,30")

	v.SetDefault("ENABLE_RUNS", true)
	v.SetDefault("RUNS_WORKER_CONCURRENCY", 1)
	v.SetDefault("RUNS_WORKER_RETRIES", 3)
	v.SetDefault("RUNS_RESULT_TTL", "168h")
	v.SetDefault("RUNS_CLEANUP_INTERVAL", "1h")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")

	v.SetDefault("ENABLE_SOLVE_CACHE", false)
	v.SetDefault("SOLVE_CACHE_TTL", "30m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
