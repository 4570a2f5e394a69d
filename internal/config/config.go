// Package config loads server settings from flags and environment variables.
// Flags win over environment variables; environment variables win over
// defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the server process.
type Config struct {
	// Port is the TCP port the HTTP/websocket listener binds.
	Port int

	// AllowedOrigin restricts websocket upgrades; "*" accepts any origin.
	AllowedOrigin string

	// DebounceDelay is how long queued operations accumulate before a flush.
	DebounceDelay time.Duration

	// TailSize bounds the applied-operation tail kept per document.
	TailSize int

	// IdleEviction is how long a document with no sessions survives in
	// memory.
	IdleEviction time.Duration

	// ShutdownDrain caps how long shutdown waits for engines to flush.
	ShutdownDrain time.Duration

	// StoreBackend selects the persistence adapter: file, memory, redis, or
	// mongo.
	StoreBackend string

	// StoreDir is the snapshot directory for the file backend.
	StoreDir string

	// RedisAddr is the host:port for the redis backend.
	RedisAddr string

	// MongoURI is the connection string for the mongo backend.
	MongoURI string

	// MongoDatabase is the database name for the mongo backend.
	MongoDatabase string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Port:          5000,
		AllowedOrigin: "*",
		DebounceDelay: 500 * time.Millisecond,
		TailSize:      10,
		IdleEviction:  30 * time.Minute,
		ShutdownDrain: 30 * time.Second,
		StoreBackend:  "file",
		StoreDir:      "documents",
		RedisAddr:     "localhost:6379",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "otedit",
		LogLevel:      "info",
	}
}

// Load resolves the configuration from the environment and the given
// command-line arguments.
func Load(args []string) (Config, error) {
	cfg := Default()

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.AllowedOrigin = envString("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.DebounceDelay = time.Duration(envInt("DEBOUNCE_DELAY_MS", int(cfg.DebounceDelay/time.Millisecond))) * time.Millisecond
	cfg.TailSize = envInt("TAIL_SIZE", cfg.TailSize)
	cfg.IdleEviction = time.Duration(envInt("IDLE_EVICTION_MIN", int(cfg.IdleEviction/time.Minute))) * time.Minute
	cfg.ShutdownDrain = time.Duration(envInt("SHUTDOWN_DRAIN_SEC", int(cfg.ShutdownDrain/time.Second))) * time.Second
	cfg.StoreBackend = envString("STORE_BACKEND", cfg.StoreBackend)
	cfg.StoreDir = envString("STORE_DIR", cfg.StoreDir)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.MongoURI = envString("MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = envString("MONGODB_DATABASE", cfg.MongoDatabase)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.AllowedOrigin, "allowed-origin", cfg.AllowedOrigin, "Allowed websocket origin, * for any")
	fs.DurationVar(&cfg.DebounceDelay, "debounce", cfg.DebounceDelay, "Flush debounce delay")
	fs.IntVar(&cfg.TailSize, "tail-size", cfg.TailSize, "Applied-operation tail length")
	fs.DurationVar(&cfg.IdleEviction, "idle-eviction", cfg.IdleEviction, "Idle document eviction window")
	fs.DurationVar(&cfg.ShutdownDrain, "shutdown-drain", cfg.ShutdownDrain, "Shutdown drain deadline")
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "Persistence backend: file, memory, redis, or mongo")
	fs.StringVar(&cfg.StoreDir, "store-dir", cfg.StoreDir, "Snapshot directory for the file backend")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address")
	fs.StringVar(&cfg.MongoURI, "mongo", cfg.MongoURI, "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDatabase, "mongo-db", cfg.MongoDatabase, "MongoDB database name")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DebounceDelay <= 0 {
		return fmt.Errorf("debounce delay must be positive")
	}
	if c.TailSize <= 0 {
		return fmt.Errorf("tail size must be positive")
	}
	switch c.StoreBackend {
	case "file", "memory", "redis", "mongo":
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
