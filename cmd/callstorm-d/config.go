package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr            = "127.0.0.1:8090"
	defaultSwitches        = 1
	defaultSwitchCapacity  = 1000
	defaultPublishInterval = 2 * time.Second
)

type Config struct {
	Addr            string
	DBPath          string
	PlanPath        string
	RedisAddr       string
	EngineID        string
	Switches        int
	SwitchCapacity  int
	PublishInterval time.Duration
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	defaultDBPath := filepath.Join(cwd, "callstorm.db")

	addr := addrFromEnv(defaultAddr)
	dbPath := envOrDefault("CALLSTORM_DB_PATH", defaultDBPath)
	planPath := os.Getenv("CALLSTORM_PLAN_PATH")
	redisAddr := os.Getenv("CALLSTORM_REDIS_ADDR")
	engineID := envOrDefault("CALLSTORM_ENGINE_ID", defaultEngineID())

	switches := defaultSwitches
	if v := os.Getenv("CALLSTORM_SWITCHES"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CALLSTORM_SWITCHES: %w", err)
		}
		switches = parsed
	}
	capacity := defaultSwitchCapacity
	if v := os.Getenv("CALLSTORM_SWITCH_CAPACITY"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CALLSTORM_SWITCH_CAPACITY: %w", err)
		}
		capacity = parsed
	}
	publishInterval := defaultPublishInterval
	if v := os.Getenv("CALLSTORM_PUBLISH_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CALLSTORM_PUBLISH_INTERVAL: %w", err)
		}
		publishInterval = parsed
	}

	flagSet := flag.NewFlagSet("callstorm-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagDB := flagSet.String("db", dbPath, "path to the SQLite CDR database")
	flagPlan := flagSet.String("plan", planPath, "path to the load plan JSON")
	flagRedis := flagSet.String("redis", redisAddr, "redis address for live stats (empty disables)")
	flagEngineID := flagSet.String("engine-id", engineID, "engine identifier for published stats")
	flagSwitches := flagSet.Int("switches", switches, "number of simulated switch connections")
	flagCapacity := flagSet.Int("capacity", capacity, "per-switch session capacity")
	flagPublish := flagSet.String("publish-interval", publishInterval.String(), "stats publish interval")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	publishParsed, err := time.ParseDuration(*flagPublish)
	if err != nil {
		return Config{}, fmt.Errorf("invalid publish interval: %w", err)
	}

	config := Config{
		Addr:            strings.TrimSpace(*flagAddr),
		DBPath:          resolvePath(*flagDB, cwd),
		PlanPath:        resolvePath(*flagPlan, cwd),
		RedisAddr:       strings.TrimSpace(*flagRedis),
		EngineID:        strings.TrimSpace(*flagEngineID),
		Switches:        *flagSwitches,
		SwitchCapacity:  *flagCapacity,
		PublishInterval: publishParsed,
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.Switches < 1 {
		return Config{}, errors.New("switches must be at least 1")
	}
	if config.SwitchCapacity < 1 {
		return Config{}, errors.New("capacity must be at least 1")
	}
	if config.PublishInterval <= 0 {
		return Config{}, errors.New("publish interval must be positive")
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("CALLSTORM_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("CALLSTORM_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func defaultEngineID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "callstorm"
	}
	return host
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
