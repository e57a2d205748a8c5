// loads up the .env files and process environment to be used internally by Menuboard.

package config

import (
	"Menuboard/pkg/log"
	"Menuboard/pkg/validations"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/joho/godotenv"
)

// Defaults applied when the matching environment variable is missing.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStaleAfter        = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultMaxSubscribers    = 1024
	DefaultShutdownTimeout   = 5 * time.Second
)

// Config holds every setting Menuboard reads from its environment.
type Config struct {
	Env     string `valid:"required,in(DEV|TEST|PROD)"`
	Version string `valid:"optional,nospace"`

	// Address and Port to be used by gin.
	SrvAddr    string `valid:"optional,host"`
	SrvPort    string `valid:"required,port"`
	CORSOrigin string `valid:"optional,nospace"`

	// Redis is optional, presence tracking of dashboard streams is disabled without it.
	RedisAddr     string `valid:"optional,dialstring"`
	RedisPassword string `valid:"-"`
	RedisDBNumber int    `valid:"-"`

	// Shared secret of the order-creation workflow, publishing is open when empty.
	PublishSecret string `valid:"-"`

	HeartbeatInterval time.Duration `valid:"required,positive_duration"`
	StaleAfter        time.Duration `valid:"required,positive_duration"`
	WriteTimeout      time.Duration `valid:"required,positive_duration"`
	MaxSubscribers    int           `valid:"required,positive_int"`
	ShutdownTimeout   time.Duration `valid:"required,positive_duration"`
}

// Load reads the optional env file at path, then the process environment, and validates the result.
// A missing env file is not an error, deployments usually inject the environment directly.
func Load(ctx context.Context, logger log.Logger, path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	cfg := Config{
		Env:           strings.TrimSpace(os.Getenv("ENV")),
		Version:       strings.TrimSpace(os.Getenv("VERSION")),
		SrvAddr:       strings.TrimSpace(os.Getenv("SRV_ADDR")),
		SrvPort:       strings.TrimSpace(os.Getenv("SRV_PORT")),
		CORSOrigin:    strings.TrimSpace(os.Getenv("CORS_ORIGIN")),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		PublishSecret: os.Getenv("PUBLISH_SECRET"),
	}

	var err error
	if cfg.RedisDBNumber, err = intEnv("REDIS_DB_NUMBER", 0); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval, err = durationEnv("SSE_HEARTBEAT_INTERVAL", DefaultHeartbeatInterval); err != nil {
		return Config{}, err
	}
	if cfg.StaleAfter, err = durationEnv("SSE_STALE_AFTER", DefaultStaleAfter); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = durationEnv("SSE_WRITE_TIMEOUT", DefaultWriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxSubscribers, err = intEnv("SSE_MAX_SUBSCRIBERS", DefaultMaxSubscribers); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}

	validations.RegisterCustomValidations(ctx, logger)
	if _, valerr := govalidator.ValidateStruct(cfg); valerr != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", valerr)
	}
	// One missed heartbeat has to be tolerated before a subscriber counts as stale.
	if cfg.StaleAfter <= cfg.HeartbeatInterval {
		return Config{}, fmt.Errorf("invalid configuration: SSE_STALE_AFTER (%s) must exceed SSE_HEARTBEAT_INTERVAL (%s)", cfg.StaleAfter, cfg.HeartbeatInterval)
	}
	return cfg, nil
}

// Addr joins SrvAddr and SrvPort the way net/http expects it.
func (c Config) Addr() string {
	return c.SrvAddr + ":" + c.SrvPort
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse ENV: %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse ENV: %s: %w", key, err)
	}
	return n, nil
}
